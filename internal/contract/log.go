package contract

import (
	"fmt"
	"os"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	logLevel = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	logger   atomic.Pointer[zap.Logger]
)

func init() {
	logger.Store(newLogger(zapcore.Lock(os.Stderr)))
}

// newLogger builds a console logger writing to ws at the shared level.
func newLogger(ws zapcore.WriteSyncer) *zap.Logger {
	ec := zap.NewProductionEncoderConfig()
	ec.EncodeTime = zapcore.ISO8601TimeEncoder
	ec.EncodeLevel = zapcore.CapitalLevelEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(ec), ws, logLevel)
	return zap.New(core)
}

// SetLogLevel changes the level of the process logger ("debug", "info", "warn", "error").
func SetLogLevel(level string) error {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	logLevel.SetLevel(lvl)
	return nil
}

// SetLogOutput redirects the process logger, mainly for tests.
func SetLogOutput(ws zapcore.WriteSyncer) {
	logger.Store(newLogger(ws))
}

// Logger returns the process logger.
func Logger() *zap.Logger {
	return logger.Load()
}

// LogFatal logs an error and exits the program.
func LogFatal(msg string, err error) {
	l := Logger()
	l.Error(msg, zap.Error(err))
	_ = l.Sync()
	os.Exit(1)
}

// LogWarn logs a warning with its cause.
func LogWarn(msg string, err error) {
	Logger().Warn(msg, zap.Error(err))
}

// LogInfo logs progress information.
func LogInfo(msg string, fields ...zap.Field) {
	Logger().Info(msg, fields...)
}

// LogDebug logs detail that is only useful when diagnosing a run.
func LogDebug(msg string, fields ...zap.Field) {
	Logger().Debug(msg, fields...)
}
