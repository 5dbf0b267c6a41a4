package iocache

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/huangsam/visqa/internal/contract"
	"github.com/huangsam/visqa/schema"
)

// Table names for run tracking.
const (
	analysisRunsTable = "visqa_analysis_runs"
	antennaFitsTable  = "visqa_antenna_fits"
	outliersTable     = "visqa_outliers"
)

// analysisTables lists the tracking tables in creation order.
var analysisTables = []string{analysisRunsTable, antennaFitsTable, outliersTable}

// AnalysisStoreImpl implements the AnalysisStore interface.
type AnalysisStoreImpl struct {
	db      *sql.DB
	backend schema.DatabaseBackend
}

var _ contract.AnalysisStore = &AnalysisStoreImpl{} // Compile-time check

// NewAnalysisStore creates a new AnalysisStore with the specified backend.
func NewAnalysisStore(backend schema.DatabaseBackend, connStr string) (contract.AnalysisStore, error) {
	if backend == schema.NoneBackend {
		// No-op store for disabled tracking
		return &AnalysisStoreImpl{backend: backend}, nil
	}

	db, err := openDB(backend, connStr, GetAnalysisDBFilePath())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize analysis store: %w", err)
	}

	if err := createAnalysisTables(db, backend); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create analysis tables: %w", err)
	}

	return &AnalysisStoreImpl{db: db, backend: backend}, nil
}

// columnTypes are the backend spellings used by the tracking DDL.
var columnTypes = map[schema.DatabaseBackend]*strings.Replacer{
	schema.SQLiteBackend: strings.NewReplacer(
		"{serial}", "INTEGER PRIMARY KEY AUTOINCREMENT", "{bigint}", "INTEGER", "{int}", "INTEGER",
		"{double}", "REAL", "{key}", "TEXT", "{text}", "TEXT", "{bool}", "INTEGER", "{time}", "TEXT"),
	schema.MySQLBackend: strings.NewReplacer(
		"{serial}", "BIGINT AUTO_INCREMENT PRIMARY KEY", "{bigint}", "BIGINT", "{int}", "INT",
		"{double}", "DOUBLE", "{key}", "VARCHAR(128)", "{text}", "TEXT", "{bool}", "BOOLEAN", "{time}", "DATETIME(6)"),
	schema.PostgreSQLBackend: strings.NewReplacer(
		"{serial}", "BIGSERIAL PRIMARY KEY", "{bigint}", "BIGINT", "{int}", "INT",
		"{double}", "DOUBLE PRECISION", "{key}", "TEXT", "{text}", "TEXT", "{bool}", "BOOLEAN", "{time}", "TIMESTAMPTZ"),
}

var createTableTemplates = map[string]string{
	analysisRunsTable: `
		CREATE TABLE IF NOT EXISTS %s (
			analysis_id {serial},
			vis {text} NOT NULL,
			start_time {time} NOT NULL,
			end_time {time},
			run_duration_ms {int},
			total_units_evaluated {int},
			config_params {text}
		);`,
	antennaFitsTable: `
		CREATE TABLE IF NOT EXISTS %s (
			analysis_id {bigint} NOT NULL,
			spw {int} NOT NULL,
			scan {int} NOT NULL,
			antenna {key} NOT NULL,
			polarization {key} NOT NULL,
			amp_slope {double} NOT NULL,
			amp_slope_err {double} NOT NULL,
			amp_intercept {double} NOT NULL,
			amp_intercept_err {double} NOT NULL,
			phase_slope {double} NOT NULL,
			phase_slope_err {double} NOT NULL,
			phase_intercept {double} NOT NULL,
			phase_intercept_err {double} NOT NULL,
			low_snr {bool} NOT NULL,
			PRIMARY KEY (analysis_id, spw, scan, antenna, polarization)
		);`,
	outliersTable: `
		CREATE TABLE IF NOT EXISTS %s (
			analysis_id {bigint} NOT NULL,
			recorded_at {time} NOT NULL,
			spw {int} NOT NULL,
			scan {int} NOT NULL,
			antenna {key} NOT NULL,
			polarization {key} NOT NULL,
			metric {key} NOT NULL,
			num_sigma {double} NOT NULL,
			delta_physical {double} NOT NULL,
			reasons {text} NOT NULL,
			amp_freq_sym_off {bool} NOT NULL,
			PRIMARY KEY (analysis_id, spw, scan, antenna, polarization, metric)
		);`,
}

// getCreateAnalysisTableQuery returns the CREATE TABLE query of a tracking table.
func getCreateAnalysisTableQuery(table string, backend schema.DatabaseBackend) string {
	types, ok := columnTypes[backend]
	if !ok {
		types = columnTypes[schema.SQLiteBackend]
	}
	return fmt.Sprintf(types.Replace(createTableTemplates[table]), quoteTableName(table, backend))
}

// createAnalysisTables creates the run tracking tables.
func createAnalysisTables(db *sql.DB, backend schema.DatabaseBackend) error {
	for _, table := range analysisTables {
		if _, err := db.Exec(getCreateAnalysisTableQuery(table, backend)); err != nil {
			return fmt.Errorf("failed to create table %s: %w", table, err)
		}
	}
	return nil
}

func (as *AnalysisStoreImpl) table(name string) string {
	return quoteTableName(name, as.backend)
}

// BeginRun creates a new QA run and returns its unique ID.
func (as *AnalysisStoreImpl) BeginRun(vis string, startTime time.Time, configParams map[string]any) (int64, error) {
	if as.db == nil {
		return 0, nil
	}

	configJSON, err := json.Marshal(configParams)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal config params: %w", err)
	}

	query := fmt.Sprintf(`INSERT INTO %s (vis, start_time, config_params) VALUES (%s)`,
		as.table(analysisRunsTable), placeholders(as.backend, 3))
	args := []any{vis, formatTime(startTime, as.backend), string(configJSON)}

	var analysisID int64
	if as.backend == schema.PostgreSQLBackend {
		err = as.db.QueryRow(query+" RETURNING analysis_id", args...).Scan(&analysisID)
	} else {
		var result sql.Result
		result, err = as.db.Exec(query, args...)
		if err == nil {
			analysisID, err = result.LastInsertId()
		}
	}
	if err != nil {
		return 0, fmt.Errorf("failed to insert analysis run: %w", err)
	}
	return analysisID, nil
}

// EndRun updates the QA run with completion data.
func (as *AnalysisStoreImpl) EndRun(analysisID int64, endTime time.Time, totalUnits int) error {
	if as.db == nil {
		return nil
	}

	var start timeScanner
	query := fmt.Sprintf(`SELECT start_time FROM %s WHERE analysis_id = %s`, as.table(analysisRunsTable), placeholder(as.backend, 1))
	if err := as.db.QueryRow(query, analysisID).Scan(&start); err != nil {
		return fmt.Errorf("failed to get start_time for analysis %d: %w", analysisID, err)
	}
	durationMs := endTime.Sub(start.t).Milliseconds()

	update := fmt.Sprintf(`UPDATE %s SET end_time = %s, run_duration_ms = %s, total_units_evaluated = %s WHERE analysis_id = %s`,
		as.table(analysisRunsTable),
		placeholder(as.backend, 1), placeholder(as.backend, 2), placeholder(as.backend, 3), placeholder(as.backend, 4))
	if _, err := as.db.Exec(update, formatTime(endTime, as.backend), durationMs, totalUnits, analysisID); err != nil {
		return fmt.Errorf("failed to update analysis run: %w", err)
	}
	return nil
}

// RecordFit stores the amplitude and phase fit of one antenna/polarization.
func (as *AnalysisStoreImpl) RecordFit(analysisID int64, fit schema.AntennaFit) error {
	if as.db == nil {
		return nil
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (analysis_id, spw, scan, antenna, polarization,
		                amp_slope, amp_slope_err, amp_intercept, amp_intercept_err,
		                phase_slope, phase_slope_err, phase_intercept, phase_intercept_err, low_snr)
		VALUES (%s)
	`, as.table(antennaFitsTable), placeholders(as.backend, 14))
	_, err := as.db.Exec(query,
		analysisID, fit.SPW, fit.Scan, schema.AntennaLabel(fit.AntennaName, fit.Antenna), fit.Polarization,
		fit.Amp.Slope.Value, fit.Amp.Slope.Err, fit.Amp.Intercept.Value, fit.Amp.Intercept.Err,
		fit.Phase.Slope.Value, fit.Phase.Slope.Err, fit.Phase.Intercept.Value, fit.Phase.Intercept.Err, fit.LowSNR,
	)
	if err != nil {
		return fmt.Errorf("failed to insert antenna fit: %w", err)
	}
	return nil
}

// RecordOutlier stores one outlier record.
func (as *AnalysisStoreImpl) RecordOutlier(analysisID int64, rec schema.OutlierRecord) error {
	if as.db == nil {
		return nil
	}

	reasons := make([]string, len(rec.Reasons))
	for i, r := range rec.Reasons {
		reasons[i] = string(r)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (analysis_id, recorded_at, spw, scan, antenna, polarization,
		                metric, num_sigma, delta_physical, reasons, amp_freq_sym_off)
		VALUES (%s)
	`, as.table(outliersTable), placeholders(as.backend, 11))
	_, err := as.db.Exec(query,
		analysisID, formatTime(time.Now(), as.backend), rec.SPW, rec.Scan,
		schema.AntennaLabel(rec.AntennaName, rec.Antenna), rec.Polarization,
		string(rec.Metric), rec.NumSigma, rec.DeltaPhysical, strings.Join(reasons, ","), rec.AmpFreqSymOff,
	)
	if err != nil {
		return fmt.Errorf("failed to insert outlier: %w", err)
	}
	return nil
}

// Close closes the underlying connection.
func (as *AnalysisStoreImpl) Close() error {
	if as.db != nil {
		return as.db.Close()
	}
	return nil
}

// GetStatus returns status information about the analysis store.
func (as *AnalysisStoreImpl) GetStatus() (schema.AnalysisStatus, error) {
	status := schema.AnalysisStatus{
		Backend:    string(as.backend),
		Connected:  as.db != nil,
		TableSizes: make(map[string]int64),
	}
	if as.db == nil {
		return status, nil
	}

	runs := as.table(analysisRunsTable)
	if err := as.db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", runs)).Scan(&status.TotalRuns); err != nil {
		return status, fmt.Errorf("failed to get total runs: %w", err)
	}

	if status.TotalRuns > 0 {
		var last, oldest timeScanner
		query := fmt.Sprintf("SELECT analysis_id, start_time FROM %s ORDER BY analysis_id DESC LIMIT 1", runs)
		if err := as.db.QueryRow(query).Scan(&status.LastRunID, &last); err != nil {
			return status, fmt.Errorf("failed to get last run info: %w", err)
		}
		status.LastRunTime = last.t

		query = fmt.Sprintf("SELECT start_time FROM %s ORDER BY analysis_id ASC LIMIT 1", runs)
		if err := as.db.QueryRow(query).Scan(&oldest); err != nil {
			return status, fmt.Errorf("failed to get oldest run time: %w", err)
		}
		status.OldestRunTime = oldest.t

		query = fmt.Sprintf("SELECT COALESCE(SUM(total_units_evaluated), 0) FROM %s", runs)
		if err := as.db.QueryRow(query).Scan(&status.TotalUnitsEvaluated); err != nil {
			return status, fmt.Errorf("failed to get total units evaluated: %w", err)
		}
	}

	for _, table := range analysisTables {
		var count int64
		if err := as.db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", as.table(table))).Scan(&count); err != nil {
			return status, fmt.Errorf("failed to get count for table %s: %w", table, err)
		}
		status.TableSizes[table] = count
	}

	return status, nil
}

// GetAllAnalysisRuns retrieves all QA runs from the store.
func (as *AnalysisStoreImpl) GetAllAnalysisRuns() ([]schema.AnalysisRunRecord, error) {
	if as.db == nil {
		return nil, nil
	}

	query := fmt.Sprintf(`SELECT analysis_id, vis, start_time, end_time, run_duration_ms, total_units_evaluated, config_params
		FROM %s ORDER BY analysis_id`, as.table(analysisRunsTable))
	rows, err := as.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query analysis runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []schema.AnalysisRunRecord
	for rows.Next() {
		var record schema.AnalysisRunRecord
		var start, end timeScanner
		var units sql.NullInt32
		if err := rows.Scan(&record.AnalysisID, &record.Vis, &start, &end, &record.RunDurationMs, &units, &record.ConfigParams); err != nil {
			return nil, fmt.Errorf("failed to scan analysis run: %w", err)
		}
		record.StartTime = start.t
		record.EndTime = end.ptr()
		record.TotalUnitsEvaluated = units.Int32
		results = append(results, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating analysis runs: %w", err)
	}
	return results, nil
}

// GetAllFits retrieves all recorded antenna fits from the store.
func (as *AnalysisStoreImpl) GetAllFits() ([]schema.FitRowRecord, error) {
	if as.db == nil {
		return nil, nil
	}

	query := fmt.Sprintf(`SELECT analysis_id, spw, scan, antenna, polarization,
		amp_slope, amp_slope_err, amp_intercept, amp_intercept_err,
		phase_slope, phase_slope_err, phase_intercept, phase_intercept_err, low_snr
		FROM %s ORDER BY analysis_id, spw, scan, antenna, polarization`, as.table(antennaFitsTable))
	rows, err := as.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query antenna fits: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []schema.FitRowRecord
	for rows.Next() {
		var r schema.FitRowRecord
		if err := rows.Scan(&r.AnalysisID, &r.SPW, &r.Scan, &r.Antenna, &r.Polarization,
			&r.AmpSlope, &r.AmpSlopeErr, &r.AmpIntercept, &r.AmpInterceptErr,
			&r.PhaseSlope, &r.PhaseSlopeErr, &r.PhaseIntercept, &r.PhaseInterceptErr, &r.LowSNR); err != nil {
			return nil, fmt.Errorf("failed to scan antenna fit: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating antenna fits: %w", err)
	}
	return results, nil
}

// GetAllOutliers retrieves all recorded outliers from the store.
func (as *AnalysisStoreImpl) GetAllOutliers() ([]schema.OutlierRowRecord, error) {
	if as.db == nil {
		return nil, nil
	}

	query := fmt.Sprintf(`SELECT analysis_id, recorded_at, spw, scan, antenna, polarization,
		metric, num_sigma, delta_physical, reasons, amp_freq_sym_off
		FROM %s ORDER BY analysis_id, spw, scan, antenna, polarization, metric`, as.table(outliersTable))
	rows, err := as.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query outliers: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []schema.OutlierRowRecord
	for rows.Next() {
		var r schema.OutlierRowRecord
		var recorded timeScanner
		if err := rows.Scan(&r.AnalysisID, &recorded, &r.SPW, &r.Scan, &r.Antenna, &r.Polarization,
			&r.Metric, &r.NumSigma, &r.DeltaPhysical, &r.Reasons, &r.AmpFreqSymOff); err != nil {
			return nil, fmt.Errorf("failed to scan outlier: %w", err)
		}
		r.RecordedAt = recorded.t
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating outliers: %w", err)
	}
	return results, nil
}
