package outwriter

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/huangsam/visqa/internal/contract"
	"github.com/huangsam/visqa/internal/parquet"
	"github.com/huangsam/visqa/schema"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
)

// WriteEvaluationResults outputs the evaluation, dispatching based on the output format configured.
func WriteEvaluationResults(result *schema.EvaluationResult, cfg *contract.Config) error {
	fmtFloat, intFmt := createFormatters(cfg.Precision)
	ranked := rankedOutliers(result, cfg)

	switch cfg.Output {
	case schema.JSONOut:
		if err := writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeJSONEvaluation(w, result, ranked, cfg)
		}, "Wrote JSON"); err != nil {
			return fmt.Errorf("error writing JSON output: %w", err)
		}
	case schema.CSVOut:
		if err := writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeCSVOutliers(w, ranked, fmtFloat, intFmt)
		}, "Wrote CSV"); err != nil {
			return fmt.Errorf("error writing CSV output: %w", err)
		}
	case schema.ParquetOut:
		if err := writeParquetEvaluation(result, cfg); err != nil {
			return fmt.Errorf("error writing Parquet output: %w", err)
		}
	default:
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeEvaluationTable(w, result, ranked, cfg, fmtFloat, intFmt)
		}, "Wrote table")
	}
	return nil
}

// EvaluationJSON renders the evaluation as the JSON document written by the json output.
func EvaluationJSON(result *schema.EvaluationResult, cfg *contract.Config) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeJSONEvaluation(&buf, result, rankedOutliers(result, cfg), cfg); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// rankedOutliers orders the outliers by severity and applies the result limit.
func rankedOutliers(result *schema.EvaluationResult, cfg *contract.Config) []schema.RankedOutlier {
	ranked := schema.RankOutliers(result.Outliers(), sigmaGate(cfg))
	if cfg.ResultLimit > 0 && len(ranked) > cfg.ResultLimit {
		ranked = ranked[:cfg.ResultLimit]
	}
	return ranked
}

// writeEvaluationTable generates and writes the human-readable tables and summary.
func writeEvaluationTable(w io.Writer, result *schema.EvaluationResult, ranked []schema.RankedOutlier, cfg *contract.Config, fmtFloat func(float64) string, intFmt string) error {
	if len(ranked) > 0 {
		if err := writeOutlierTable(w, ranked, cfg, fmtFloat, intFmt); err != nil {
			return err
		}
	}
	if cfg.ShowFits {
		if fits := result.Fits(); len(fits) > 0 {
			if err := writeFitTable(w, fits, fmtFloat, intFmt); err != nil {
				return err
			}
		}
	}
	return writeEvaluationSummary(w, result, len(ranked), cfg)
}

func writeOutlierTable(w io.Writer, ranked []schema.RankedOutlier, cfg *contract.Config, fmtFloat func(float64) string, intFmt string) error {
	table := tablewriter.NewWriter(w)
	table.Header([]string{"Rank", "SPW", "Scan", "Antenna", "Pol", "Metric", "Sigma", "Delta", "Label", "Reasons"})
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignRight
	})

	reasonWidth := GetMaxTableReasonWidth(cfg)
	var data [][]string
	for _, r := range ranked {
		data = append(data, []string{
			strconv.Itoa(r.Rank),
			fmt.Sprintf(intFmt, r.SPW),
			formatScan(r.Scan),
			schema.AntennaLabel(r.AntennaName, r.Antenna),
			r.Polarization,
			string(r.Metric),
			fmtFloat(r.NumSigma),
			fmtFloat(r.DeltaPhysical),
			contract.GetColorLabel(r.Severity),
			tableReasons(r.Reasons, reasonWidth),
		})
	}
	if err := table.Bulk(data); err != nil {
		return err
	}
	return table.Render()
}

func writeFitTable(w io.Writer, fits []schema.AntennaFit, fmtFloat func(float64) string, intFmt string) error {
	table := tablewriter.NewWriter(w)
	table.Header([]string{"SPW", "Scan", "Antenna", "Pol", "Amp Slope", "Amp Int", "Phase Slope", "Phase Int", "Low SNR"})
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignRight
	})

	pm := func(m schema.Measurement) string {
		return fmtFloat(m.Value) + " ± " + fmtFloat(m.Err)
	}
	var data [][]string
	for _, f := range fits {
		data = append(data, []string{
			fmt.Sprintf(intFmt, f.SPW),
			formatScan(f.Scan),
			schema.AntennaLabel(f.AntennaName, f.Antenna),
			f.Polarization,
			pm(f.Amp.Slope),
			pm(f.Amp.Intercept),
			pm(f.Phase.Slope),
			pm(f.Phase.Intercept),
			strconv.FormatBool(f.LowSNR),
		})
	}
	if err := table.Bulk(data); err != nil {
		return err
	}
	return table.Render()
}

// maxVisWidth bounds the measurement set path in the summary line.
const maxVisWidth = 60

func writeEvaluationSummary(w io.Writer, result *schema.EvaluationResult, shown int, cfg *contract.Config) error {
	total := len(result.Outliers())
	if _, err := fmt.Fprintf(w, "Showing %d of %d outliers in %s (intent: %s, mode: %s)\n",
		shown, total, contract.TruncatePath(result.Vis, maxVisWidth), result.Intent, result.Mode); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "Evaluated %d of %d units in %v with %d workers. Cache backend: %s\n",
		result.EvaluatedCount(), len(result.Units), result.EndTime.Sub(result.StartTime), cfg.Workers, cfg.CacheBackend); err != nil {
		return err
	}
	for _, u := range result.Units {
		if u.Evaluated {
			continue
		}
		if _, err := fmt.Fprintf(w, "⚠️  spw %d scan %s not evaluated: %s\n", u.SPW, formatScan(u.Scan), u.Err); err != nil {
			return err
		}
	}
	return nil
}

// writeCSVOutliers writes the ranked outliers in CSV format.
func writeCSVOutliers(w io.Writer, ranked []schema.RankedOutlier, fmtFloat func(float64) string, intFmt string) error {
	header := []string{
		"rank", "vis", "intent", "spw", "scan", "antenna", "antenna_name", "polarization",
		"metric", "num_sigma", "delta_physical", "severity", "label", "reasons", "amp_freq_sym_off",
	}
	return writeCSVWithHeader(w, header, func(cw *csv.Writer) error {
		for _, r := range ranked {
			rec := []string{
				strconv.Itoa(r.Rank),
				r.Vis,
				r.Intent,
				fmt.Sprintf(intFmt, r.SPW),
				fmt.Sprintf(intFmt, r.Scan),
				fmt.Sprintf(intFmt, r.Antenna),
				r.AntennaName,
				r.Polarization,
				string(r.Metric),
				fmtFloat(r.NumSigma),
				fmtFloat(r.DeltaPhysical),
				fmtFloat(r.Severity),
				r.Label,
				joinReasons(r.Reasons, "|"),
				strconv.FormatBool(r.AmpFreqSymOff),
			}
			if err := cw.Write(rec); err != nil {
				return err
			}
		}
		return nil
	})
}

// writeJSONEvaluation writes the evaluation in JSON format.
func writeJSONEvaluation(w io.Writer, result *schema.EvaluationResult, ranked []schema.RankedOutlier, cfg *contract.Config) error {
	type jsonUnit struct {
		SPW       int    `json:"spw"`
		Scan      int    `json:"scan"`
		Evaluated bool   `json:"evaluated"`
		Err       string `json:"error,omitempty"`
		Outliers  int    `json:"outliers"`
		Duration  string `json:"duration"`
	}
	type jsonEvaluation struct {
		AnalysisID int64                  `json:"analysis_id,omitempty"`
		Vis        string                 `json:"vis"`
		Intent     string                 `json:"intent"`
		Mode       schema.EvalMode        `json:"mode"`
		Duration   string                 `json:"duration"`
		Units      []jsonUnit             `json:"units"`
		Outliers   []schema.RankedOutlier `json:"outliers"`
		Fits       []schema.AntennaFit    `json:"fits,omitempty"`
	}

	output := jsonEvaluation{
		AnalysisID: result.AnalysisID,
		Vis:        result.Vis,
		Intent:     result.Intent,
		Mode:       result.Mode,
		Duration:   result.EndTime.Sub(result.StartTime).String(),
		Units:      make([]jsonUnit, len(result.Units)),
		Outliers:   ranked,
	}
	if output.Outliers == nil {
		output.Outliers = []schema.RankedOutlier{}
	}
	for i, u := range result.Units {
		output.Units[i] = jsonUnit{
			SPW: u.SPW, Scan: u.Scan, Evaluated: u.Evaluated, Err: u.Err,
			Outliers: len(u.Outliers), Duration: u.Duration.String(),
		}
	}
	if cfg.ShowFits {
		output.Fits = result.Fits()
	}
	return writeJSON(w, output)
}

// writeParquetEvaluation writes every outlier, and the fits when requested, to Parquet files.
func writeParquetEvaluation(result *schema.EvaluationResult, cfg *contract.Config) error {
	if cfg.OutputFile == "" {
		return errors.New("parquet output requires --output-file")
	}
	rows := parquet.OutlierRowsFromRecords(result.AnalysisID, result.EndTime, result.Outliers())
	if err := parquet.WriteOutliersParquet(rows, cfg.OutputFile); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(os.Stderr, "💾 Wrote %d outliers to %s\n", len(rows), cfg.OutputFile)

	if !cfg.ShowFits {
		return nil
	}
	fitsFile := strings.TrimSuffix(cfg.OutputFile, ".parquet") + ".fits.parquet"
	fitRows := parquet.FitRowsFromFits(result.AnalysisID, result.Fits())
	if err := parquet.WriteAntennaFitsParquet(fitRows, fitsFile); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(os.Stderr, "💾 Wrote %d fits to %s\n", len(fitRows), fitsFile)
	return nil
}

func joinReasons(reasons []schema.Reason, sep string) string {
	parts := make([]string, len(reasons))
	for i, r := range reasons {
		parts[i] = string(r)
	}
	return strings.Join(parts, sep)
}
