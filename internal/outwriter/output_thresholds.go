package outwriter

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/huangsam/visqa/internal/contract"
	"github.com/huangsam/visqa/schema"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
)

// metricUnits are the units of the physical gate of each metric.
var metricUnits = map[schema.Metric]string{
	schema.AmpSlope:       "%/GHz",
	schema.AmpIntercept:   "%",
	schema.PhaseSlope:     "deg/GHz",
	schema.PhaseIntercept: "deg",
}

// thresholdRow is one gate in the thresholds report.
type thresholdRow struct {
	Name     string   `json:"name"`
	Sigma    float64  `json:"sigma"`
	Physical *float64 `json:"physical,omitempty"`
	Unit     string   `json:"unit,omitempty"`
}

// thresholdRows lists the aggregator gates followed by the single-dish detector thresholds.
func thresholdRows(cfg *contract.Config) []thresholdRow {
	var rows []thresholdRow
	for _, m := range schema.AllMetrics {
		gate := gateOf(cfg, m)
		rows = append(rows, thresholdRow{Name: string(m), Sigma: gate.Sigma, Physical: &gate.Physical, Unit: metricUnits[m]})
	}
	rows = append(rows,
		thresholdRow{Name: string(schema.SDDeviation), Sigma: cfg.DeviationThreshold},
		thresholdRow{Name: "sd_line", Sigma: cfg.LineThreshold},
		thresholdRow{Name: string(schema.SDPeriodicity), Sigma: cfg.PeriodicityThreshold},
	)
	return rows
}

// WriteThresholdsTable outputs the active thresholds, dispatching based on the output format configured.
func WriteThresholdsTable(cfg *contract.Config) error {
	fmtFloat, _ := createFormatters(cfg.Precision)
	rows := thresholdRows(cfg)

	physical := func(r thresholdRow) string {
		if r.Physical == nil {
			return "-"
		}
		return fmtFloat(*r.Physical)
	}

	switch cfg.Output {
	case schema.JSONOut:
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeJSON(w, rows)
		}, "Wrote JSON")
	case schema.CSVOut:
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeCSVWithHeader(w, []string{"name", "sigma", "physical", "unit"}, func(cw *csv.Writer) error {
				for _, r := range rows {
					if err := cw.Write([]string{r.Name, fmtFloat(r.Sigma), physical(r), r.Unit}); err != nil {
						return err
					}
				}
				return nil
			})
		}, "Wrote CSV")
	case schema.ParquetOut:
		return fmt.Errorf("%w: parquet output is only supported by evaluate", schema.ErrInvalidConfiguration)
	default:
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			table := tablewriter.NewWriter(w)
			table.Header([]string{"Name", "Sigma", "Physical", "Unit"})
			table.Configure(func(cfg *tablewriter.Config) {
				cfg.Row.Alignment.Global = tw.AlignRight
			})
			var data [][]string
			for _, r := range rows {
				data = append(data, []string{r.Name, fmtFloat(r.Sigma), physical(r), r.Unit})
			}
			if err := table.Bulk(data); err != nil {
				return err
			}
			if err := table.Render(); err != nil {
				return err
			}
			_, err := fmt.Fprintln(w, "An outlier must exceed both the sigma and the physical gate of its metric.")
			return err
		}, "Wrote table")
	}
}
