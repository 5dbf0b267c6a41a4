package outwriter

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/huangsam/visqa/internal/contract"
	"github.com/huangsam/visqa/schema"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
)

// WriteDetectionResult outputs one detection pass, dispatching based on the output format configured.
func WriteDetectionResult(result schema.DetectionResult, cfg *contract.Config) error {
	fmtFloat, intFmt := createFormatters(cfg.Precision)

	switch cfg.Output {
	case schema.JSONOut:
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeJSON(w, struct {
				Flagged int `json:"flagged"`
				schema.DetectionResult
			}{result.OutlierCount(), result})
		}, "Wrote JSON")
	case schema.CSVOut:
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeCSVDetection(w, result, fmtFloat, intFmt)
		}, "Wrote CSV")
	case schema.ParquetOut:
		return fmt.Errorf("%w: parquet output is only supported by evaluate", schema.ErrInvalidConfiguration)
	default:
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeDetectionTable(w, result, cfg, fmtFloat, intFmt)
		}, "Wrote table")
	}
}

func writeDetectionTable(w io.Writer, result schema.DetectionResult, cfg *contract.Config, fmtFloat func(float64) string, intFmt string) error {
	var data [][]string
	for ch, flagged := range result.Outliers {
		if !flagged {
			continue
		}
		if cfg.ResultLimit > 0 && len(data) >= cfg.ResultLimit {
			break
		}
		ratio := 0.0
		if cfg.DetectThreshold > 0 {
			ratio = result.NormData.Values[ch] / cfg.DetectThreshold
		}
		data = append(data, []string{
			fmt.Sprintf(intFmt, ch),
			fmtFloat(result.NormData.Values[ch]),
			contract.GetColorLabel(ratio),
		})
	}

	if len(data) > 0 {
		table := tablewriter.NewWriter(w)
		table.Header([]string{"Channel", "Sigma", "Label"})
		table.Configure(func(cfg *tablewriter.Config) {
			cfg.Row.Alignment.Global = tw.AlignRight
		})
		if err := table.Bulk(data); err != nil {
			return err
		}
		if err := table.Render(); err != nil {
			return err
		}
	}

	if _, err := fmt.Fprintf(w, "Flagged %d of %d samples at threshold %s (%s-sided)\n",
		result.OutlierCount(), len(result.Outliers), fmtFloat(cfg.DetectThreshold), cfg.Sided); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "Peak at channel %d: S/N %s, data %s, smoothing width %s, noise %s\n",
		result.ChanMax, fmtFloat(result.SNRMax), fmtFloat(result.DataMax), fmtFloat(result.WidthMax), fmtFloat(result.SmSigma))
	return err
}

func writeCSVDetection(w io.Writer, result schema.DetectionResult, fmtFloat func(float64) string, intFmt string) error {
	return writeCSVWithHeader(w, []string{"channel", "norm_value", "masked", "outlier"}, func(cw *csv.Writer) error {
		for ch, v := range result.NormData.Values {
			rec := []string{
				fmt.Sprintf(intFmt, ch),
				fmtFloat(v),
				strconv.FormatBool(result.NormData.Masked(ch)),
				strconv.FormatBool(ch < len(result.Outliers) && result.Outliers[ch]),
			}
			if err := cw.Write(rec); err != nil {
				return err
			}
		}
		return nil
	})
}

// WriteSpectrumResult outputs a power spectrum, dispatching based on the output format configured.
func WriteSpectrumResult(result schema.SpectrumResult, cfg *contract.Config) error {
	fmtFloat, intFmt := createFormatters(cfg.Precision)

	switch cfg.Output {
	case schema.JSONOut:
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeJSON(w, result)
		}, "Wrote JSON")
	case schema.CSVOut:
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeCSVWithHeader(w, []string{"bin", "freq", "power"}, func(cw *csv.Writer) error {
				for i, p := range result.Power {
					if err := cw.Write([]string{fmt.Sprintf(intFmt, i), fmtFloat(result.Freq[i]), fmtFloat(p)}); err != nil {
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
			return writeSpectrumTable(w, result, cfg, fmtFloat, intFmt)
		}, "Wrote table")
	}
}

func writeSpectrumTable(w io.Writer, result schema.SpectrumResult, cfg *contract.Config, fmtFloat func(float64) string, intFmt string) error {
	table := tablewriter.NewWriter(w)
	table.Header([]string{"Bin", "Freq", "Power"})
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignRight
	})

	var data [][]string
	for i, p := range result.Power {
		if cfg.ResultLimit > 0 && i >= cfg.ResultLimit {
			break
		}
		data = append(data, []string{fmt.Sprintf(intFmt, i), fmtFloat(result.Freq[i]), fmtFloat(p)})
	}
	if err := table.Bulk(data); err != nil {
		return err
	}
	if err := table.Render(); err != nil {
		return err
	}

	if _, err := fmt.Fprintf(w, "Showing %d of %d bins\n", len(data), len(result.Power)); err != nil {
		return err
	}
	if peak := result.PeakBin(); peak >= 0 {
		if _, err := fmt.Fprintf(w, "Peak (excluding DC) at bin %d, freq %s, power %s\n",
			peak, fmtFloat(result.Freq[peak]), fmtFloat(result.Power[peak])); err != nil {
			return err
		}
	}
	return nil
}
