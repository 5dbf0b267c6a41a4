package outwriter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/huangsam/visqa/internal/contract"
	"github.com/huangsam/visqa/schema"
)

// writeWithFile handles the common pattern of opening a file, writing to it, and cleaning up.
// It accepts a writer function that takes an io.Writer and returns an error.
func writeWithFile(outputFile string, writer func(io.Writer) error, successMsg string) error {
	file, err := contract.SelectOutputFile(outputFile)
	if err != nil {
		return err
	}
	// Only close if it's not stdout
	if file != os.Stdout {
		defer func() { _ = file.Close() }()
	}

	if err := writer(file); err != nil {
		return err
	}

	if file != os.Stdout {
		_, _ = fmt.Fprintf(os.Stderr, "💾 %s to %s\n", successMsg, outputFile)
	}
	return nil
}

// writeJSON is a generic JSON encoder that handles indentation consistently.
func writeJSON(w io.Writer, data any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

// writeCSVWithHeader handles the common pattern of creating a CSV writer,
// writing a header, and writing data rows.
func writeCSVWithHeader(w io.Writer, header []string, writeRows func(*csv.Writer) error) error {
	csvWriter := csv.NewWriter(w)
	defer csvWriter.Flush()

	if err := csvWriter.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	if err := writeRows(csvWriter); err != nil {
		return err
	}

	csvWriter.Flush()
	return csvWriter.Error()
}

// createFormatters creates the common formatter closures used across multiple output types.
func createFormatters(precision int) (fmtFloat func(float64) string, intFmt string) {
	numFmt := "%.*f"
	intFmt = "%d"
	fmtFloat = func(v float64) string {
		return fmt.Sprintf(numFmt, precision, v)
	}
	return fmtFloat, intFmt
}

// formatScan renders the all-scan aggregate as "all".
func formatScan(scan int) string {
	if scan == schema.AllScanAggregate {
		return "all"
	}
	return strconv.Itoa(scan)
}

// reasonTags are the short table forms of the flag reasons.
var reasonTags = map[schema.Reason]string{
	schema.ReasonGT90DegOffset: "gt90deg",
	schema.ReasonAmpSymOff:     "sym_off",
	schema.ReasonTrecConfirmed: "trec",
}

// tableReasons renders reasons for the text table: flag tags first in short
// form, then the metric names, cut from the right to maxWidth runes.
func tableReasons(reasons []schema.Reason, maxWidth int) string {
	var tags, metrics []string
	for _, r := range reasons {
		if tag, ok := reasonTags[r]; ok {
			tags = append(tags, tag)
		} else {
			metrics = append(metrics, string(r))
		}
	}
	return truncateRight(strings.Join(append(tags, metrics...), " "), maxWidth)
}

func truncateRight(s string, maxWidth int) string {
	runes := []rune(s)
	if len(runes) > maxWidth && maxWidth > 3 {
		return string(runes[:maxWidth-3]) + "..."
	}
	return s
}
