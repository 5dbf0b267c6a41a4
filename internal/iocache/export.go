package iocache

import (
	"errors"
	"fmt"
	"io"

	"github.com/huangsam/visqa/internal/contract"
	"github.com/huangsam/visqa/internal/parquet"
)

// ExecuteAnalysisExport writes every tracked run, fit and outlier to Parquet files
// named after outputFile.
func ExecuteAnalysisExport(w io.Writer, store contract.AnalysisStore, outputFile string) error {
	if outputFile == "" {
		return errors.New("--output-file is required for export command")
	}
	if store == nil {
		return errors.New("analysis tracking is disabled")
	}

	status, err := store.GetStatus()
	if err != nil {
		return fmt.Errorf("failed to get analysis status: %w", err)
	}
	if status.TotalRuns == 0 {
		return errors.New("no analysis data found to export")
	}

	_, _ = fmt.Fprintf(w, "Exporting data from %s backend...\n", status.Backend)
	_, _ = fmt.Fprintf(w, "Total analysis runs: %d\n", status.TotalRuns)
	_, _ = fmt.Fprintf(w, "Total fit records: %d\n", status.TableSizes[antennaFitsTable])
	_, _ = fmt.Fprintf(w, "Total outlier records: %d\n", status.TableSizes[outliersTable])

	runs, err := store.GetAllAnalysisRuns()
	if err != nil {
		return fmt.Errorf("failed to retrieve analysis runs: %w", err)
	}
	fits, err := store.GetAllFits()
	if err != nil {
		return fmt.Errorf("failed to retrieve antenna fits: %w", err)
	}
	outliers, err := store.GetAllOutliers()
	if err != nil {
		return fmt.Errorf("failed to retrieve outliers: %w", err)
	}

	runsFile := outputFile + ".analysis_runs.parquet"
	parquetRuns := parquet.ConvertAnalysisRunRecords(runs)
	if err := parquet.WriteAnalysisRunsParquet(parquetRuns, runsFile); err != nil {
		return fmt.Errorf("failed to write analysis runs: %w", err)
	}
	_, _ = fmt.Fprintf(w, "Exported %d analysis runs to: %s\n", len(parquetRuns), runsFile)

	fitsFile := outputFile + ".antenna_fits.parquet"
	parquetFits := parquet.ConvertFitRowRecords(fits)
	if err := parquet.WriteAntennaFitsParquet(parquetFits, fitsFile); err != nil {
		return fmt.Errorf("failed to write antenna fits: %w", err)
	}
	_, _ = fmt.Fprintf(w, "Exported %d antenna fits to: %s\n", len(parquetFits), fitsFile)

	outliersFile := outputFile + ".outliers.parquet"
	parquetOutliers := parquet.ConvertOutlierRowRecords(outliers)
	if err := parquet.WriteOutliersParquet(parquetOutliers, outliersFile); err != nil {
		return fmt.Errorf("failed to write outliers: %w", err)
	}
	_, _ = fmt.Fprintf(w, "Exported %d outliers to: %s\n", len(parquetOutliers), outliersFile)

	_, _ = fmt.Fprintln(w, "\nExport complete! The Parquet files can be read with DuckDB, Pandas (via pyarrow) or Spark.")
	return nil
}
