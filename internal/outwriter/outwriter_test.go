package outwriter

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/huangsam/visqa/core/agg"
	"github.com/huangsam/visqa/internal/contract"
	"github.com/huangsam/visqa/internal/parquet"
	"github.com/huangsam/visqa/schema"
	pq "github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	color.NoColor = true
}

func testConfig(output schema.OutputMode) *contract.Config {
	return &contract.Config{
		Output:               output,
		Precision:            2,
		ResultLimit:          contract.DefaultResultLimit,
		Width:                200,
		Workers:              2,
		Thresholds:           agg.DefaultThresholds(),
		DeviationThreshold:   contract.DefaultDeviationThreshold,
		LineThreshold:        contract.DefaultLineThreshold,
		PeriodicityThreshold: contract.DefaultPeriodicityThreshold,
		DetectThreshold:      contract.DefaultDetectThreshold,
		Sided:                schema.TwoSided,
		CacheBackend:         schema.NoneBackend,
	}
}

func sampleEvaluation() *schema.EvaluationResult {
	start := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	phase := schema.OutlierRecord{
		Vis: "uid___A002_X1.ms", Intent: "BANDPASS", SPW: 17, Scan: 3, Antenna: 4, AntennaName: "DA45",
		Polarization: "XX", Metric: schema.PhaseIntercept, NumSigma: 300, DeltaPhysical: 95,
		Reasons: []schema.Reason{schema.ReasonGT90DegOffset, schema.Reason(schema.PhaseIntercept)},
	}
	amp := schema.OutlierRecord{
		Vis: "uid___A002_X1.ms", Intent: "BANDPASS", SPW: 17, Scan: 3, Antenna: 2,
		Polarization: "YY", Metric: schema.AmpSlope, NumSigma: -30, DeltaPhysical: 6,
		Reasons: []schema.Reason{schema.Reason(schema.AmpSlope)},
	}
	fit := schema.AntennaFit{SPW: 17, Scan: 3, Antenna: 4, AntennaName: "DA45", Polarization: "XX",
		Amp: schema.FitResult{Intercept: schema.Measurement{Value: 1.5, Err: 0.01}}}
	return &schema.EvaluationResult{
		AnalysisID: 7,
		Vis:        "uid___A002_X1.ms",
		Intent:     "BANDPASS",
		Mode:       schema.InterferometricMode,
		StartTime:  start,
		EndTime:    start.Add(2 * time.Second),
		Units: []schema.UnitResult{
			{SPW: 17, Scan: 3, Evaluated: true, Fits: []schema.AntennaFit{fit}, Outliers: []schema.OutlierRecord{amp, phase}},
			{SPW: 17, Scan: schema.AllScanAggregate, Err: "insufficient data"},
		},
	}
}

// capture runs fn with cfg.OutputFile pointing into a temp dir and returns the file contents.
func capture(t *testing.T, cfg *contract.Config, fn func() error) string {
	t.Helper()
	cfg.OutputFile = filepath.Join(t.TempDir(), "out")
	require.NoError(t, fn())
	data, err := os.ReadFile(cfg.OutputFile)
	require.NoError(t, err)
	return string(data)
}

func TestWriteEvaluationResults(t *testing.T) {
	ow := NewOutWriter()

	t.Run("text", func(t *testing.T) {
		cfg := testConfig(schema.TextOut)
		cfg.ShowFits = true
		out := capture(t, cfg, func() error { return ow.WriteEvaluation(sampleEvaluation(), cfg) })

		assert.Contains(t, out, "DA45")
		assert.Contains(t, out, "ant2", "unnamed antennas use their index")
		assert.Contains(t, out, "Critical")
		assert.Contains(t, out, "1.50 ± 0.01", "fits table is included")
		assert.Contains(t, out, "Showing 2 of 2 outliers in uid___A002_X1.ms")
		assert.Contains(t, out, "Evaluated 1 of 2 units")
		assert.Contains(t, out, "spw 17 scan all not evaluated: insufficient data")
		assert.Less(t, strings.Index(out, "DA45"), strings.Index(out, "ant2"), "most severe first")
	})

	t.Run("csv honours the limit", func(t *testing.T) {
		cfg := testConfig(schema.CSVOut)
		cfg.ResultLimit = 1
		out := capture(t, cfg, func() error { return ow.WriteEvaluation(sampleEvaluation(), cfg) })

		records, err := csv.NewReader(strings.NewReader(out)).ReadAll()
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, "rank", records[0][0])
		row := records[1]
		assert.Equal(t, "1", row[0])
		assert.Equal(t, "DA45", row[6])
		assert.Equal(t, "300.00", row[9])
		assert.Equal(t, "4.96", row[11], "300 sigma over the 60.5 sigma gate")
		assert.Equal(t, "Critical", row[12])
		assert.Equal(t, "gt90deg_offset_phase_vs_freq.intercept|phase_vs_freq.intercept", row[13])
	})

	t.Run("json", func(t *testing.T) {
		cfg := testConfig(schema.JSONOut)
		out := capture(t, cfg, func() error { return ow.WriteEvaluation(sampleEvaluation(), cfg) })

		var decoded struct {
			AnalysisID int64 `json:"analysis_id"`
			Units      []struct {
				Evaluated bool   `json:"evaluated"`
				Err       string `json:"error"`
				Outliers  int    `json:"outliers"`
			} `json:"units"`
			Outliers []schema.RankedOutlier `json:"outliers"`
			Fits     []schema.AntennaFit    `json:"fits"`
		}
		require.NoError(t, json.Unmarshal([]byte(out), &decoded))
		assert.Equal(t, int64(7), decoded.AnalysisID)
		require.Len(t, decoded.Units, 2)
		assert.Equal(t, 2, decoded.Units[0].Outliers)
		assert.Equal(t, "insufficient data", decoded.Units[1].Err)
		require.Len(t, decoded.Outliers, 2)
		assert.Equal(t, 1, decoded.Outliers[0].Rank)
		assert.Equal(t, schema.PhaseIntercept, decoded.Outliers[0].Metric)
		assert.Empty(t, decoded.Fits, "fits only with --fits")
	})

	t.Run("json without outliers is an empty list", func(t *testing.T) {
		cfg := testConfig(schema.JSONOut)
		empty := &schema.EvaluationResult{Vis: "a.ms"}
		out := capture(t, cfg, func() error { return ow.WriteEvaluation(empty, cfg) })
		assert.Contains(t, out, `"outliers": []`)
	})

	t.Run("parquet", func(t *testing.T) {
		cfg := testConfig(schema.ParquetOut)
		cfg.ShowFits = true
		cfg.OutputFile = filepath.Join(t.TempDir(), "qa.parquet")
		require.NoError(t, ow.WriteEvaluation(sampleEvaluation(), cfg))

		outliers, err := pq.ReadFile[parquet.OutlierRow](cfg.OutputFile)
		require.NoError(t, err)
		assert.Len(t, outliers, 2)
		assert.Equal(t, int64(7), outliers[0].AnalysisID)

		fits, err := pq.ReadFile[parquet.AntennaFitRow](strings.TrimSuffix(cfg.OutputFile, ".parquet") + ".fits.parquet")
		require.NoError(t, err)
		require.Len(t, fits, 1)
		assert.Equal(t, "DA45", fits[0].Antenna)
	})

	t.Run("parquet requires a file", func(t *testing.T) {
		cfg := testConfig(schema.ParquetOut)
		assert.Error(t, ow.WriteEvaluation(sampleEvaluation(), cfg))
	})
}

func TestWriteDetectionResult(t *testing.T) {
	result := schema.DetectionResult{
		ChanMax: 2, SNRMax: 21.5, WidthMax: 5, SmSigma: 0.1, DataMax: 2.15,
		Outliers: []bool{false, true, true, false},
		NormData: schema.Signal{Values: []float64{0.1, 8, 21.5, -0.3}, Mask: []bool{false, false, false, true}},
	}

	t.Run("text", func(t *testing.T) {
		cfg := testConfig(schema.TextOut)
		out := capture(t, cfg, func() error { return NewOutWriter().WriteDetection(result, cfg) })
		assert.Contains(t, out, "Flagged 2 of 4 samples at threshold 7.00 (two-sided)")
		assert.Contains(t, out, "Peak at channel 2: S/N 21.50")
		assert.Contains(t, out, "High", "21.5 sigma is about three times the threshold")
	})

	t.Run("csv", func(t *testing.T) {
		cfg := testConfig(schema.CSVOut)
		out := capture(t, cfg, func() error { return NewOutWriter().WriteDetection(result, cfg) })
		records, err := csv.NewReader(strings.NewReader(out)).ReadAll()
		require.NoError(t, err)
		require.Len(t, records, 5)
		assert.Equal(t, []string{"3", "-0.30", "true", "false"}, records[4])
	})

	t.Run("json", func(t *testing.T) {
		cfg := testConfig(schema.JSONOut)
		out := capture(t, cfg, func() error { return NewOutWriter().WriteDetection(result, cfg) })
		assert.Contains(t, out, `"flagged": 2`)
		assert.Contains(t, out, `"chan_max": 2`)
	})

	t.Run("parquet is rejected", func(t *testing.T) {
		err := NewOutWriter().WriteDetection(result, testConfig(schema.ParquetOut))
		assert.ErrorIs(t, err, schema.ErrInvalidConfiguration)
	})
}

func TestWriteSpectrumResult(t *testing.T) {
	result := schema.SpectrumResult{Freq: []float64{0, 0.25, 0.5}, Power: []float64{10, 2, 7}}

	t.Run("text", func(t *testing.T) {
		cfg := testConfig(schema.TextOut)
		out := capture(t, cfg, func() error { return NewOutWriter().WriteSpectrum(result, cfg) })
		assert.Contains(t, out, "Showing 3 of 3 bins")
		assert.Contains(t, out, "Peak (excluding DC) at bin 2, freq 0.50, power 7.00")
	})

	t.Run("csv", func(t *testing.T) {
		cfg := testConfig(schema.CSVOut)
		out := capture(t, cfg, func() error { return NewOutWriter().WriteSpectrum(result, cfg) })
		assert.Equal(t, "bin,freq,power\n0,0.00,10.00\n1,0.25,2.00\n2,0.50,7.00\n", out)
	})
}

func TestWriteThresholdsTable(t *testing.T) {
	t.Run("csv", func(t *testing.T) {
		cfg := testConfig(schema.CSVOut)
		out := capture(t, cfg, func() error { return NewOutWriter().WriteThresholds(cfg) })
		records, err := csv.NewReader(strings.NewReader(out)).ReadAll()
		require.NoError(t, err)
		require.Len(t, records, 8)
		assert.Equal(t, []string{"amp_vs_freq.slope", "25.00", "5.00", "%/GHz"}, records[1])
		assert.Equal(t, []string{"phase_vs_freq.intercept", "60.50", "6.00", "deg"}, records[4])
		assert.Equal(t, []string{"sd_deviation", "7.00", "-", ""}, records[5])
	})

	t.Run("overrides are reported", func(t *testing.T) {
		cfg := testConfig(schema.JSONOut)
		th, err := agg.NewThresholds(map[schema.Metric]agg.Threshold{schema.AmpSlope: {Sigma: 10, Physical: 2}})
		require.NoError(t, err)
		cfg.Thresholds = th
		out := capture(t, cfg, func() error { return NewOutWriter().WriteThresholds(cfg) })

		var rows []thresholdRow
		require.NoError(t, json.Unmarshal([]byte(out), &rows))
		assert.InDelta(t, 10, rows[0].Sigma, 1e-12)
		require.NotNil(t, rows[0].Physical)
		assert.InDelta(t, 2, *rows[0].Physical, 1e-12)
		assert.Nil(t, rows[6].Physical)
	})

	t.Run("text", func(t *testing.T) {
		cfg := testConfig(schema.TextOut)
		out := capture(t, cfg, func() error { return NewOutWriter().WriteThresholds(cfg) })
		assert.Contains(t, out, "sd_periodicity")
		assert.Contains(t, out, "both the sigma and the physical gate")
	})
}

func TestGetMaxTableReasonWidth(t *testing.T) {
	tests := []struct {
		width int
		want  int
	}{
		{width: 80, want: 15},
		{width: 130, want: 35},
		{width: 400, want: 60},
	}
	for _, tt := range tests {
		cfg := testConfig(schema.TextOut)
		cfg.Width = tt.width
		assert.Equal(t, tt.want, GetMaxTableReasonWidth(cfg), "width %d", tt.width)
	}
}

func TestTableReasons(t *testing.T) {
	reasons := []schema.Reason{schema.Reason(schema.PhaseIntercept), schema.ReasonGT90DegOffset, schema.ReasonTrecConfirmed}
	assert.Equal(t, "gt90deg trec phase_vs_freq.intercept", tableReasons(reasons, 60))
	assert.Equal(t, "gt90deg trec ph...", tableReasons(reasons, 18), "flags survive a narrow column")
	assert.Equal(t, "sym_off", tableReasons([]schema.Reason{schema.ReasonAmpSymOff}, 15))
	assert.Empty(t, tableReasons(nil, 15))
}

func TestWriteEvaluationNarrowReasons(t *testing.T) {
	cfg := testConfig(schema.TextOut)
	cfg.Width = 80
	out := capture(t, cfg, func() error { return NewOutWriter().WriteEvaluation(sampleEvaluation(), cfg) })
	assert.Contains(t, out, "gt90deg")
	assert.NotContains(t, out, "...eq.intercept")
}

func TestFormatScan(t *testing.T) {
	assert.Equal(t, "all", formatScan(schema.AllScanAggregate))
	assert.Equal(t, "12", formatScan(12))
}
