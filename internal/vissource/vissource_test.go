package vissource

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/huangsam/visqa/internal/parquet"
	"github.com/huangsam/visqa/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// smallDataset has one spw of 3 channels, two scans and two antennas with 2 integrations.
func smallDataset() *schema.Dataset {
	cube := func(offset float64) schema.VisibilityCube {
		return schema.VisibilityCube{
			Polarizations: []string{"XX", "YY"},
			Data: [][][]complex128{
				{{complex(1+offset, 0.1), complex(1+offset, 0.2)}, {1, 1}, {complex(1, -0.1), 1}},
				{{2, 2}, {complex(2, 0.5), 2}, {2, complex(2+offset, 0)}},
			},
			Flags: [][][]bool{
				{{false, false}, {false, true}, {false, false}},
				{{false, false}, {false, false}, {true, false}},
			},
		}
	}
	scan := func(id int) schema.ScanData {
		return schema.ScanData{ID: id, Antennas: []schema.AntennaData{
			{ID: 0, Name: "DA41", Cube: cube(0)},
			{ID: 1, Name: "DV02", Cube: cube(0.5)},
		}}
	}
	return &schema.Dataset{
		Vis:    "uid___A002_X1.ms",
		Intent: "BANDPASS",
		SpectralWindows: []schema.SpectralWindowData{{
			ID:    17,
			Freq:  []float64{1.00e11, 1.01e11, 1.02e11},
			Scans: []schema.ScanData{scan(3), scan(5)},
		}},
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestOpen(t *testing.T) {
	tests := []struct {
		path    string
		want    any
		wantErr bool
	}{
		{"data.json", &JSONSource{}, false},
		{"DATA.JSON", &JSONSource{}, false},
		{"data.parquet", &ParquetSource{}, false},
		{"data.pq", &ParquetSource{}, false},
		{"data.ms", nil, true},
		{"data", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			src, err := Open(tt.path)
			if tt.wantErr {
				assert.ErrorIs(t, err, schema.ErrInvalidConfiguration)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, src)
		})
	}
}

func TestJSONSourceRoundTrip(t *testing.T) {
	ds := smallDataset()
	path := filepath.Join(t.TempDir(), "ds.json")
	require.NoError(t, WriteJSON(path, ds))

	got, err := NewJSONSource(path).Load(context.Background())
	require.NoError(t, err)
	require.NoError(t, got.Validate())
	assert.Equal(t, ds, got)
}

func TestJSONSourceErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := NewJSONSource("/nonexistent/ds.json").Load(context.Background())
		assert.Error(t, err)
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := NewJSONSource(writeFile(t, "bad.json", "{")).Load(context.Background())
		assert.Error(t, err)
	})

	t.Run("re and im disagree", func(t *testing.T) {
		doc := `{"vis":"a.ms","spectral_windows":[{"id":1,"freq":[1],"scans":[{"id":1,"antennas":[
			{"id":0,"name":"A","cube":{"polarizations":["XX"],"re":[[[1,2]]],"im":[[[0]]]}}]}]}]}`
		_, err := NewJSONSource(writeFile(t, "ragged.json", doc)).Load(context.Background())
		assert.ErrorIs(t, err, schema.ErrInvalidConfiguration)
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := NewJSONSource("ds.json").Load(ctx)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestParquetSourceRoundTrip(t *testing.T) {
	ds := smallDataset()
	path := filepath.Join(t.TempDir(), "ds.parquet")
	require.NoError(t, parquet.WriteVisRowsParquet(DatasetRows(ds), path))

	got, err := NewParquetSource(path).Load(context.Background())
	require.NoError(t, err)
	require.NoError(t, got.Validate())
	assert.Equal(t, ds, got)
}

func TestDatasetFromRows(t *testing.T) {
	row := func(ch, tm int32, re float64) parquet.VisRow {
		return parquet.VisRow{Vis: "a.ms", Intent: "PHASE", SPW: 2, Scan: 1, Antenna: 4, AntennaName: "PM01",
			Polarization: "XX", Channel: ch, FreqHz: 1e9 + float64(ch)*1e6, Time: tm, Re: re}
	}

	t.Run("missing samples are flagged", func(t *testing.T) {
		ds, err := datasetFromRows([]parquet.VisRow{row(0, 0, 1), row(1, 1, 2)})
		require.NoError(t, err)
		require.Len(t, ds.SpectralWindows, 1)
		cube := ds.SpectralWindows[0].Scans[0].Antennas[0].Cube
		assert.Equal(t, 2, cube.NumChans())
		assert.Equal(t, 2, cube.NumTimes())
		assert.False(t, cube.Flagged(0, 0, 0))
		assert.True(t, cube.Flagged(0, 0, 1))
		assert.True(t, cube.Flagged(0, 1, 0))
		assert.Equal(t, complex(2, 0), cube.Data[0][1][1])
		assert.Equal(t, "PHASE", ds.Intent)
	})

	t.Run("empty", func(t *testing.T) {
		_, err := datasetFromRows(nil)
		assert.ErrorIs(t, err, schema.ErrInsufficientData)
	})

	t.Run("mixed datasets", func(t *testing.T) {
		other := row(1, 0, 1)
		other.Vis = "b.ms"
		_, err := datasetFromRows([]parquet.VisRow{row(0, 0, 1), other})
		assert.ErrorIs(t, err, schema.ErrInvalidConfiguration)
	})

	t.Run("inconsistent frequency", func(t *testing.T) {
		other := row(0, 1, 1)
		other.FreqHz = 5
		_, err := datasetFromRows([]parquet.VisRow{row(0, 0, 1), other})
		assert.ErrorIs(t, err, schema.ErrInvalidConfiguration)
	})

	t.Run("channel without frequency", func(t *testing.T) {
		_, err := datasetFromRows([]parquet.VisRow{row(0, 0, 1), row(2, 0, 1)})
		assert.ErrorIs(t, err, schema.ErrInvalidConfiguration)
	})

	t.Run("time index beyond the rows", func(t *testing.T) {
		_, err := datasetFromRows([]parquet.VisRow{row(0, 0, 1), row(1, math.MaxInt32-1, 1)})
		assert.ErrorIs(t, err, schema.ErrInvalidConfiguration)
		assert.ErrorContains(t, err, "time index")
	})

	t.Run("channel index beyond the channels", func(t *testing.T) {
		_, err := datasetFromRows([]parquet.VisRow{row(0, 0, 1), row(math.MaxInt32-1, 0, 1)})
		assert.ErrorIs(t, err, schema.ErrInvalidConfiguration)
		assert.ErrorContains(t, err, "channel index")
	})
}

func TestTrecFile(t *testing.T) {
	doc := `{"units":[
		{"spw":17,"scan":3,"spectra":[{"antenna":"DA41","polarizations":["XX","YY"],"values":[[50,51,50],[60,60,61]]}]},
		{"spw":17,"scan":5,"spectra":[{"antenna":"DV02","polarizations":["XX"],"values":[[40,80,40]]}]}
	]}`
	f := NewTrecFile(writeFile(t, "trec.json", doc))
	ctx := context.Background()

	got, err := f.Trec(ctx, 17, 3)
	require.NoError(t, err)
	require.Contains(t, got, "DA41")
	assert.Equal(t, []float64{60, 60, 61}, got["DA41"].Values[1])

	got, err = f.Trec(ctx, 17, 5)
	require.NoError(t, err)
	assert.Contains(t, got, "DV02")

	got, err = f.Trec(ctx, 99, 3)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestTrecFileErrors(t *testing.T) {
	_, err := NewTrecFile("/nonexistent/trec.json").Trec(context.Background(), 1, 1)
	assert.Error(t, err)

	doc := `{"units":[{"spw":1,"scan":1,"spectra":[{"antenna":"A","polarizations":["XX","YY"],"values":[[1]]}]}]}`
	f := NewTrecFile(writeFile(t, "trec.json", doc))
	_, err = f.Trec(context.Background(), 1, 1)
	assert.ErrorIs(t, err, schema.ErrInvalidConfiguration)
	_, err = f.Trec(context.Background(), 2, 2)
	assert.ErrorIs(t, err, schema.ErrInvalidConfiguration, "load error is sticky")
}

func TestLoadSignal(t *testing.T) {
	t.Run("real with mask", func(t *testing.T) {
		sf, err := LoadSignal(writeFile(t, "sig.json", `{"values":[1,2,3],"mask":[false,true,false]}`))
		require.NoError(t, err)
		assert.False(t, sf.IsComplex())
		sig, err := sf.Real()
		require.NoError(t, err)
		assert.Equal(t, []float64{1, 2, 3}, sig.Values)
		assert.True(t, sig.Masked(1))
	})

	t.Run("complex", func(t *testing.T) {
		sf, err := LoadSignal(writeFile(t, "sig.json", `{"values":[1,2],"imag":[0.5,-1]}`))
		require.NoError(t, err)
		assert.True(t, sf.IsComplex())
		sig, err := sf.Complex()
		require.NoError(t, err)
		assert.Equal(t, []complex128{complex(1, 0.5), complex(2, -1)}, sig.Values)
	})

	t.Run("errors", func(t *testing.T) {
		_, err := LoadSignal(writeFile(t, "empty.json", `{"values":[]}`))
		assert.ErrorIs(t, err, schema.ErrInsufficientData)

		_, err = LoadSignal(writeFile(t, "imag.json", `{"values":[1,2],"imag":[1]}`))
		assert.ErrorIs(t, err, schema.ErrInvalidConfiguration)

		sf, err := LoadSignal(writeFile(t, "mask.json", `{"values":[1,2],"mask":[true]}`))
		require.NoError(t, err)
		_, err = sf.Real()
		assert.ErrorIs(t, err, schema.ErrInvalidConfiguration)
	})
}
