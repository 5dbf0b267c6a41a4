// Package vissource loads visibility datasets, receiver temperature spectra and
// standalone signals from files.
package vissource

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/huangsam/visqa/internal/contract"
	"github.com/huangsam/visqa/schema"
)

// Compile-time interface checks.
var (
	_ contract.VisibilitySource = &JSONSource{}
	_ contract.VisibilitySource = &ParquetSource{}
	_ contract.TrecSource       = &TrecFile{}
)

// Open picks a dataset source by file extension.
func Open(path string) (contract.VisibilitySource, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return NewJSONSource(path), nil
	case ".parquet", ".pq":
		return NewParquetSource(path), nil
	default:
		return nil, fmt.Errorf("%w: unsupported dataset format %q", schema.ErrInvalidConfiguration, filepath.Ext(path))
	}
}
