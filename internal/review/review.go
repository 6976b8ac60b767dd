// Package review describes datasets for audit: per-column profiles, an
// encoding pattern audit and data quality findings. Nothing here changes
// data or fails a run.
package review

import (
	"fmt"
	"io"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/soil-etl/internal/model"
)

// ColumnProfile summarizes one column.
type ColumnProfile struct {
	Column  string `yaml:"column"`
	NonNull int    `yaml:"non_null"`
	Null    int    `yaml:"null"`
	Unique  int    `yaml:"unique"`
}

// TableReview summarizes one tabular collection.
type TableReview struct {
	Name    string          `yaml:"name"`
	Rows    int             `yaml:"rows"`
	Columns int             `yaml:"columns"`
	Profile []ColumnProfile `yaml:"profile,omitempty"`
}

// Columnar is a row whose cells can be read by column name.
type Columnar interface {
	ColumnValue(name string) (string, bool)
}

// Profile summarizes rows over columns. Unique counts distinct non-null
// values.
func Profile[T Columnar](name string, rows []T, columns []string) TableReview {
	tr := TableReview{Name: name, Rows: len(rows), Columns: len(columns)}
	for _, col := range columns {
		cp := ColumnProfile{Column: col}
		seen := make(map[string]struct{})
		for _, row := range rows {
			v, ok := row.ColumnValue(col)
			if !ok || model.IsNull(v) {
				cp.Null++
				continue
			}
			cp.NonNull++
			seen[v] = struct{}{}
		}
		cp.Unique = len(seen)
		tr.Profile = append(tr.Profile, cp)
	}
	return tr
}

// ProfileFrame summarizes a persisted table frame.
func ProfileFrame(f model.Frame) TableReview {
	tr := TableReview{Name: f.Name, Rows: len(f.Rows), Columns: len(f.Columns)}
	for i, col := range f.Columns {
		cp := ColumnProfile{Column: col}
		seen := make(map[string]struct{})
		for _, row := range f.Rows {
			if i >= len(row) || row[i] == nil {
				cp.Null++
				continue
			}
			cp.NonNull++
			seen[fmt.Sprint(row[i])] = struct{}{}
		}
		cp.Unique = len(seen)
		tr.Profile = append(tr.Profile, cp)
	}
	return tr
}

// Report is everything the inspect command prints besides the run report.
type Report struct {
	Input     TableReview    `yaml:"input"`
	Expanded  TableReview    `yaml:"expanded"`
	Tables    []TableReview  `yaml:"tables"`
	Encodings []PatternAudit `yaml:"encodings"`
	Quality   Quality        `yaml:"quality"`
}

// Render writes v as YAML.
func Render(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return eris.Wrap(err, "review: encode yaml")
	}
	return eris.Wrap(enc.Close(), "review: flush yaml")
}
