package schema

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/sells-group/soil-etl/internal/model"
)

// Contract violation kinds.
const (
	KindMissingTable      = "missing_table"
	KindExtraColumns      = "extra_columns"
	KindMissingColumns    = "missing_columns"
	KindColumnOrder       = "column_order"
	KindMissingPrimaryKey = "missing_primary_key"
	KindMissingForeignKey = "missing_foreign_key"
)

// ContractError reports output that does not fit the relational schema.
// It is fatal: nothing is persisted once it is raised.
type ContractError struct {
	Table   string
	Kind    string
	Columns []string
}

func (e *ContractError) Error() string {
	if len(e.Columns) == 0 {
		return fmt.Sprintf("schema: table %s: %s", e.Table, e.Kind)
	}
	return fmt.Sprintf("schema: table %s: %s: %s", e.Table, e.Kind, strings.Join(e.Columns, ", "))
}

// IsContractError reports whether err wraps a *ContractError.
func IsContractError(err error) bool {
	var ce *ContractError
	return errors.As(err, &ce)
}

// Validate checks that every schema table has a frame whose columns are
// exactly the declared ones, in declared order, and include every primary
// and foreign key column.
func Validate(s *Schema, frames []model.Frame) error {
	byName := make(map[string]model.Frame, len(frames))
	for _, f := range frames {
		byName[f.Name] = f
	}

	for _, t := range s.Tables {
		f, ok := byName[t.Name]
		if !ok {
			return &ContractError{Table: t.Name, Kind: KindMissingTable}
		}

		have := toSet(f.Columns)
		want := toSet(t.ColumnNames())

		if extra := difference(have, want); len(extra) > 0 {
			return &ContractError{Table: t.Name, Kind: KindExtraColumns, Columns: extra}
		}
		if missing := difference(want, have); len(missing) > 0 {
			return &ContractError{Table: t.Name, Kind: KindMissingColumns, Columns: missing}
		}
		for _, pk := range t.PrimaryKeys {
			if !have[pk] {
				return &ContractError{Table: t.Name, Kind: KindMissingPrimaryKey, Columns: []string{pk}}
			}
		}
		for _, fk := range t.ForeignKeys {
			if !have[fk.Column] {
				return &ContractError{Table: t.Name, Kind: KindMissingForeignKey, Columns: []string{fk.Column}}
			}
		}
		for i, c := range t.Columns {
			if f.Columns[i] != c.Name {
				return &ContractError{Table: t.Name, Kind: KindColumnOrder, Columns: []string{f.Columns[i], c.Name}}
			}
		}
	}
	return nil
}

func toSet(cols []string) map[string]bool {
	out := make(map[string]bool, len(cols))
	for _, c := range cols {
		out[c] = true
	}
	return out
}

func difference(a, b map[string]bool) []string {
	var out []string
	for k := range a {
		if !b[k] {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
