// Package dedupe removes duplicate rows from tabular collections.
package dedupe

import (
	"strconv"
	"strings"

	"github.com/zeebo/xxh3"
	"go.uber.org/zap"

	"github.com/sells-group/soil-etl/internal/metrics"
)

// Columnar is a row whose cells can be read by column name.
type Columnar interface {
	ColumnNames() []string
	ColumnValue(name string) (string, bool)
}

// Rows returns rows with duplicates removed. Two rows are duplicates when
// every column in keys holds the same value; with no keys, every column of
// the row is compared. The first occurrence wins and input order is kept.
// name labels the collection in logs and metrics.
func Rows[T Columnar](rows []T, keys []string, name string) []T {
	log := zap.L().With(zap.String("component", "dedupe"), zap.String("table", name))

	out := make([]T, 0, len(rows))
	seen := make(map[uint64][]string, len(rows))
	unknown := make(map[string]bool)

	for _, row := range rows {
		cols := keys
		if len(cols) == 0 {
			cols = row.ColumnNames()
		}
		key := rowKey(row, cols, unknown)
		h := xxh3.HashString(key)

		dup := false
		for _, k := range seen[h] {
			if k == key {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		seen[h] = append(seen[h], key)
		out = append(out, row)
	}

	for col := range unknown {
		log.Warn("dedupe: key column not present, compared as null", zap.String("column", col))
	}

	removed := len(rows) - len(out)
	metrics.AddDuplicates(name, removed)
	if removed > 0 {
		log.Info("duplicates removed",
			zap.Int("before", len(rows)),
			zap.Int("after", len(out)),
			zap.Int("removed", removed),
			zap.Strings("keys", keys),
		)
	} else {
		log.Debug("no duplicates found", zap.Int("rows", len(rows)))
	}
	return out
}

// rowKey encodes the selected cells with length prefixes so distinct
// tuples never share an encoding.
func rowKey(row Columnar, cols []string, unknown map[string]bool) string {
	var b strings.Builder
	for _, col := range cols {
		v, ok := row.ColumnValue(col)
		if !ok {
			unknown[col] = true
			v = "\x00"
		}
		b.WriteString(strconv.Itoa(len(v)))
		b.WriteByte(':')
		b.WriteString(v)
	}
	return b.String()
}

// Key returns the comparison key Rows would use for cols. Missing columns
// compare as null.
func Key(row Columnar, cols ...string) string {
	return rowKey(row, cols, map[string]bool{})
}
