// Package expand turns wide records into one row per retained measurement
// instance.
package expand

import (
	"context"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/soil-etl/internal/encmap"
	"github.com/sells-group/soil-etl/internal/model"
)

// Record expands one wide record. Method entries are visited in encounter
// order; value and date are looked up by instance key and may be null.
//
// An instance whose date was already emitted for this record is kept only
// when its value is non-null and the (value, date) pair has not been
// emitted yet. The first instance is therefore always kept, and a record
// with no method entries yields no rows.
func Record(rec model.WideRecord) []model.ExpandedRow {
	methods := encmap.Methods(rec.MethodEncoding)
	if methods.Len() == 0 {
		return nil
	}
	values := encmap.Values(rec.ValueEncoding)
	dates := encmap.Values(rec.DateEncoding)

	seen := newRetention()
	rows := make([]model.ExpandedRow, 0, methods.Len())

	for _, entry := range methods.Entries {
		value := lookup(values, entry.Key)
		date := lookup(dates, entry.Key)

		if !seen.admit(value, date) {
			continue
		}
		seen.record(value, date)

		rows = append(rows, model.ExpandedRow{
			WideRecord:       rec,
			MethodInstance:   parseInstance(entry.Key),
			ValueForInstance: value,
			DateForInstance:  date,
		})
	}
	return rows
}

// Stats summarizes a batch expansion.
type Stats struct {
	Records int
	Rows    int
	// Empty counts records that produced no rows, either because the method
	// encoding was blank or because it could not be parsed.
	Empty int
}

// All expands records on up to workers goroutines. Output keeps record
// order, then instance order within each record.
func All(ctx context.Context, records []model.WideRecord, workers int) ([]model.ExpandedRow, Stats, error) {
	if workers < 1 {
		workers = 1
	}

	perRecord := make([][]model.ExpandedRow, len(records))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i := range records {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return eris.Wrap(err, "expand: context cancelled")
			}
			perRecord[i] = Record(records[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, Stats{}, err
	}

	stats := Stats{Records: len(records)}
	total := 0
	for _, rows := range perRecord {
		total += len(rows)
	}
	out := make([]model.ExpandedRow, 0, total)
	for _, rows := range perRecord {
		if len(rows) == 0 {
			stats.Empty++
		}
		out = append(out, rows...)
	}
	stats.Rows = len(out)
	return out, stats, nil
}

// lookup returns the instance's cell with trailing closing braces removed.
// An absent instance or a cell left empty after trimming is nil.
func lookup(m encmap.ValueMap, key string) *string {
	v, ok := m.Get(key)
	if !ok {
		return nil
	}
	v = strings.TrimSpace(strings.TrimRight(v, "}"))
	if v == "" {
		return nil
	}
	return &v
}

func parseInstance(key string) *int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(key), 10, 64)
	if err != nil {
		return nil
	}
	return &n
}

// cell is a nullable string usable as a map key.
type cell struct {
	valid bool
	s     string
}

func cellOf(p *string) cell {
	if p == nil {
		return cell{}
	}
	return cell{valid: true, s: *p}
}

// retention tracks what one record has emitted so far. It lives for a
// single Record call.
type retention struct {
	dates map[cell]bool
	pairs map[[2]cell]bool
}

func newRetention() *retention {
	return &retention{
		dates: make(map[cell]bool),
		pairs: make(map[[2]cell]bool),
	}
}

func (r *retention) admit(value, date *string) bool {
	d := cellOf(date)
	if !r.dates[d] {
		return true
	}
	if value == nil {
		return false
	}
	return !r.pairs[[2]cell{cellOf(value), d}]
}

func (r *retention) record(value, date *string) {
	d := cellOf(date)
	r.dates[d] = true
	r.pairs[[2]cell{cellOf(value), d}] = true
}
