// Package dates rewrites free-form date cells into one canonical layout.
package dates

import (
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"go.uber.org/zap"

	"github.com/sells-group/soil-etl/internal/metrics"
	"github.com/sells-group/soil-etl/internal/model"
)

// DefaultLayout renders dates as zero-padded year-month-day.
const DefaultLayout = "2006-01-02"

// Normalizer parses dates leniently and formats them with Layout.
type Normalizer struct {
	Layout string
}

// New returns a Normalizer for layout, falling back to DefaultLayout.
func New(layout string) *Normalizer {
	if layout == "" {
		layout = DefaultLayout
	}
	return &Normalizer{Layout: layout}
}

// Outcome classifies a single normalization.
type Outcome int

const (
	Parsed Outcome = iota
	Placeholder
	Unparsable
)

// Normalize returns the canonical form of raw, or nil when raw is null, a
// placeholder, or cannot be read as a date.
func (n *Normalizer) Normalize(raw *string) (*string, Outcome) {
	if raw == nil || IsPlaceholder(*raw) {
		return nil, Placeholder
	}
	t, err := dateparse.ParseIn(strings.TrimSpace(*raw), time.UTC)
	if err != nil {
		return nil, Unparsable
	}
	s := t.Format(n.Layout)
	return &s, Parsed
}

// IsPlaceholder reports whether s stands for "no date": blank, or made only
// of question marks and separators such as ????-??-??.
func IsPlaceholder(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return true
	}
	marks := 0
	for _, r := range s {
		switch r {
		case '?':
			marks++
		case '-', '/', '.', ' ':
		default:
			return false
		}
	}
	return marks > 0
}

// Stats counts outcomes of a Reformat call.
type Stats struct {
	Rows        int
	Parsed      int
	Placeholder int
	Unparsable  int
}

// Nulls is the number of rows that ended up with a null date.
func (s Stats) Nulls() int { return s.Placeholder + s.Unparsable }

// Reformat reads column from every row and stores the normalized date in
// the derived column reformat_<column>. Rows are updated in place.
func (n *Normalizer) Reformat(rows []model.ExpandedRow, column string) Stats {
	log := zap.L().With(zap.String("component", "dates"))
	target := model.ReformatPrefix + column
	stats := Stats{Rows: len(rows)}

	for i := range rows {
		raw, ok := rows[i].Cell(column)
		if !ok {
			log.Warn("unknown date column", zap.String("column", column))
			raw = nil
		}
		out, outcome := n.Normalize(raw)
		switch outcome {
		case Parsed:
			stats.Parsed++
		case Placeholder:
			stats.Placeholder++
		case Unparsable:
			stats.Unparsable++
			log.Debug("unparsable date", zap.String("column", column), zap.String("value", *raw))
		}
		rows[i].SetDerived(target, out)
	}

	metrics.AddNullDates(stats.Nulls())
	log.Info("dates reformatted",
		zap.String("column", target),
		zap.Int("rows", stats.Rows),
		zap.Int("parsed", stats.Parsed),
		zap.Int("placeholder", stats.Placeholder),
		zap.Int("unparsable", stats.Unparsable),
	)
	return stats
}
