package review

import (
	"slices"
	"strconv"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/sells-group/soil-etl/internal/model"
)

// Quality check names.
const (
	CheckMissingLatitude  = "missing_latitude"
	CheckInvalidLatitude  = "invalid_latitude"
	CheckMissingLongitude = "missing_longitude"
	CheckInvalidLongitude = "invalid_longitude"
	CheckUpperDepth       = "invalid_upper_depth"
	CheckLowerDepth       = "invalid_lower_depth"
	CheckDepthOrder       = "lower_depth_less_than_upper_depth"
	CheckOutlier          = "outlier"
	CheckDateFormat       = "invalid_date_format"
)

const maxFindings = 200

// Finding is one row-level quality observation. Row is 1-based.
type Finding struct {
	Check  string `yaml:"check"`
	Column string `yaml:"column,omitempty"`
	Row    int    `yaml:"row"`
	Value  string `yaml:"value,omitempty"`
}

// Quality collects data quality observations.
type Quality struct {
	Missing  map[string]int `yaml:"missing"`
	Counts   map[string]int `yaml:"counts"`
	Findings []Finding      `yaml:"findings,omitempty"`
	// Truncated is set when more findings exist than are listed.
	Truncated bool `yaml:"truncated,omitempty"`
}

func (q *Quality) add(f Finding) {
	if q.Counts == nil {
		q.Counts = make(map[string]int)
	}
	q.Counts[f.Check]++
	if len(q.Findings) >= maxFindings {
		q.Truncated = true
		return
	}
	q.Findings = append(q.Findings, f)
}

// Check runs the record-level checks: missing values per required column,
// coordinate ranges, depth consistency and IQR outliers on the average
// value.
func Check(records []model.WideRecord) Quality {
	q := Quality{Missing: make(map[string]int), Counts: make(map[string]int)}

	for _, col := range model.RequiredColumns {
		q.Missing[col] = 0
	}
	for i, r := range records {
		row := i + 1
		for _, col := range model.RequiredColumns {
			if v, _ := r.ColumnValue(col); model.IsNull(v) {
				q.Missing[col]++
			}
		}
		checkCoordinates(&q, row, r)
		checkDepths(&q, row, r)
	}
	checkOutliers(&q, records)
	return q
}

func checkCoordinates(q *Quality, row int, r model.WideRecord) {
	switch {
	case r.Y == nil:
		q.add(Finding{Check: CheckMissingLatitude, Column: model.ColY, Row: row})
	case *r.Y < -90 || *r.Y > 90:
		q.add(Finding{Check: CheckInvalidLatitude, Column: model.ColY, Row: row, Value: formatFloat(*r.Y)})
	}
	switch {
	case r.X == nil:
		q.add(Finding{Check: CheckMissingLongitude, Column: model.ColX, Row: row})
	case *r.X < -180 || *r.X > 180:
		q.add(Finding{Check: CheckInvalidLongitude, Column: model.ColX, Row: row, Value: formatFloat(*r.X)})
	}
}

func checkDepths(q *Quality, row int, r model.WideRecord) {
	if r.UpperDepth == nil || r.LowerDepth == nil {
		return
	}
	upper, lower := *r.UpperDepth, *r.LowerDepth
	pair := strconv.FormatInt(upper, 10) + "-" + strconv.FormatInt(lower, 10)
	if upper < 0 {
		q.add(Finding{Check: CheckUpperDepth, Column: model.ColUpperDepth, Row: row, Value: pair})
	}
	if lower <= 0 {
		q.add(Finding{Check: CheckLowerDepth, Column: model.ColLowerDepth, Row: row, Value: pair})
	}
	if lower < upper {
		q.add(Finding{Check: CheckDepthOrder, Column: model.ColLowerDepth, Row: row, Value: pair})
	}
}

func checkOutliers(q *Quality, records []model.WideRecord) {
	var vals []float64
	for _, r := range records {
		if r.ValueAvg != nil {
			vals = append(vals, *r.ValueAvg)
		}
	}
	low, high, ok := iqrBounds(vals)
	if !ok {
		return
	}
	for i, r := range records {
		if r.ValueAvg == nil {
			continue
		}
		if v := *r.ValueAvg; v < low || v > high {
			q.add(Finding{Check: CheckOutlier, Column: model.ColValueAvg, Row: i + 1, Value: formatFloat(v)})
		}
	}
}

// iqrBounds returns the 1.5 x IQR fences. Quartiles linearly interpolate
// the empirical distribution.
func iqrBounds(vals []float64) (float64, float64, bool) {
	if len(vals) == 0 {
		return 0, 0, false
	}
	sorted := slices.Clone(vals)
	slices.Sort(sorted)
	q1 := stat.Quantile(0.25, stat.LinInterp, sorted, nil)
	q3 := stat.Quantile(0.75, stat.LinInterp, sorted, nil)
	iqr := q3 - q1
	return q1 - 1.5*iqr, q3 + 1.5*iqr, true
}

// CheckDates reports non-null values of column that are not in layout.
func CheckDates(q *Quality, rows []model.ExpandedRow, column, layout string) {
	if q.Counts == nil {
		q.Counts = make(map[string]int)
	}
	for i, r := range rows {
		v, ok := r.Cell(column)
		if !ok || v == nil {
			continue
		}
		if _, err := time.Parse(layout, *v); err != nil {
			q.add(Finding{Check: CheckDateFormat, Column: column, Row: i + 1, Value: *v})
		}
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
