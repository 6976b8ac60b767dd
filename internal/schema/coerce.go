package schema

import (
	"math"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/soil-etl/internal/model"
)

const dateLayout = "2006-01-02"

// Coerce converts v to the Go value the column type stores. The second
// result is false when a non-null value could not be represented and was
// replaced by null.
func Coerce(typ string, v any) (any, bool) {
	if v == nil {
		return nil, true
	}
	switch strings.ToUpper(typ) {
	case TypeInteger:
		return toInt(v)
	case TypeReal, TypeFloat:
		return toFloat(v)
	case TypeText:
		return toText(v), true
	case TypeDate, TypeDatetime:
		return toDate(v)
	}
	return v, true
}

func toInt(v any) (any, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case int32:
		return int64(x), true
	case float64:
		if n, ok := model.WholeInt(x); ok {
			return n, true
		}
	case string:
		s := strings.TrimSpace(x)
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, true
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			if n, ok := model.WholeInt(f); ok {
				return n, true
			}
		}
	}
	return nil, false
}

func toFloat(v any) (any, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int64:
		return float64(x), true
	case int:
		return float64(x), true
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(x), 64); err == nil && !math.IsNaN(f) {
			return f, true
		}
	}
	return nil, false
}

func toText(v any) any {
	switch x := v.(type) {
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.Format(dateLayout)
	}
	return nil
}

func toDate(v any) (any, bool) {
	switch x := v.(type) {
	case time.Time:
		return x.Format(dateLayout), true
	case string:
		s := strings.TrimSpace(x)
		if _, err := time.Parse(dateLayout, s); err == nil {
			return s, true
		}
	}
	return nil, false
}

// CoerceFrames returns copies of frames with every cell converted to its
// column's declared type. Frames for tables not in s pass through. The
// result maps "table.column" to the number of cells nulled.
func CoerceFrames(s *Schema, frames []model.Frame) ([]model.Frame, map[string]int) {
	log := zap.L().With(zap.String("component", "schema"))
	nulled := make(map[string]int)

	out := make([]model.Frame, len(frames))
	for i, f := range frames {
		t, ok := s.Table(f.Name)
		if !ok {
			out[i] = f
			continue
		}
		types := make([]string, len(f.Columns))
		for j, name := range f.Columns {
			if c, ok := t.Column(name); ok {
				types[j] = c.Type
			}
		}

		rows := make([][]any, len(f.Rows))
		for r, row := range f.Rows {
			cp := make([]any, len(row))
			for j, cell := range row {
				if j >= len(types) || types[j] == "" {
					cp[j] = cell
					continue
				}
				v, ok := Coerce(types[j], cell)
				if !ok {
					nulled[f.Name+"."+f.Columns[j]]++
				}
				cp[j] = v
			}
			rows[r] = cp
		}
		out[i] = model.Frame{Name: f.Name, Columns: f.Columns, Rows: rows}
	}

	for col, n := range nulled {
		log.Warn("values not representable in column type, stored as null",
			zap.String("column", col), zap.Int("count", n))
	}
	return out, nulled
}
