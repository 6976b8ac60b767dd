package source

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/soil-etl/internal/model"
)

// Decoder turns raw rows into wide records using a header row.
type Decoder struct {
	idx    map[string]int
	issues map[string]int
}

// NewDecoder matches header against the required input columns. A missing
// required column is fatal.
func NewDecoder(header []string) (*Decoder, error) {
	idx := columnIndex(header)

	var missing []string
	for _, col := range model.RequiredColumns {
		if _, ok := idx[normalizeHeader(col)]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, eris.Errorf("source: missing required columns: %s", strings.Join(missing, ", "))
	}
	return &Decoder{idx: idx, issues: make(map[string]int)}, nil
}

// Issues returns, per column, how many non-empty cells could not be read
// as the column's numeric type and were decoded as null.
func (d *Decoder) Issues() map[string]int { return d.issues }

// Decode converts one row. Short rows decode missing cells as null.
func (d *Decoder) Decode(row []string) model.WideRecord {
	return model.WideRecord{
		ProfileID:      d.intCell(row, model.ColProfileID),
		ProfileLayerID: d.intCell(row, model.ColProfileLayerID),
		ProfileCode:    d.textCell(row, model.ColProfileCode),
		DatasetID:      d.textCell(row, model.ColDatasetID),
		X:              d.floatCell(row, model.ColX),
		Y:              d.floatCell(row, model.ColY),
		CountryName:    d.textCell(row, model.ColCountryName),
		UpperDepth:     d.intCell(row, model.ColUpperDepth),
		LowerDepth:     d.intCell(row, model.ColLowerDepth),
		LayerName:      d.textCell(row, model.ColLayerName),
		Litter:         d.floatCell(row, model.ColLitter),
		ValueAvg:       d.floatCell(row, model.ColValueAvg),
		MethodEncoding: d.textCell(row, model.ColMethod),
		ValueEncoding:  d.textCell(row, model.ColValue),
		DateEncoding:   d.textCell(row, model.ColDate),
	}
}

func (d *Decoder) cell(row []string, col string) string {
	i, ok := d.idx[normalizeHeader(col)]
	if !ok || i >= len(row) {
		return ""
	}
	return row[i]
}

func (d *Decoder) textCell(row []string, col string) *string {
	v := d.cell(row, col)
	if v == "" {
		return nil
	}
	return &v
}

func (d *Decoder) intCell(row []string, col string) *int64 {
	s := strings.TrimSpace(d.cell(row, col))
	if s == "" {
		return nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return &n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		if n, ok := model.WholeInt(f); ok {
			return &n
		}
	}
	d.issues[col]++
	return nil
}

func (d *Decoder) floatCell(row []string, col string) *float64 {
	s := strings.TrimSpace(d.cell(row, col))
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		d.issues[col]++
		return nil
	}
	if math.IsNaN(f) {
		return nil
	}
	return &f
}

// blank reports whether every cell of row is empty.
func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
