// Package model defines the wide input record, the expanded per-instance row,
// and the three normalized output tables.
package model

import (
	"math"
	"sort"
	"strconv"
)

// Input column names of a wide record.
const (
	ColProfileID      = "profile_id"
	ColProfileLayerID = "profile_layer_id"
	ColProfileCode    = "orgc_profile_code"
	ColDatasetID      = "orgc_dataset_id"
	ColX              = "X"
	ColY              = "Y"
	ColCountryName    = "country_name"
	ColUpperDepth     = "upper_depth"
	ColLowerDepth     = "lower_depth"
	ColLayerName      = "layer_name"
	ColLitter         = "litter"
	ColValueAvg       = "orgc_value_avg"
	ColMethod         = "orgc_method"
	ColValue          = "orgc_value"
	ColDate           = "orgc_date"
)

// Columns added by instance expansion.
const (
	ColMethodInstance   = "method_instance"
	ColValueForInstance = "orgc_value_for_instance"
	ColDateForInstance  = "orgc_date_for_instance"
)

// ReformatPrefix prefixes columns derived by date reformatting.
const ReformatPrefix = "reformat_"

// ColReformatDate is the derived column holding the canonical per-instance date.
const ColReformatDate = ReformatPrefix + ColDateForInstance

// RequiredColumns lists every column a wide input sheet must carry.
var RequiredColumns = []string{
	ColProfileID, ColProfileLayerID, ColProfileCode, ColDatasetID,
	ColX, ColY, ColCountryName, ColUpperDepth, ColLowerDepth,
	ColLayerName, ColLitter, ColValueAvg, ColMethod, ColValue, ColDate,
}

// nullMarker stands in for a null cell when rows are compared or hashed.
// It cannot collide with decoded text, which never contains NUL.
const nullMarker = "\x00"

// WideRecord is one input row. A single record may encode several
// measurement instances inside MethodEncoding, ValueEncoding and DateEncoding.
type WideRecord struct {
	ProfileID      *int64
	ProfileLayerID *int64
	ProfileCode    *string
	DatasetID      *string
	X              *float64 // longitude
	Y              *float64 // latitude
	CountryName    *string
	UpperDepth     *int64
	LowerDepth     *int64
	LayerName      *string
	Litter         *float64
	ValueAvg       *float64

	MethodEncoding *string
	ValueEncoding  *string
	DateEncoding   *string
}

// ExpandedRow is a WideRecord narrowed to one retained measurement instance.
type ExpandedRow struct {
	WideRecord

	MethodInstance   *int64
	ValueForInstance *string
	DateForInstance  *string

	// Derived holds columns computed after expansion, keyed by column name
	// (e.g. reformat_orgc_date_for_instance).
	Derived map[string]*string
}

// ColumnNames returns the row's columns in a stable order: input columns,
// expansion columns, then derived columns sorted by name.
func (r ExpandedRow) ColumnNames() []string {
	names := make([]string, 0, len(RequiredColumns)+3+len(r.Derived))
	names = append(names, RequiredColumns...)
	names = append(names, ColMethodInstance, ColValueForInstance, ColDateForInstance)
	derived := make([]string, 0, len(r.Derived))
	for k := range r.Derived {
		derived = append(derived, k)
	}
	sort.Strings(derived)
	return append(names, derived...)
}

// ColumnValue returns the textual form of a column and whether the column
// exists. Null cells are reported as a NUL marker so they never equal "".
func (r ExpandedRow) ColumnValue(name string) (string, bool) {
	switch name {
	case ColMethodInstance:
		return formatInt(r.MethodInstance), true
	case ColValueForInstance:
		return formatString(r.ValueForInstance), true
	case ColDateForInstance:
		return formatString(r.DateForInstance), true
	}
	if v, ok := r.Derived[name]; ok {
		return formatString(v), true
	}
	return r.WideRecord.ColumnValue(name)
}

// SetDerived stores a derived column value, allocating the map on first use.
func (r *ExpandedRow) SetDerived(name string, v *string) {
	if r.Derived == nil {
		r.Derived = make(map[string]*string, 1)
	}
	r.Derived[name] = v
}

// DerivedValue returns a derived column value, nil when absent or null.
func (r ExpandedRow) DerivedValue(name string) *string {
	return r.Derived[name]
}

// ColumnNames returns the input columns.
func (w WideRecord) ColumnNames() []string {
	return append([]string(nil), RequiredColumns...)
}

// ColumnValue returns the textual form of an input column.
func (w WideRecord) ColumnValue(name string) (string, bool) {
	switch name {
	case ColProfileID:
		return formatInt(w.ProfileID), true
	case ColProfileLayerID:
		return formatInt(w.ProfileLayerID), true
	case ColProfileCode:
		return formatString(w.ProfileCode), true
	case ColDatasetID:
		return formatString(w.DatasetID), true
	case ColX:
		return formatFloat(w.X), true
	case ColY:
		return formatFloat(w.Y), true
	case ColCountryName:
		return formatString(w.CountryName), true
	case ColUpperDepth:
		return formatInt(w.UpperDepth), true
	case ColLowerDepth:
		return formatInt(w.LowerDepth), true
	case ColLayerName:
		return formatString(w.LayerName), true
	case ColLitter:
		return formatFloat(w.Litter), true
	case ColValueAvg:
		return formatFloat(w.ValueAvg), true
	case ColMethod:
		return formatString(w.MethodEncoding), true
	case ColValue:
		return formatString(w.ValueEncoding), true
	case ColDate:
		return formatString(w.DateEncoding), true
	}
	return "", false
}

func formatInt(v *int64) string {
	if v == nil {
		return nullMarker
	}
	return strconv.FormatInt(*v, 10)
}

func formatFloat(v *float64) string {
	if v == nil {
		return nullMarker
	}
	return strconv.FormatFloat(*v, 'g', -1, 64)
}

func formatString(v *string) string {
	if v == nil {
		return nullMarker
	}
	return *v
}

// Cell returns a column as a nullable string and whether the column exists.
func (r ExpandedRow) Cell(name string) (*string, bool) {
	v, ok := r.ColumnValue(name)
	if !ok || v == nullMarker {
		return nil, ok
	}
	return &v, true
}

// IsNull reports whether a value returned by ColumnValue is a null cell.
func IsNull(v string) bool { return v == nullMarker }

// WholeInt converts f to int64 when it is a whole number inside the int64
// range.
func WholeInt(f float64) (int64, bool) {
	if f != math.Trunc(f) || math.Abs(f) >= 1<<63 {
		return 0, false
	}
	return int64(f), true
}
