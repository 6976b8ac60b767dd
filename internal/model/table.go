package model

// Output table names, matching the persisted schema.
const (
	TableMethod       = "orgc_method"
	TableProfile      = "orgc_profile"
	TableProfileLayer = "orgc_profile_layer"
)

// Method attribute names as they appear in the output schema.
const (
	AttrCalculation        = "calculation"
	AttrDetection          = "detection"
	AttrReaction           = "reaction"
	AttrSamplePretreatment = "sample_pretreatment"
	AttrSpectral           = "spectral"
	AttrTemperature        = "temperature"
	AttrTreatment          = "treatment"
)

// MethodAttributes lists the method attribute columns in output order.
var MethodAttributes = []string{
	AttrCalculation, AttrDetection, AttrReaction, AttrSamplePretreatment,
	AttrSpectral, AttrTemperature, AttrTreatment,
}

// Output column orders. These must match the persisted schema exactly.
var (
	MethodColumns = []string{
		"id", ColMethodInstance, AttrCalculation, AttrDetection, AttrReaction,
		AttrSamplePretreatment, AttrSpectral, AttrTemperature, AttrTreatment,
	}
	ProfileColumns = []string{
		"id", ColProfileID, ColProfileCode, ColDatasetID, "latitude", "longitude", ColCountryName,
	}
	ProfileLayerColumns = []string{
		"id", ColProfileLayerID, "orgc_profile_id", ColUpperDepth, ColLowerDepth, ColLayerName,
		ColLitter, "orgc_method_id", ColValue, ColValueAvg, ColDate,
	}
)

// MethodRow is one row of the method catalogue.
type MethodRow struct {
	ID             int64
	MethodInstance *int64
	// Attributes maps attribute column name to its text value; absent
	// attributes are persisted as null.
	Attributes map[string]string
	// Encoding is the raw method encoding the row was derived from. It is a
	// join key only and is not part of the output columns.
	Encoding *string
}

// Values returns the row in MethodColumns order.
func (m MethodRow) Values() []any {
	out := make([]any, 0, len(MethodColumns))
	out = append(out, m.ID, nullable(m.MethodInstance))
	for _, attr := range MethodAttributes {
		if v, ok := m.Attributes[attr]; ok {
			out = append(out, v)
		} else {
			out = append(out, nil)
		}
	}
	return out
}

// ColumnNames returns the dedupe-visible columns of a method row.
func (m MethodRow) ColumnNames() []string {
	return append([]string{ColMethodInstance, ColMethod}, MethodAttributes...)
}

// ColumnValue returns the textual form of a method row column.
func (m MethodRow) ColumnValue(name string) (string, bool) {
	switch name {
	case ColMethodInstance:
		return formatInt(m.MethodInstance), true
	case ColMethod:
		return formatString(m.Encoding), true
	}
	for _, attr := range MethodAttributes {
		if attr == name {
			if v, ok := m.Attributes[name]; ok {
				return v, true
			}
			return nullMarker, true
		}
	}
	return "", false
}

// ProfileRow is one row of the profile catalogue.
type ProfileRow struct {
	ID          int64
	ProfileID   *int64
	ProfileCode *string
	DatasetID   *string
	Latitude    *float64
	Longitude   *float64
	CountryName *string
}

// Values returns the row in ProfileColumns order.
func (p ProfileRow) Values() []any {
	return []any{
		p.ID, nullable(p.ProfileID), nullable(p.ProfileCode), nullable(p.DatasetID),
		nullable(p.Latitude), nullable(p.Longitude), nullable(p.CountryName),
	}
}

// ColumnNames returns the profile columns without the surrogate id.
func (p ProfileRow) ColumnNames() []string {
	return []string{ColProfileID, ColProfileCode, ColDatasetID, "latitude", "longitude", ColCountryName}
}

// ColumnValue returns the textual form of a profile column.
func (p ProfileRow) ColumnValue(name string) (string, bool) {
	switch name {
	case ColProfileID:
		return formatInt(p.ProfileID), true
	case ColProfileCode:
		return formatString(p.ProfileCode), true
	case ColDatasetID:
		return formatString(p.DatasetID), true
	case "latitude":
		return formatFloat(p.Latitude), true
	case "longitude":
		return formatFloat(p.Longitude), true
	case ColCountryName:
		return formatString(p.CountryName), true
	}
	return "", false
}

// ProfileLayerRow is one measurement fact.
type ProfileLayerRow struct {
	ID             int64
	ProfileLayerID *int64
	ProfileFK      *int64 // orgc_profile_id
	UpperDepth     *int64
	LowerDepth     *int64
	LayerName      *string
	Litter         *float64
	MethodFK       *int64 // orgc_method_id
	Value          *string
	ValueAvg       *float64
	Date           *string
}

// Values returns the row in ProfileLayerColumns order.
func (l ProfileLayerRow) Values() []any {
	return []any{
		l.ID, nullable(l.ProfileLayerID), nullable(l.ProfileFK), nullable(l.UpperDepth),
		nullable(l.LowerDepth), nullable(l.LayerName), nullable(l.Litter), nullable(l.MethodFK),
		nullable(l.Value), nullable(l.ValueAvg), nullable(l.Date),
	}
}

// Tables is the normalized output of one pipeline run.
type Tables struct {
	Methods       []MethodRow
	Profiles      []ProfileRow
	ProfileLayers []ProfileLayerRow
}

// Frame is a table flattened for persistence: a name, ordered columns, and
// rows whose cells follow the column order.
type Frame struct {
	Name    string
	Columns []string
	Rows    [][]any
}

// Frames flattens the tables in foreign-key dependency order.
func (t *Tables) Frames() []Frame {
	methods := Frame{Name: TableMethod, Columns: MethodColumns, Rows: make([][]any, len(t.Methods))}
	for i, m := range t.Methods {
		methods.Rows[i] = m.Values()
	}
	profiles := Frame{Name: TableProfile, Columns: ProfileColumns, Rows: make([][]any, len(t.Profiles))}
	for i, p := range t.Profiles {
		profiles.Rows[i] = p.Values()
	}
	layers := Frame{Name: TableProfileLayer, Columns: ProfileLayerColumns, Rows: make([][]any, len(t.ProfileLayers))}
	for i, l := range t.ProfileLayers {
		layers.Rows[i] = l.Values()
	}
	return []Frame{methods, profiles, layers}
}

// nullable dereferences a pointer, returning an untyped nil for nil so
// database drivers bind NULL.
func nullable[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}
