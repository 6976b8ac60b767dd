package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestWideRecord_ColumnValue(t *testing.T) {
	w := WideRecord{
		ProfileID:   ptr(int64(42)),
		X:           ptr(4.35),
		CountryName: ptr("Belgium"),
	}

	v, ok := w.ColumnValue(ColProfileID)
	require.True(t, ok)
	assert.Equal(t, "42", v)

	v, ok = w.ColumnValue(ColX)
	require.True(t, ok)
	assert.Equal(t, "4.35", v)

	v, ok = w.ColumnValue(ColLayerName)
	require.True(t, ok)
	assert.Equal(t, nullMarker, v, "null cells use the marker")

	_, ok = w.ColumnValue("nope")
	assert.False(t, ok)
}

func TestExpandedRow_NullDiffersFromEmpty(t *testing.T) {
	a := ExpandedRow{ValueForInstance: ptr("")}
	b := ExpandedRow{}

	va, _ := a.ColumnValue(ColValueForInstance)
	vb, _ := b.ColumnValue(ColValueForInstance)
	assert.NotEqual(t, va, vb)
}

func TestExpandedRow_DerivedColumns(t *testing.T) {
	var r ExpandedRow
	assert.NotContains(t, r.ColumnNames(), ColReformatDate)

	r.SetDerived(ColReformatDate, ptr("2019-03-03"))
	names := r.ColumnNames()
	assert.Equal(t, ColReformatDate, names[len(names)-1])

	v, ok := r.ColumnValue(ColReformatDate)
	require.True(t, ok)
	assert.Equal(t, "2019-03-03", v)
	assert.Equal(t, "2019-03-03", *r.DerivedValue(ColReformatDate))
}

func TestTables_FramesFollowColumnOrder(t *testing.T) {
	tables := Tables{
		Methods: []MethodRow{{
			ID:             1,
			MethodInstance: ptr(int64(1)),
			Attributes:     map[string]string{AttrCalculation: "unknown", AttrTreatment: "none"},
		}},
		Profiles: []ProfileRow{{ID: 1, ProfileID: ptr(int64(7)), Latitude: ptr(50.8)}},
		ProfileLayers: []ProfileLayerRow{{
			ID: 1, ProfileLayerID: ptr(int64(70)), ProfileFK: ptr(int64(1)), Date: ptr("2020-01-01"),
		}},
	}

	frames := tables.Frames()
	require.Len(t, frames, 3)

	assert.Equal(t, TableMethod, frames[0].Name)
	assert.Equal(t, MethodColumns, frames[0].Columns)
	assert.Equal(t, []any{int64(1), int64(1), "unknown", nil, nil, nil, nil, nil, "none"}, frames[0].Rows[0])

	assert.Equal(t, TableProfile, frames[1].Name)
	assert.Equal(t, []any{int64(1), int64(7), nil, nil, 50.8, nil, nil}, frames[1].Rows[0])

	assert.Equal(t, TableProfileLayer, frames[2].Name)
	row := frames[2].Rows[0]
	require.Len(t, row, len(ProfileLayerColumns))
	assert.Equal(t, int64(70), row[1])
	assert.Nil(t, row[7], "unresolved method key stays null")
	assert.Equal(t, "2020-01-01", row[10])
}

func TestWholeInt(t *testing.T) {
	tests := []struct {
		in   float64
		want int64
		ok   bool
	}{
		{20, 20, true},
		{-3, -3, true},
		{0.5, 0, false},
		{1 << 62, 1 << 62, true},
		{1 << 63, 0, false},
		{-1e19, 0, false},
	}
	for _, tt := range tests {
		n, ok := WholeInt(tt.in)
		assert.Equal(t, tt.ok, ok, "%g", tt.in)
		assert.Equal(t, tt.want, n, "%g", tt.in)
	}
}
