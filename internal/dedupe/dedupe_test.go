package dedupe

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type row struct {
	a, b string
}

func (r row) ColumnNames() []string { return []string{"a", "b"} }

func (r row) ColumnValue(name string) (string, bool) {
	switch name {
	case "a":
		return r.a, true
	case "b":
		return r.b, true
	}
	return "", false
}

func TestRows_AllColumns(t *testing.T) {
	in := []row{{"1", "x"}, {"1", "y"}, {"1", "x"}, {"2", "x"}}
	got := Rows(in, nil, "test")
	assert.Equal(t, []row{{"1", "x"}, {"1", "y"}, {"2", "x"}}, got)
}

func TestRows_KeySubsetFirstWins(t *testing.T) {
	in := []row{{"1", "x"}, {"1", "y"}, {"2", "z"}, {"2", "w"}}
	got := Rows(in, []string{"a"}, "test")
	assert.Equal(t, []row{{"1", "x"}, {"2", "z"}}, got)
}

func TestRows_Idempotent(t *testing.T) {
	in := []row{{"1", "x"}, {"1", "x"}, {"3", ""}, {"3", ""}, {"", "3"}}
	once := Rows(in, nil, "test")
	twice := Rows(once, nil, "test")
	assert.Equal(t, once, twice)
}

func TestRows_NoAmbiguousConcatenation(t *testing.T) {
	// "ab"+"c" and "a"+"bc" concatenate identically but are different tuples.
	in := []row{{"ab", "c"}, {"a", "bc"}}
	got := Rows(in, nil, "test")
	assert.Len(t, got, 2)
}

func TestRows_UnknownKeyColumnComparedAsNull(t *testing.T) {
	in := []row{{"1", "x"}, {"2", "y"}}
	got := Rows(in, []string{"missing"}, "test")
	assert.Equal(t, []row{{"1", "x"}}, got)
}

func TestRows_Empty(t *testing.T) {
	got := Rows([]row{}, nil, "test")
	assert.Empty(t, got)
	got = Rows[row](nil, []string{"a"}, "test")
	assert.Empty(t, got)
}
