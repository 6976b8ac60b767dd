// Package encmap parses the embedded key-value encodings carried by wide
// soil-carbon records.
//
// Two shapes exist. Method encodings hold one entry per measurement
// instance, each entry naming the instance and its method attributes:
//
//	{"1:calculation = unknown, sample pretreatment = sieved over 2 mm size", "2:..."}
//	{1: {calculation = unknown, detection = dry combustion}}
//
// Value and date encodings are flat instance-to-scalar maps:
//
//	{1: 1.52, 2: 1.61}
//	{1: 1990-07-01, 2: ????-??-??}
//
// The strict entry points (ParseMethod) return a *ParseError. The lenient
// entry points (Methods, Values) never fail: malformed input yields an
// empty map and is logged.
package encmap

import (
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/soil-etl/internal/metrics"
)

// Mode selects the grammar used to parse an encoding.
type Mode int

const (
	// ModeMethod parses instance-to-attributes method encodings.
	ModeMethod Mode = iota
	// ModeGeneric parses flat instance-to-scalar encodings.
	ModeGeneric
)

func (m Mode) String() string {
	switch m {
	case ModeMethod:
		return "method"
	case ModeGeneric:
		return "generic"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseError reports where a method encoding stopped making sense.
type ParseError struct {
	Mode  Mode
	Pos   int
	Msg   string
	Input string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("encmap: %s encoding: %s at offset %d", e.Mode, e.Msg, e.Pos)
}

// Attr is one method attribute.
type Attr struct {
	Name  string
	Value string
}

// MethodEntry is one instance of a method encoding.
type MethodEntry struct {
	// Key is the instance identifier as written, trimmed.
	Key   string
	Attrs []Attr
}

// Attribute returns the named attribute value.
func (e MethodEntry) Attribute(name string) (string, bool) {
	for _, a := range e.Attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// MethodMap is an ordered instance-to-attributes mapping.
type MethodMap struct {
	Entries []MethodEntry
}

// Len returns the number of instances.
func (m MethodMap) Len() int { return len(m.Entries) }

// ValueMap is an instance-to-scalar mapping keyed by the digit-string form
// of the instance identifier.
type ValueMap struct {
	keys   []string
	values map[string]string
}

// Get looks up an instance by its digit-string key.
func (m ValueMap) Get(key string) (string, bool) {
	v, ok := m.values[key]
	return v, ok
}

// Keys returns instance keys in encounter order.
func (m ValueMap) Keys() []string { return m.keys }

// Len returns the number of instances.
func (m ValueMap) Len() int { return len(m.keys) }

var genericPair = regexp.MustCompile(`(\d+):\s*([^,]+)`)

// ParseGeneric extracts `digits: value` pairs. A value runs up to the next
// comma, so the last value keeps the closing brace of the outer wrapper;
// callers strip it. A repeated key keeps its first position and last value.
func ParseGeneric(s string) ValueMap {
	m := ValueMap{values: make(map[string]string)}
	for _, match := range genericPair.FindAllStringSubmatch(s, -1) {
		key := strings.TrimSpace(match[1])
		if _, seen := m.values[key]; !seen {
			m.keys = append(m.keys, key)
		}
		m.values[key] = strings.TrimSpace(match[2])
	}
	return m
}

// Values parses a value or date encoding. Null and blank input yield an
// empty map.
func Values(encoding *string) ValueMap {
	if encoding == nil || strings.TrimSpace(*encoding) == "" {
		return ValueMap{}
	}
	return ParseGeneric(*encoding)
}

// Methods parses a method encoding. Null, blank and malformed input yield
// an empty map; malformed input is logged and counted.
func Methods(encoding *string) MethodMap {
	if encoding == nil || strings.TrimSpace(*encoding) == "" {
		return MethodMap{}
	}
	m, err := ParseMethod(*encoding)
	if err != nil {
		metrics.IncParseFailure(ModeMethod.String())
		zap.L().Warn("encmap: unparsable method encoding",
			zap.String("encoding", *encoding),
			zap.Error(err),
		)
		return MethodMap{}
	}
	return m
}
