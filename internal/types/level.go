package types

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Level identifies a hierarchy level (coarseness tier) of the GMBA subdivision.
//
// Source data encodes levels both as JSON numbers and as strings, so every level is
// normalised to its trimmed string form. Two levels are equal only when those strings are
// equal. The numeric value is used for ordering the level list and nothing else.
type Level struct {
	value string
	all   bool
}

// AllLevels is the "every level merged" sentinel. It never equals a concrete level, not
// even one whose identifier is the literal string "all".
var AllLevels = Level{all: true}

// NewLevel builds a concrete level from its textual form. Surrounding whitespace is
// removed; an empty string yields the invalid zero Level.
func NewLevel(s string) Level {
	return Level{value: strings.TrimSpace(s)}
}

// LevelFromProperty converts a decoded GeoJSON property value into a Level.
// It reports false when the value is missing or has an unsupported type.
func LevelFromProperty(v any) (Level, bool) {
	var s string
	switch x := v.(type) {
	case nil:
		return Level{}, false
	case string:
		s = x
	case json.Number:
		f, err := x.Float64()
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			s = x.String()
			break
		}
		s = strconv.FormatFloat(f, 'f', -1, 64)
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return Level{}, false
		}
		s = strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		s = strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int:
		s = strconv.Itoa(x)
	case int64:
		s = strconv.FormatInt(x, 10)
	default:
		return Level{}, false
	}

	l := NewLevel(s)
	return l, l.Valid()
}

// Valid reports whether the level is a usable concrete level or the AllLevels sentinel.
func (l Level) Valid() bool {
	return l.all || l.value != ""
}

// IsAll reports whether l is the AllLevels sentinel.
func (l Level) IsAll() bool {
	return l.all
}

// Key returns the canonical string used for index lookups. The sentinel has no key.
func (l Level) Key() string {
	if l.all {
		return ""
	}
	return l.value
}

// Equal compares two levels by their trimmed string form.
func (l Level) Equal(o Level) bool {
	return l.all == o.all && l.value == o.value
}

// Number parses the level as a number for ordering purposes.
func (l Level) Number() (float64, bool) {
	if l.all || l.value == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(l.value, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// String returns the level identifier, or "all" for the sentinel.
func (l Level) String() string {
	if l.all {
		return "all"
	}
	return l.value
}

// MarshalJSON encodes concrete levels as their identifier and the sentinel as null.
func (l Level) MarshalJSON() ([]byte, error) {
	if l.all {
		return []byte("null"), nil
	}
	return json.Marshal(l.value)
}

// UnmarshalJSON accepts strings and numbers. null decodes to AllLevels.
func (l *Level) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*l = AllLevels
		return nil
	}

	var raw any
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return fmt.Errorf("failed to decode level: %w", err)
	}

	parsed, ok := LevelFromProperty(raw)
	if !ok {
		return fmt.Errorf("invalid level %s", string(data))
	}
	*l = parsed
	return nil
}
