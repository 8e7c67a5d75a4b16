package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelFromProperty(t *testing.T) {
	tests := []struct {
		name   string
		input  any
		want   string
		wantOK bool
	}{
		{name: "json number", input: float64(4), want: "4", wantOK: true},
		{name: "fractional number", input: 4.5, want: "4.5", wantOK: true},
		{name: "string", input: "4", want: "4", wantOK: true},
		{name: "padded string", input: "  4 ", want: "4", wantOK: true},
		{name: "json.Number", input: json.Number("3"), want: "3", wantOK: true},
		{name: "json.Number with fraction zero", input: json.Number("4.0"), want: "4", wantOK: true},
		{name: "json.Number exponent", input: json.Number("4e0"), want: "4", wantOK: true},
		{name: "float with fraction zero", input: 4.0, want: "4", wantOK: true},
		{name: "int", input: 2, want: "2", wantOK: true},
		{name: "nil", input: nil, wantOK: false},
		{name: "empty string", input: "   ", wantOK: false},
		{name: "bool", input: true, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := LevelFromProperty(tt.input)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got.Key())
			}
		})
	}
}

func TestLevelEquality(t *testing.T) {
	numeric, ok := LevelFromProperty(float64(4))
	require.True(t, ok)

	assert.True(t, numeric.Equal(NewLevel("4")))
	assert.True(t, NewLevel(" 4").Equal(NewLevel("4 ")))
	assert.False(t, NewLevel("04").Equal(NewLevel("4")), "comparison is by string, not by number")
}

func TestAllLevelsIsDistinct(t *testing.T) {
	assert.False(t, AllLevels.Equal(NewLevel("all")))
	assert.False(t, AllLevels.Equal(NewLevel("4")))
	assert.True(t, AllLevels.IsAll())
	assert.True(t, AllLevels.Valid())
	assert.Empty(t, AllLevels.Key())
	assert.False(t, NewLevel("all").IsAll())
}

func TestLevelNumber(t *testing.T) {
	n, ok := NewLevel("3").Number()
	require.True(t, ok)
	assert.Equal(t, 3.0, n)

	_, ok = NewLevel("alps").Number()
	assert.False(t, ok)

	_, ok = AllLevels.Number()
	assert.False(t, ok)

	_, ok = Level{}.Number()
	assert.False(t, ok)
}

func TestLevelJSON(t *testing.T) {
	data, err := json.Marshal(NewLevel("4"))
	require.NoError(t, err)
	assert.Equal(t, `"4"`, string(data))

	var l Level
	require.NoError(t, json.Unmarshal([]byte(`3`), &l))
	assert.Equal(t, "3", l.Key())

	dataset, _ := LevelFromProperty(float64(4))
	for _, raw := range []string{`4`, `4.0`, `4e0`, `"4"`} {
		require.NoError(t, json.Unmarshal([]byte(raw), &l))
		assert.True(t, l.Equal(dataset), "%s decodes to %q", raw, l.Key())
	}

	require.NoError(t, json.Unmarshal([]byte(`" 2 "`), &l))
	assert.Equal(t, "2", l.Key())

	require.NoError(t, json.Unmarshal([]byte(`null`), &l))
	assert.True(t, l.IsAll())

	assert.Error(t, json.Unmarshal([]byte(`""`), &l))
}
