package flux

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResultLines(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		value []string
		each  []string
	}{
		{"float", "sqrt(16)", []string{"4.0"}, []string{"4.0"}},
		{"string unquoted", `"hi there"`, []string{"hi there"}, []string{"h", "i", " ", "t", "h", "e", "r", "e"}},
		{"string runes", `"né"`, []string{"né"}, []string{"n", "é"}},
		{"none", "None", nil, nil},
		{"zero", "0", []string{"0"}, nil},
		{"empty list", "[]", []string{"[]"}, nil},
		{"list", `[1, "a", 2.5]`, []string{`[1, "a", 2.5]`}, []string{"1", "a", "2.5"}},
		{"dict keys", `{"x": 1, "y": 2}`, []string{`{"x": 1, "y": 2}`}, []string{"x", "y"}},
		{"true", "True", []string{"True"}, []string{"True"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(t, Config{})
			result := mustRun(t, e, "fn main():\n    return "+tt.body+"\n")

			lines, err := result.Lines(PrintValue)
			require.NoError(t, err)
			assert.Equal(t, tt.value, lines)

			lines, err = result.Lines(PrintEach)
			require.NoError(t, err)
			assert.Equal(t, tt.each, lines)
		})
	}
}

func TestResultLinesWithoutEntryPoint(t *testing.T) {
	e := newTestEngine(t, Config{})
	result := mustRun(t, e, "let x = 1\n")

	for _, mode := range []PrintMode{PrintValue, PrintEach} {
		lines, err := result.Lines(mode)
		require.NoError(t, err)
		assert.Empty(t, lines)
	}
}

func TestResultLinesUnknownMode(t *testing.T) {
	e := newTestEngine(t, Config{})
	result := mustRun(t, e, "fn main():\n    return 1\n")

	_, err := result.Lines("all")
	assert.Error(t, err)
}
