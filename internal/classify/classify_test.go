package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyExplicitLabelWins(t *testing.T) {
	tests := []struct {
		hint string
		want string
	}{
		{"PART C", "PART C"},
		{"part d", "PART D"},
		{"c", "PART C"},
		{"Part E - Finishing", "PART E"},
		{"F: Electrical", "PART F"},
	}
	for _, tc := range tests {
		got := Classify("900 (1)", tc.hint)
		assert.Equal(t, tc.want, got.Part, "hint %q", tc.hint)
	}
}

func TestClassifyNumericPrefix(t *testing.T) {
	tests := []struct {
		item string
		want string
	}{
		{"800 (1)", "PART C"},
		{"803 (1)a", "PART C"},
		{"900 (1)c2", "PART D"},
		{"902 (1)", "PART D"},
		{"1003 (2)", "PART E"},
		{"1100 (10)", "PART F"},
		{"1201 (1)", "PART G"},
	}
	for _, tc := range tests {
		got := Classify(tc.item, "")
		assert.Equal(t, tc.want, got.Part, "item %q", tc.item)
		assert.Equal(t, PartName(tc.want), got.PartName)
	}
}

func TestClassifyDefaultPart(t *testing.T) {
	// Empty or unmatchable item numbers classify deterministically.
	for _, item := range []string{"", "   ", "SPL-1", "700 (2)"} {
		got := Classify(item, "")
		assert.Equal(t, DefaultPart, got.Part, "item %q", item)
	}
	// Deterministic: same input, same output.
	assert.Equal(t, Classify("", ""), Classify("", ""))
}

func TestClassifyUnrecognizedHintFallsThrough(t *testing.T) {
	got := Classify("800 (3)", "earthworks stuff")
	assert.Equal(t, "PART C", got.Part)
	assert.Equal(t, "earthworks stuff", got.Subcategory)
}

func TestNormalizePart(t *testing.T) {
	valid := map[string]string{
		"a":                  "PART A",
		"PART B":             "PART B",
		"part c":             "PART C",
		"  D  ":              "PART D",
		"Part E - Finishing": "PART E",
	}
	for in, want := range valid {
		got, ok := NormalizePart(in)
		assert.True(t, ok, "input %q", in)
		assert.Equal(t, want, got)
	}

	for _, in := range []string{"", "8", "CD", "PART Z", "zebra"} {
		_, ok := NormalizePart(in)
		assert.False(t, ok, "input %q", in)
	}
}

func TestSortParts(t *testing.T) {
	in := []string{"PART D", "PART X9", "PART A", "PART QQ", "PART C"}
	got := SortParts(in)
	assert.Equal(t, []string{"PART A", "PART C", "PART D", "PART X9", "PART QQ"}, got)
	// Input untouched.
	assert.Equal(t, "PART D", in[0])
}

func TestSortPartsStable(t *testing.T) {
	got := SortParts([]string{"unknown-2", "unknown-1", "PART B"})
	assert.Equal(t, []string{"PART B", "unknown-2", "unknown-1"}, got)
}
