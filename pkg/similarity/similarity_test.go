package similarity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJaroWinkler(t *testing.T) {
	tests := []struct {
		name string
		a    string
		b    string
		min  float64
		max  float64
	}{
		{name: "identical", a: "martha", b: "martha", min: 1.0, max: 1.0},
		{name: "classic martha marhta", a: "martha", b: "marhta", min: 0.95, max: 1.0},
		{name: "close names", a: "jonathan", b: "jonathon", min: 0.9, max: 1.0},
		{name: "unrelated", a: "jane", b: "xqzw", min: 0.0, max: 0.1},
		{name: "empty side", a: "", b: "jane", min: 0.0, max: 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score := JaroWinkler(tt.a, tt.b)
			assert.GreaterOrEqual(t, score, tt.min)
			assert.LessOrEqual(t, score, tt.max)
		})
	}
}

func TestLevenshteinDistance(t *testing.T) {
	tests := []struct {
		name     string
		a        string
		b        string
		expected int
	}{
		{name: "identical", a: "kitten", b: "kitten", expected: 0},
		{name: "kitten sitting", a: "kitten", b: "sitting", expected: 3},
		{name: "empty to word", a: "", b: "abc", expected: 3},
		{name: "single substitution", a: "cat", b: "car", expected: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, LevenshteinDistance(tt.a, tt.b))
		})
	}
}

func TestLevenshtein(t *testing.T) {
	assert.Equal(t, 1.0, Levenshtein("", ""))
	assert.InDelta(t, 2.0/3.0, Levenshtein("cat", "car"), 0.01)
}

func TestTokenOverlap(t *testing.T) {
	tests := []struct {
		name     string
		a        []string
		b        []string
		expected float64
	}{
		{
			name:     "full overlap",
			a:        []string{"jane", "doe"},
			b:        []string{"doe", "jane"},
			expected: 1.0,
		},
		{
			name:     "partial against smaller set",
			a:        []string{"jane", "doe"},
			b:        []string{"jane", "ann", "doe", "smith"},
			expected: 1.0,
		},
		{
			name:     "half overlap",
			a:        []string{"jane", "doe"},
			b:        []string{"jane", "smith"},
			expected: 0.5,
		},
		{
			name:     "no overlap",
			a:        []string{"jane"},
			b:        []string{"bob"},
			expected: 0.0,
		},
		{
			name:     "empty",
			a:        nil,
			b:        []string{"jane"},
			expected: 0.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, TokenOverlap(tt.a, tt.b), 0.001)
		})
	}
}

func TestBestTokenSimilarity(t *testing.T) {
	score := BestTokenSimilarity([]string{"katherine", "smith"}, []string{"kathryn", "jones"})
	assert.Greater(t, score, 0.85)

	exact := BestTokenSimilarity([]string{"rex"}, []string{"rex"})
	assert.Equal(t, 1.0, exact)
}
