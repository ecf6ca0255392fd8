package phonetics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSoundexCoder(t *testing.T) {
	coder := SoundexCoder{}

	tests := []struct {
		name     string
		word     string
		expected string
	}{
		{name: "robert", word: "Robert", expected: "R163"},
		{name: "rupert matches robert", word: "Rupert", expected: "R163"},
		{name: "short word padded", word: "Lee", expected: "L000"},
		{name: "mixed punctuation skipped", word: "O'Brien", expected: "O165"},
		{name: "empty", word: "", expected: ""},
		{name: "leading digit", word: "42nd", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, coder.Encode(tt.word))
		})
	}
}

func TestMetaphoneCoder(t *testing.T) {
	coder := MetaphoneCoder{}

	tests := []struct {
		name string
		a    string
		b    string
		same bool
	}{
		{name: "smith smyth", a: "Smith", b: "Smyth", same: true},
		{name: "philip filip", a: "Philip", b: "Filip", same: true},
		{name: "distinct names", a: "Jane", b: "Robert", same: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			codeA := coder.Encode(tt.a)
			codeB := coder.Encode(tt.b)
			assert.NotEmpty(t, codeA)
			if tt.same {
				assert.Equal(t, codeA, codeB)
			} else {
				assert.NotEqual(t, codeA, codeB)
			}
		})
	}

	assert.Empty(t, coder.Encode("123"))
}

func TestForName(t *testing.T) {
	assert.Equal(t, "soundex", ForName("Soundex").Name())
	assert.Equal(t, "metaphone", ForName("metaphone").Name())
	assert.Equal(t, "noop", ForName("").Name())
	assert.Equal(t, "noop", ForName("unknown").Name())
}

func TestNoopCoder(t *testing.T) {
	coder := ForName("noop")
	assert.True(t, IsNoop(coder))
	assert.Empty(t, coder.Encode("Robert"))
	assert.False(t, IsNoop(SoundexCoder{}))
}
