// Package phonetics provides phonetic encodings behind a strategy
// interface selected at construction time. Callers that receive the
// no-op coder skip phonetic comparison instead of erroring.
package phonetics

import (
	"strings"
	"unicode"
)

// Coder encodes a word into a phonetic key. Empty output means the
// word could not be encoded.
type Coder interface {
	Name() string
	Encode(word string) string
}

// ForName returns the coder registered under name, falling back to the
// no-op coder for unknown names.
func ForName(name string) Coder {
	switch strings.ToLower(name) {
	case "soundex":
		return SoundexCoder{}
	case "metaphone":
		return MetaphoneCoder{}
	default:
		return NoopCoder{}
	}
}

// NoopCoder disables phonetic matching
type NoopCoder struct{}

func (NoopCoder) Name() string             { return "noop" }
func (NoopCoder) Encode(word string) string { return "" }

// IsNoop reports whether c performs no encoding
func IsNoop(c Coder) bool {
	_, ok := c.(NoopCoder)
	return ok
}

// SoundexCoder implements the classic four character Soundex code
type SoundexCoder struct{}

func (SoundexCoder) Name() string { return "soundex" }

func (SoundexCoder) Encode(word string) string {
	word = strings.ToUpper(strings.TrimSpace(word))
	if word == "" || !unicode.IsLetter(rune(word[0])) {
		return ""
	}

	result := string(word[0])
	prevCode := soundexCode(rune(word[0]))

	for i := 1; i < len(word) && len(result) < 4; i++ {
		char := rune(word[i])
		if !unicode.IsLetter(char) {
			continue
		}

		code := soundexCode(char)
		if code != "0" && code != prevCode {
			result += code
		}
		prevCode = code
	}

	for len(result) < 4 {
		result += "0"
	}

	return result
}

func soundexCode(char rune) string {
	switch char {
	case 'B', 'F', 'P', 'V':
		return "1"
	case 'C', 'G', 'J', 'K', 'Q', 'S', 'X', 'Z':
		return "2"
	case 'D', 'T':
		return "3"
	case 'L':
		return "4"
	case 'M', 'N':
		return "5"
	case 'R':
		return "6"
	default:
		return "0"
	}
}

// MetaphoneCoder implements a simplified Metaphone encoding capped at
// six characters.
type MetaphoneCoder struct{}

func (MetaphoneCoder) Name() string { return "metaphone" }

func (MetaphoneCoder) Encode(word string) string {
	word = strings.ToUpper(word)

	var letters strings.Builder
	for _, char := range word {
		if unicode.IsLetter(char) {
			letters.WriteRune(char)
		}
	}
	word = letters.String()

	if word == "" {
		return ""
	}

	var metaphone strings.Builder
	prevCode := byte(0)

	for i := 0; i < len(word) && metaphone.Len() < 6; i++ {
		code := metaphoneCode(word[i], i, word)

		if code != 0 && code != prevCode {
			metaphone.WriteByte(code)
			prevCode = code
		}
	}

	return metaphone.String()
}

func metaphoneCode(char byte, pos int, word string) byte {
	switch char {
	case 'A', 'E', 'I', 'O', 'U':
		if pos == 0 {
			return char
		}
		return 0
	case 'B':
		return 'B'
	case 'C':
		if pos+1 < len(word) && (word[pos+1] == 'I' || word[pos+1] == 'E' || word[pos+1] == 'Y') {
			return 'S'
		}
		return 'K'
	case 'D':
		return 'T'
	case 'F':
		return 'F'
	case 'G':
		return 'J'
	case 'H':
		return 0 // usually silent
	case 'J':
		return 'J'
	case 'K':
		return 'K'
	case 'L':
		return 'L'
	case 'M':
		return 'M'
	case 'N':
		return 'N'
	case 'P':
		if pos+1 < len(word) && word[pos+1] == 'H' {
			return 'F'
		}
		return 'P'
	case 'Q':
		return 'K'
	case 'R':
		return 'R'
	case 'S':
		return 'S'
	case 'T':
		return 'T'
	case 'V':
		return 'F'
	case 'W':
		return 0
	case 'X':
		return 'S'
	case 'Y':
		return 0
	case 'Z':
		return 'S'
	default:
		return 0
	}
}
