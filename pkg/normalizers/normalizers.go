// Package normalizers provides field normalization for deterministic
// identifier matching and alias keying.
package normalizers

import (
	"regexp"
	"strings"
	"unicode"
)

// Normalizer is a function that normalizes a string value
type Normalizer func(string) string

// registry holds all registered normalizers
var registry = make(map[string]Normalizer)

func init() {
	Register("lowercase", Lowercase)
	Register("trim", Trim)
	Register("nemail", NormalizeEmail)
	Register("nphone", NormalizePhone)
	Register("nchip", NormalizeMicrochip)
	Register("nname", NormalizeName)
	Register("nstreet", NormalizeStreet)
	Register("digits_only", DigitsOnly)
	Register("alphanumeric", Alphanumeric)
}

// Register adds a normalizer to the registry
func Register(name string, fn Normalizer) {
	registry[name] = fn
}

// Get retrieves a normalizer by name
func Get(name string) (Normalizer, bool) {
	fn, ok := registry[name]
	return fn, ok
}

// Apply applies a named normalizer to a value
func Apply(value, normalizer string) string {
	fn, ok := registry[normalizer]
	if !ok {
		return value
	}
	return fn(value)
}

// Lowercase converts string to lowercase
func Lowercase(s string) string {
	return strings.ToLower(s)
}

// Trim removes leading and trailing whitespace
func Trim(s string) string {
	return strings.TrimSpace(s)
}

// gmailDomains are treated as one provider with dot-insensitive local parts
var gmailDomains = map[string]bool{
	"gmail.com":      true,
	"googlemail.com": true,
}

// NormalizeEmail canonicalizes an email address: lowercase, trimmed,
// +tag suffix stripped from the local part. Gmail local parts also have
// dots removed and googlemail.com collapses to gmail.com. Returns ""
// for values without a parseable local@domain shape.
func NormalizeEmail(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))

	at := strings.LastIndex(s, "@")
	if at <= 0 || at == len(s)-1 {
		return ""
	}

	local := s[:at]
	domain := s[at+1:]

	if plus := strings.Index(local, "+"); plus >= 0 {
		local = local[:plus]
	}

	if gmailDomains[domain] {
		local = strings.ReplaceAll(local, ".", "")
		domain = "gmail.com"
	}

	if local == "" {
		return ""
	}

	return local + "@" + domain
}

// NormalizePhone reduces a phone number to ten digits. An eleven digit
// value with a leading country code 1 drops the 1. Anything that does
// not end up exactly ten digits normalizes to "" and is excluded from
// matching.
func NormalizePhone(s string) string {
	digits := DigitsOnly(s)

	if len(digits) == 11 && digits[0] == '1' {
		digits = digits[1:]
	}

	if len(digits) != 10 {
		return ""
	}
	return digits
}

// NormalizeMicrochip uppercases and strips a chip id to alphanumerics.
// Chips shorter than 9 characters are rejected as scanner noise.
func NormalizeMicrochip(s string) string {
	chip := strings.ToUpper(Alphanumeric(s))
	if len(chip) < 9 {
		return ""
	}
	return chip
}

// NormalizeName normalizes a name for alias keying: lowercase,
// punctuation stripped, whitespace collapsed, honorific suffixes
// removed.
func NormalizeName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))

	suffixes := []string{" jr.", " jr", " sr.", " sr", " iii", " ii", " iv", " phd", " md", " dvm"}
	for _, suffix := range suffixes {
		if strings.HasSuffix(s, suffix) {
			s = s[:len(s)-len(suffix)]
		}
	}

	var result strings.Builder
	prevSpace := false
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			result.WriteRune(r)
			prevSpace = false
		} else if unicode.IsSpace(r) || r == '-' || r == '\'' {
			if !prevSpace {
				result.WriteRune(' ')
				prevSpace = true
			}
		}
	}

	return strings.TrimSpace(result.String())
}

// NameTokens splits a normalized name into tokens
func NameTokens(s string) []string {
	key := NormalizeName(s)
	if key == "" {
		return nil
	}
	return strings.Fields(key)
}

var streetAbbreviations = map[string]string{
	"street":    "st",
	"avenue":    "ave",
	"boulevard": "blvd",
	"drive":     "dr",
	"road":      "rd",
	"lane":      "ln",
	"court":     "ct",
	"circle":    "cir",
	"place":     "pl",
	"apartment": "apt",
	"suite":     "ste",
	"north":     "n",
	"south":     "s",
	"east":      "e",
	"west":      "w",
}

var streetSpaceRe = regexp.MustCompile(`\s+`)

// NormalizeStreet normalizes a street address line for place keying:
// lowercase, punctuation dropped, directional and street-type words
// abbreviated, whitespace collapsed.
func NormalizeStreet(s string) string {
	s = strings.ToLower(s)

	var cleaned strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			cleaned.WriteRune(r)
		} else {
			cleaned.WriteRune(' ')
		}
	}

	words := strings.Fields(cleaned.String())
	for i, w := range words {
		if abbr, ok := streetAbbreviations[w]; ok {
			words[i] = abbr
		}
	}

	return streetSpaceRe.ReplaceAllString(strings.Join(words, " "), " ")
}

// DigitsOnly keeps only digit characters
func DigitsOnly(s string) string {
	var result strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// Alphanumeric keeps only alphanumeric characters
func Alphanumeric(s string) string {
	var result strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}
