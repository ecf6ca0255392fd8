package normalizers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeEmail(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "lowercases and trims",
			input:    "  Jane.Doe@Example.COM ",
			expected: "jane.doe@example.com",
		},
		{
			name:     "strips plus tag",
			input:    "jane+newsletter@example.com",
			expected: "jane@example.com",
		},
		{
			name:     "gmail strips dots and plus tag",
			input:    "Jane.Doe+cats@gmail.com",
			expected: "janedoe@gmail.com",
		},
		{
			name:     "googlemail collapses to gmail",
			input:    "jane.doe@googlemail.com",
			expected: "janedoe@gmail.com",
		},
		{
			name:     "dots preserved outside gmail",
			input:    "jane.doe@shelter.org",
			expected: "jane.doe@shelter.org",
		},
		{
			name:     "no at sign",
			input:    "not-an-email",
			expected: "",
		},
		{
			name:     "empty local part",
			input:    "@example.com",
			expected: "",
		},
		{
			name:     "plus tag consumes whole local part",
			input:    "+tag@example.com",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeEmail(tt.input))
		})
	}
}

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "formatted ten digit",
			input:    "(707) 555-1234",
			expected: "7075551234",
		},
		{
			name:     "eleven digits with country code",
			input:    "1-707-555-1234",
			expected: "7075551234",
		},
		{
			name:     "eleven digits without leading one",
			input:    "27075551234",
			expected: "",
		},
		{
			name:     "too short",
			input:    "555-1234",
			expected: "",
		},
		{
			name:     "empty",
			input:    "",
			expected: "",
		},
		{
			name:     "extension makes it invalid",
			input:    "707-555-1234 x99",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizePhone(tt.input))
		})
	}
}

func TestNormalizeMicrochip(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "standard fifteen digit chip",
			input:    "985-112-004-567-890",
			expected: "985112004567890",
		},
		{
			name:     "mixed case alphanumeric",
			input:    "avid*123456789",
			expected: "AVID123456789",
		},
		{
			name:     "too short",
			input:    "1234",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeMicrochip(tt.input))
		})
	}
}

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "basic",
			input:    "  Jane   Doe ",
			expected: "jane doe",
		},
		{
			name:     "suffix stripped",
			input:    "Robert Smith Jr.",
			expected: "robert smith",
		},
		{
			name:     "hyphen and apostrophe split",
			input:    "Mary-Anne O'Brien",
			expected: "mary anne o brien",
		},
		{
			name:     "punctuation dropped",
			input:    "Dr. J. Doe",
			expected: "dr j doe",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeName(tt.input))
		})
	}
}

func TestNameTokens(t *testing.T) {
	assert.Equal(t, []string{"jane", "doe"}, NameTokens("Jane Doe"))
	assert.Nil(t, NameTokens("  !!  "))
}

func TestNormalizeStreet(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "street type abbreviated",
			input:    "123 Main Street",
			expected: "123 main st",
		},
		{
			name:     "directional and punctuation",
			input:    "45 N. Oak Avenue, Apt 2",
			expected: "45 n oak ave apt 2",
		},
		{
			name:     "already abbreviated",
			input:    "99 Elm St",
			expected: "99 elm st",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeStreet(tt.input))
		})
	}
}

func TestRegistry(t *testing.T) {
	fn, ok := Get("nemail")
	assert.True(t, ok)
	assert.Equal(t, "janedoe@gmail.com", fn("Jane.Doe+cats@gmail.com"))

	assert.Equal(t, "unchanged", Apply("unchanged", "no-such-normalizer"))
}
