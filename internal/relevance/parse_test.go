package relevance

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseResponse(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{
			name:     "comma separated",
			input:    "панели пвх, стеновые панели, рейки",
			expected: []string{"панели пвх", "стеновые панели", "рейки"},
		},
		{
			name:     "numbered lines with quotes",
			input:    "1. \"панели пвх\"\n2) «рейки»\n3. 'обои'",
			expected: []string{"панели пвх", "рейки", "обои"},
		},
		{
			name:     "semicolons bullets and trailing punctuation",
			input:    "- панели пвх;\n• рейки!;  ;",
			expected: []string{"панели пвх", "рейки"},
		},
		{
			name:     "long phrases and fragments dropped",
			input:    "панели для кухни под плитку белые, а, рейки",
			expected: []string{"рейки"},
		},
		{
			name:     "json array",
			input:    "```json\n[\"панели пвх\", \"рейки\"]\n```",
			expected: []string{"панели пвх", "рейки"},
		},
		{
			name:     "duplicates removed",
			input:    "рейки, рейки, «рейки»",
			expected: []string{"рейки"},
		},
		{
			name:     "numbers inside phrase kept",
			input:    "3д панели, панели 60 см",
			expected: []string{"3д панели", "панели 60 см"},
		},
		{
			name:     "empty",
			input:    "  ",
			expected: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseResponse(tt.input))
		})
	}
}
