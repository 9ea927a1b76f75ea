//nolint:revive // types is a standard Go package name pattern
package types

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectionRequest_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{
			name:     "list form",
			input:    `{"category":"decorative_panels","purposes":["kitchen","bathroom"]}`,
			expected: []string{"kitchen", "bathroom"},
		},
		{
			name:     "string in purposes",
			input:    `{"category":"decorative_panels","purposes":"kitchen, bathroom"}`,
			expected: []string{"kitchen", "bathroom"},
		},
		{
			name:     "legacy purpose field",
			input:    `{"category":"decorative_panels","purpose":"kitchen"}`,
			expected: []string{"kitchen"},
		},
		{
			name:     "list wins over legacy field",
			input:    `{"purposes":["tile"],"purpose":"kitchen"}`,
			expected: []string{"tile"},
		},
		{
			name:     "null purposes",
			input:    `{"category":"aprons","purposes":null}`,
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req CollectionRequest
			require.NoError(t, json.Unmarshal([]byte(tt.input), &req))
			assert.Equal(t, tt.expected, req.Purposes)
		})
	}
}

func TestCollectionRequest_UnmarshalJSON_RejectsWrongPurposeType(t *testing.T) {
	var req CollectionRequest
	err := json.Unmarshal([]byte(`{"purposes": 42}`), &req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "purposes")
}

func TestNormalizePurposes(t *testing.T) {
	assert.Equal(t, []string{"kitchen", "bathroom"}, NormalizePurposes(" kitchen ,, bathroom "))
	assert.Nil(t, NormalizePurposes("  "))
}

func TestCollectionRequest_IsEmpty(t *testing.T) {
	assert.True(t, (&CollectionRequest{}).IsEmpty())
	assert.True(t, (&CollectionRequest{Purposes: []string{" "}, AdditionalParams: []string{""}}).IsEmpty())
	assert.False(t, (&CollectionRequest{AdditionalParams: []string{"white"}}).IsEmpty())
}

func TestCollectionRequest_Validate(t *testing.T) {
	valid := CollectionRequest{Category: "decorative_panels", Purposes: []string{"kitchen"}}
	assert.NoError(t, valid.Validate())

	tooLong := CollectionRequest{Category: strings.Repeat("x", 201)}
	err := tooLong.Validate()
	require.Error(t, err)
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.Field, "Category")

	tooMany := CollectionRequest{Purposes: make([]string, 21)}
	assert.Error(t, tooMany.Validate())
}

func TestPreview(t *testing.T) {
	keywords := make([]string, 20)
	for i := range keywords {
		keywords[i] = strings.Repeat("a", i+1)
	}
	preview := Preview(keywords)
	assert.Len(t, preview, PreviewSize)
	assert.Equal(t, keywords[:PreviewSize], preview)

	assert.Empty(t, Preview(nil))
}
