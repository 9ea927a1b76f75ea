// Package query composes the research-site query string from a collection request.
package query

import (
	"regexp"
	"strings"

	"github.com/jonathan/keyword-collector/internal/types"
)

// MaxAdditionalParams is the number of free-form attributes appended to a query.
const MaxAdditionalParams = 3

var (
	// strictDisallowed removes everything except ASCII alphanumerics, Cyrillic letters and whitespace.
	strictDisallowed = regexp.MustCompile(`[^a-zA-Z0-9\p{Cyrillic}\s]+`)
	// looseDisallowed keeps any Unicode letter or number.
	looseDisallowed = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)
	whitespaceRun   = regexp.MustCompile(`\s+`)
)

// Composer builds query strings using a translation table.
type Composer struct {
	translations *Translations
	maxParams    int
}

// NewComposer returns a Composer over the given translations. A nil table
// selects the embedded defaults.
func NewComposer(t *Translations) *Composer {
	if t == nil {
		t = DefaultTranslations()
	}
	return &Composer{translations: t, maxParams: MaxAdditionalParams}
}

// BuildQuery composes a query with the embedded translation table.
func BuildQuery(req types.CollectionRequest) string {
	return NewComposer(nil).Build(req)
}

// Build turns the request into a single space-joined query. It returns the
// empty string only when every contributing field is blank.
func (c *Composer) Build(req types.CollectionRequest) string {
	var parts []string

	if category := strings.TrimSpace(req.Category); category != "" {
		parts = append(parts, collapse(c.translations.Category(category)))
	}

	for _, purpose := range req.Purposes {
		purpose = strings.TrimSpace(purpose)
		if purpose == "" {
			continue
		}
		if cleaned := Clean(c.translations.Purpose(purpose)); cleaned != "" {
			parts = append(parts, cleaned)
		}
	}

	added := 0
	for _, param := range req.AdditionalParams {
		if added == c.maxParams {
			break
		}
		if cleaned := Clean(param); cleaned != "" {
			parts = append(parts, cleaned)
			added++
		}
	}

	return strings.Join(parts, " ")
}

// Describe returns the translated labels of a request for logs and prompts.
func (c *Composer) Describe(req types.CollectionRequest) (category string, purposes []string) {
	category = c.translations.Category(strings.TrimSpace(req.Category))
	for _, p := range req.Purposes {
		if p = strings.TrimSpace(p); p != "" {
			purposes = append(purposes, c.translations.Purpose(p))
		}
	}
	return category, purposes
}

// Clean strips emoji and punctuation from s. The strict pass keeps ASCII
// alphanumerics and Cyrillic; when it leaves nothing, any Unicode letter or
// digit is kept instead.
func Clean(s string) string {
	if out := collapse(strictDisallowed.ReplaceAllString(s, " ")); out != "" {
		return out
	}
	return collapse(looseDisallowed.ReplaceAllString(s, " "))
}

func collapse(s string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
}
