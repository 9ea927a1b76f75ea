package query

import (
	_ "embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed translations.yaml
var translationsYAML []byte

// Translations maps caller identifiers onto the phrases typed into the research site.
type Translations struct {
	Categories map[string]string `yaml:"categories"`
	Purposes   map[string]string `yaml:"purposes"`
}

var (
	defaultTranslations     *Translations
	defaultTranslationsErr  error
	defaultTranslationsOnce sync.Once
)

// ParseTranslations decodes a translation table document.
func ParseTranslations(data []byte) (*Translations, error) {
	var t Translations
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse translations: %w", err)
	}
	if t.Categories == nil {
		t.Categories = map[string]string{}
	}
	if t.Purposes == nil {
		t.Purposes = map[string]string{}
	}
	return &t, nil
}

// DefaultTranslations returns the embedded translation table.
// It panics if the embedded document is malformed.
func DefaultTranslations() *Translations {
	defaultTranslationsOnce.Do(func() {
		defaultTranslations, defaultTranslationsErr = ParseTranslations(translationsYAML)
	})
	if defaultTranslationsErr != nil {
		panic(defaultTranslationsErr)
	}
	return defaultTranslations
}

// Category returns the label for a category id, or the id itself when unknown.
func (t *Translations) Category(id string) string {
	if label, ok := t.Categories[id]; ok {
		return label
	}
	return id
}

// Purpose returns the label for a purpose id, or the id itself when unknown.
func (t *Translations) Purpose(id string) string {
	if label, ok := t.Purposes[id]; ok {
		return label
	}
	return id
}
