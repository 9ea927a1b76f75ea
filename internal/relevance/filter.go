// Package relevance narrows candidate keywords to the most relevant subset.
package relevance

import (
	"context"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/jonathan/keyword-collector/internal/prompts"
)

// Defaults for the relevance pass.
const (
	DefaultMaxKeywords  = 25
	MaxPromptCandidates = 50
	DefaultMaxTokens    = 300
	DefaultTemperature  = 0.3
)

// Generator is the text-completion capability the filter needs. llm.Client satisfies it.
type Generator interface {
	GenerateText(ctx context.Context, prompt, systemPrompt string, maxTokens int32, temperature float32) (string, error)
}

// Context is the product description the model ranks candidates against.
type Context struct {
	Category         string
	Purposes         []string
	AdditionalParams []string
	Description      string
}

// Filter applies the model pass with a truncation fallback.
type Filter struct {
	gen         Generator
	maxTokens   int32
	temperature float32
	log         zerolog.Logger
}

// Option configures a Filter.
type Option func(*Filter)

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(f *Filter) { f.log = l }
}

// WithGeneration overrides the token budget and temperature of the model call.
func WithGeneration(maxTokens int32, temperature float32) Option {
	return func(f *Filter) {
		f.maxTokens = maxTokens
		f.temperature = temperature
	}
}

// NewFilter creates a Filter. A nil gen makes every call fall back to truncation.
func NewFilter(gen Generator, opts ...Option) *Filter {
	f := &Filter{
		gen:         gen,
		maxTokens:   DefaultMaxTokens,
		temperature: DefaultTemperature,
		log:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Apply returns at most maxKeywords candidates. The result is always a
// subset of candidates and Apply never fails: model errors produce a
// FallbackFiltered outcome.
func (f *Filter) Apply(ctx context.Context, candidates []string, fc Context, maxKeywords int) Outcome {
	if maxKeywords <= 0 {
		maxKeywords = DefaultMaxKeywords
	}
	unique := dedupe(candidates)

	if len(unique) == 0 {
		return &FallbackFiltered{Selected: []string{}, Cause: ErrNoCandidates}
	}
	if f.gen == nil {
		return f.fallback(unique, maxKeywords, &FilterServiceError{Message: "no language model configured"})
	}

	system, prompt, err := buildPrompt(unique, fc, maxKeywords)
	if err != nil {
		return f.fallback(unique, maxKeywords, &FilterServiceError{Message: "failed to build prompt", Cause: err})
	}

	resp, err := f.gen.GenerateText(ctx, prompt, system, f.maxTokens, f.temperature)
	if err != nil {
		return f.fallback(unique, maxKeywords, &FilterServiceError{Message: "generation failed", Cause: err})
	}

	phrases := ParseResponse(resp)
	idx := newCandidateIndex(unique)

	selected := make([]string, 0, maxKeywords)
	taken := make(map[string]struct{}, maxKeywords)
	discarded := 0
	for _, phrase := range phrases {
		if len(selected) == maxKeywords {
			break
		}
		c, ok := idx.lookup(phrase)
		if !ok {
			discarded++
			continue
		}
		if _, dup := taken[c]; dup {
			continue
		}
		taken[c] = struct{}{}
		selected = append(selected, c)
	}

	padded := 0
	for _, c := range unique {
		if len(selected) == maxKeywords {
			break
		}
		if _, dup := taken[c]; dup {
			continue
		}
		taken[c] = struct{}{}
		selected = append(selected, c)
		padded++
	}

	f.log.Info().
		Int("candidates", len(unique)).
		Int("parsed", len(phrases)).
		Int("discarded", discarded).
		Int("padded", padded).
		Int("selected", len(selected)).
		Msg("relevance filter applied")

	return &LLMFiltered{Selected: selected, Padded: padded, Discarded: discarded}
}

func (f *Filter) fallback(unique []string, maxKeywords int, cause error) *FallbackFiltered {
	f.log.Warn().Err(cause).Int("candidates", len(unique)).Msg("relevance filter falling back to truncation")
	n := min(len(unique), maxKeywords)
	return &FallbackFiltered{Selected: append([]string{}, unique[:n]...), Cause: cause}
}

func buildPrompt(unique []string, fc Context, maxKeywords int) (system, prompt string, err error) {
	system, err = prompts.Get("relevance.json", "system")
	if err != nil {
		return "", "", err
	}
	template, err := prompts.Get("relevance.json", "filter")
	if err != nil {
		return "", "", err
	}

	shown := unique[:min(len(unique), MaxPromptCandidates)]
	prompt, err = prompts.Render(template, map[string]string{
		"Category":    orDash(fc.Category),
		"Purposes":    orDash(strings.Join(fc.Purposes, ", ")),
		"Params":      orDash(strings.Join(fc.AdditionalParams, ", ")),
		"Description": orDash(fc.Description),
		"Candidates":  strings.Join(shown, ", "),
		"MaxKeywords": strconv.Itoa(maxKeywords),
	})
	return system, prompt, err
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "не указано"
	}
	return s
}

func dedupe(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		if _, dup := seen[item]; dup {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out
}
