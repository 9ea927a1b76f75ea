// Package llm provides the language-model client used for keyword relevance filtering.
package llm

import (
	"os"
	"time"
)

// ModelTier represents the capability level of a model
type ModelTier string

const (
	// TierLite is for short classification and ranking prompts
	TierLite ModelTier = "lite"
	// TierStandard is for prompts that need more reasoning
	TierStandard ModelTier = "standard"
)

// Provider represents an LLM provider
type Provider string

// ProviderGemini is the Google Gemini provider
const ProviderGemini Provider = "gemini"

// DefaultRequestTimeout bounds a single generation call.
const DefaultRequestTimeout = 45 * time.Second

// Config holds the model configuration for the client
type Config struct {
	Provider Provider
	Models   map[ModelTier]string
	// Tier selects the model used by GenerateText.
	Tier    ModelTier
	Timeout time.Duration
}

// DefaultConfig returns the default Gemini configuration
func DefaultConfig() *Config {
	return &Config{
		Provider: ProviderGemini,
		Models: map[ModelTier]string{
			TierLite:     "gemini-2.5-flash-lite",
			TierStandard: "gemini-2.5-flash",
		},
		Tier:    TierLite,
		Timeout: DefaultRequestTimeout,
	}
}

// ConfigFromEnv returns DefaultConfig with GEMINI_MODEL overriding the active tier's model.
func ConfigFromEnv() *Config {
	cfg := DefaultConfig()
	if model := os.Getenv("GEMINI_MODEL"); model != "" {
		cfg = cfg.WithModel(cfg.Tier, model)
	}
	return cfg
}

// GetModel returns the model name for a given tier
func (c *Config) GetModel(tier ModelTier) string {
	if model, ok := c.Models[tier]; ok {
		return model
	}
	// Fallback chain: try lite, then standard
	if model, ok := c.Models[TierLite]; ok {
		return model
	}
	if model, ok := c.Models[TierStandard]; ok {
		return model
	}
	return ""
}

// WithModel returns a copy of the Config with model set for tier
func (c *Config) WithModel(tier ModelTier, model string) *Config {
	out := *c
	out.Models = make(map[ModelTier]string, len(c.Models)+1)
	for k, v := range c.Models {
		out.Models[k] = v
	}
	out.Models[tier] = model
	return &out
}
