// Package config provides configuration loading and validation for the CLI and server.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

// Defaults applied when neither the config file nor the environment set a value.
const (
	DefaultTargetURL              = "https://mpstats.io/seo/keywords/expanding"
	DefaultMaxKeywords            = 25
	DefaultPageLoadTimeoutSeconds = 30
	DefaultDownloadTimeoutSeconds = 90
	DefaultDownloadDir            = "downloads"
	DefaultKeywordsDir            = "data/keywords"
	DefaultMaxDownloadClicks      = 1

	// MaxKeywordsLimit caps max_keywords wherever it is set.
	MaxKeywordsLimit = 500
)

// Config represents the collector configuration. It can be loaded from a
// JSON file and is then overridden by environment variables.
type Config struct {
	// Research site
	Email     string `json:"mpstats_email,omitempty"`                               // Site login email
	Password  string `json:"mpstats_password,omitempty"`                            // Site login password
	TargetURL string `json:"target_url,omitempty" validate:"omitempty,url"`         // Keyword expansion page
	MaxClicks int    `json:"max_download_clicks,omitempty" validate:"gte=0,lte=10"` // Export buttons pressed per query

	// Relevance filtering
	APIKey      string `json:"api_key,omitempty"`                               // Gemini API key
	Model       string `json:"model,omitempty"`                                 // Gemini model override
	MaxKeywords int    `json:"max_keywords,omitempty" validate:"gte=0,lte=500"` // Keywords kept per collection

	// Browser
	Headless               *bool  `json:"headless,omitempty"`                                     // Run Chrome without a window (default true)
	BlockImages            bool   `json:"block_images,omitempty"`                                 // Disable image loading
	UserAgent              string `json:"user_agent,omitempty"`                                   // Fixed user agent, random when empty
	WindowSize             string `json:"window_size,omitempty" validate:"omitempty,window_size"` // WIDTHxHEIGHT, random when empty
	ChromePath             string `json:"chrome_path,omitempty"`                                  // Chrome binary override
	PageLoadTimeoutSeconds int    `json:"page_load_timeout_seconds,omitempty" validate:"gte=0"`
	DownloadTimeoutSeconds int    `json:"download_timeout_seconds,omitempty" validate:"gte=0"`

	// Storage
	DownloadDir string `json:"download_dir,omitempty"` // Parent of per-run download directories
	KeywordsDir string `json:"keywords_dir,omitempty"` // Keyword artifact output directory
	DatabaseURL string `json:"database_url,omitempty"` // PostgreSQL connection URL for the run log

	Verbose bool `json:"verbose,omitempty"` // Print detailed debug information
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	headless := true
	return Config{
		TargetURL:              DefaultTargetURL,
		MaxClicks:              DefaultMaxDownloadClicks,
		MaxKeywords:            DefaultMaxKeywords,
		Headless:               &headless,
		PageLoadTimeoutSeconds: DefaultPageLoadTimeoutSeconds,
		DownloadTimeoutSeconds: DefaultDownloadTimeoutSeconds,
		DownloadDir:            DefaultDownloadDir,
		KeywordsDir:            DefaultKeywordsDir,
	}
}

// LoadConfig loads configuration from a JSON file.
// Returns an error if the file cannot be read or parsed.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	// Resolve path relative to current directory if not absolute
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	return &cfg, nil
}

// Resolve builds the effective configuration: the file at path (optional),
// then defaults for anything unset, then environment overrides.
func Resolve(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		loaded, err := LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	merged := cfg.MergeWithDefaults(Defaults())
	if err := merged.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := merged.Validate(); err != nil {
		return nil, err
	}
	return &merged, nil
}

// ApplyEnv overrides fields from environment variables that are set.
func (c *Config) ApplyEnv() error {
	setString(&c.Email, "MPSTATS_EMAIL")
	setString(&c.Password, "MPSTATS_PSWD")
	setString(&c.TargetURL, "MPSTATS_URL")
	setString(&c.APIKey, "GEMINI_API_KEY")
	setString(&c.Model, "GEMINI_MODEL")
	setString(&c.UserAgent, "BROWSER_USER_AGENT")
	setString(&c.WindowSize, "BROWSER_WINDOW_SIZE")
	setString(&c.ChromePath, "CHROME_PATH")
	setString(&c.DownloadDir, "DOWNLOAD_DIR")
	setString(&c.KeywordsDir, "KEYWORDS_DIR")
	setString(&c.DatabaseURL, "DATABASE_URL")

	for key, dst := range map[string]*int{
		"MAX_KEYWORDS":              &c.MaxKeywords,
		"MAX_DOWNLOAD_CLICKS":       &c.MaxClicks,
		"BROWSER_PAGE_LOAD_TIMEOUT": &c.PageLoadTimeoutSeconds,
		"DOWNLOAD_TIMEOUT":          &c.DownloadTimeoutSeconds,
	} {
		if err := setInt(dst, key); err != nil {
			return err
		}
	}

	if v := strings.TrimSpace(os.Getenv("BROWSER_HEADLESS")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config error: invalid BROWSER_HEADLESS %q: %w", v, err)
		}
		c.Headless = &b
	}
	if v := strings.TrimSpace(os.Getenv("BROWSER_BLOCK_IMAGES")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config error: invalid BROWSER_BLOCK_IMAGES %q: %w", v, err)
		}
		c.BlockImages = b
	}
	return nil
}

var windowSizePattern = regexp.MustCompile(`^\s*[1-9]\d*\s*[x,]\s*[1-9]\d*\s*$`)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func configValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		_ = validate.RegisterValidation("window_size", func(fl validator.FieldLevel) bool {
			return windowSizePattern.MatchString(fl.Field().String())
		})
	})
	return validate
}

// Validate checks that the configuration has valid values.
// Credentials are not required here; the login step reports them missing
// only when the site actually asks for them.
func (c *Config) Validate() error {
	if err := configValidator().Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return fmt.Errorf("config error: '%s' failed '%s' validation (value: %v)", fe.Field(), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("config error: %w", err)
	}
	if c.Email != "" && c.Password == "" {
		return fmt.Errorf("config error: 'mpstats_email' is set but 'mpstats_password' is empty")
	}
	return nil
}

// MergeWithDefaults returns a new Config with empty fields filled from defaults.
// This is used to apply config file values as defaults for CLI flags.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	// String fields: use default if empty
	for _, f := range []struct{ dst, def *string }{
		{&result.Email, &defaults.Email},
		{&result.Password, &defaults.Password},
		{&result.TargetURL, &defaults.TargetURL},
		{&result.APIKey, &defaults.APIKey},
		{&result.Model, &defaults.Model},
		{&result.UserAgent, &defaults.UserAgent},
		{&result.WindowSize, &defaults.WindowSize},
		{&result.ChromePath, &defaults.ChromePath},
		{&result.DownloadDir, &defaults.DownloadDir},
		{&result.KeywordsDir, &defaults.KeywordsDir},
		{&result.DatabaseURL, &defaults.DatabaseURL},
	} {
		if *f.dst == "" {
			*f.dst = *f.def
		}
	}

	// Int fields: use default if zero
	if result.MaxKeywords == 0 {
		result.MaxKeywords = defaults.MaxKeywords
	}
	if result.MaxClicks == 0 {
		result.MaxClicks = defaults.MaxClicks
	}
	if result.PageLoadTimeoutSeconds == 0 {
		result.PageLoadTimeoutSeconds = defaults.PageLoadTimeoutSeconds
	}
	if result.DownloadTimeoutSeconds == 0 {
		result.DownloadTimeoutSeconds = defaults.DownloadTimeoutSeconds
	}

	// Headless is a pointer so an explicit false in the file survives.
	if result.Headless == nil {
		result.Headless = defaults.Headless
	}

	return result
}

// HeadlessEnabled reports the effective headless setting.
func (c *Config) HeadlessEnabled() bool {
	return c.Headless == nil || *c.Headless
}

// PageLoadTimeout returns the browser startup budget.
func (c *Config) PageLoadTimeout() time.Duration {
	return time.Duration(c.PageLoadTimeoutSeconds) * time.Second
}

// DownloadTimeout returns how long to wait for the exported file.
func (c *Config) DownloadTimeout() time.Duration {
	return time.Duration(c.DownloadTimeoutSeconds) * time.Second
}

// HasCredentials reports whether both login fields are set.
func (c *Config) HasCredentials() bool {
	return c.Email != "" && c.Password != ""
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("config error: invalid %s %q: %w", key, v, err)
	}
	*dst = n
	return nil
}
