package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/jonathan/keyword-collector/internal/browser"
	"github.com/jonathan/keyword-collector/internal/config"
	"github.com/jonathan/keyword-collector/internal/db"
	"github.com/jonathan/keyword-collector/internal/extraction"
	"github.com/jonathan/keyword-collector/internal/llm"
	"github.com/jonathan/keyword-collector/internal/observability"
	"github.com/jonathan/keyword-collector/internal/pipeline"
	"github.com/jonathan/keyword-collector/internal/query"
	"github.com/jonathan/keyword-collector/internal/relevance"
	"github.com/jonathan/keyword-collector/internal/storage"
)

// app holds the collaborators built from a resolved configuration.
type app struct {
	cfg       *config.Config
	log       zerolog.Logger
	collector *pipeline.Collector
	store     *storage.Store
	database  *db.DB
	metrics   *observability.Metrics
	closers   []func()
}

// Close releases the model client and database pool.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// stealthOptions maps browser settings onto the session profile.
func stealthOptions(cfg *config.Config) (browser.StealthOptions, error) {
	opts := browser.DefaultStealthOptions()
	opts.Headless = cfg.HeadlessEnabled()
	opts.BlockImages = cfg.BlockImages
	opts.UserAgent = cfg.UserAgent
	opts.ExecPath = cfg.ChromePath
	if cfg.WindowSize != "" {
		w, h, err := browser.ParseWindowSize(cfg.WindowSize)
		if err != nil {
			return opts, err
		}
		opts.WindowWidth, opts.WindowHeight = w, h
	}
	return opts, nil
}

// newGenerator opens the model client. Without an API key the relevance
// pass falls back to truncation.
func newGenerator(ctx context.Context, cfg *config.Config, log zerolog.Logger) (relevance.Generator, func(), error) {
	if cfg.APIKey == "" {
		log.Warn().Msg("GEMINI_API_KEY not set, keywords will be truncated instead of ranked")
		return nil, func() {}, nil
	}
	llmCfg := llm.ConfigFromEnv()
	if cfg.Model != "" {
		llmCfg = llmCfg.WithModel(llmCfg.Tier, cfg.Model)
	}
	client, err := llm.NewClient(ctx, llmCfg, cfg.APIKey)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create LLM client: %w", err)
	}
	return client, func() { _ = client.Close() }, nil
}

// newApp wires a Collector from cfg. reg may be nil for one-shot commands.
func newApp(ctx context.Context, cfg *config.Config, log zerolog.Logger, reg prometheus.Registerer, printer *observability.Printer) (*app, error) {
	a := &app{cfg: cfg, log: log}

	stealth, err := stealthOptions(cfg)
	if err != nil {
		return nil, err
	}

	gen, closeGen, err := newGenerator(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closeGen)

	if reg != nil {
		if a.metrics, err = observability.NewMetrics(reg); err != nil {
			a.Close()
			return nil, err
		}
	}

	var recorder pipeline.RunRecorder
	if cfg.DatabaseURL != "" {
		database, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Warn().Err(err).Msg("run log disabled: database unavailable")
		} else if err := database.Migrate(ctx); err != nil {
			log.Warn().Err(err).Msg("run log disabled: migration failed")
			database.Close()
		} else {
			a.database = database
			a.closers = append(a.closers, database.Close)
			recorder = database
		}
	}

	site := browser.NewSite(log)
	site.TargetURL = cfg.TargetURL
	site.MaxDownloadClicks = cfg.MaxClicks

	extractOpts := extraction.DefaultOptions()
	extractOpts.RemoveSource = true
	extractOpts.Logger = log

	a.store = storage.NewStore(cfg.KeywordsDir, log)
	a.collector, err = pipeline.NewCollector(pipeline.Options{
		Sessions: browser.NewManager(browser.ManagerOptions{
			Logger:          log,
			PageLoadTimeout: cfg.PageLoadTimeout(),
		}),
		Site:            site,
		Stealth:         stealth,
		Credentials:     browser.Credentials{Email: cfg.Email, Password: cfg.Password},
		Composer:        query.NewComposer(nil),
		Extractor:       extraction.NewExtractor(extractOpts),
		Filter:          relevance.NewFilter(gen, relevance.WithLogger(log)),
		Store:           a.store,
		Recorder:        recorder,
		Metrics:         a.metrics,
		Printer:         printer,
		Logger:          log,
		DownloadBase:    cfg.DownloadDir,
		DownloadTimeout: cfg.DownloadTimeout(),
		MaxKeywords:     cfg.MaxKeywords,
		RunTimeout:      runTimeout(cfg),
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// runTimeout bounds one collection: page loads, login, results and the download wait.
func runTimeout(cfg *config.Config) time.Duration {
	return 4*cfg.PageLoadTimeout() + cfg.DownloadTimeout() + 3*time.Minute
}

// newLogger builds the CLI logger on w.
func newLogger(w io.Writer, verbose bool) zerolog.Logger {
	return observability.NewLogger(w, verbose)
}
