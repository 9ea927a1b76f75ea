// Package pipeline orchestrates one keyword collection run from browser session to stored artifact.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jonathan/keyword-collector/internal/browser"
	"github.com/jonathan/keyword-collector/internal/db"
	"github.com/jonathan/keyword-collector/internal/download"
	"github.com/jonathan/keyword-collector/internal/extraction"
	"github.com/jonathan/keyword-collector/internal/observability"
	"github.com/jonathan/keyword-collector/internal/query"
	"github.com/jonathan/keyword-collector/internal/relevance"
	"github.com/jonathan/keyword-collector/internal/storage"
	"github.com/jonathan/keyword-collector/internal/types"
)

// SessionFactory opens a browser session bound to a download directory.
// *browser.Manager implements it.
type SessionFactory interface {
	NewSession(ctx context.Context, downloadDir string, opts browser.StealthOptions) (*browser.Session, error)
}

// RunRecorder persists the run log. *db.DB implements it.
type RunRecorder interface {
	RecordRun(ctx context.Context, run *db.Run) error
}

// Options holds the collaborators and limits of a Collector.
type Options struct {
	Sessions    SessionFactory
	Site        *browser.Site
	Stealth     browser.StealthOptions
	Credentials browser.Credentials

	Composer  *query.Composer
	Extractor *extraction.Extractor
	Filter    *relevance.Filter
	Store     *storage.Store
	// Recorder is optional.
	Recorder RunRecorder
	// Metrics is optional.
	Metrics *observability.Metrics
	// Printer, when set, renders each stage's output for a terminal.
	Printer *observability.Printer
	Logger  zerolog.Logger

	// DownloadBase is the parent of the per-run download directories.
	DownloadBase    string
	DownloadTimeout time.Duration
	WatchInterval   time.Duration
	MaxKeywords     int
	// RunTimeout bounds a whole run when positive.
	RunTimeout time.Duration
	OnProgress ProgressCallback

	now      func() time.Time
	newRunID func() string
}

// Collector runs collection requests. It is safe for concurrent use; each
// run gets its own session and download directory.
type Collector struct {
	opts Options
}

// NewCollector validates opts and fills defaults.
func NewCollector(opts Options) (*Collector, error) {
	switch {
	case opts.Sessions == nil:
		return nil, fmt.Errorf("pipeline: session factory is required")
	case opts.Site == nil:
		return nil, fmt.Errorf("pipeline: site is required")
	case opts.Store == nil:
		return nil, fmt.Errorf("pipeline: store is required")
	}
	if opts.Composer == nil {
		opts.Composer = query.NewComposer(nil)
	}
	if opts.Extractor == nil {
		opts.Extractor = extraction.NewExtractor(extraction.DefaultOptions())
	}
	if opts.Filter == nil {
		opts.Filter = relevance.NewFilter(nil, relevance.WithLogger(opts.Logger))
	}
	if opts.DownloadBase == "" {
		opts.DownloadBase = os.TempDir()
	}
	if opts.DownloadTimeout <= 0 {
		opts.DownloadTimeout = download.DefaultTimeout
	}
	if opts.WatchInterval <= 0 {
		opts.WatchInterval = download.DefaultInterval
	}
	if opts.MaxKeywords <= 0 {
		opts.MaxKeywords = relevance.DefaultMaxKeywords
	}
	if opts.now == nil {
		opts.now = time.Now
	}
	if opts.newRunID == nil {
		opts.newRunID = uuid.NewString
	}
	return &Collector{opts: opts}, nil
}

// RunOption adjusts a single Collect call.
type RunOption func(*runConfig)

type runConfig struct {
	maxKeywords int
	onProgress  ProgressCallback
}

// WithMaxKeywords overrides the keyword limit for one run.
func WithMaxKeywords(n int) RunOption {
	return func(c *runConfig) {
		if n > 0 {
			c.maxKeywords = n
		}
	}
}

// WithProgress adds a progress callback for one run. It is called in
// addition to Options.OnProgress.
func WithProgress(cb ProgressCallback) RunOption {
	return func(c *runConfig) { c.onProgress = cb }
}

// run is the mutable state of one Collect call.
type run struct {
	c       *Collector
	cfg     runConfig
	log     zerolog.Logger
	result  *types.CollectionResult
	session *browser.Session
	dir     string

	releaseOnce sync.Once
}

// Collect executes the full pipeline for req. It never returns nil; failures
// are reported through the result's status, stage and message. Cleanup of
// the browser and the download directory happens on every exit path.
func (c *Collector) Collect(ctx context.Context, req types.CollectionRequest, opts ...RunOption) *types.CollectionResult {
	cfg := runConfig{maxKeywords: c.opts.MaxKeywords}
	for _, opt := range opts {
		opt(&cfg)
	}
	if c.opts.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.RunTimeout)
		defer cancel()
	}

	start := c.opts.now()
	runID := c.opts.newRunID()
	r := &run{
		c:   c,
		cfg: cfg,
		log: c.opts.Logger.With().Str("run_id", runID).Logger(),
		result: &types.CollectionResult{
			RunID:            runID,
			Status:           types.StatusError,
			Stage:            StageInit,
			Category:         req.Category,
			Purposes:         nonNil(req.Purposes),
			AdditionalParams: nonNil(req.AdditionalParams),
			Keywords:         []string{},
			KeywordsPreview:  []string{},
		},
	}

	var artifact *types.KeywordArtifact
	defer func() {
		r.result.DurationMS = c.opts.now().Sub(start).Milliseconds()
		c.opts.Metrics.CountCollection(r.result.Status, r.result.FilteringMethod)
		r.record(ctx, artifact)
	}()
	defer r.cleanup()

	var err error
	artifact, err = r.execute(ctx, req)
	if err != nil {
		r.fail(err)
		return r.result
	}

	r.result.Status = types.StatusSuccess
	r.log.Info().
		Int("keywords", r.result.FilteredKeywordsCount).
		Str("filtering_method", r.result.FilteringMethod).
		Str("artifact", r.result.ArtifactPath).
		Msg("collection complete")
	return r.result
}

// execute walks the stages. Each returned error is a *StageError.
func (r *run) execute(ctx context.Context, req types.CollectionRequest) (*types.KeywordArtifact, error) {
	c := r.c
	var q string

	err := r.stage(ctx, StageInit, func() error {
		if err := req.Validate(); err != nil {
			return err
		}
		if req.IsEmpty() {
			return ErrEmptyRequest
		}
		q = c.opts.Composer.Build(req)
		if q == "" {
			return ErrEmptyQuery
		}
		r.result.Query = q
		if c.opts.Printer != nil {
			c.opts.Printer.PrintQuery(req.Category, req.Purposes, q)
		}
		if err := os.MkdirAll(c.opts.DownloadBase, 0o755); err != nil {
			return fmt.Errorf("failed to create download base %s: %w", c.opts.DownloadBase, err)
		}
		dir, err := os.MkdirTemp(c.opts.DownloadBase, "run-*")
		if err != nil {
			return fmt.Errorf("failed to create download directory: %w", err)
		}
		r.dir = dir
		return nil
	}, func() any { return map[string]any{"query": q} })
	if err != nil {
		return nil, err
	}

	err = r.stage(ctx, StageSessionCreated, func() error {
		s, err := c.opts.Sessions.NewSession(ctx, r.dir, c.opts.Stealth)
		if err != nil {
			return err
		}
		r.session = s
		c.opts.Metrics.SessionOpened()
		return nil
	}, nil)
	if err != nil {
		return nil, err
	}

	if err := r.stage(ctx, StageAuthenticated, func() error {
		return c.opts.Site.EnsureAuthenticated(ctx, r.session, c.opts.Credentials)
	}, nil); err != nil {
		return nil, err
	}

	if err := r.stage(ctx, StageQuerySubmitted, func() error {
		return c.opts.Site.SubmitQuery(ctx, r.session, q)
	}, nil); err != nil {
		return nil, err
	}

	var watcher *download.Watcher
	var clicks int
	if err := r.stage(ctx, StageDownloadTriggered, func() error {
		var err error
		watcher, err = download.NewWatcher(r.dir,
			download.WithInterval(c.opts.WatchInterval),
			download.WithLogger(r.log))
		if err != nil {
			return err
		}
		clicks, err = c.opts.Site.TriggerDownload(ctx, r.session)
		return err
	}, func() any { return map[string]any{"clicks": clicks} }); err != nil {
		return nil, err
	}

	var file types.DownloadArtifact
	if err := r.stage(ctx, StageFileReceived, func() error {
		var ok bool
		file, ok = watcher.WaitForFile(ctx, c.opts.DownloadTimeout)
		if !ok {
			if err := ctx.Err(); err != nil {
				return err
			}
			return &download.TimeoutError{Dir: r.dir, Timeout: c.opts.DownloadTimeout}
		}
		// The browser is no longer needed once the file is on disk.
		r.releaseSession()
		return nil
	}, func() any { return file }); err != nil {
		return nil, err
	}

	var candidates *types.CandidateKeywordSet
	if err := r.stage(ctx, StageExtracted, func() error {
		var err error
		candidates, err = c.opts.Extractor.Extract(ctx, file.Path)
		if err != nil {
			return err
		}
		prov := candidates.Provenance
		c.opts.Metrics.AddRows(prov.KeptRows, prov.RawRows-prov.KeptRows)
		r.result.OriginalKeywordsCount = candidates.Len()
		if c.opts.Printer != nil {
			c.opts.Printer.PrintCandidates(candidates)
		}
		return nil
	}, func() any { return candidates.Provenance }); err != nil {
		return nil, err
	}

	var filtered types.FilteredKeywordSet
	if err := r.stage(ctx, StageFiltered, func() error {
		fc := relevance.Context{
			Category:         req.Category,
			Purposes:         req.Purposes,
			AdditionalParams: req.AdditionalParams,
			Description:      req.CategoryDescription,
		}
		outcome := c.opts.Filter.Apply(ctx, candidates.Keywords, fc, r.cfg.maxKeywords)
		filtered = relevance.ToFilteredSet(outcome, candidates.Len(), r.cfg.maxKeywords)
		r.result.Keywords = filtered.Keywords
		r.result.KeywordsPreview = types.Preview(filtered.Keywords)
		r.result.FilteringMethod = filtered.FilteringMethod
		r.result.FilteredKeywordsCount = filtered.FilteredCount
		if c.opts.Printer != nil {
			c.opts.Printer.PrintFiltered(&filtered)
		}
		return nil
	}, func() any { return map[string]any{"method": filtered.FilteringMethod, "count": filtered.FilteredCount} }); err != nil {
		return nil, err
	}

	artifact := &types.KeywordArtifact{
		RunID:                 r.result.RunID,
		Category:              req.Category,
		CategoryDescription:   req.CategoryDescription,
		Purposes:              nonNil(req.Purposes),
		AdditionalParams:      nonNil(req.AdditionalParams),
		Query:                 q,
		Keywords:              nonNil(filtered.Keywords),
		AllKeywords:           nonNil(candidates.Keywords),
		OriginalKeywordsCount: filtered.OriginalCount,
		FilteredKeywordsCount: filtered.FilteredCount,
		FilteringMethod:       filtered.FilteringMethod,
		FilteringError:        filtered.FilteringError,
		MaxKeywordsLimit:      filtered.MaxKeywords,
		KeywordsSource:        candidates.Provenance.SourceFile,
		CollectedAt:           c.opts.now().UTC(),
	}
	if err := r.stage(ctx, StagePersisted, func() error {
		path, err := c.opts.Store.Save(artifact)
		if err != nil {
			return err
		}
		r.result.ArtifactPath = path
		return nil
	}, nil); err != nil {
		return nil, err
	}
	return artifact, nil
}

// stage runs fn, times it and reports the transition. report, when set,
// builds the progress payload after fn succeeds.
func (r *run) stage(ctx context.Context, name string, fn func() error, report func() any) error {
	if err := ctx.Err(); err != nil {
		return &StageError{Stage: name, Err: err}
	}
	started := time.Now()
	err := fn()
	r.c.opts.Metrics.ObserveStage(name, time.Since(started), err)
	if err != nil {
		return &StageError{Stage: name, Err: err}
	}

	r.result.Stage = name
	r.log.Info().Str("stage", name).Dur("took", time.Since(started)).Msg("stage complete")
	var content any
	if report != nil {
		content = report()
	}
	r.emit(name, "stage complete", content)
	return nil
}

func (r *run) fail(err error) {
	stage := StageInit
	var se *StageError
	if errors.As(err, &se) {
		stage = se.Stage
		err = se.Err
	}
	r.result.Status = types.StatusError
	r.result.Stage = stage
	r.result.Keywords = []string{}
	r.result.KeywordsPreview = []string{}
	r.result.Message = err.Error()

	r.log.Error().Err(err).Str("stage", stage).Msg("collection failed")
	r.emit(StageFailed, err.Error(), map[string]any{"stage": stage})
}

func (r *run) emit(step, message string, content any) {
	event := ProgressEvent{
		Step:     step,
		Category: stageCategory[step],
		Message:  message,
		RunID:    r.result.RunID,
		Content:  content,
	}
	if r.c.opts.OnProgress != nil {
		r.c.opts.OnProgress(event)
	}
	if r.cfg.onProgress != nil {
		r.cfg.onProgress(event)
	}
}

func (r *run) releaseSession() {
	if r.session == nil {
		return
	}
	r.releaseOnce.Do(func() {
		r.session.Release()
		r.c.opts.Metrics.SessionClosed()
	})
}

// cleanup releases the browser and removes the run's download directory.
func (r *run) cleanup() {
	r.releaseSession()
	if r.dir == "" {
		return
	}
	if n, err := download.RemovePartials(r.dir); err != nil {
		r.log.Warn().Err(err).Msg("failed to remove partial downloads")
	} else if n > 0 {
		r.log.Debug().Int("removed", n).Msg("partial downloads removed")
	}
	if err := download.Purge(r.dir); err != nil {
		r.log.Warn().Err(err).Msg("failed to remove download directory")
	}
}

// record writes the run log. Failures are logged and never change the result.
func (r *run) record(ctx context.Context, artifact *types.KeywordArtifact) {
	if r.c.opts.Recorder == nil {
		return
	}
	row, err := db.RunFromResult(r.result, artifact)
	if err != nil {
		r.log.Warn().Err(err).Msg("run not recorded")
		return
	}
	recCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := r.c.opts.Recorder.RecordRun(recCtx, row); err != nil {
		r.log.Warn().Err(err).Msg("failed to record run")
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
