package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/jonathan/keyword-collector/internal/browser"
	"github.com/jonathan/keyword-collector/internal/browser/browsertest"
	"github.com/jonathan/keyword-collector/internal/db"
	"github.com/jonathan/keyword-collector/internal/observability"
	"github.com/jonathan/keyword-collector/internal/relevance"
	"github.com/jonathan/keyword-collector/internal/storage"
	"github.com/jonathan/keyword-collector/internal/types"
)

const (
	idMarker   = 1
	idEmail    = 10
	idPassword = 11
	idTextarea = 21
	idSubmit   = 22
	idDownload = 30
)

type fakeSessions struct {
	driver *browsertest.FakeDriver
	err    error

	mu    sync.Mutex
	dirs  []string
	calls int
}

func (f *fakeSessions) NewSession(_ context.Context, dir string, _ browser.StealthOptions) (*browser.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.dirs = append(f.dirs, dir)
	if f.err != nil {
		return nil, f.err
	}
	return browser.NewSessionWithDriver(f.driver, dir, nil, zerolog.Nop()), nil
}

func (f *fakeSessions) lastDir() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.dirs) == 0 {
		return ""
	}
	return f.dirs[len(f.dirs)-1]
}

type stubGenerator struct {
	response string
	err      error
	prompts  []string
}

func (s *stubGenerator) GenerateText(_ context.Context, prompt, _ string, _ int32, _ float32) (string, error) {
	s.prompts = append(s.prompts, prompt)
	return s.response, s.err
}

type memRecorder struct {
	runs []*db.Run
	err  error
}

func (m *memRecorder) RecordRun(_ context.Context, run *db.Run) error {
	m.runs = append(m.runs, run)
	return m.err
}

// exportRows is a 40-row export with two usable keywords.
func exportRows() [][]any {
	rows := [][]any{{"Слова", "Частотность"}}
	rows = append(rows, []any{"2020", 10}, []any{"60шт", 5}, []any{"панель пвх", 900}, []any{"кухня", 800})
	for i := 0; len(rows) < 41; i++ {
		rows = append(rows, []any{fmt.Sprintf("%d", 1000+i), i})
	}
	return rows
}

func writeExport(t *testing.T, dir string, rows [][]any) {
	t.Helper()
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	for r, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, r+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}
	require.NoError(t, f.SaveAs(filepath.Join(dir, "ag-grid.xlsx")))
}

// researchPage is a logged-in query page whose export button drops rows
// into the session's download directory.
func researchPage(t *testing.T, sessions *fakeSessions, rows [][]any) *browsertest.FakeDriver {
	f := browsertest.NewFakeDriver("about:blank")
	f.Set(browser.KindText, "Запросы", browsertest.Visible(idMarker, "Запросы"))
	f.Set(browser.KindTag, "textarea", browsertest.Visible(idTextarea, ""))
	f.Set(browser.KindCSS, ".IgttE.JDm7X", browsertest.Visible(idSubmit, "Найти"))
	f.Set(browser.KindText, "Скачать", browsertest.Visible(idDownload, "Скачать"))
	if rows != nil {
		f.OnClick = func(_ *browsertest.FakeDriver, el browser.Element) {
			if el.ID == idDownload {
				writeExport(t, sessions.lastDir(), rows)
			}
		}
	}
	return f
}

type harness struct {
	sessions  *fakeSessions
	driver    *browsertest.FakeDriver
	gen       *stubGenerator
	recorder  *memRecorder
	store     *storage.Store
	registry  *prometheus.Registry
	collector *Collector
	base      string
	events    []ProgressEvent
}

func newHarness(t *testing.T, rows [][]any, gen *stubGenerator) *harness {
	t.Helper()
	h := &harness{
		sessions: &fakeSessions{},
		gen:      gen,
		recorder: &memRecorder{},
		store:    storage.NewStore(t.TempDir(), zerolog.Nop()),
		registry: prometheus.NewRegistry(),
		base:     t.TempDir(),
	}
	h.driver = researchPage(t, h.sessions, rows)
	h.sessions.driver = h.driver

	site := browser.NewSite(zerolog.Nop())
	site.Timings = browser.FastTimings()
	site.Pacer = browser.NoDelay()

	metrics, err := observability.NewMetrics(h.registry)
	require.NoError(t, err)

	var filterGen relevance.Generator
	if gen != nil {
		filterGen = gen
	}
	c, err := NewCollector(Options{
		Sessions:        h.sessions,
		Site:            site,
		Credentials:     browser.Credentials{Email: "user@example.com", Password: "secret"},
		Filter:          relevance.NewFilter(filterGen),
		Store:           h.store,
		Recorder:        h.recorder,
		Metrics:         metrics,
		Logger:          zerolog.Nop(),
		DownloadBase:    h.base,
		DownloadTimeout: 300 * time.Millisecond,
		WatchInterval:   10 * time.Millisecond,
		OnProgress:      func(e ProgressEvent) { h.events = append(h.events, e) },
	})
	require.NoError(t, err)
	h.collector = c
	return h
}

func (h *harness) steps() []string {
	out := make([]string, 0, len(h.events))
	for _, e := range h.events {
		out = append(out, e.Step)
	}
	return out
}

func assertPurged(t *testing.T, h *harness) {
	t.Helper()
	entries, err := os.ReadDir(h.base)
	require.NoError(t, err)
	assert.Empty(t, entries, "per-run download directories must be removed")
}

var panelRequest = types.CollectionRequest{
	Category: "Стеновые панели",
	Purposes: []string{"Для кухни"},
}

func TestCollect_LLMSelection(t *testing.T) {
	h := newHarness(t, exportRows(), &stubGenerator{response: "панель пвх, кухня"})

	result := h.collector.Collect(context.Background(), panelRequest)

	require.Equal(t, types.StatusSuccess, result.Status, result.Message)
	assert.Equal(t, StagePersisted, result.Stage)
	assert.Equal(t, []string{"панель пвх", "кухня"}, result.Keywords)
	assert.Equal(t, result.Keywords, result.KeywordsPreview)
	assert.Equal(t, types.FilteringMethodLLM, result.FilteringMethod)
	assert.Equal(t, 2, result.OriginalKeywordsCount)
	assert.Equal(t, 2, result.FilteredKeywordsCount)
	assert.NotEmpty(t, result.Query)
	assert.Equal(t, result.Query, h.driver.TypedInto(idTextarea))
	assert.Equal(t, 1, h.driver.ClickCount(idDownload))
	assert.Equal(t, 1, h.driver.Closed)
	require.Len(t, h.gen.prompts, 1)
	assert.Contains(t, h.gen.prompts[0], "кухня")

	require.True(t, strings.HasSuffix(result.ArtifactPath, storage.ArtifactSuffix))
	artifact, err := h.store.Load(filepath.Base(result.ArtifactPath))
	require.NoError(t, err)
	assert.Equal(t, result.RunID, artifact.RunID)
	assert.Equal(t, result.Keywords, artifact.Keywords)
	assert.Equal(t, []string{"кухня", "панель пвх"}, artifact.AllKeywords)
	assert.Equal(t, "ag-grid.xlsx", artifact.KeywordsSource)
	assert.Equal(t, relevance.DefaultMaxKeywords, artifact.MaxKeywordsLimit)

	assert.Equal(t, Stages, h.steps())
	assertPurged(t, h)

	require.Len(t, h.recorder.runs, 1)
	assert.Equal(t, types.StatusSuccess, h.recorder.runs[0].Status)
	assert.Equal(t, 1.0, counterValue(t, h.registry, "keyword_collector_collections_total",
		map[string]string{"status": types.StatusSuccess, "filtering_method": types.FilteringMethodLLM}))
	n, err := testutil.GatherAndCount(h.registry, "keyword_collector_stage_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, len(Stages), n)
}

func TestCollect_PurposeOnlyRequest(t *testing.T) {
	h := newHarness(t, exportRows(), &stubGenerator{response: "кухня"})

	req := types.CollectionRequest{Purposes: []string{"kitchen"}, AdditionalParams: []string{"white"}}
	result := h.collector.Collect(context.Background(), req)

	require.Equal(t, types.StatusSuccess, result.Status, result.Message)
	assert.Equal(t, StagePersisted, result.Stage)
	assert.Equal(t, "Для кухни white", result.Query)
	assert.Equal(t, "category_kitchen_keywords.json", filepath.Base(result.ArtifactPath))

	artifact, err := h.store.Load(filepath.Base(result.ArtifactPath))
	require.NoError(t, err)
	assert.Empty(t, artifact.Category)
	assert.Equal(t, []string{"kitchen"}, artifact.Purposes)
	assert.Equal(t, []string{"white"}, artifact.AdditionalParams)
	assert.Equal(t, Stages, h.steps())
}

func TestCollect_FallbackWhenModelFails(t *testing.T) {
	h := newHarness(t, exportRows(), &stubGenerator{err: errors.New("quota exceeded")})

	result := h.collector.Collect(context.Background(), panelRequest, WithMaxKeywords(1))

	require.Equal(t, types.StatusSuccess, result.Status, result.Message)
	assert.Equal(t, types.FilteringMethodFallback, result.FilteringMethod)
	assert.Equal(t, []string{"кухня"}, result.Keywords)

	artifact, err := h.store.Load(filepath.Base(result.ArtifactPath))
	require.NoError(t, err)
	assert.Contains(t, artifact.FilteringError, "quota exceeded")
	assert.Equal(t, 1, artifact.MaxKeywordsLimit)
}

func TestCollect_AuthenticationTimeout(t *testing.T) {
	h := newHarness(t, exportRows(), nil)
	h.driver.Remove(browser.KindText, "Запросы")
	h.driver.Set(browser.KindName, "mpstats-login-form-name", browsertest.Visible(idEmail, ""))
	h.driver.Set(browser.KindName, "mpstats-login-form-password", browsertest.Visible(idPassword, ""))

	result := h.collector.Collect(context.Background(), panelRequest)

	assert.Equal(t, types.StatusError, result.Status)
	assert.Equal(t, StageAuthenticated, result.Stage)
	assert.Contains(t, result.Message, "authentication timeout")
	assert.Empty(t, result.Keywords)
	assert.NotNil(t, result.Keywords)
	assert.Empty(t, result.ArtifactPath)
	assert.Equal(t, 1, h.driver.Closed)
	assertPurged(t, h)

	artifacts, err := h.store.List()
	require.NoError(t, err)
	assert.Empty(t, artifacts)

	assert.Equal(t, StageFailed, h.events[len(h.events)-1].Step)
	require.Len(t, h.recorder.runs, 1)
	assert.Equal(t, StageAuthenticated, h.recorder.runs[0].Stage)
}

func TestCollect_InvalidRequestSkipsBrowser(t *testing.T) {
	h := newHarness(t, exportRows(), nil)

	result := h.collector.Collect(context.Background(), types.CollectionRequest{Purposes: []string{" "}})

	assert.Equal(t, types.StatusError, result.Status)
	assert.Equal(t, StageInit, result.Stage)
	assert.Contains(t, result.Message, ErrEmptyRequest.Error())
	assert.Zero(t, h.sessions.calls)
	assertPurged(t, h)
}

func TestCollect_DownloadTimeout(t *testing.T) {
	h := newHarness(t, nil, nil)

	result := h.collector.Collect(context.Background(), panelRequest)

	assert.Equal(t, types.StatusError, result.Status)
	assert.Equal(t, StageFileReceived, result.Stage)
	assert.Contains(t, result.Message, "download timeout")
	assert.Equal(t, 1, h.driver.Closed)
	assertPurged(t, h)
}

func TestCollect_SessionCreationFailure(t *testing.T) {
	h := newHarness(t, exportRows(), nil)
	h.sessions.err = &browser.SessionCreationError{Message: "chrome not found"}

	result := h.collector.Collect(context.Background(), panelRequest)

	assert.Equal(t, types.StatusError, result.Status)
	assert.Equal(t, StageSessionCreated, result.Stage)
	assert.Contains(t, result.Message, "chrome not found")
	assert.Zero(t, h.driver.Closed)
	assertPurged(t, h)
}

func TestCollect_RecorderFailureKeepsSuccess(t *testing.T) {
	h := newHarness(t, exportRows(), nil)
	h.recorder.err = errors.New("database down")

	result := h.collector.Collect(context.Background(), panelRequest)

	assert.Equal(t, types.StatusSuccess, result.Status, result.Message)
	assert.Equal(t, types.FilteringMethodFallback, result.FilteringMethod)
	assert.Len(t, h.recorder.runs, 1)
}

func TestCollect_CancelledContext(t *testing.T) {
	h := newHarness(t, exportRows(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := h.collector.Collect(ctx, panelRequest)

	assert.Equal(t, types.StatusError, result.Status)
	assert.Contains(t, result.Message, context.Canceled.Error())
	assertPurged(t, h)
}

func TestCollect_PerRunProgress(t *testing.T) {
	h := newHarness(t, exportRows(), nil)
	var mine []string
	h.collector.Collect(context.Background(), panelRequest, WithProgress(func(e ProgressEvent) {
		mine = append(mine, e.Step)
	}))
	assert.Equal(t, h.steps(), mine)
}

func TestNewCollector_RequiresCollaborators(t *testing.T) {
	_, err := NewCollector(Options{})
	assert.Error(t, err)

	_, err = NewCollector(Options{Sessions: &fakeSessions{}, Site: browser.NewSite(zerolog.Nop())})
	assert.Error(t, err)
}

func TestStageError(t *testing.T) {
	err := &StageError{Stage: StageExtracted, Err: assert.AnError}
	assert.ErrorIs(t, err, assert.AnError)
	assert.Contains(t, err.Error(), "stage extracted failed")
}

// counterValue reads one labelled counter from reg.
func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	metrics:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if labels[lp.GetName()] != lp.GetValue() {
					continue metrics
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s%v not found", name, labels)
	return 0
}
