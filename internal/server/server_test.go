package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/keyword-collector/internal/config"
	"github.com/jonathan/keyword-collector/internal/db"
	"github.com/jonathan/keyword-collector/internal/pipeline"
	"github.com/jonathan/keyword-collector/internal/server/ratelimit"
	"github.com/jonathan/keyword-collector/internal/storage"
	"github.com/jonathan/keyword-collector/internal/types"
)

// fakeCollector returns a canned result and records what it was asked for.
type fakeCollector struct {
	mu       sync.Mutex
	requests []types.CollectionRequest
	result   *types.CollectionResult
	// started and block, when set, hold Collect open until block is closed.
	started chan struct{}
	block   chan struct{}
}

func (f *fakeCollector) Collect(ctx context.Context, req types.CollectionRequest, opts ...pipeline.RunOption) *types.CollectionResult {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
		}
	}
	return f.result
}

func (f *fakeCollector) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

type fakeRuns struct {
	runs map[uuid.UUID]*db.Run
}

func (f *fakeRuns) GetRun(_ context.Context, id uuid.UUID) (*db.Run, error) {
	return f.runs[id], nil
}

func (f *fakeRuns) ListRuns(_ context.Context, status string, limit int) ([]db.Run, error) {
	var out []db.Run
	for _, r := range f.runs {
		if status == "" || r.Status == status {
			out = append(out, *r)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func successResult() *types.CollectionResult {
	return &types.CollectionResult{
		RunID:                 uuid.NewString(),
		Status:                types.StatusSuccess,
		Stage:                 pipeline.StagePersisted,
		Category:              "panels",
		Purposes:              []string{"kitchen"},
		AdditionalParams:      []string{},
		Keywords:              []string{"панели для кухни"},
		KeywordsPreview:       []string{"панели для кухни"},
		FilteringMethod:       types.FilteringMethodLLM,
		OriginalKeywordsCount: 10,
		FilteredKeywordsCount: 1,
	}
}

type testServer struct {
	*Server
	collector *fakeCollector
	store     *storage.Store
	token     string
}

func newTestServer(t *testing.T, mutate func(*Config)) *testServer {
	t.Helper()
	jwtCfg := &config.JWTConfig{Secret: testSecret, ExpirationHours: 1, Issuer: config.DefaultJWTIssuer}
	collector := &fakeCollector{result: successResult()}
	store := storage.NewStore(t.TempDir(), zerolog.Nop())

	cfg := Config{
		Collector: collector,
		Artifacts: store,
		JWT:       jwtCfg,
		RateLimit: &ratelimit.Config{Enabled: false},
		Gatherer:  prometheus.NewRegistry(),
		Logger:    zerolog.Nop(),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	s, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(s.rateLimiter.Stop)

	token, err := NewJWTService(jwtCfg).GenerateToken("tests")
	require.NoError(t, err)
	return &testServer{Server: s, collector: collector, store: store, token: token}
}

func (ts *testServer) do(method, path, body string, authed bool) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if authed {
		req.Header.Set("Authorization", "Bearer "+ts.token)
	}
	w := httptest.NewRecorder()
	ts.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
	_, err = New(Config{Collector: &fakeCollector{}})
	assert.Error(t, err)
	_, err = New(Config{Collector: &fakeCollector{}, Artifacts: storage.NewStore(t.TempDir(), zerolog.Nop())})
	assert.Error(t, err)
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.do(http.MethodGet, "/health", "", false)
	assert.Equal(t, http.StatusOK, w.Code)
	resp := decode[map[string]any](t, w)
	assert.Equal(t, "ok", resp["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "scrape_check_total", Help: "scrape check"})
	reg.MustRegister(counter)
	counter.Inc()

	ts := newTestServer(t, func(c *Config) { c.Gatherer = reg })
	w := ts.do(http.MethodGet, "/metrics", "", false)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "scrape_check_total 1")
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t, nil)
	w := ts.do(http.MethodOptions, "/v1/collections", "", false)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "Authorization")
}

func TestCollect_RequiresToken(t *testing.T) {
	ts := newTestServer(t, nil)
	w := ts.do(http.MethodPost, "/v1/collections", `{"category": "panels"}`, false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Zero(t, ts.collector.calls())
}

func TestCollect_Success(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.do(http.MethodPost, "/v1/collections",
		`{"category": "panels", "purposes": "kitchen, bathroom", "additional_params": ["white"], "max_keywords": 10}`, true)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	result := decode[types.CollectionResult](t, w)
	assert.Equal(t, types.StatusSuccess, result.Status)
	assert.Equal(t, []string{"панели для кухни"}, result.Keywords)

	require.Equal(t, 1, ts.collector.calls())
	assert.Equal(t, types.CollectionRequest{
		Category:         "panels",
		Purposes:         []string{"kitchen", "bathroom"},
		AdditionalParams: []string{"white"},
	}, ts.collector.requests[0])
}

func TestCollect_PipelineErrorIs422(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.collector.result = &types.CollectionResult{
		RunID:           uuid.NewString(),
		Status:          types.StatusError,
		Stage:           pipeline.StageAuthenticated,
		Keywords:        []string{},
		KeywordsPreview: []string{},
		Message:         "authentication timeout",
	}

	w := ts.do(http.MethodPost, "/v1/collections", `{"category": "panels"}`, true)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	result := decode[types.CollectionResult](t, w)
	assert.Equal(t, pipeline.StageAuthenticated, result.Stage)
	assert.Equal(t, "authentication timeout", result.Message)
}

func TestCollect_BadRequests(t *testing.T) {
	ts := newTestServer(t, nil)

	for name, body := range map[string]string{
		"invalid json":        `{"category": `,
		"empty request":       `{}`,
		"blank fields":        `{"category": " ", "purposes": [" "]}`,
		"limit out of range":  `{"category": "panels", "max_keywords": 1000}`,
		"wrong purposes type": `{"category": "panels", "purposes": 7}`,
	} {
		t.Run(name, func(t *testing.T) {
			w := ts.do(http.MethodPost, "/v1/collections", body, true)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
			assert.NotEmpty(t, decode[map[string]string](t, w)["error"])
		})
	}
	assert.Zero(t, ts.collector.calls())
}

func TestCollect_BusyIs503(t *testing.T) {
	ts := newTestServer(t, func(c *Config) { c.AcquireTimeout = 20 * time.Millisecond })
	ts.collector.started = make(chan struct{}, 1)
	ts.collector.block = make(chan struct{})

	done := make(chan int, 1)
	go func() {
		done <- ts.do(http.MethodPost, "/v1/collections", `{"category": "panels"}`, true).Code
	}()
	<-ts.collector.started

	w := ts.do(http.MethodPost, "/v1/collections", `{"category": "tiles"}`, true)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, decode[map[string]string](t, w)["error"], "collector busy")

	close(ts.collector.block)
	assert.Equal(t, http.StatusOK, <-done)
	assert.Equal(t, 1, ts.collector.calls())
}

func TestCollect_RateLimited(t *testing.T) {
	ts := newTestServer(t, func(c *Config) {
		c.RateLimit = &ratelimit.Config{
			Enabled:       true,
			DefaultLimit:  100,
			DefaultWindow: time.Minute,
			EndpointConfigs: []ratelimit.EndpointConfig{
				{Path: "/v1/collections", Method: "POST", Limit: 1, Window: time.Hour, Burst: 1},
			},
		}
	})

	w := ts.do(http.MethodPost, "/v1/collections", `{"category": "panels"}`, true)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Limit"))

	w = ts.do(http.MethodPost, "/v1/collections", `{"category": "panels"}`, true)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Equal(t, "rate_limit_exceeded", decode[map[string]any](t, w)["error"])
	assert.Equal(t, 1, ts.collector.calls())
}

func TestCollectStream(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.do(http.MethodPost, "/v1/collections/stream", `{"category": "panels"}`, true)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	body := w.Body.String()
	assert.Contains(t, body, "event: result")
	assert.Contains(t, body, "event: complete")
	assert.Contains(t, body, `"status":"success"`)
	assert.NotContains(t, body, "event: error")
}

func TestArtifacts(t *testing.T) {
	ts := newTestServer(t, nil)
	_, err := ts.store.Save(&types.KeywordArtifact{
		RunID:                 uuid.NewString(),
		Category:              "panels",
		Purposes:              []string{"kitchen"},
		AdditionalParams:      []string{},
		Query:                 "panels kitchen",
		Keywords:              []string{"панели для кухни"},
		AllKeywords:           []string{"панели для кухни"},
		OriginalKeywordsCount: 1,
		FilteredKeywordsCount: 1,
		FilteringMethod:       types.FilteringMethodLLM,
		MaxKeywordsLimit:      25,
		KeywordsSource:        "ag-grid.xlsx",
		CollectedAt:           time.Now().UTC(),
	})
	require.NoError(t, err)

	w := ts.do(http.MethodGet, "/v1/collections", "", true)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[struct {
		Artifacts []storage.ArtifactInfo `json:"artifacts"`
		Count     int                    `json:"count"`
	}](t, w)
	require.Equal(t, 1, list.Count)
	assert.Equal(t, "panels_kitchen_keywords.json", list.Artifacts[0].Name)

	w = ts.do(http.MethodGet, "/v1/collections/panels_kitchen_keywords.json", "", true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"панели для кухни"}, decode[types.KeywordArtifact](t, w).Keywords)

	w = ts.do(http.MethodGet, "/v1/collections/missing_keywords.json", "", true)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(http.MethodGet, "/v1/collections/panels_kitchen_keywords.json", "", false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRuns(t *testing.T) {
	id := uuid.New()
	runs := &fakeRuns{runs: map[uuid.UUID]*db.Run{
		id: {ID: id, Status: types.StatusError, Stage: pipeline.StageFileReceived},
	}}
	ts := newTestServer(t, func(c *Config) { c.Runs = runs })

	w := ts.do(http.MethodGet, "/v1/runs/"+id.String(), "", true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, pipeline.StageFileReceived, decode[db.Run](t, w).Stage)

	assert.Equal(t, http.StatusNotFound, ts.do(http.MethodGet, "/v1/runs/"+uuid.NewString(), "", true).Code)
	assert.Equal(t, http.StatusBadRequest, ts.do(http.MethodGet, "/v1/runs/not-a-uuid", "", true).Code)

	w = ts.do(http.MethodGet, "/v1/runs?status=error&limit=5", "", true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode[map[string]any](t, w)["count"])

	assert.Equal(t, http.StatusBadRequest, ts.do(http.MethodGet, "/v1/runs?status=pending", "", true).Code)
	assert.Equal(t, http.StatusBadRequest, ts.do(http.MethodGet, "/v1/runs?limit=-1", "", true).Code)
}

func TestRuns_DisabledWithoutDatabase(t *testing.T) {
	ts := newTestServer(t, nil)
	assert.Equal(t, http.StatusServiceUnavailable, ts.do(http.MethodGet, "/v1/runs", "", true).Code)
	assert.Equal(t, http.StatusServiceUnavailable, ts.do(http.MethodGet, "/v1/runs/"+uuid.NewString(), "", true).Code)
}

func TestRun_ShutsDownOnCancel(t *testing.T) {
	ts := newTestServer(t, func(c *Config) { c.Port = 0 })
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- ts.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
