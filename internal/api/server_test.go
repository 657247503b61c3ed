package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/sitepdf/internal/config"
	"github.com/JakeFAU/sitepdf/internal/crawler"
	"github.com/JakeFAU/sitepdf/internal/dispatcher"
	"github.com/JakeFAU/sitepdf/internal/pipeline"
	memqueue "github.com/JakeFAU/sitepdf/internal/queue/memory"
	memstore "github.com/JakeFAU/sitepdf/internal/storage/memory"
)

type fakeRunner struct {
	mu   sync.Mutex
	reqs []pipeline.Request
	res  pipeline.Result
	err  error
}

func (f *fakeRunner) Run(_ context.Context, req pipeline.Request) (pipeline.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	return f.res, f.err
}

func (f *fakeRunner) last(t *testing.T) pipeline.Request {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.reqs)
	return f.reqs[len(f.reqs)-1]
}

type fakeIDGen struct {
	mu   sync.Mutex
	next int
}

func (g *fakeIDGen) NewID() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	return fmt.Sprintf("job-%d", g.next), nil
}

type fakeClock struct{ now time.Time }

func (c fakeClock) Now() time.Time { return c.now }

type testEnv struct {
	server  *Server
	runner  *fakeRunner
	queue   *memqueue.Queue
	jobs    *memstore.JobStore
	blobs   *memstore.BlobStore
	catalog *memstore.CaptureCatalog
}

func testConfig() config.Config {
	return config.Config{
		Server: config.ServerConfig{Port: 8080, RequestTimeout: time.Minute, MaxBodyBytes: 1 << 20},
		Crawl: config.CrawlConfig{
			MaxPagesDefault: 10,
			MaxPagesLimit:   50,
			SameDomainOnly:  true,
			ModeDefault:     string(crawler.ModeFast),
		},
		PDF: config.PDFConfig{IncludeTOC: true},
	}
}

func newTestEnv(t *testing.T, queueDepth int) *testEnv {
	t.Helper()
	env := &testEnv{
		runner:  &fakeRunner{},
		queue:   memqueue.NewQueue(queueDepth),
		jobs:    memstore.NewJobStore(),
		blobs:   memstore.NewBlobStore(),
		catalog: memstore.NewCaptureCatalog(),
	}
	clock := fakeClock{now: time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)}
	dispatch := dispatcher.New(env.queue, env.jobs, &fakeIDGen{}, clock, nil)
	env.server = NewServer(env.runner, dispatch, env.jobs, env.blobs, env.catalog, testConfig(), zap.NewNop())
	return env
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestServer_Healthz(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 4)
	rec := env.do(t, http.MethodGet, "/healthz", "")

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", decodeBody(t, rec)["status"])
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestServer_ReadyzReportsDraining(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 4)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/readyz", "").Code)

	env.server.SetDraining(true)
	rec := env.do(t, http.MethodGet, "/readyz", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Equal(t, "draining", decodeBody(t, rec)["status"])
}

func TestServer_RequestIDIsEchoed(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 4)
	const id = "4b9d3c1e-8f0a-4d6b-9a51-2f3e1c7d8a90"
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", id)
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)

	require.Equal(t, id, rec.Header().Get("X-Request-ID"))

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "not-a-uuid")
	rec = httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	require.NotEqual(t, "not-a-uuid", rec.Header().Get("X-Request-ID"))
}

func TestServer_MetricsEndpoint(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 4)
	env.do(t, http.MethodGet, "/healthz", "")
	rec := env.do(t, http.MethodGet, "/metrics", "")

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "# HELP")
}

func TestServer_MethodNotAllowedEnvelope(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 4)
	rec := env.do(t, http.MethodGet, "/v1/crawl", "")

	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	body := decodeBody(t, rec)
	require.Equal(t, false, body["success"])
	require.Contains(t, body["error"], "method GET is not allowed")
}

func TestServer_UnknownRoute(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 4)
	rec := env.do(t, http.MethodGet, "/v2/anything", "")

	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, false, decodeBody(t, rec)["success"])
}

func TestServer_RecoversFromPanics(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 4)
	handler := env.server.recoverMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), "internal server error")
}

// brokenWriter accepts headers but fails every body write.
type brokenWriter struct {
	*httptest.ResponseRecorder
}

func (brokenWriter) Write([]byte) (int, error) {
	return 0, fmt.Errorf("client went away")
}

func TestWriteFailuresUseServerLogger(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.WarnLevel)
	server := NewServer(nil, nil, nil, nil, nil, testConfig(), zap.New(core))

	server.writeJSON(brokenWriter{httptest.NewRecorder()}, http.StatusOK, map[string]string{"status": "ok"})
	server.writeAttachment(brokenWriter{httptest.NewRecorder()}, "application/pdf", "site.pdf", []byte("%PDF-1.4"))

	entries := logs.All()
	require.Len(t, entries, 2)
	require.Equal(t, "write JSON failed", entries[0].Message)
	require.Equal(t, "write attachment failed", entries[1].Message)
	for _, e := range entries {
		require.Equal(t, "api", e.LoggerName)
		require.Equal(t, "client went away", e.ContextMap()["error"])
	}
}

func TestDecodeJSONRejectsOversizedBody(t *testing.T) {
	t.Parallel()

	body := bytes.Repeat([]byte("a"), 64)
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(append([]byte(`{"url":"`), append(body, []byte(`"}`)...)...)))
	rec := httptest.NewRecorder()

	var dst crawlRequest
	require.Error(t, decodeJSON(rec, req, 16, &dst))
}
