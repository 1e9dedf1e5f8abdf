package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/crawl-admission/internal/admission"
	"github.com/JakeFAU/crawl-admission/internal/clock/manual"
	"github.com/JakeFAU/crawl-admission/internal/config"
	"github.com/JakeFAU/crawl-admission/internal/crawler"
	"github.com/JakeFAU/crawl-admission/internal/dispatcher"
	"github.com/JakeFAU/crawl-admission/internal/policy/domain"
	queueMemory "github.com/JakeFAU/crawl-admission/internal/queue/memory"
	"github.com/JakeFAU/crawl-admission/internal/storage/memory"
)

type testEnv struct {
	server *Server
	store  *memory.QueueStore
	queue  *queueMemory.Queue
	clock  *manual.Clock
}

func newTestEnv(t *testing.T, cfg config.Config) *testEnv {
	t.Helper()
	clk := manual.New(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	st := memory.NewQueueStore(7*24*time.Hour, clk, &fakeIDGen{})
	eng, err := admission.New(admission.Deps{
		Store:     st,
		Validator: domain.New(nil, []string{"blocked.example"}, false),
		Clock:     clk,
	}, crawler.Settings{})
	require.NoError(t, err)
	q := queueMemory.NewQueue(2)
	server := NewServer(Deps{
		Admitter:   eng,
		Queue:      st,
		Dispatcher: dispatcher.New(q, nil),
		Stats:      memory.NewStatsStore(),
	}, cfg, zap.NewNop())
	return &testEnv{server: server, store: st, queue: q, clock: clk}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeOutcome(t *testing.T, rec *httptest.ResponseRecorder) outcomeDTO {
	t.Helper()
	var dto outcomeDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dto))
	return dto
}

func TestServer_Admit_AddedThenDuplicate(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, config.Config{})
	rec := env.do(t, http.MethodPost, "/v1/admissions", `{"url":"http://example.org/a"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	dto := decodeOutcome(t, rec)
	require.Equal(t, "added", dto.Outcome)
	require.Equal(t, "http://example.org/a", dto.URL)
	require.NotNil(t, dto.Item)
	require.Equal(t, "/a", dto.Item.Path)

	rec = env.do(t, http.MethodPost, "/v1/admissions", `{"url":"HTTP://example.org:80/a#top"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "duplicate", decodeOutcome(t, rec).Outcome)
}

func TestServer_Admit_DeniedAndMalformed(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, config.Config{})
	rec := env.do(t, http.MethodPost, "/v1/admissions", `{"url":"http://blocked.example/"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	dto := decodeOutcome(t, rec)
	require.Equal(t, "denied", dto.Outcome)
	require.Equal(t, "domain_invalid", dto.Reason)
	require.Nil(t, dto.Item)

	rec = env.do(t, http.MethodPost, "/v1/admissions", `{"url":"not a url"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Equal(t, "malformed_url", decodeOutcome(t, rec).Reason)

	rec = env.do(t, http.MethodPost, "/v1/admissions", `{invalid`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/v1/admissions", `{"url":"  "}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_Admit_RelativeToQueuedOrigin(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, config.Config{})
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/v1/admissions", `{"url":"https://www.abs.gov.au/"}`).Code)

	rec := env.do(t, http.MethodPost, "/v1/admissions", `{"url":"/statistics","origin_url":"https://www.abs.gov.au"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	dto := decodeOutcome(t, rec)
	require.Equal(t, "https://www.abs.gov.au/statistics", dto.URL)
	require.Equal(t, 1, dto.Item.Depth)
	require.Equal(t, "https://www.abs.gov.au/", dto.Item.Referrer)

	rec = env.do(t, http.MethodPost, "/v1/admissions", `{"url":"/x","origin_url":"https://unknown.example/"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Contains(t, rec.Body.String(), "origin is not queued")

	rec = env.do(t, http.MethodPost, "/v1/admissions", `{"url":"/x","origin":{"path":"/"}}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_Admit_StoreFailure(t *testing.T) {
	t.Parallel()

	eng, err := admission.New(admission.Deps{Store: brokenStore{}}, crawler.Settings{})
	require.NoError(t, err)
	server := NewServer(Deps{Admitter: eng}, config.Config{}, zap.NewNop())

	req := httptest.NewRequest(http.MethodPost, "/v1/admissions", bytes.NewBufferString(`{"url":"http://example.org/"}`))
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Equal(t, "store_unavailable", decodeOutcome(t, rec).Reason)
}

func TestServer_RecordFetchAndLookup(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, config.Config{})
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/v1/admissions", `{"url":"http://example.org/p"}`).Code)

	rec := env.do(t, http.MethodPost, "/v1/fetches", `{"url":"http://EXAMPLE.org/p","fetched_at":"2024-06-01T00:00:00Z"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"url":"http://example.org/p"`)

	rec = env.do(t, http.MethodGet, "/v1/queue-items?url=http://example.org/p", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Item crawler.QueueItem `json:"item"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotNil(t, body.Item.LastFetchedAt)

	require.Equal(t, http.StatusNotFound, env.do(t, http.MethodPost, "/v1/fetches", `{"url":"http://example.org/none"}`).Code)
	require.Equal(t, http.StatusUnprocessableEntity, env.do(t, http.MethodPost, "/v1/fetches", `{"url":"::"}`).Code)
	require.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, "/v1/fetches", `{}`).Code)
	require.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/v1/queue-items?url=http://example.org/none", "").Code)
	require.Equal(t, http.StatusUnprocessableEntity, env.do(t, http.MethodGet, "/v1/queue-items", "").Code)
}

func TestServer_EnqueueDiscoveries(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, config.Config{})
	env.server.enqueueTimeout = 50 * time.Millisecond
	rec := env.do(t, http.MethodPost, "/v1/discoveries", `{"urls":["http://a.example/","http://b.example/"]}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.JSONEq(t, `{"queued":2}`, rec.Body.String())

	got, err := env.queue.Dequeue(context.Background())
	require.NoError(t, err)
	require.Equal(t, "http://a.example/", got.URL)

	require.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, "/v1/discoveries", `{"urls":[]}`).Code)

	rec = env.do(t, http.MethodPost, "/v1/discoveries", `{"urls":["http://c.example/","http://d.example/"]}`)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Contains(t, rec.Body.String(), `"queued":1`)
}

func TestServer_HostsRoute(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, config.Config{})
	rec := env.do(t, http.MethodGet, "/v1/hosts/missing.example", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	rec = env.do(t, http.MethodGet, "/v1/hosts", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"hosts":[]}`, rec.Body.String())
}

func TestServer_Readyz(t *testing.T) {
	t.Parallel()

	var healthy atomic.Bool
	server := NewServer(Deps{Ready: func(context.Context) error {
		if healthy.Load() {
			return nil
		}
		return errors.New("postgres unreachable")
	}}, config.Config{}, zap.NewNop())

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	healthy.Store(true)
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/admissions", bytes.NewBufferString(`{"url":"http://x.example/"}`)))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_MetricsEndpoint(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, config.Config{})
	env.do(t, http.MethodGet, "/healthz", "")
	rec := env.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestServer_APIKeyMiddleware(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, config.Config{Auth: config.AuthConfig{Enabled: true, APIKey: "secret"}})

	rec := env.do(t, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusForbidden, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-API-Key", "secret")
	rec = httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/healthz?api_key=secret", "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRequestIDMiddlewareSetsHeader(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, config.Config{})
	rec := env.do(t, http.MethodGet, "/healthz", "")
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "caller-id")
	rec = httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, "caller-id", rec.Header().Get("X-Request-ID"))
}

func TestRecoverMiddleware(t *testing.T) {
	t.Parallel()

	h := recoverMiddleware(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestResponseWriterHijackBehavior(t *testing.T) {
	t.Parallel()

	rw := &responseWriter{ResponseWriter: httptest.NewRecorder()}
	if _, _, err := rw.Hijack(); err == nil || err.Error() != "hijacker not supported" {
		t.Fatalf("expected unsupported hijacker error, got %v", err)
	}

	h := &hijackableRecorder{ResponseRecorder: httptest.NewRecorder()}
	rw = &responseWriter{ResponseWriter: h}
	conn, buf, err := rw.Hijack()
	if err != nil {
		t.Fatalf("expected successful hijack, got %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("close hijacked conn: %v", err)
	}
	if err := h.CloseClient(); err != nil {
		t.Fatalf("close hijacked client: %v", err)
	}
	if buf == nil {
		t.Fatal("expected buf to be non-nil")
	}
}

// --- helpers/fakes ---

type fakeIDGen struct {
	n atomic.Int64
}

func (f *fakeIDGen) NewID() (string, error) {
	return fmt.Sprintf("item-%d", f.n.Add(1)), nil
}

type brokenStore struct{}

func (brokenStore) IsEligibleForFetch(context.Context, string) (bool, error) {
	return false, errors.New("dial tcp: connection refused")
}

func (brokenStore) Insert(context.Context, crawler.InsertRequest) (crawler.QueueItem, error) {
	return crawler.QueueItem{}, errors.New("dial tcp: connection refused")
}

func (brokenStore) MarkFetched(context.Context, string, time.Time) error {
	return errors.New("dial tcp: connection refused")
}

func (brokenStore) Close() {}

type hijackableRecorder struct {
	*httptest.ResponseRecorder
	client net.Conn
}

func (h *hijackableRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	server, client := net.Pipe()
	h.client = client
	return server, bufio.NewReadWriter(bufio.NewReader(client), bufio.NewWriter(client)), nil
}

func (h *hijackableRecorder) CloseClient() error {
	if h.client != nil {
		if err := h.client.Close(); err != nil {
			return fmt.Errorf("close hijacker client: %w", err)
		}
	}
	return nil
}

func TestServer_RateLimitPerClient(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, config.Config{Server: config.ServerConfig{RateLimitRPS: 0.01, RateLimitBurst: 1}})
	rec := env.do(t, http.MethodGet, "/v1/hosts", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/v1/hosts", "")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "1", rec.Header().Get("Retry-After"))

	req := httptest.NewRequest(http.MethodGet, "/v1/hosts", nil)
	req.Header.Set("X-API-Key", "other-client")
	other := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(other, req)
	require.Equal(t, http.StatusOK, other.Code)

	health := env.do(t, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, health.Code)
}
