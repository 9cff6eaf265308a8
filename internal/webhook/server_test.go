package webhook

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"asanagram/internal/engine"
	"asanagram/internal/metrics"
	logx "asanagram/pkg/logx"
)

type fakeSubmitter struct {
	mu      sync.Mutex
	batches [][]engine.Event
	ids     []string
	err     error
}

func (f *fakeSubmitter) Submit(id string, events []engine.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.ids = append(f.ids, id)
	f.batches = append(f.batches, events)
	return nil
}

const batchBody = `{"events":[{"action":"changed","resource":{"gid":"T1","resource_type":"task"},"user":{"gid":"U1","resource_type":"user"},"change":{"field":"name","action":"changed"},"created_at":"2026-01-01T00:00:00Z"}]}`

func post(t *testing.T, h http.Handler, body string, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandshakeAdoptsSecret(t *testing.T) {
	t.Parallel()
	sub := &fakeSubmitter{}
	m := metrics.New()
	s := NewServer(Config{AdoptSecret: true}, sub, logx.Nop(), WithMetrics(m))

	rec := post(t, s, "", map[string]string{headerSecret: "s3cret"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "s3cret", rec.Header().Get(headerSecret))
	require.Equal(t, "s3cret", s.Secret())

	rec = post(t, s, batchBody, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = post(t, s, batchBody, map[string]string{headerSignature: Sign("s3cret", []byte(batchBody))})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, sub.batches, 1)
	require.Len(t, sub.batches[0], 1)
	require.Equal(t, "T1", sub.batches[0][0].EntityID)
	require.NotEmpty(t, sub.ids[0])

	mrec := httptest.NewRecorder()
	s.ServeHTTP(mrec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Contains(t, mrec.Body.String(), `asanagram_webhook_requests_total{outcome="handshake"} 1`)
	require.Contains(t, mrec.Body.String(), `asanagram_webhook_requests_total{outcome="unauthorized"} 1`)
}

func TestHandshakeWithoutAdoptionKeepsNoSecret(t *testing.T) {
	t.Parallel()
	sub := &fakeSubmitter{}
	s := NewServer(Config{}, sub, logx.Nop())

	rec := post(t, s, "", map[string]string{headerSecret: "forged"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "forged", rec.Header().Get(headerSecret))
	require.Empty(t, s.Secret())

	rec = post(t, s, batchBody, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, sub.batches, 1)
}

func TestAdoptionHappensOnce(t *testing.T) {
	t.Parallel()
	s := NewServer(Config{AdoptSecret: true}, &fakeSubmitter{}, logx.Nop())
	post(t, s, "", map[string]string{headerSecret: "first"})
	post(t, s, "", map[string]string{headerSecret: "second"})
	require.Equal(t, "first", s.Secret())
}

func TestConfiguredSecretIsKept(t *testing.T) {
	t.Parallel()
	s := NewServer(Config{Secret: "fixed"}, &fakeSubmitter{}, logx.Nop())
	rec := post(t, s, "", map[string]string{headerSecret: "other"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "other", rec.Header().Get(headerSecret))
	require.Equal(t, "fixed", s.Secret())

	rec = post(t, s, batchBody, map[string]string{headerSignature: strings.ToUpper(Sign("fixed", []byte(batchBody)))})
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestUnsignedAcceptedWithoutSecret(t *testing.T) {
	t.Parallel()
	sub := &fakeSubmitter{}
	s := NewServer(Config{}, sub, logx.Nop())
	rec := post(t, s, batchBody, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, sub.batches, 1)
}

func TestBadBodies(t *testing.T) {
	t.Parallel()
	s := NewServer(Config{MaxBodyBytes: 64}, &fakeSubmitter{}, logx.Nop())
	require.Equal(t, http.StatusBadRequest, post(t, s, "not json", nil).Code)
	require.Equal(t, http.StatusRequestEntityTooLarge, post(t, s, batchBody, nil).Code)
}

func TestQueueFullAsksForRedelivery(t *testing.T) {
	t.Parallel()
	s := NewServer(Config{}, &fakeSubmitter{err: engine.ErrQueueFull}, logx.Nop())
	rec := post(t, s, batchBody, nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestStatusEndpoints(t *testing.T) {
	t.Parallel()
	s := NewServer(Config{}, &fakeSubmitter{}, logx.Nop(), WithStatus(func() any { return map[string]int{"pending": 2} }))
	for _, path := range []string{"/", "/health"} {
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusOK, rec.Code, path)

		var out map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
		require.Equal(t, "ok", out["status"])
		require.Equal(t, "asanagram", out["service"])
		require.Contains(t, out, "uptime")
		require.Equal(t, map[string]any{"pending": float64(2)}, out["details"])
	}

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}
