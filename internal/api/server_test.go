package api

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-ingest/internal/metrics"
	"github.com/JakeFAU/catalog-ingest/internal/pipeline"
)

type fakeProgress struct{ summary pipeline.Summary }

func (f fakeProgress) Progress() pipeline.Summary { return f.summary }

func serve(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	rec := serve(t, NewServer(nil, zap.NewNop()), "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestReadyzFollowsFlag(t *testing.T) {
	t.Parallel()

	s := NewServer(nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, serve(t, s, "/readyz").Code)
	s.SetReady(true)
	assert.Equal(t, http.StatusOK, serve(t, s, "/readyz").Code)
	s.SetReady(false)
	assert.Equal(t, http.StatusServiceUnavailable, serve(t, s, "/readyz").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	metrics.Init()
	metrics.ObserveBatch("ok", 1)
	rec := serve(t, NewServer(nil, nil), "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "catalog_batch_fetches_total")
}

func TestRunProgress(t *testing.T) {
	t.Parallel()

	s := NewServer(fakeProgress{summary: pipeline.Summary{RunID: "r1", Saved: 4, Duration: 2 * time.Second}}, nil)
	rec := serve(t, s, "/v1/run")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "r1", body["run_id"])
	assert.InDelta(t, 4, body["saved"], 0)
	assert.InDelta(t, 2.0, body["duration_seconds"], 1e-9)

	assert.Equal(t, http.StatusServiceUnavailable, serve(t, NewServer(nil, nil), "/v1/run").Code)
}

func TestRequestIDIsPropagated(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "abc")
	rec := httptest.NewRecorder()
	NewServer(nil, nil).Handler().ServeHTTP(rec, req)
	assert.Equal(t, "abc", rec.Header().Get("X-Request-ID"))
}

func TestServeListenerShutsDownOnCancel(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s := NewServer(nil, nil)
	s.SetReady(true)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.ServeListener(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/readyz")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
