package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProbes(t *testing.T) {
	t.Parallel()

	s := New("127.0.0.1:0", nil)
	h := s.Handler()

	tests := []struct {
		name   string
		path   string
		ready  bool
		status int
		body   string
	}{
		{"healthz", "/healthz", false, http.StatusOK, `"ok"`},
		{"readyz before start", "/readyz", false, http.StatusServiceUnavailable, `"starting"`},
		{"readyz when ready", "/readyz", true, http.StatusOK, `"ready"`},
	}
	for _, tc := range tests {
		s.SetReady(tc.ready)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tc.path, nil))
		assert.Equal(t, tc.status, rec.Code, tc.name)
		assert.Contains(t, rec.Body.String(), tc.body, tc.name)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"), tc.name)
	}
}

func TestMetricsRoute(t *testing.T) {
	t.Parallel()

	h := New(":0", nil).Handler()
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `falchooser_http_requests_total{code="200",route="/healthz"}`)
}

func TestRecoverMiddleware(t *testing.T) {
	t.Parallel()

	s := New(":0", nil)
	h := s.recoverMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal server error")
}

func TestStartAndShutdown(t *testing.T) {
	t.Parallel()

	s := New("127.0.0.1:0", nil)
	addr, err := s.Start()
	require.NoError(t, err)
	s.SetReady(true)

	resp, err := http.Get("http://" + addr + "/readyz")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), "ready"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))

	_, err = http.Get("http://" + addr + "/healthz")
	assert.Error(t, err)
}

func TestShutdownWithoutStart(t *testing.T) {
	t.Parallel()

	assert.NoError(t, New(":0", nil).Shutdown(context.Background()))
}

func TestStartRejectsBadAddress(t *testing.T) {
	t.Parallel()

	_, err := New("not-an-address", nil).Start()
	assert.Error(t, err)
}
