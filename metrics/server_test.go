package metrics

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServer_HealthEndpoint(t *testing.T) {
	m := NewMetrics()
	s := NewServer(m, 0)

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(w, req)

	assert.Equal(t, 200, w.Code)
	assert.Equal(t, "OK", w.Body.String())
}

func TestServer_ReadyEndpointNotReadyBeforeUptime(t *testing.T) {
	m := &Metrics{ErrorCounts: make(map[string]uint64), startTime: time.Now()}
	s := NewServer(m, 0)

	req := httptest.NewRequest("GET", "/ready", nil)
	w := httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(w, req)

	assert.Equal(t, 503, w.Code)
}

func TestServer_MetricsEndpointReturnsJSON(t *testing.T) {
	m := &Metrics{ErrorCounts: make(map[string]uint64)}
	m.RecordJobSent()
	s := NewServer(m, 0)

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(w, req)

	require.Equal(t, 200, w.Code)
	assert.Contains(t, w.Body.String(), "jobs_sent")
}
