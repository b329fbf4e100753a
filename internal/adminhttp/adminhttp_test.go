package adminhttp

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCounter struct{ n int }

func (f fakeCounter) Count() int { return f.n }

func TestHealthzReportsSessionCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	srv := New(reg, fakeCounter{n: 3})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var got HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "ok", got.Status)
	assert.Equal(t, 3, got.SessionCount)
}

func TestHealthzWithNilSessionCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	srv := New(reg, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsEndpointExposesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.ClientConnects.Inc()
	m.SessionsActive.Set(2)

	srv := New(reg, nil)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "dircproxy_client_connects_total 1")
	assert.Contains(t, body, "dircproxy_sessions_active 2")
}

func TestNewMetricsRegistersAdminCommandsVec(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.AdminCommandsTotal.WithLabelValues("STATUS").Inc()

	srv := New(reg, nil)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Contains(t, rec.Body.String(), `dircproxy_admin_commands_total{command="STATUS"} 1`)
}
