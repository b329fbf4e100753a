// Package adminhttp is the bouncer's read-only observability surface: a
// /healthz liveness probe and a /metrics Prometheus scrape endpoint. It
// never drives IRC behavior — only reads the Registry and Metrics state
// other packages already maintain (spec.md §4.3's ambient stack, "metrics
// should never gate forwarding decisions").
package adminhttp

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the counters/gauges the bouncer's session and proxy
// lifecycle feed. All registration happens once, at construction; callers
// increment through the returned handles.
type Metrics struct {
	SessionsActive    prometheus.Gauge
	SessionsAttached  prometheus.Gauge
	ClientConnects    prometheus.Counter
	ServerReconnects  prometheus.Counter
	DCCProxiesOpen    prometheus.Gauge
	DCCBytesRelayed   prometheus.Counter
	LogLinesAppended  prometheus.Counter
	AdminCommandsTotal *prometheus.CounterVec
}

// NewMetrics registers every collector against reg. Pass
// prometheus.NewRegistry() for an isolated registry in tests, or
// prometheus.DefaultRegisterer in production.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "dircproxy_sessions_active",
			Help: "Number of sessions with an ACTIVE server connection.",
		}),
		SessionsAttached: factory.NewGauge(prometheus.GaugeOpts{
			Name: "dircproxy_sessions_attached",
			Help: "Number of sessions currently holding a client socket.",
		}),
		ClientConnects: factory.NewCounter(prometheus.CounterOpts{
			Name: "dircproxy_client_connects_total",
			Help: "Total client TCP connections accepted.",
		}),
		ServerReconnects: factory.NewCounter(prometheus.CounterOpts{
			Name: "dircproxy_server_reconnects_total",
			Help: "Total server reconnection attempts started.",
		}),
		DCCProxiesOpen: factory.NewGauge(prometheus.GaugeOpts{
			Name: "dircproxy_dcc_proxies_open",
			Help: "Number of currently open DCC CHAT/SEND proxies.",
		}),
		DCCBytesRelayed: factory.NewCounter(prometheus.CounterOpts{
			Name: "dircproxy_dcc_bytes_relayed_total",
			Help: "Total bytes relayed across all DCC proxies.",
		}),
		LogLinesAppended: factory.NewCounter(prometheus.CounterOpts{
			Name: "dircproxy_log_lines_appended_total",
			Help: "Total lines appended across all session log files.",
		}),
		AdminCommandsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dircproxy_admin_commands_total",
			Help: "Total /DIRCPROXY admin commands dispatched, by command name.",
		}, []string{"command"}),
	}
}

// HealthStatus is the JSON body served at /healthz.
type HealthStatus struct {
	Status       string    `json:"status"`
	StartedAt    time.Time `json:"started_at"`
	Uptime       string    `json:"uptime"`
	SessionCount int       `json:"session_count"`
}

// SessionCounter is satisfied by bouncer.Registry; kept narrow here so
// this package never imports bouncer (it would be the only consumer of
// an HTTP-specific dependency, and bouncer must stay socket/protocol
// agnostic per its own package doc).
type SessionCounter interface {
	Count() int
}

// Server wraps the mux.Router serving /healthz and /metrics.
type Server struct {
	router    *mux.Router
	startedAt time.Time
	sessions  SessionCounter
}

// New builds the router. sessions may be nil if the caller has no
// registry yet (session_count will always read 0).
func New(reg prometheus.Gatherer, sessions SessionCounter) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		startedAt: time.Now(),
		sessions:  sessions,
	}
	s.router.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	count := 0
	if s.sessions != nil {
		count = s.sessions.Count()
	}
	status := HealthStatus{
		Status:       "ok",
		StartedAt:    s.startedAt,
		Uptime:       time.Since(s.startedAt).String(),
		SessionCount: count,
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(status)
}
