package api

import (
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"time"

	"sphere-field/internal/physics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics with bounded cardinality (no per-body labels)
var (
	// Simulation metrics
	stepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sim_step_duration_seconds",
		Help:    "Time spent in one simulation step",
		Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05},
	})

	renderDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sim_render_duration_seconds",
		Help:    "Time spent rendering a PNG frame",
		Buckets: []float64{0.005, 0.01, 0.02, 0.033, 0.05, 0.1},
	})

	bodyCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sim_body_count",
		Help: "Current number of bodies",
	})

	intersectionCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sim_intersection_count",
		Help: "Overlapping body pairs after the last step",
	})

	stepTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sim_steps_total",
		Help: "Simulation steps executed",
	})

	// Per-step outcomes, one label value per outcome kind
	stepEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sim_step_events_total",
		Help: "Collision outcomes counted by the pipeline",
	}, []string{"kind"}) // Bounded: "boundary", "contact", "exchange", "degenerate", "fault"

	// Contact log metrics, mirrored from the log's own counters
	eventLogTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "event_log_events",
		Help: "Contact events accepted by the log since start",
	})

	eventLogDropped = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "event_log_dropped",
		Help: "Contact events dropped by rate limiting or a full buffer",
	})

	// DoS detection metrics - use ONLY bounded label values
	connectionRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "connection_rejected_total",
		Help: "Connections rejected by rate limiter or origin check",
	}, []string{"reason"}) // Bounded: "rate_limit", "origin", "auth", "ws_total_limit", "ws_ip_limit"

	// HTTP metrics with bounded labels
	requestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint"}) // endpoint is the route pattern, not the URL

	requestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "endpoint", "status"})

	// WebSocket metrics
	wsConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "websocket_connections_active",
		Help: "Currently active WebSocket connections",
	})

	wsMessagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "websocket_messages_total",
		Help: "Total WebSocket messages sent",
	})
)

// ObservabilityConfig configures the debug server
type ObservabilityConfig struct {
	Enabled       bool
	ListenAddr    string // must resolve to a loopback host unless ALLOW_DEBUG_EXTERNAL=true
	BasicAuthUser string // Optional basic auth
	BasicAuthPass string
}

// DefaultObservabilityConfig returns safe defaults
func DefaultObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		Enabled:    true,
		ListenAddr: "127.0.0.1:6060", // Localhost only - NEVER expose externally
	}
}

// isLoopback reports whether addr binds to a loopback host.
func isLoopback(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// DebugHandler builds the debug mux: pprof, Prometheus metrics and health.
func DebugHandler(cfg ObservabilityConfig) http.Handler {
	mux := http.NewServeMux()

	// pprof endpoints for profiling
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	// Prometheus metrics endpoint
	mux.Handle("/metrics", promhttp.Handler())

	// Health check
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Optional basic auth wrapper
	var handler http.Handler = mux
	if cfg.BasicAuthUser != "" {
		handler = basicAuthMiddleware(cfg.BasicAuthUser, cfg.BasicAuthPass, mux)
	}
	return handler
}

// StartDebugServer starts the internal observability server.
// CRITICAL: This MUST bind to localhost only to prevent pprof-based DoS.
// The returned server is nil when the debug server is disabled.
func StartDebugServer(cfg ObservabilityConfig) *http.Server {
	if !cfg.Enabled {
		log.Println("📊 Debug server disabled")
		return nil
	}

	// SECURITY: Validate address is localhost
	if !isLoopback(cfg.ListenAddr) {
		// Only allow external binding if explicitly enabled via env
		if os.Getenv("ALLOW_DEBUG_EXTERNAL") != "true" {
			log.Printf("⚠️ Debug server forced to localhost for security (asked for %q)", cfg.ListenAddr)
			cfg.ListenAddr = "127.0.0.1:6060"
		}
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           DebugHandler(cfg),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("📊 Debug server starting on %s", cfg.ListenAddr)
		log.Printf("   - pprof:   http://%s/debug/pprof/", cfg.ListenAddr)
		log.Printf("   - metrics: http://%s/metrics", cfg.ListenAddr)

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("⚠️ Debug server error: %v", err)
		}
	}()

	return srv
}

// basicAuthMiddleware adds basic authentication to the handler
func basicAuthMiddleware(user, pass string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, user) || !secureCompare(p, pass) {
			w.Header().Set("WWW-Authenticate", `Basic realm="debug"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RecordStep records one pipeline step. Called from the engine loop.
func RecordStep(stats physics.StepStats) {
	stepDuration.Observe(stats.Duration.Seconds())
	stepTotal.Inc()
	bodyCount.Set(float64(stats.Bodies))
	addEvents("boundary", stats.BoundaryHits)
	addEvents("contact", stats.BodyContacts)
	addEvents("exchange", stats.Exchanges)
	addEvents("degenerate", stats.Degenerate)
	addEvents("fault", stats.Faults)
}

func addEvents(kind string, n int) {
	if n > 0 {
		stepEvents.WithLabelValues(kind).Add(float64(n))
	}
}

// UpdateIntersections updates the overlapping pair gauge
func UpdateIntersections(count int) {
	intersectionCount.Set(float64(count))
}

// RecordRender records render timing for metrics
func RecordRender(duration time.Duration) {
	renderDuration.Observe(duration.Seconds())
}

// UpdateEventLogStats mirrors the contact log counters
func UpdateEventLogStats(stats physics.EventLogStats) {
	eventLogTotal.Set(float64(stats.Total))
	eventLogDropped.Set(float64(stats.Dropped))
}

// RecordConnectionRejected increments the rejection counter
// reason must be one of: "rate_limit", "origin", "auth", "ws_total_limit", "ws_ip_limit"
func RecordConnectionRejected(reason string) {
	connectionRejected.WithLabelValues(reason).Inc()
}

// RecordRequest records HTTP request metrics
func RecordRequest(method, endpoint string, status int, duration time.Duration) {
	requestLatency.WithLabelValues(method, endpoint).Observe(duration.Seconds())
	requestTotal.WithLabelValues(method, endpoint, http.StatusText(status)).Inc()
}

// UpdateWSConnections updates WebSocket connection count
func UpdateWSConnections(count int) {
	wsConnectionsActive.Set(float64(count))
}

// IncrementWSMessages increments WebSocket message counter
func IncrementWSMessages() {
	wsMessagesTotal.Inc()
}
