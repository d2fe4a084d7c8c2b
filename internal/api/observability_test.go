package api

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"sphere-field/internal/physics"
)

func TestIsLoopback(t *testing.T) {
	tests := []struct {
		addr string
		want bool
	}{
		{"127.0.0.1:6060", true},
		{"localhost:9000", true},
		{"[::1]:6060", true},
		{"0.0.0.0:6060", false},
		{":6060", false},
		{"10.0.0.5:6060", false},
		{"garbage", false},
	}
	for _, tt := range tests {
		if got := isLoopback(tt.addr); got != tt.want {
			t.Errorf("isLoopback(%q) = %v, want %v", tt.addr, got, tt.want)
		}
	}
}

func TestDebugHandler(t *testing.T) {
	RecordStep(physics.StepStats{Bodies: 3, BoundaryHits: 2, Exchanges: 1})
	UpdateIntersections(4)
	UpdateEventLogStats(physics.EventLogStats{Total: 10, Dropped: 1})

	ts := httptest.NewServer(DebugHandler(DefaultObservabilityConfig()))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(body) != "OK" {
		t.Errorf("health = %d %q", resp.StatusCode, body)
	}

	resp, err = http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	for _, name := range []string{
		"sim_step_duration_seconds",
		"sim_body_count 3",
		"sim_intersection_count 4",
		`sim_step_events_total{kind="boundary"}`,
		"event_log_dropped 1",
	} {
		if !strings.Contains(string(body), name) {
			t.Errorf("metrics output missing %q", name)
		}
	}
}

func TestDebugHandlerBasicAuth(t *testing.T) {
	cfg := DefaultObservabilityConfig()
	cfg.BasicAuthUser, cfg.BasicAuthPass = "ops", "pw"
	ts := httptest.NewServer(DebugHandler(cfg))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("no credentials: status = %d, want 401", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/health", nil)
	req.SetBasicAuth("ops", "pw")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("with credentials: status = %d, want 200", resp.StatusCode)
	}
}

func TestStartDebugServerDisabled(t *testing.T) {
	if srv := StartDebugServer(ObservabilityConfig{Enabled: false}); srv != nil {
		t.Errorf("disabled debug server returned %v", srv)
	}
}

func TestRateLimiterCleanup(t *testing.T) {
	rl := NewIPRateLimiter(RateLimitConfig{RequestsPerSecond: 1, Burst: 1, CleanupInterval: time.Minute})
	defer rl.Stop()

	rl.Allow("10.0.0.1")
	rl.Allow("10.0.0.1")
	rl.Allow("10.0.0.2")
	st := rl.Stats()
	if st.Allowed != 2 || st.Rejected != 1 || st.Clients != 2 {
		t.Fatalf("stats = %+v", st)
	}

	rl.cleanup(time.Now().Add(3 * time.Minute))
	if st := rl.Stats(); st.Clients != 0 {
		t.Errorf("clients after cleanup = %d, want 0", st.Clients)
	}
}

func TestConnLimiter(t *testing.T) {
	l := NewConnLimiter(3, 2)
	for i := 0; i < 2; i++ {
		if _, ok := l.Acquire("a"); !ok {
			t.Fatalf("connection %d from a rejected", i)
		}
	}
	if reason, ok := l.Acquire("a"); ok || reason != RejectPerIP {
		t.Errorf("third from a = %q, %v; want per-IP rejection", reason, ok)
	}
	if _, ok := l.Acquire("b"); !ok {
		t.Error("first from b rejected")
	}
	if reason, ok := l.Acquire("c"); ok || reason != RejectTotal {
		t.Errorf("fourth overall = %q, %v; want total rejection", reason, ok)
	}

	l.Release("a")
	l.Release("b")
	if got := l.ConnectionCount("a"); got != 1 {
		t.Errorf("a after release = %d, want 1", got)
	}
	if got := l.ConnectionCount("b"); got != 0 {
		t.Errorf("b after release = %d, want 0", got)
	}
	if l.Active() != 1 || l.Rejected() != 2 {
		t.Errorf("active = %d rejected = %d, want 1 and 2", l.Active(), l.Rejected())
	}

	// A stray release must not drive the counts negative.
	l.Release("nobody")
	if l.Active() != 1 {
		t.Errorf("active after stray release = %d", l.Active())
	}
}

func TestRetryAfterSeconds(t *testing.T) {
	tests := []struct {
		rps  float64
		want string
	}{
		{20, "1"},
		{1, "1"},
		{0.5, "2"},
		{0.2, "5"},
		{0, "60"},
	}
	for _, tt := range tests {
		if got := retryAfterSeconds(tt.rps); got != tt.want {
			t.Errorf("retryAfterSeconds(%g) = %q, want %q", tt.rps, got, tt.want)
		}
	}
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name   string
		header http.Header
		remote string
		want   string
	}{
		{"remote addr", nil, "192.0.2.1:1234", "192.0.2.1"},
		{"forwarded first hop", http.Header{"X-Forwarded-For": {"203.0.113.9, 10.0.0.1"}}, "10.0.0.1:80", "203.0.113.9"},
		{"real ip", http.Header{"X-Real-Ip": {" 198.51.100.7 "}}, "10.0.0.1:80", "198.51.100.7"},
		{"bad remote", nil, "nonsense", "nonsense"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.header {
				r.Header[k] = v
			}
			if got := GetClientIP(r); got != tt.want {
				t.Errorf("GetClientIP = %q, want %q", got, tt.want)
			}
		})
	}
}
