package api

import (
	"fmt"
	"log"
	"math"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig is one per-IP token bucket budget.
type RateLimitConfig struct {
	// Name labels rejections in metrics and logs ("api", "spawn").
	Name              string
	RequestsPerSecond float64
	Burst             int
	// CleanupInterval is how often idle clients are forgotten.
	CleanupInterval time.Duration
}

// DefaultRateLimitConfig covers the read endpoints: snapshots, stats and
// frames.
var DefaultRateLimitConfig = RateLimitConfig{
	Name:              "api",
	RequestsPerSecond: 20,
	Burst:             40,
	CleanupInterval:   5 * time.Minute,
}

// DefaultSpawnRateLimitConfig covers POST /api/spawn. A respawn holds the
// simulation lock while it places up to MaxSpawn bodies, stalling the step
// loop, so it gets a budget far below the read endpoints'.
var DefaultSpawnRateLimitConfig = RateLimitConfig{
	Name:              "spawn",
	RequestsPerSecond: 0.2,
	Burst:             2,
	CleanupInterval:   5 * time.Minute,
}

type client struct {
	bucket   *rate.Limiter
	lastSeen atomic.Int64 // unix nanos
}

// IPRateLimiter applies one RateLimitConfig budget to every client IP.
type IPRateLimiter struct {
	cfg        RateLimitConfig
	retryAfter string
	clients    sync.Map // ip -> *client

	stop     chan struct{}
	stopOnce sync.Once

	allowed  atomic.Uint64
	rejected atomic.Uint64
}

// RateLimitStats is exposed through /api/stats.
type RateLimitStats struct {
	Allowed  uint64 `json:"allowed"`
	Rejected uint64 `json:"rejected"`
	Clients  int    `json:"clients"`
}

// NewIPRateLimiter starts the limiter's idle-client sweep; call Stop to end
// it.
func NewIPRateLimiter(cfg RateLimitConfig) *IPRateLimiter {
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = DefaultRateLimitConfig.CleanupInterval
	}
	if cfg.Name == "" {
		cfg.Name = "api"
	}
	rl := &IPRateLimiter{
		cfg:        cfg,
		retryAfter: retryAfterSeconds(cfg.RequestsPerSecond),
		stop:       make(chan struct{}),
	}
	go rl.sweepLoop()
	return rl
}

// retryAfterSeconds is the wait for one token to refill, at least a second.
func retryAfterSeconds(rps float64) string {
	if rps <= 0 {
		return "60"
	}
	return fmt.Sprint(int(math.Max(1, math.Ceil(1/rps))))
}

// Stop ends the idle-client sweep.
func (rl *IPRateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

func (rl *IPRateLimiter) bucket(ip string, now int64) *rate.Limiter {
	if v, ok := rl.clients.Load(ip); ok {
		c := v.(*client)
		c.lastSeen.Store(now)
		return c.bucket
	}
	c := &client{bucket: rate.NewLimiter(rate.Limit(rl.cfg.RequestsPerSecond), rl.cfg.Burst)}
	c.lastSeen.Store(now)
	v, _ := rl.clients.LoadOrStore(ip, c)
	return v.(*client).bucket
}

func (rl *IPRateLimiter) sweepLoop() {
	ticker := time.NewTicker(rl.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-rl.stop:
			return
		case now := <-ticker.C:
			rl.cleanup(now)
		}
	}
}

// cleanup forgets clients idle for two cleanup intervals.
func (rl *IPRateLimiter) cleanup(now time.Time) {
	cutoff := now.Add(-2 * rl.cfg.CleanupInterval).UnixNano()
	rl.clients.Range(func(ip, v any) bool {
		if v.(*client).lastSeen.Load() < cutoff {
			rl.clients.Delete(ip)
		}
		return true
	})
}

// Allow takes one token from ip's bucket.
func (rl *IPRateLimiter) Allow(ip string) bool {
	if !rl.bucket(ip, time.Now().UnixNano()).Allow() {
		rl.rejected.Add(1)
		return false
	}
	rl.allowed.Add(1)
	return true
}

// Middleware answers 429 with a Retry-After matching the budget's refill
// time once a client's bucket is empty.
func (rl *IPRateLimiter) Middleware(next http.Handler) http.Handler {
	reason := "rate_limit_" + rl.cfg.Name
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(GetClientIP(r)) {
			RecordConnectionRejected(reason)
			w.Header().Set("Retry-After", rl.retryAfter)
			http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Stats returns counters and the number of tracked clients.
func (rl *IPRateLimiter) Stats() RateLimitStats {
	st := RateLimitStats{Allowed: rl.allowed.Load(), Rejected: rl.rejected.Load()}
	rl.clients.Range(func(_, _ any) bool {
		st.Clients++
		return true
	})
	return st
}

// forwardHeaders are consulted in order before RemoteAddr. They are only
// trustworthy behind a proxy that overwrites them.
var forwardHeaders = []string{"X-Forwarded-For", "X-Real-IP"}

// GetClientIP returns the first forwarded hop, or the peer address.
func GetClientIP(r *http.Request) string {
	for _, hdr := range forwardHeaders {
		if v := r.Header.Get(hdr); v != "" {
			first, _, _ := strings.Cut(v, ",")
			return strings.TrimSpace(first)
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// ConnLimiter caps concurrent stream connections, overall and per IP.
// A slot is reserved before the upgrade and released when the connection
// ends.
type ConnLimiter struct {
	mu       sync.Mutex
	perIP    map[string]int
	active   int
	maxTotal int
	maxPerIP int

	rejected atomic.Uint64
}

// Connection rejection reasons returned by Acquire.
const (
	RejectTotal = "ws_total_limit"
	RejectPerIP = "ws_ip_limit"
)

// NewConnLimiter creates a limiter. Non-positive caps are unlimited.
func NewConnLimiter(maxTotal, maxPerIP int) *ConnLimiter {
	return &ConnLimiter{perIP: make(map[string]int), maxTotal: maxTotal, maxPerIP: maxPerIP}
}

// Acquire reserves a slot for ip, or returns the reason it cannot.
func (l *ConnLimiter) Acquire(ip string) (reason string, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	switch {
	case l.maxTotal > 0 && l.active >= l.maxTotal:
		reason = RejectTotal
	case l.maxPerIP > 0 && l.perIP[ip] >= l.maxPerIP:
		reason = RejectPerIP
	default:
		l.active++
		l.perIP[ip]++
		return "", true
	}
	l.rejected.Add(1)
	return reason, false
}

// Release frees a slot taken by Acquire.
func (l *ConnLimiter) Release(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	n, ok := l.perIP[ip]
	if !ok {
		log.Printf("⚠️ Connection release for %s without a reserved slot", ip)
		return
	}
	if n <= 1 {
		delete(l.perIP, ip)
	} else {
		l.perIP[ip] = n - 1
	}
	l.active--
}

// Active returns the reserved slot count.
func (l *ConnLimiter) Active() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}

// ConnectionCount returns the slots held by ip.
func (l *ConnLimiter) ConnectionCount(ip string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.perIP[ip]
}

// Rejected returns the number of refused connections.
func (l *ConnLimiter) Rejected() uint64 {
	return l.rejected.Load()
}

// OriginPolicy decides which browser origins may open WebSockets.
// Localhost on any port is always allowed.
type OriginPolicy struct {
	allowed map[string]struct{}
}

// NewOriginPolicy builds a policy from exact origins such as
// "https://example.com". A "*" entry allows every non-empty origin.
func NewOriginPolicy(origins []string) *OriginPolicy {
	p := &OriginPolicy{allowed: make(map[string]struct{}, len(origins))}
	for _, o := range origins {
		if o = strings.TrimRight(strings.TrimSpace(o), "/"); o != "" {
			p.allowed[o] = struct{}{}
		}
	}
	return p
}

// Allowed checks if an origin is permitted
func (p *OriginPolicy) Allowed(origin string) bool {
	if origin == "" {
		return false
	}

	// Allow localhost with any port
	if u, err := url.Parse(origin); err == nil {
		if host := u.Hostname(); host == "localhost" || host == "127.0.0.1" {
			return true
		}
	}

	if _, ok := p.allowed["*"]; ok {
		return true
	}
	_, ok := p.allowed[origin]
	return ok
}

// CORSOrigins returns the configured origins in go-chi/cors form.
func (p *OriginPolicy) CORSOrigins() []string {
	out := []string{"http://localhost:*", "http://127.0.0.1:*"}
	for o := range p.allowed {
		out = append(out, o)
	}
	return out
}
