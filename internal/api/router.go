package api

import (
	"io"
	"net/http"
	"time"

	"sphere-field/internal/physics"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// EngineInterface defines the simulation engine methods used by the API.
// This interface enables mocking for tests without spinning up the step loop.
// Keep this minimal - only include methods the API layer actually calls.
type EngineInterface interface {
	// Snapshot returns the latest published immutable snapshot
	Snapshot() *physics.Snapshot
	// Respawn replaces the population and returns the placement report
	Respawn(count int, radius, speed physics.Range, policy physics.PlacementPolicy) physics.SpawnReport
	// LastSpawn returns the most recent placement report
	LastSpawn() physics.SpawnReport
	// GridStats returns bucket occupancy
	GridStats() physics.GridStats
	// EventLogStats returns contact log counters
	EventLogStats() physics.EventLogStats
	// Running reports whether the step loop is active
	Running() bool
	// TickRate returns steps per second
	TickRate() int
}

// FrameRenderer draws a snapshot as a PNG image.
type FrameRenderer interface {
	WritePNG(w io.Writer, snap *physics.Snapshot) error
}

// SpawnDefaults fills fields a spawn request leaves out and caps its count.
type SpawnDefaults struct {
	Count    int
	Radius   physics.Range
	Speed    physics.Range
	Policy   physics.PlacementPolicy
	MaxCount int
}

// RouterConfig contains all dependencies needed to construct the HTTP router.
// This struct is designed for dependency injection and testability.
//
// Example usage in tests:
//
//	cfg := api.RouterConfig{
//	    Engine:   fakeEngine,
//	    Renderer: render.NewRenderer(render.Config{Width: 64, Height: 64}),
//	    RateLimitConfig: &api.RateLimitConfig{
//	        RequestsPerSecond: 1000, // High limit for tests
//	        Burst:             1000,
//	    },
//	}
//	router := api.NewRouter(cfg)
//	ts := httptest.NewServer(router)
type RouterConfig struct {
	// Engine is the simulation engine (required)
	Engine EngineInterface

	// Renderer draws /api/frame.png. The route answers 503 when nil.
	Renderer FrameRenderer

	// RateLimiter is an optional pre-configured rate limiter.
	// If nil, a new one will be created using RateLimitConfig.
	RateLimiter *IPRateLimiter

	// RateLimitConfig is optional configuration for the rate limiter.
	// Only used if RateLimiter is nil. If both are nil, uses DefaultRateLimitConfig.
	RateLimitConfig *RateLimitConfig

	// SpawnRateLimiter and SpawnRateLimitConfig give POST /api/spawn its own
	// budget on top of the general one, resolved the same way. If both are
	// nil, uses DefaultSpawnRateLimitConfig.
	SpawnRateLimiter     *IPRateLimiter
	SpawnRateLimitConfig *RateLimitConfig

	// Origins controls CORS. If nil, only localhost is allowed.
	Origins *OriginPolicy

	// Auth guards POST /api/spawn. If nil, the route is open.
	Auth *TokenAuth

	// Spawn holds defaults and the count cap for POST /api/spawn.
	Spawn SpawnDefaults

	// DisableLogging disables the request logger middleware (useful for benchmarks).
	DisableLogging bool
}

// routerHandlers holds the handler functions for the router.
type routerHandlers struct {
	engine       EngineInterface
	renderer     FrameRenderer
	rateLimiter  *IPRateLimiter
	spawnLimiter *IPRateLimiter
	spawn        SpawnDefaults
}

// limiterFor returns l, or a new limiter from cfg, or one from def.
func limiterFor(l *IPRateLimiter, cfg *RateLimitConfig, def RateLimitConfig) *IPRateLimiter {
	if l != nil {
		return l
	}
	if cfg != nil {
		def = *cfg
	}
	return NewIPRateLimiter(def)
}

// NewRouter constructs the HTTP router with all middleware and routes.
//
// IMPORTANT: This function starts no listeners and no background workers
// beyond the rate limiter's cleanup loop, so it is safe to use in tests
// with httptest.NewServer.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Middleware - Order matters!
	if !cfg.DisableLogging {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)
	r.Use(metricsMiddleware)

	// Rate limiting (BEFORE CORS to reject early and save CPU)
	rateLimiter := limiterFor(cfg.RateLimiter, cfg.RateLimitConfig, DefaultRateLimitConfig)
	spawnLimiter := limiterFor(cfg.SpawnRateLimiter, cfg.SpawnRateLimitConfig, DefaultSpawnRateLimitConfig)
	r.Use(rateLimiter.Middleware)

	// CORS configuration
	origins := cfg.Origins
	if origins == nil {
		origins = NewOriginPolicy(nil)
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins.CORSOrigins(),
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", AdminTokenHeader},
		MaxAge:         300,
	}))

	h := &routerHandlers{
		engine:       cfg.Engine,
		renderer:     cfg.Renderer,
		rateLimiter:  rateLimiter,
		spawnLimiter: spawnLimiter,
		spawn:        cfg.Spawn,
	}

	r.Route("/api", func(r chi.Router) {
		// Observation
		r.Get("/state", h.handleGetState)
		r.Get("/stats", h.handleGetStats)
		r.Get("/frame.png", h.handleGetFrame)

		// Population control
		r.Group(func(r chi.Router) {
			if cfg.Auth != nil {
				r.Use(cfg.Auth.Middleware)
			}
			r.Use(spawnLimiter.Middleware)
			r.Post("/spawn", h.handleSpawn)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"status": "ok", "running": h.engine.Running()})
	})

	return r
}

// metricsMiddleware records latency and status per route pattern.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		endpoint := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				endpoint = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		RecordRequest(r.Method, endpoint, status, time.Since(start))
	})
}
