package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
)

// ServerConfig carries the server-level settings on top of the router's.
type ServerConfig struct {
	Router   RouterConfig
	StreamHz int
}

// Server is the HTTP API server with WebSocket support.
// It combines the HTTP router with WebSocket hub for real-time updates.
type Server struct {
	engine      EngineInterface
	router      *chi.Mux
	wsHub       *WebSocketHub
	rateLimiter *IPRateLimiter
	spawnLimit  *IPRateLimiter
	streamHz    int

	mu         sync.Mutex
	httpServer *http.Server
}

// NewServer creates the API server.
//
// IMPORTANT: Background workers do NOT start until Start() is called.
// This enables testing by allowing the server to be constructed without
// starting goroutines or opening network listeners.
//
// For testing HTTP endpoints without WebSocket support, use NewRouter() directly.
func NewServer(cfg ServerConfig) *Server {
	rc := cfg.Router

	// Limiters are created here so Shutdown can stop their sweeps.
	rc.RateLimiter = limiterFor(rc.RateLimiter, rc.RateLimitConfig, DefaultRateLimitConfig)
	rc.SpawnRateLimiter = limiterFor(rc.SpawnRateLimiter, rc.SpawnRateLimitConfig, DefaultSpawnRateLimitConfig)

	s := &Server{
		engine:      rc.Engine,
		wsHub:       NewWebSocketHub(rc.Origins),
		rateLimiter: rc.RateLimiter,
		spawnLimit:  rc.SpawnRateLimiter,
		streamHz:    cfg.StreamHz,
	}
	s.router = NewRouter(rc)

	// Add WebSocket routes (these need the wsHub instance)
	s.router.Get("/ws", s.wsHub.HandleWebSocket)

	return s
}

// StartBackground starts the hub and the snapshot broadcast loop without
// opening a listener. Start calls it; tests call it with httptest.
func (s *Server) StartBackground() {
	s.wsHub.Start()
	s.wsHub.StartBroadcastLoop(s.engine, s.streamHz)
}

// Start begins the HTTP server AND starts background workers. It blocks
// until the listener fails or Shutdown is called.
func (s *Server) Start(addr string) error {
	s.StartBackground()

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.mu.Lock()
	s.httpServer = srv
	s.mu.Unlock()

	log.Printf("🌐 API server starting on %s", addr)
	log.Printf("   - state:  http://localhost%s/api/state", addr)
	log.Printf("   - frame:  http://localhost%s/api/frame.png", addr)
	log.Printf("   - stream: ws://localhost%s/ws", addr)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Router returns the HTTP handler for use with httptest.
// Use this in integration tests instead of calling Start().
//
// Example:
//
//	server := api.NewServer(cfg)
//	ts := httptest.NewServer(server.Router())
//	defer ts.Close()
//	resp, _ := http.Get(ts.URL + "/api/state")
func (s *Server) Router() http.Handler {
	return s.router
}

// Hub returns the WebSocket hub.
func (s *Server) Hub() *WebSocketHub {
	return s.wsHub
}

// Shutdown stops the listener, closes WebSocket clients and stops
// background workers.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()

	var err error
	if srv != nil {
		err = srv.Shutdown(ctx)
	}
	s.wsHub.Stop()
	s.rateLimiter.Stop()
	s.spawnLimit.Stop()
	return err
}
