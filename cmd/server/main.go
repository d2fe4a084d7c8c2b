package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sphere-field/internal/api"
	"sphere-field/internal/config"
	"sphere-field/internal/physics"
	"sphere-field/internal/render"

	"github.com/joho/godotenv"
)

func main() {
	// Load .env file from parent directory
	if err := godotenv.Load("../.env"); err != nil {
		// Try current directory as fallback
		if err := godotenv.Load(".env"); err != nil {
			log.Println("💡 No .env file found, using environment variables only")
		}
	} else {
		log.Println("✅ Loaded environment from ../.env")
	}

	log.Println("🎮 ================================")
	log.Println("🎮  SPHERE FIELD - GO ENGINE")
	log.Println("🎮  CCD circles on a bucket grid")
	log.Println("🎮 ================================")

	// Load centralized configuration (defaults, SIM_CONFIG file, env)
	appConfig, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Configuration error: %v", err)
	}
	worldCfg := appConfig.World
	simCfg := appConfig.Simulation
	spawnCfg := appConfig.Spawn
	serverCfg := appConfig.Server
	obsCfg := appConfig.Observability

	policy, err := physics.ParsePlacementPolicy(spawnCfg.Policy)
	if err != nil {
		log.Fatalf("❌ Configuration error: %v", err)
	}

	log.Printf("🗺️ World: %gx%g units, %dx%d cells", worldCfg.Width, worldCfg.Height, worldCfg.Columns, worldCfg.Rows)
	log.Printf("🎮 Config: %d TPS, %d workers, %d max bounces, body collisions %v",
		simCfg.TickRate, simCfg.Workers, simCfg.MaxBounces, simCfg.BodyCollisions)

	sim := physics.NewSimulation(physics.Config{
		Workers:              simCfg.Workers,
		MaxRadius:            max(simCfg.MaxRadius, spawnCfg.MaxRadius),
		MaxBounces:           simCfg.MaxBounces,
		BodyCollisions:       simCfg.BodyCollisions,
		MaxPlacementAttempts: simCfg.MaxPlacementAttempts,
		Seed:                 simCfg.Seed,
	})

	if err := sim.Configure(worldCfg.Width, worldCfg.Height, worldCfg.Rows, worldCfg.Columns); err != nil {
		var cfgErr *physics.ConfigError
		if !errors.As(err, &cfgErr) {
			log.Fatalf("❌ Configure failed: %v", err)
		}
		// Undersized cells: keep running, detection may miss contacts.
		log.Printf("⚠️ Running degraded: %v", cfgErr)
	}

	radius := physics.Range{Min: spawnCfg.MinRadius, Max: spawnCfg.MaxRadius}
	speed := physics.Range{Min: spawnCfg.MinSpeed, Max: spawnCfg.MaxSpeed}
	placed := sim.Spawn(spawnCfg.Count, radius, speed, policy)
	report := sim.LastSpawn()
	log.Printf("✅ Spawned %d/%d bodies (%s, %d exhausted) in %v",
		placed, spawnCfg.Count, policy, report.Exhausted, report.Duration)

	engine := physics.NewEngine(sim, physics.EngineConfig{
		TickRate:           simCfg.TickRate,
		CountIntersections: simCfg.CountIntersections,
	})
	engine.OnStep = func(stats physics.StepStats, snap *physics.Snapshot) {
		api.RecordStep(stats)
		api.UpdateIntersections(snap.Intersections)
	}

	// Start contact log
	if obsCfg.EventLogPath != "" {
		if err := engine.StartEventLog(obsCfg.EventLogPath, obsCfg.EventsPerSecond); err != nil {
			log.Printf("⚠️ Contact log disabled: %v", err)
		}
	}

	// Start debug server
	debugSrv := api.StartDebugServer(api.ObservabilityConfig{
		Enabled:       obsCfg.DebugEnabled,
		ListenAddr:    obsCfg.DebugAddr,
		BasicAuthUser: obsCfg.DebugUser,
		BasicAuthPass: obsCfg.DebugPassword,
	})

	server := api.NewServer(api.ServerConfig{
		Router: api.RouterConfig{
			Engine:   engine,
			Renderer: render.NewFrameCache(render.NewRenderer(render.Config{Width: serverCfg.FrameWidth, Height: serverCfg.FrameHeight}), 0),
			RateLimitConfig: &api.RateLimitConfig{
				Name:              "api",
				RequestsPerSecond: serverCfg.RateLimit,
				Burst:             serverCfg.RateBurst,
				CleanupInterval:   5 * time.Minute,
			},
			SpawnRateLimitConfig: &api.RateLimitConfig{
				Name:              "spawn",
				RequestsPerSecond: serverCfg.SpawnRate,
				Burst:             serverCfg.SpawnBurst,
				CleanupInterval:   5 * time.Minute,
			},
			Origins: api.NewOriginPolicy(serverCfg.AllowedOrigins),
			Auth:    api.NewTokenAuth(serverCfg.AdminToken),
			Spawn: api.SpawnDefaults{
				Count:    spawnCfg.Count,
				Radius:   radius,
				Speed:    speed,
				Policy:   policy,
				MaxCount: serverCfg.MaxSpawn,
			},
		},
		StreamHz: serverCfg.StreamHz,
	})

	// Start simulation engine
	engine.Start()

	// Mirror contact log counters into metrics
	stopMetrics := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				api.UpdateEventLogStats(engine.EventLogStats())
			case <-stopMetrics:
				return
			}
		}
	}()

	// Start API server in goroutine
	go func() {
		if err := server.Start(fmt.Sprintf(":%d", serverCfg.Port)); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	log.Println("✅ Server ready! Press Ctrl+C to stop.")
	<-quit

	log.Println("🛑 Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("⚠️ API server shutdown: %v", err)
	}
	if debugSrv != nil {
		debugSrv.Shutdown(ctx)
	}
	close(stopMetrics)
	engine.Stop()
	engine.StopEventLog()
	sim.Shutdown()
	log.Println("👋 Goodbye!")
}
