// =============================================================================
// SPHERE FIELD - RECORDER
// =============================================================================
// Headless batch run with no HTTP surface:
// - Builds the simulation from the same configuration as the server
// - Steps it at a fixed dt as fast as the CPU allows
// - Writes every Nth frame as PNG and optionally a JSONL contact log
// - Checks grid consistency at the end and exits non-zero on failure
//
// USAGE:
//   REC_STEPS=600 REC_FRAME_EVERY=60 REC_OUT_DIR=frames go run ./cmd/recorder
// =============================================================================
package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"sphere-field/internal/config"
	"sphere-field/internal/physics"
	"sphere-field/internal/render"

	"github.com/joho/godotenv"
)

func main() {
	// Load environment
	if err := godotenv.Load("../.env"); err != nil {
		if err := godotenv.Load(".env"); err != nil {
			log.Println("💡 No .env file found, using environment variables only")
		}
	}

	log.Println("================================")
	log.Println("  SPHERE FIELD - RECORDER")
	log.Println("================================")

	appConfig, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Configuration error: %v", err)
	}
	worldCfg := appConfig.World
	simCfg := appConfig.Simulation
	spawnCfg := appConfig.Spawn

	steps := getEnvInt("REC_STEPS", 600)
	frameEvery := getEnvInt("REC_FRAME_EVERY", 60)
	outDir := getEnvWithDefault("REC_OUT_DIR", "frames")

	policy, err := physics.ParsePlacementPolicy(spawnCfg.Policy)
	if err != nil {
		log.Fatalf("❌ Configuration error: %v", err)
	}
	if frameEvery > 0 {
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			log.Fatalf("❌ Output directory: %v", err)
		}
	}

	sim := physics.NewSimulation(physics.Config{
		Workers:              simCfg.Workers,
		MaxRadius:            max(simCfg.MaxRadius, spawnCfg.MaxRadius),
		MaxBounces:           simCfg.MaxBounces,
		BodyCollisions:       simCfg.BodyCollisions,
		MaxPlacementAttempts: simCfg.MaxPlacementAttempts,
		Seed:                 simCfg.Seed,
	})
	defer sim.Shutdown()

	if err := sim.Configure(worldCfg.Width, worldCfg.Height, worldCfg.Rows, worldCfg.Columns); err != nil {
		var cfgErr *physics.ConfigError
		if !errors.As(err, &cfgErr) {
			log.Fatalf("❌ Configure failed: %v", err)
		}
		log.Printf("⚠️ Running degraded: %v", cfgErr)
	}

	var eventLog *physics.EventLog
	if path := appConfig.Observability.EventLogPath; path != "" {
		eventLog = physics.NewEventLog(appConfig.Observability.EventsPerSecond)
		if err := eventLog.Start(path); err != nil {
			log.Printf("⚠️ Contact log disabled: %v", err)
			eventLog = nil
		} else {
			sim.SetEventLog(eventLog)
		}
	}

	placed := sim.Spawn(spawnCfg.Count,
		physics.Range{Min: spawnCfg.MinRadius, Max: spawnCfg.MaxRadius},
		physics.Range{Min: spawnCfg.MinSpeed, Max: spawnCfg.MaxSpeed},
		policy)
	log.Printf("✅ Spawned %d/%d bodies, recording %d steps", placed, spawnCfg.Count, steps)

	renderer := render.NewRenderer(render.Config{
		Width:  appConfig.Server.FrameWidth,
		Height: appConfig.Server.FrameHeight,
	})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	dt := 1 / float32(max(simCfg.TickRate, 1))
	var total physics.StepStats
	frames := 0
	start := time.Now()

loop:
	for i := 1; i <= steps; i++ {
		select {
		case <-quit:
			log.Println("🛑 Interrupted")
			break loop
		default:
		}

		st := sim.Step(dt)
		total.BoundaryHits += st.BoundaryHits
		total.BodyContacts += st.BodyContacts
		total.Exchanges += st.Exchanges
		total.Degenerate += st.Degenerate
		total.Faults += st.Faults
		total.Duration += st.Duration

		if frameEvery > 0 && i%frameEvery == 0 {
			if err := writeFrame(renderer, sim.Capture(true), filepath.Join(outDir, fmt.Sprintf("frame_%06d.png", i))); err != nil {
				log.Printf("⚠️ Frame %d: %v", i, err)
				continue
			}
			frames++
		}
	}

	elapsed := time.Since(start)
	last := sim.LastStep()
	log.Printf("📊 %d steps in %v (%.1f steps/s, %v in pipeline)",
		last.Step, elapsed, float64(last.Step)/elapsed.Seconds(), total.Duration)
	log.Printf("📊 wall hits %d, contacts %d, exchanges %d, degenerate %d, faults %d, frames %d",
		total.BoundaryHits, total.BodyContacts, total.Exchanges, total.Degenerate, total.Faults, frames)
	log.Printf("📊 intersecting pairs at end: %d", sim.IntersectionCount())

	if eventLog != nil {
		sim.SetEventLog(nil)
		eventLog.Stop()
		st := eventLog.Stats()
		log.Printf("📝 Contact log: %d written, %d dropped", st.Written, st.Dropped)
	}

	if err := sim.Validate(); err != nil {
		log.Printf("❌ %v", err)
		sim.Shutdown()
		os.Exit(1)
	}
	log.Println("✅ Grid consistent")
}

func writeFrame(r *render.Renderer, snap *physics.Snapshot, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := r.WritePNG(f, snap); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func getEnvWithDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}
