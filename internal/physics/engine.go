package physics

import (
	"log"
	"sync"
	"time"
)

// DefaultTickRate is the engine step frequency when none is given.
const DefaultTickRate = 60

// EngineConfig controls the engine loop.
type EngineConfig struct {
	TickRate int
	// CountIntersections adds the overlapping pair count to every
	// published snapshot.
	CountIntersections bool
}

// Engine drives a Simulation from a ticker and publishes a snapshot after
// every step.
type Engine struct {
	mu       sync.Mutex
	sim      *Simulation
	cfg      EngineConfig
	running  bool
	ticker   *time.Ticker
	stopChan chan struct{}
	loopWg   sync.WaitGroup

	snapshots *SnapshotStore
	eventLog  *EventLog

	// OnStep, when set, is called from the loop goroutine after each step.
	OnStep func(StepStats, *Snapshot)
}

// NewEngine wraps sim. sim stays owned by the caller.
func NewEngine(sim *Simulation, cfg EngineConfig) *Engine {
	if cfg.TickRate <= 0 {
		cfg.TickRate = DefaultTickRate
	}
	e := &Engine{
		sim:       sim,
		cfg:       cfg,
		snapshots: NewSnapshotStore(),
	}
	e.snapshots.Publish(sim.Capture(cfg.CountIntersections))
	return e
}

// Simulation returns the wrapped simulation.
func (e *Engine) Simulation() *Simulation { return e.sim }

// TickRate returns the configured steps per second.
func (e *Engine) TickRate() int { return e.cfg.TickRate }

// Start begins the step loop. Calling it on a running engine does nothing.
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return
	}
	e.running = true
	e.stopChan = make(chan struct{})
	e.ticker = time.NewTicker(time.Second / time.Duration(e.cfg.TickRate))

	e.loopWg.Add(1)
	go e.loop(e.ticker, e.stopChan)

	log.Printf("🎮 Engine started at %d TPS", e.cfg.TickRate)
}

// Stop ends the loop and waits for the tick in progress.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	e.ticker.Stop()
	close(e.stopChan)
	e.mu.Unlock()

	e.loopWg.Wait()
	log.Println("🛑 Engine stopped")
}

// Running reports whether the loop is active.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

func (e *Engine) loop(ticker *time.Ticker, stop <-chan struct{}) {
	defer e.loopWg.Done()
	for {
		select {
		case <-ticker.C:
			e.Tick()
		case <-stop:
			return
		}
	}
}

// Tick runs one step of 1/TickRate seconds and publishes the result.
func (e *Engine) Tick() StepStats {
	stats := e.sim.Step(1 / float32(e.cfg.TickRate))
	snap := e.sim.Capture(e.cfg.CountIntersections)
	e.snapshots.Publish(snap)
	if e.OnStep != nil {
		e.OnStep(stats, snap)
	}
	return stats
}

// Snapshot returns the latest published snapshot without locking.
func (e *Engine) Snapshot() *Snapshot {
	return e.snapshots.Load()
}

// Respawn replaces the population and publishes a fresh snapshot.
func (e *Engine) Respawn(count int, radius, speed Range, policy PlacementPolicy) SpawnReport {
	e.sim.Spawn(count, radius, speed, policy)
	e.snapshots.Publish(e.sim.Capture(e.cfg.CountIntersections))
	return e.sim.LastSpawn()
}

// LastSpawn returns the report of the most recent respawn.
func (e *Engine) LastSpawn() SpawnReport { return e.sim.LastSpawn() }

// GridStats returns bucket occupancy of the current grid.
func (e *Engine) GridStats() GridStats { return e.sim.GridStats() }

// StartEventLog attaches a contact log writing to filePath.
func (e *Engine) StartEventLog(filePath string, eventsPerSec int) error {
	el := NewEventLog(eventsPerSec)
	if err := el.Start(filePath); err != nil {
		return err
	}
	e.mu.Lock()
	e.eventLog = el
	e.mu.Unlock()
	e.sim.SetEventLog(el)
	log.Printf("📝 Contact log writing to %q", filePath)
	return nil
}

// StopEventLog detaches and flushes the contact log.
func (e *Engine) StopEventLog() {
	e.mu.Lock()
	el := e.eventLog
	e.eventLog = nil
	e.mu.Unlock()
	if el == nil {
		return
	}
	e.sim.SetEventLog(nil)
	el.Stop()
}

// EventLogStats returns contact log counters, zero when no log is attached.
func (e *Engine) EventLogStats() EventLogStats {
	e.mu.Lock()
	el := e.eventLog
	e.mu.Unlock()
	return el.Stats()
}
