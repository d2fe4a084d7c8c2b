package physics

import (
	"errors"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"sphere-field/internal/geom"

	"github.com/chewxy/math32"
)

// Config holds the tunables of a Simulation.
type Config struct {
	// Workers is the pipeline pool size (<= 0 means NumCPU, capped at
	// MaxWorkers).
	Workers int
	// MaxRadius is the largest body radius the grid must accommodate;
	// Configure checks cell size against it.
	MaxRadius float32
	// MaxBounces bounds boundary reflections per body per step. 1 applies
	// only the earliest contact.
	MaxBounces int
	// BodyCollisions enables body-body detection and the elastic exchange.
	BodyCollisions bool
	// MaxPlacementAttempts bounds positions tried per body during Spawn.
	MaxPlacementAttempts int
	// Seed seeds placement randomness; 0 seeds from the clock.
	Seed int64
}

// DefaultConfig returns the baseline configuration.
func DefaultConfig() Config {
	return Config{
		Workers:              4,
		MaxRadius:            0.5,
		MaxBounces:           1,
		BodyCollisions:       true,
		MaxPlacementAttempts: 100,
	}
}

// StepStats summarizes one Step.
type StepStats struct {
	Step         uint64        `json:"step"`
	Bodies       int           `json:"bodies"`
	BoundaryHits int           `json:"boundaryHits"`
	BodyContacts int           `json:"bodyContacts"`
	Exchanges    int           `json:"exchanges"`
	Moved        int           `json:"moved"`
	Degenerate   int           `json:"degenerate"`
	Faults       int           `json:"faults"`
	Duration     time.Duration `json:"duration"`
}

// Simulation owns the bodies, the grid and the worker pipeline. Step,
// Configure and Spawn are exclusive; read accessors may run concurrently
// with each other.
type Simulation struct {
	mu sync.RWMutex

	cfg   Config
	store *Store
	grid  *Grid
	dom   domain
	pipe  *pipeline

	rng     *rand.Rand
	rngSeed int64

	stepCount uint64
	lastStats StepStats
	lastSpawn SpawnReport

	events *EventLog
	closed bool
}

// NewSimulation starts the worker pool. The simulation holds no grid until
// Configure is called.
func NewSimulation(cfg Config) *Simulation {
	def := DefaultConfig()
	if cfg.MaxBounces <= 0 {
		cfg.MaxBounces = def.MaxBounces
	}
	if cfg.MaxPlacementAttempts <= 0 {
		cfg.MaxPlacementAttempts = def.MaxPlacementAttempts
	}
	if cfg.MaxRadius < 0 {
		cfg.MaxRadius = 0
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	s := &Simulation{
		cfg:     cfg,
		store:   NewStore(0),
		pipe:    newPipeline(cfg.Workers),
		rng:     rand.New(rand.NewSource(seed)),
		rngSeed: seed,
	}
	s.pipe.start()
	log.Printf("🎮 Simulation started with %d workers (seed %d)", s.pipe.numWorkers, seed)
	return s
}

// Config returns the configuration in effect.
func (s *Simulation) Config() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Workers returns the pipeline pool size.
func (s *Simulation) Workers() int {
	return s.pipe.numWorkers
}

// SetEventLog attaches a contact log. nil detaches it.
func (s *Simulation) SetEventLog(el *EventLog) {
	s.mu.Lock()
	s.events = el
	s.mu.Unlock()
}

// Configure (re)builds the grid over [0,width] x [0,height]. Existing bodies
// are clamped into the new domain and refiled.
//
// Non-positive dimensions return an error and keep the old configuration.
// Cells smaller than twice the largest radius return a *ConfigError, but the
// configuration is applied and the simulation keeps running.
func (s *Simulation) Configure(width, height float32, rows, columns int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrShutdown
	}
	grid, err := NewGrid(width, height, rows, columns, s.store)
	if err != nil {
		return fmt.Errorf("configure: %w", err)
	}

	s.grid = grid
	s.dom = newDomain(width, height)
	s.pipe.partition(columns)

	maxR := s.cfg.MaxRadius
	for i, b := range s.store.bodies {
		b.SetPosition(s.dom.clamp(b.position, b.radius))
		b.cell = -1
		grid.Insert(Handle(i))
		maxR = math32.Max(maxR, b.radius)
	}

	log.Printf("🗺️ Grid configured: %gx%g, %dx%d cells (%.3gx%.3g)",
		width, height, rows, columns, grid.cellWidth, grid.cellHeight)

	if err := checkCellSize(grid.cellWidth, grid.cellHeight, maxR); err != nil {
		log.Printf("⚠️ %v", err)
		return err
	}
	return nil
}

// AddBody files one body at position, clamped into the domain. It does not
// check for overlap.
func (s *Simulation) AddBody(position geom.Vec2, radius float32, velocity geom.Vec2) (Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrShutdown
	}
	if s.grid == nil {
		return 0, ErrNotConfigured
	}
	if radius <= 0 {
		return 0, fmt.Errorf("body radius must be positive, got %g", radius)
	}
	if !s.dom.fits(radius) {
		return 0, fmt.Errorf("radius %g in %gx%g: %w", radius, s.dom.width, s.dom.height, ErrBodyTooLarge)
	}
	b := NewBody(s.dom.clamp(position, radius), radius, velocity)
	h := s.store.Add(b)
	s.grid.Insert(h)
	if radius > s.cfg.MaxRadius {
		if err := checkCellSize(s.grid.cellWidth, s.grid.cellHeight, radius); err != nil {
			log.Printf("⚠️ %v", err)
		}
	}
	return h, nil
}

// Step advances every body by dt seconds and blocks until both pipeline
// barriers have cleared and the elastic exchange has run.
func (s *Simulation) Step(dt float32) StepStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		log.Printf("⚠️ Step called after shutdown, ignoring")
		return StepStats{}
	}
	if s.grid == nil || dt <= 0 {
		return StepStats{Step: s.stepCount, Bodies: s.store.Len()}
	}

	start := time.Now()
	s.stepCount++
	ctx := &stepContext{
		step:           s.stepCount,
		dt:             dt,
		grid:           s.grid,
		store:          s.store,
		dom:            s.dom,
		maxBounces:     s.cfg.MaxBounces,
		bodyCollisions: s.cfg.BodyCollisions,
		events:         s.events,
	}

	stats := s.pipe.run(ctx)
	stats.Step = s.stepCount
	stats.Bodies = s.store.Len()
	stats.Duration = time.Since(start)
	s.lastStats = stats
	return stats
}

// LastStep returns the stats of the most recent Step.
func (s *Simulation) LastStep() StepStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastStats
}

// State returns the pipeline phase.
func (s *Simulation) State() PipelineState {
	return s.pipe.State()
}

// Len returns the number of bodies.
func (s *Simulation) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store.Len()
}

// Bounds returns the domain size, or zeros before Configure.
func (s *Simulation) Bounds() (width, height float32) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dom.width, s.dom.height
}

// ForEachBody calls fn with a copy of every body, in handle order.
func (s *Simulation) ForEachBody(fn func(BodyState)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i, b := range s.store.bodies {
		fn(b.State(Handle(i)))
	}
}

// Body returns a copy of the body h.
func (s *Simulation) Body(h Handle) (BodyState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.store.Valid(h) {
		return BodyState{}, fmt.Errorf("body %d: %w", h, ErrInvalidHandle)
	}
	return s.store.Get(h).State(h), nil
}

// QueryIntersections reports whether h overlaps any other body in its
// 9-cell neighbourhood. Touching counts.
func (s *Simulation) QueryIntersections(h Handle) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.grid == nil || !s.store.Valid(h) {
		return false
	}
	return s.grid.AnyIntersecting(h)
}

// IntersectionCount returns the number of distinct overlapping pairs.
func (s *Simulation) IntersectionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.grid == nil {
		return 0
	}
	n := 0
	for i, b := range s.store.bodies {
		h := Handle(i)
		s.grid.ForEachNeighbor(h, func(o Handle, ob *Body) bool {
			if o > h && b.Intersects(ob) {
				n++
			}
			return false
		})
	}
	return n
}

// GridStats returns bucket occupancy.
func (s *Simulation) GridStats() GridStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.grid == nil {
		return GridStats{}
	}
	return s.grid.Stats()
}

// errInconsistent is wrapped by Validate failures.
var errInconsistent = errors.New("inconsistent simulation state")

// Validate checks that every body is fully inside the domain and filed in
// exactly one bucket, the one its position hashes to.
func (s *Simulation) Validate() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.grid == nil {
		return nil
	}
	members := s.grid.Membership()
	for i, b := range s.store.bodies {
		h := Handle(i)
		cells := members[h]
		if len(cells) != 1 {
			return fmt.Errorf("%w: body %d filed in %d buckets", errInconsistent, h, len(cells))
		}
		if want := s.grid.CellOf(b.position); cells[0] != want {
			return fmt.Errorf("%w: body %d in cell %d, position hashes to %d", errInconsistent, h, cells[0], want)
		}
		if !s.dom.contains(b.position, b.radius) {
			return fmt.Errorf("%w: body %d at %v (r=%g) outside domain", errInconsistent, h, b.position, b.radius)
		}
		delete(members, h)
	}
	if len(members) != 0 {
		return fmt.Errorf("%w: %d stray handles in buckets", errInconsistent, len(members))
	}
	return nil
}

// Shutdown waits for an in-flight step, then stops the workers. Later calls
// are no-ops.
func (s *Simulation) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.pipe.stop()
	log.Println("🛑 Simulation shut down")
}
