package physics

import (
	"fmt"
	"log"
	"strings"
	"time"

	"sphere-field/internal/geom"

	"github.com/chewxy/math32"
)

// Range is a closed float interval [Min, Max].
type Range struct {
	Min float32 `json:"min" yaml:"min"`
	Max float32 `json:"max" yaml:"max"`
}

// Normalized returns r with Min <= Max.
func (r Range) Normalized() Range {
	if r.Min > r.Max {
		r.Min, r.Max = r.Max, r.Min
	}
	return r
}

func (r Range) sample(rnd func() float32) float32 {
	return r.Min + rnd()*(r.Max-r.Min)
}

// PlacementPolicy chooses how Spawn finds free positions.
type PlacementPolicy uint8

const (
	// RandomRetry draws uniform positions, tries an overlap correction on a
	// single hit, and gives up after MaxPlacementAttempts draws.
	RandomRetry PlacementPolicy = iota
	// SweepRight walks a cursor left to right, row by row, jumping past
	// every body it runs into.
	SweepRight
)

func (p PlacementPolicy) String() string {
	switch p {
	case RandomRetry:
		return "random"
	case SweepRight:
		return "sweep"
	default:
		return "unknown"
	}
}

// ParsePlacementPolicy accepts the names printed by String.
func ParsePlacementPolicy(s string) (PlacementPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "random", "random_retry", "randomretry":
		return RandomRetry, nil
	case "sweep", "sweep_right", "sweepright":
		return SweepRight, nil
	default:
		return RandomRetry, fmt.Errorf("unknown placement policy %q", s)
	}
}

// SpawnReport summarizes the most recent Spawn.
type SpawnReport struct {
	Requested   int           `json:"requested"`
	Placed      int           `json:"placed"`
	Exhausted   int           `json:"exhausted"`
	OverlapHits int           `json:"overlapHits"`
	Corrections int           `json:"corrections"`
	Policy      string        `json:"policy"`
	ConfigError string        `json:"configError,omitempty"`
	Duration    time.Duration `json:"duration"`
}

// LastSpawn returns the report of the most recent Spawn.
func (s *Simulation) LastSpawn() SpawnReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSpawn
}

// Spawn replaces the population with count new bodies and returns how many
// were placed. Bodies that cannot be placed without overlap are dropped.
//
// A grid whose cells are smaller than twice radius.Max is logged as a
// *ConfigError and spawning continues.
func (s *Simulation) Spawn(count int, radius, speed Range, policy PlacementPolicy) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		log.Printf("⚠️ Spawn: %v", ErrShutdown)
		return 0
	}
	if s.grid == nil {
		log.Printf("⚠️ Spawn called before Configure, ignoring")
		return 0
	}

	start := time.Now()
	radius = radius.Normalized()
	speed = speed.Normalized()
	if radius.Min <= 0 {
		radius.Min = math32.Min(radius.Max, geom.Epsilon)
	}
	if count < 0 {
		count = 0
	}

	report := SpawnReport{Requested: count, Policy: policy.String()}
	if err := checkCellSize(s.grid.cellWidth, s.grid.cellHeight, radius.Max); err != nil {
		log.Printf("⚠️ %v", err)
		report.ConfigError = err.Error()
	}

	s.store.Reset()
	s.grid.Clear()

	p := placer{sim: s, radius: radius, speed: speed, report: &report}
	p.cursor = geom.V(radius.Max, radius.Max)
	for i := 0; i < count; i++ {
		var ok bool
		switch policy {
		case SweepRight:
			ok = p.placeSweep()
		default:
			ok = p.placeRandom()
		}
		if ok {
			report.Placed++
		} else {
			report.Exhausted++
		}
	}

	report.Duration = time.Since(start)
	s.lastSpawn = report
	if report.Exhausted > 0 {
		log.Printf("⚠️ %d of %d bodies dropped: %v", report.Exhausted, count, ErrPlacementExhausted)
	}
	log.Printf("✅ Spawned %d/%d bodies (%s): overlap hits %d, corrections %d, took %v",
		report.Placed, count, report.Policy, report.OverlapHits, report.Corrections, report.Duration)
	return report.Placed
}

// placer carries the state of one Spawn call.
type placer struct {
	sim    *Simulation
	radius Range
	speed  Range
	report *SpawnReport
	cursor geom.Vec2
}

func (p *placer) float() float32 {
	return p.sim.rng.Float32()
}

// newBody adds a body with a random radius, direction and speed to the
// store. It is not yet filed in the grid.
func (p *placer) newBody() (Handle, *Body) {
	r := p.radius.sample(p.float)
	angle := p.float() * 2 * math32.Pi
	speed := p.speed.sample(p.float)
	v := geom.V(math32.Cos(angle)*speed, math32.Sin(angle)*speed)
	b := NewBody(geom.Vec2{}, r, v)
	return p.sim.store.Add(b), b
}

// span returns the interval centres are drawn from along one axis.
func span(extent, maxR float32) (lo, hi float32) {
	lo = math32.Min(maxR, extent/2)
	hi = math32.Max(extent-maxR, lo)
	return lo, hi
}

func (p *placer) drop(h Handle) bool {
	s := p.sim
	s.store.pop()
	s.events.Emit(ContactEvent{
		Type:      EventTypePlacementExhausted,
		Timestamp: time.Now().UnixNano(),
		Step:      s.stepCount,
		Body:      h,
		Detail:    ErrPlacementExhausted.Error(),
	})
	return false
}

func (p *placer) placeRandom() bool {
	s := p.sim
	h, b := p.newBody()
	if !s.dom.fits(b.radius) {
		return p.drop(h)
	}
	xlo, xhi := span(s.dom.width, p.radius.Max)
	ylo, yhi := span(s.dom.height, p.radius.Max)

	for attempt := 0; attempt < s.cfg.MaxPlacementAttempts; attempt++ {
		pos := geom.V(xlo+p.float()*(xhi-xlo), ylo+p.float()*(yhi-ylo))
		b.SetPosition(s.dom.clamp(pos, b.radius))

		other, hit := s.grid.FirstIntersecting(h)
		if !hit {
			s.grid.Insert(h)
			return true
		}
		p.report.OverlapHits++
		if p.tryCorrect(h, other) {
			p.report.Corrections++
			s.grid.Insert(h)
			return true
		}
	}
	return p.drop(h)
}

// tryCorrect separates a new body h from the placed body o and keeps the
// result when both stay inside the domain and clear of every other body.
// Otherwise both are restored.
func (p *placer) tryCorrect(h, o Handle) bool {
	s := p.sim
	b, ob := s.store.Get(h), s.store.Get(o)
	bp, op := b.position, ob.position

	if SeparateOverlap(b, ob) &&
		s.dom.contains(b.position, b.radius) &&
		s.dom.contains(ob.position, ob.radius) &&
		!s.grid.intersectingExcept(h, o) &&
		!s.grid.intersectingExcept(o, h) {
		s.grid.Reassign(o)
		return true
	}
	b.SetPosition(bp)
	ob.SetPosition(op)
	return false
}

// sweepGap keeps swept neighbours from ending exactly tangent, which would
// count as touching.
const sweepGap = 1e-3

// placeSweep places the body at the cursor, jumping right past any body it
// overlaps and wrapping to the next row at the right edge.
func (p *placer) placeSweep() bool {
	s := p.sim
	h, b := p.newBody()
	if !s.dom.fits(b.radius) {
		return p.drop(h)
	}
	maxR := p.radius.Max
	xlo, xhi := span(s.dom.width, maxR)
	ylo, yhi := span(s.dom.height, maxR)
	gap := sweepGap * maxR

	for attempt := 0; attempt < s.cfg.MaxPlacementAttempts; attempt++ {
		if p.cursor[0] > xhi {
			p.cursor = geom.V(xlo, p.cursor[1]+2*maxR+gap)
		}
		if p.cursor[1] > yhi {
			p.cursor = geom.V(xlo, ylo)
		}
		b.SetPosition(s.dom.clamp(p.cursor, b.radius))

		other, hit := s.grid.FirstIntersecting(h)
		if !hit {
			s.grid.Insert(h)
			p.cursor[0] = b.position[0] + b.radius + maxR + gap
			return true
		}
		p.report.OverlapHits++
		ob := s.store.Get(other)
		p.cursor[0] = ob.position[0] + ob.radius + b.radius + gap
	}
	return p.drop(h)
}
