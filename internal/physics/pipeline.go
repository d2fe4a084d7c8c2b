package physics

import (
	"fmt"
	"log"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"

	"sphere-field/internal/geom"
)

// PipelineState is the phase a step is in.
type PipelineState int32

const (
	StateIdle PipelineState = iota
	StateDetecting
	StateBarrier1
	StateReassigning
	StateBarrier2
)

func (s PipelineState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDetecting:
		return "detecting"
	case StateBarrier1:
		return "barrier1"
	case StateReassigning:
		return "reassigning"
	case StateBarrier2:
		return "barrier2"
	default:
		return "unknown"
	}
}

// MaxWorkers caps the pipeline pool size.
const MaxWorkers = 16

type phase uint8

const (
	phaseDetect phase = iota
	phaseResolve
)

// stepContext is the read-only input every worker shares for one step.
type stepContext struct {
	step           uint64
	dt             float32
	grid           *Grid
	store          *Store
	dom            domain
	maxBounces     int
	bodyCollisions bool
	events         *EventLog
}

// bodyPair is an unordered body-body contact, stored with a < b.
type bodyPair struct {
	a, b Handle
}

func makePair(x, y Handle) bodyPair {
	if x > y {
		x, y = y, x
	}
	return bodyPair{a: x, b: y}
}

// partition is the contiguous column range [colStart, colEnd) owned by one
// worker, plus that worker's per-step scratch.
type partition struct {
	colStart, colEnd int

	work  []Handle
	pairs []bodyPair
	stats partitionStats
}

type partitionStats struct {
	boundaryHits int
	bodyContacts int
	moved        int
	degenerate   int
	faults       int
}

type pipelineJob struct {
	phase phase
	part  *partition
	ctx   *stepContext
}

// pipeline runs detection and reassignment on a fixed pool of goroutines.
// Jobs are handed out over a channel; completion is signalled through a
// Barrier the step caller waits on.
type pipeline struct {
	numWorkers int
	jobChan    chan pipelineJob
	wg         sync.WaitGroup
	running    bool
	mu         sync.Mutex

	barrier    *Barrier
	state      atomic.Int32
	partitions []*partition
}

// newPipeline creates a pool of numWorkers goroutines. numWorkers <= 0
// defaults to NumCPU; the pool is capped at MaxWorkers.
func newPipeline(numWorkers int) *pipeline {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	if numWorkers > MaxWorkers {
		numWorkers = MaxWorkers
	}
	return &pipeline{
		numWorkers: numWorkers,
		jobChan:    make(chan pipelineJob, numWorkers*2),
		barrier:    NewBarrier(),
	}
}

func (p *pipeline) start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return
	}
	p.running = true
	p.wg.Add(p.numWorkers)
	for i := 0; i < p.numWorkers; i++ {
		go p.worker()
	}
}

func (p *pipeline) stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.mu.Unlock()

	close(p.jobChan)
	p.wg.Wait()
}

// State returns the current phase.
func (p *pipeline) State() PipelineState {
	return PipelineState(p.state.Load())
}

func (p *pipeline) setState(s PipelineState) {
	p.state.Store(int32(s))
}

// partition splits columns into at most numWorkers contiguous, disjoint,
// non-empty ranges.
func (p *pipeline) partition(columns int) {
	n := p.numWorkers
	if n > columns {
		n = columns
	}
	p.partitions = p.partitions[:0]
	for i := 0; i < n; i++ {
		p.partitions = append(p.partitions, &partition{
			colStart: i * columns / n,
			colEnd:   (i + 1) * columns / n,
		})
	}
}

func (p *pipeline) worker() {
	defer p.wg.Done()

	for job := range p.jobChan {
		p.barrier.Arrive(p.runJob(job))
	}
}

// runJob never lets a panic escape a worker; per-body faults are handled
// further down and anything left is reported to the barrier.
func (p *pipeline) runJob(job pipelineJob) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("partition [%d,%d) phase %d: %v", job.part.colStart, job.part.colEnd, job.phase, r)
		}
	}()
	switch job.phase {
	case phaseDetect:
		detectPartition(job.part, job.ctx)
	case phaseResolve:
		resolvePartition(job.part, job.ctx)
	}
	return nil
}

// dispatch arms the barrier and queues one job per partition.
func (p *pipeline) dispatch(ph phase, ctx *stepContext) {
	p.barrier.Reset(len(p.partitions))
	for _, part := range p.partitions {
		p.jobChan <- pipelineJob{phase: ph, part: part, ctx: ctx}
	}
}

// run executes one step: detection, Barrier1, reassignment, Barrier2, then
// the single-threaded elastic exchange.
func (p *pipeline) run(ctx *stepContext) StepStats {
	var stats StepStats

	p.setState(StateDetecting)
	p.dispatch(phaseDetect, ctx)
	p.setState(StateBarrier1)
	for _, err := range p.barrier.Wait() {
		log.Printf("⚠️ Detection worker failed: %v", err)
		stats.Faults++
	}

	p.setState(StateReassigning)
	p.dispatch(phaseResolve, ctx)
	p.setState(StateBarrier2)
	for _, err := range p.barrier.Wait() {
		log.Printf("⚠️ Reassignment worker failed: %v", err)
		stats.Faults++
	}
	p.setState(StateIdle)

	var pairs []bodyPair
	for _, part := range p.partitions {
		stats.BoundaryHits += part.stats.boundaryHits
		stats.BodyContacts += part.stats.bodyContacts
		stats.Moved += part.stats.moved
		stats.Degenerate += part.stats.degenerate
		stats.Faults += part.stats.faults
		pairs = append(pairs, part.pairs...)
	}
	stats.Exchanges = exchangePairs(pairs, ctx)
	return stats
}

// exchangePairs applies the elastic exchange once per distinct pair, in
// handle order. A pair whose contact went stale is settled first and only
// exchanged when the bodies still touch.
func exchangePairs(pairs []bodyPair, ctx *stepContext) int {
	if len(pairs) == 0 {
		return 0
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].a != pairs[j].a {
			return pairs[i].a < pairs[j].a
		}
		return pairs[i].b < pairs[j].b
	})
	n := 0
	for i, pr := range pairs {
		if i > 0 && pr == pairs[i-1] {
			continue
		}
		a, b := ctx.store.Get(pr.a), ctx.store.Get(pr.b)
		if !followedPrediction(a, pr.b) || !followedPrediction(b, pr.a) {
			if !settleStaleContact(pr, ctx) {
				continue
			}
		}
		if ElasticExchange(a, b) {
			n++
			ctx.events.Emit(newExchangeEvent(ctx.step, pr.a, pr.b, a.position))
		}
	}
	return n
}

// followedPrediction reports whether b ended the step on the path its
// partner's sweep assumed: free motion, or stopped against that partner.
func followedPrediction(b *Body, partner Handle) bool {
	return b.hit == 0 || (b.hit == HitBody && b.hitOther == partner)
}

// settleStaleContact handles a pair where one body stopped at a contact
// computed against its partner's free path while the partner bounced off
// something else. The stopped body is pulled back to tangency along the
// line of centres. It reports whether the pair still touches.
func settleStaleContact(pr bodyPair, ctx *stepContext) bool {
	mh, oh := pr.a, pr.b
	if m := ctx.store.Get(mh); m.hit != HitBody || m.hitOther != oh {
		mh, oh = oh, mh
	}
	m, o := ctx.store.Get(mh), ctx.store.Get(oh)

	sum := m.radius + o.radius
	d := m.position.Sub(o.position)
	dist2 := d.Dot(d)
	if dist2 > sum*sum*(1+contactSlop) {
		return false
	}
	if dist2 < sum*sum {
		n, ok := geom.Normalize(d)
		if !ok {
			if n, ok = geom.Normalize(m.velocity.Mul(-1)); !ok {
				n = geom.V(-1, 0)
			}
		}
		m.SetPosition(ctx.dom.clamp(o.position.Add(n.Mul(sum)), m.radius))
		ctx.grid.Reassign(mh)
	}
	return true
}

// contactSlop is the relative squared-distance tolerance within which a
// settled pair still counts as touching.
const contactSlop = 1e-4

// detectPartition captures the partition's bodies into its work list and
// builds each body's candidate list.
func detectPartition(part *partition, ctx *stepContext) {
	part.work = part.work[:0]
	part.pairs = part.pairs[:0]
	part.stats = partitionStats{}

	g := ctx.grid
	for x := part.colStart; x < part.colEnd; x++ {
		for y := 0; y < g.rows; y++ {
			part.work = append(part.work, g.buckets[g.index(x, y)].handles...)
		}
	}
	for _, h := range part.work {
		detectBody(h, part, ctx)
	}
}

func detectBody(h Handle, part *partition, ctx *stepContext) {
	b := ctx.store.Get(h)
	defer func() {
		if r := recover(); r != nil {
			b.candidates = b.candidates[:0]
			part.stats.faults++
			log.Printf("⚠️ Recovered panic detecting body %d: %v", h, r)
			ctx.events.Emit(newFaultEvent(ctx.step, h, fmt.Sprint(r)))
		}
	}()

	b.candidates = b.candidates[:0]
	b.candidates = SweepBoundaries(b.position, b.velocity.Mul(ctx.dt), b.radius, ctx.dom.planes[:], b.candidates)

	if !ctx.bodyCollisions {
		return
	}
	ctx.grid.ForEachNeighbor(h, func(o Handle, ob *Body) bool {
		if c, ok := SweepBody(b, ob, o, ctx.dt); ok {
			b.candidates = append(b.candidates, c)
		}
		return false
	})
}

// resolvePartition applies each body's winning candidate and refiles it.
// It walks the work list captured during detection, never the live
// buckets, since Reassign edits them concurrently.
func resolvePartition(part *partition, ctx *stepContext) {
	for _, h := range part.work {
		resolveBody(h, part, ctx)
	}
}

func resolveBody(h Handle, part *partition, ctx *stepContext) {
	b := ctx.store.Get(h)
	pos, vel := b.position, b.velocity
	defer func() {
		if r := recover(); r != nil {
			part.stats.faults++
			log.Printf("⚠️ Recovered panic resolving body %d: %v", h, r)
			ctx.events.Emit(newFaultEvent(ctx.step, h, fmt.Sprint(r)))

			b.SetPosition(pos)
			b.SetVelocity(vel)
			b.candidates = b.candidates[:0]
			b.hit = 0
			ctx.dom.resolve(b, ctx.dt, 1)
			if ctx.grid.Reassign(h) {
				part.stats.moved++
			}
		}
	}()

	res := ctx.dom.resolve(b, ctx.dt, ctx.maxBounces)
	b.hit, b.hitOther = 0, 0
	if res.hit {
		b.hit, b.hitOther = res.applied.Kind, res.applied.Other
		switch res.applied.Kind {
		case HitPlane:
			part.stats.boundaryHits += max(res.bounces, 1)
		case HitBody:
			part.stats.bodyContacts++
			part.pairs = append(part.pairs, makePair(h, res.applied.Other))
		}
		ctx.events.Emit(newContactEvent(ctx.step, h, res.applied))
	}
	if res.degenerate {
		part.stats.degenerate++
	}
	if ctx.grid.Reassign(h) {
		part.stats.moved++
	}
}
