package physics

import (
	"sync/atomic"
	"time"
)

// BodySnapshot is an immutable copy of one body for observers.
type BodySnapshot struct {
	ID     uint32  `json:"id" msgpack:"i"`
	X      float32 `json:"x" msgpack:"x"`
	Y      float32 `json:"y" msgpack:"y"`
	VX     float32 `json:"vx" msgpack:"vx"`
	VY     float32 `json:"vy" msgpack:"vy"`
	Radius float32 `json:"r" msgpack:"r"`
}

// Snapshot is a complete immutable view of the simulation after a step.
// Observers read it without touching simulation locks.
type Snapshot struct {
	Sequence      uint64         `json:"sequence" msgpack:"seq"`
	Timestamp     time.Time      `json:"timestamp" msgpack:"ts"`
	Step          uint64         `json:"step" msgpack:"step"`
	Width         float32        `json:"width" msgpack:"w"`
	Height        float32        `json:"height" msgpack:"h"`
	Rows          int            `json:"rows" msgpack:"rows"`
	Columns       int            `json:"columns" msgpack:"cols"`
	Intersections int            `json:"intersections" msgpack:"ix"`
	Stats         StepStats      `json:"stats" msgpack:"stats"`
	Bodies        []BodySnapshot `json:"bodies" msgpack:"bodies"`
}

// Capture builds a snapshot of the current state. countIntersections also
// walks the grid for the overlapping pair count.
func (s *Simulation) Capture(countIntersections bool) *Snapshot {
	snap := &Snapshot{Timestamp: time.Now()}
	s.mu.RLock()
	snap.Step = s.stepCount
	snap.Width, snap.Height = s.dom.width, s.dom.height
	if s.grid != nil {
		snap.Rows, snap.Columns = s.grid.rows, s.grid.columns
	}
	snap.Stats = s.lastStats
	snap.Bodies = make([]BodySnapshot, len(s.store.bodies))
	for i, b := range s.store.bodies {
		snap.Bodies[i] = BodySnapshot{
			ID:     uint32(i),
			X:      b.position[0],
			Y:      b.position[1],
			VX:     b.velocity[0],
			VY:     b.velocity[1],
			Radius: b.radius,
		}
	}
	s.mu.RUnlock()

	if countIntersections {
		snap.Intersections = s.IntersectionCount()
	}
	return snap
}

// SnapshotStore publishes snapshots from the engine loop to any number of
// readers. Publish replaces the pointer; readers never block the writer.
type SnapshotStore struct {
	current  atomic.Pointer[Snapshot]
	sequence atomic.Uint64
}

// NewSnapshotStore returns a store holding an empty snapshot.
func NewSnapshotStore() *SnapshotStore {
	st := &SnapshotStore{}
	st.current.Store(&Snapshot{Timestamp: time.Now()})
	return st
}

// Publish makes snap the current snapshot and stamps its sequence number.
// snap must not be modified afterwards.
func (st *SnapshotStore) Publish(snap *Snapshot) {
	snap.Sequence = st.sequence.Add(1)
	st.current.Store(snap)
}

// Load returns the latest snapshot. Never nil.
func (st *SnapshotStore) Load() *Snapshot {
	return st.current.Load()
}
