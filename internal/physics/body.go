package physics

import (
	"sphere-field/internal/geom"

	"github.com/chewxy/math32"
)

// Handle identifies a body by its index in the body store.
type Handle uint32

// Body is a circular rigid body. Radius squared and bounds are cached and
// recomputed by every setter, so fields are only written through them.
type Body struct {
	position geom.Vec2
	velocity geom.Vec2
	radius   float32
	radius2  float32
	bounds   geom.AABB

	// cell is the bucket the grid last filed this body under.
	cell CellIndex

	// hit and hitOther record the collision applied in the last reassigning
	// phase. hit is zero after free motion.
	hit      HitKind
	hitOther Handle

	// candidates holds this step's detected collisions. It is cleared at the
	// start of detection and only touched by the worker that owns the body.
	candidates []Collision
}

// NewBody creates a body at position with the given radius and velocity.
func NewBody(position geom.Vec2, radius float32, velocity geom.Vec2) *Body {
	b := &Body{velocity: velocity, cell: -1}
	b.radius = radius
	b.radius2 = radius * radius
	b.SetPosition(position)
	return b
}

// BodyState is a read-only copy of a body handed to hosts.
type BodyState struct {
	Handle   Handle
	Position geom.Vec2
	Velocity geom.Vec2
	Radius   float32
	Bounds   geom.AABB
}

// Position returns the body centre.
func (b *Body) Position() geom.Vec2 { return b.position }

// Velocity returns the velocity in units per second.
func (b *Body) Velocity() geom.Vec2 { return b.velocity }

// Radius returns the body radius.
func (b *Body) Radius() float32 { return b.radius }

// Radius2 returns the cached squared radius.
func (b *Body) Radius2() float32 { return b.radius2 }

// Bounds returns the cached bounding box.
func (b *Body) Bounds() geom.AABB { return b.bounds }

// SetPosition moves the body and refreshes its bounds.
func (b *Body) SetPosition(p geom.Vec2) {
	b.position = p
	b.bounds = geom.CircleBounds(p, b.radius)
}

// SetRadius changes the radius and refreshes radius squared and bounds.
func (b *Body) SetRadius(r float32) {
	b.radius = r
	b.radius2 = r * r
	b.bounds = geom.CircleBounds(b.position, r)
}

// SetVelocity replaces the velocity.
func (b *Body) SetVelocity(v geom.Vec2) {
	b.velocity = v
}

// IsPointInside reports whether p lies in the disc.
func (b *Body) IsPointInside(p geom.Vec2) bool {
	return geom.DistSq(p, b.position) <= b.radius2
}

// Intersects reports whether the two discs overlap. Touching counts.
func (b *Body) Intersects(o *Body) bool {
	r := b.radius + o.radius
	return b.DistanceSquared(o) <= r*r
}

// Distance returns the distance between centres.
func (b *Body) Distance(o *Body) float32 {
	return math32.Sqrt(b.DistanceSquared(o))
}

// DistanceSquared returns the squared distance between centres.
func (b *Body) DistanceSquared(o *Body) float32 {
	return geom.DistSq(b.position, o.position)
}

// IntersectTime returns the fraction of a dt-long step at which b and o
// first touch when both keep their velocities.
func (b *Body) IntersectTime(o *Body, dt float32) (float32, bool) {
	return sweepCircles(b.position.Sub(o.position), b.velocity.Sub(o.velocity).Mul(dt), b.radius+o.radius)
}

// Candidates returns this step's collision candidates. The slice is reused
// on the next step.
func (b *Body) Candidates() []Collision { return b.candidates }

// State returns a value copy of the body labelled with h.
func (b *Body) State(h Handle) BodyState {
	return BodyState{
		Handle:   h,
		Position: b.position,
		Velocity: b.velocity,
		Radius:   b.radius,
		Bounds:   b.bounds,
	}
}

// Store owns every body. Buckets and collisions refer to bodies by Handle.
type Store struct {
	bodies []*Body
}

// NewStore returns an empty store with room for capacity bodies.
func NewStore(capacity int) *Store {
	return &Store{bodies: make([]*Body, 0, capacity)}
}

// Add appends b and returns its handle.
func (s *Store) Add(b *Body) Handle {
	s.bodies = append(s.bodies, b)
	return Handle(len(s.bodies) - 1)
}

// Get returns the body for h. h must be valid.
func (s *Store) Get(h Handle) *Body { return s.bodies[h] }

// Valid reports whether h names a body.
func (s *Store) Valid(h Handle) bool { return int(h) < len(s.bodies) }

// Len returns the number of bodies.
func (s *Store) Len() int { return len(s.bodies) }

// Reset drops every body.
func (s *Store) Reset() {
	for i := range s.bodies {
		s.bodies[i] = nil
	}
	s.bodies = s.bodies[:0]
}

// pop removes the most recently added body.
func (s *Store) pop() {
	n := len(s.bodies) - 1
	s.bodies[n] = nil
	s.bodies = s.bodies[:n]
}
