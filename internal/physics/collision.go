package physics

import "sphere-field/internal/geom"

// HitKind says what a collision was against.
type HitKind uint8

const (
	HitPlane HitKind = iota + 1
	HitBody
)

func (k HitKind) String() string {
	switch k {
	case HitPlane:
		return "plane"
	case HitBody:
		return "body"
	default:
		return "none"
	}
}

// Collision is a per-step contact record. Exactly one of Side (HitPlane) or
// Other (HitBody) is meaningful.
type Collision struct {
	// T is the fraction of the step's motion at which contact happens.
	T float32
	// Contact is the body centre at the moment of contact.
	Contact geom.Vec2
	// PositionAfter is where the body ends the step if this collision wins.
	PositionAfter geom.Vec2
	// VelocityAfter is the remaining motion after contact, in step-distance
	// units (already scaled by dt and by 1-T).
	VelocityAfter geom.Vec2

	Kind  HitKind
	Side  geom.Side
	Other Handle
}

// Earliest returns the candidate with the smallest T. Equal times keep the
// first one found.
func Earliest(cands []Collision) (Collision, bool) {
	if len(cands) == 0 {
		return Collision{}, false
	}
	best := 0
	for i := 1; i < len(cands); i++ {
		if cands[i].T < cands[best].T {
			best = i
		}
	}
	return cands[best], true
}
