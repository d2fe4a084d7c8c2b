package physics

import (
	"sphere-field/internal/geom"

	"github.com/chewxy/math32"
)

// SweepBoundaries appends to dst one candidate per boundary plane that a
// body of radius r at c, moving by v this step, reaches strictly inside the
// step (0 < t < 1).
//
// A body already on or past a shrunk plane and still moving outward gets a
// t = 0 candidate that reflects it in place (projected back onto the plane
// when it has penetrated). A body on a plane that is at rest or heading back
// in is left alone.
func SweepBoundaries(c, v geom.Vec2, r float32, planes []geom.Plane, dst []Collision) []Collision {
	for _, pl := range planes {
		shrunk := pl.Shrink(r)
		lc := shrunk.SignedDistance(c)
		lv := pl.Normal.Dot(v)

		if lc >= -planeSlop(shrunk.Distance) {
			if lv <= geom.Epsilon {
				continue
			}
			p := c
			if lc > 0 {
				p = shrunk.Project(c)
			}
			dst = append(dst, Collision{
				T:             0,
				Contact:       p,
				PositionAfter: p,
				VelocityAfter: pl.Reflect(v),
				Kind:          HitPlane,
				Side:          pl.Side,
			})
			continue
		}

		if math32.Abs(lv) < geom.Epsilon {
			continue
		}

		t := -lc / lv
		if t <= 0 || t >= 1 {
			continue
		}

		p := c.Add(v.Mul(t))
		dst = append(dst, Collision{
			T:             t,
			Contact:       p,
			PositionAfter: p,
			VelocityAfter: pl.Reflect(v).Mul(1 - t),
			Kind:          HitPlane,
			Side:          pl.Side,
		})
	}
	return dst
}

// planeSlop is how far inside a shrunk plane at distance d a centre may sit
// and still count as on it. It covers float32 rounding of the clamp.
func planeSlop(d float32) float32 {
	return 4 * geom.Epsilon * math32.Max(1, math32.Abs(d))
}

// SweepBody returns the contact of a against b over a dt-long step, or false
// when they do not meet inside the step.
func SweepBody(a, b *Body, bh Handle, dt float32) (Collision, bool) {
	motion := a.velocity.Mul(dt)
	t, ok := sweepCircles(a.position.Sub(b.position), motion.Sub(b.velocity.Mul(dt)), a.radius+b.radius)
	if !ok {
		return Collision{}, false
	}
	p := a.position.Add(motion.Mul(t))
	return Collision{
		T:             t,
		Contact:       p,
		PositionAfter: p,
		VelocityAfter: motion.Mul(1 - t),
		Kind:          HitBody,
		Other:         bh,
	}, true
}

// sweepCircles solves |rel + t*motion| = dist for the first t in (0,1).
// rel is the centre offset of the first circle from the second and motion
// their relative displacement over the step. Circles that already touch and
// are closing report t = 0.
func sweepCircles(rel, motion geom.Vec2, dist float32) (float32, bool) {
	a2 := rel.Dot(rel)
	d2 := dist * dist
	ab := rel.Dot(motion)

	if a2 <= d2 {
		return 0, ab < 0
	}
	if ab >= 0 {
		return 0, false
	}

	b2 := motion.Dot(motion)
	if b2 < geom.Epsilon {
		return 0, false
	}

	disc := ab*ab - b2*(a2-d2)
	if disc < 0 {
		return 0, false
	}

	t := (-ab - math32.Sqrt(disc)) / b2
	if t <= 0 || t >= 1 {
		return t, false
	}
	return t, true
}
