package physics

import (
	"sphere-field/internal/geom"
)

// resolution describes what happened to one body in the reassigning phase.
type resolution struct {
	applied    Collision
	hit        bool
	bounces    int
	degenerate bool
}

// domain is the box body centres are kept inside, before radius shrinking.
type domain struct {
	width, height float32
	planes        [4]geom.Plane
}

func newDomain(width, height float32) domain {
	return domain{width: width, height: height, planes: geom.BoundaryPlanes(width, height)}
}

// clamp keeps the centre of a radius-r body inside the domain. It only
// corrects float32 rounding around contact points.
func (d domain) clamp(p geom.Vec2, r float32) geom.Vec2 {
	return geom.Clamp(p, geom.V(r, r), geom.V(d.width-r, d.height-r))
}

// contains reports whether a radius-r body at p is fully inside the domain.
func (d domain) contains(p geom.Vec2, r float32) bool {
	return p[0] >= r && p[0] <= d.width-r && p[1] >= r && p[1] <= d.height-r
}

// fits reports whether a radius-r body can sit inside the domain at all.
func (d domain) fits(r float32) bool {
	return 2*r <= d.width && 2*r <= d.height
}

// resolve applies the earliest candidate of b, or free motion when there is
// none. maxBounces > 1 re-sweeps the remaining fraction of the step against
// the boundary after each plane contact.
func (d domain) resolve(b *Body, dt float32, maxBounces int) resolution {
	var res resolution

	win, ok := Earliest(b.candidates)
	if !ok {
		b.SetPosition(d.clamp(b.position.Add(b.velocity.Mul(dt)), b.radius))
		return res
	}
	res.hit = true
	res.applied = win

	if win.Kind == HitBody {
		// Stop at tangency; the velocity exchange runs after Barrier2.
		b.SetPosition(d.clamp(win.Contact, b.radius))
		return res
	}

	speed := b.velocity.Len()
	remaining := float32(1)
	for {
		b.SetPosition(win.Contact)

		v, ok := geom.WithLength(win.VelocityAfter, speed)
		if !ok {
			v, ok = geom.WithLength(d.planes[win.Side].Reflect(b.velocity), speed)
		}
		if !ok {
			res.degenerate = true
			break
		}
		b.SetVelocity(v)
		res.bounces++

		remaining *= 1 - win.T
		if res.bounces >= maxBounces || remaining < geom.Epsilon {
			break
		}

		motion := v.Mul(dt * remaining)
		b.candidates = SweepBoundaries(b.position, motion, b.radius, d.planes[:], b.candidates[:0])
		win, ok = Earliest(b.candidates)
		if !ok {
			b.SetPosition(b.position.Add(motion))
			break
		}
	}

	b.SetPosition(d.clamp(b.position, b.radius))
	return res
}

// ElasticExchange applies the 2-D elastic impulse along the line of centres,
// using radius as the mass proxy, so r1*v1 + r2*v2 is preserved. Bodies that
// are already separating, or share a centre, are left alone.
func ElasticExchange(a, b *Body) bool {
	n, ok := geom.Normalize(b.position.Sub(a.position))
	if !ok {
		return false
	}
	closing := a.velocity.Sub(b.velocity).Dot(n)
	if closing <= 0 {
		return false
	}
	k := 2 * closing / (a.radius + b.radius)
	a.SetVelocity(a.velocity.Sub(n.Mul(k * b.radius)))
	b.SetVelocity(b.velocity.Add(n.Mul(k * a.radius)))
	return true
}

// SeparateOverlap pushes two overlapping bodies apart along the line of
// centres, each by half the penetration, leaving them tangent. Coincident
// centres are split along +x.
func SeparateOverlap(a, b *Body) bool {
	d := b.position.Sub(a.position)
	dist := d.Len()
	sum := a.radius + b.radius
	if dist >= sum {
		return false
	}
	n, ok := geom.Normalize(d)
	if !ok {
		n = geom.V(1, 0)
	}
	half := (sum - dist) / 2
	a.SetPosition(a.position.Sub(n.Mul(half)))
	b.SetPosition(b.position.Add(n.Mul(half)))
	return true
}
