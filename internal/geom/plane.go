package geom

// Side identifies one of the four boundary planes of the domain.
type Side uint8

const (
	SideLeft Side = iota
	SideRight
	SideBottom
	SideTop
)

func (s Side) String() string {
	switch s {
	case SideLeft:
		return "left"
	case SideRight:
		return "right"
	case SideBottom:
		return "bottom"
	case SideTop:
		return "top"
	default:
		return "unknown"
	}
}

// Plane is the implicit line dot(Normal, p) = Distance. Normal is unit length.
type Plane struct {
	Normal   Vec2
	Distance float32
	Side     Side
}

// NewPlane builds a plane from a (not necessarily unit) normal and a distance.
// The distance is rescaled along with the normal so the line is unchanged.
func NewPlane(normal Vec2, distance float32, side Side) Plane {
	l := normal.Len()
	if l < Epsilon {
		return Plane{Distance: distance, Side: side}
	}
	return Plane{Normal: normal.Mul(1 / l), Distance: distance / l, Side: side}
}

// Shrink moves the plane inward by r, giving the line a circle centre of
// radius r must not cross. Normals point out of the domain.
func (p Plane) Shrink(r float32) Plane {
	p.Distance -= r
	return p
}

// SignedDistance is positive on the outward side of the plane.
func (p Plane) SignedDistance(x Vec2) float32 {
	return p.Normal.Dot(x) - p.Distance
}

// Reflect mirrors v about the plane.
func (p Plane) Reflect(v Vec2) Vec2 {
	return Reflect(v, p.Normal)
}

// Project moves x onto the plane along its normal.
func (p Plane) Project(x Vec2) Vec2 {
	return x.Sub(p.Normal.Mul(p.SignedDistance(x)))
}

// BoundaryPlanes returns the four outward-facing planes enclosing
// [0,width] x [0,height].
func BoundaryPlanes(width, height float32) [4]Plane {
	return [4]Plane{
		{Normal: V(-1, 0), Distance: 0, Side: SideLeft},
		{Normal: V(1, 0), Distance: width, Side: SideRight},
		{Normal: V(0, -1), Distance: 0, Side: SideBottom},
		{Normal: V(0, 1), Distance: height, Side: SideTop},
	}
}
