// Package geom provides the float32 2-D math used by the simulation:
// vectors, boundary planes and axis-aligned boxes.
//
// Vectors are mgl32.Vec2 values so they can be passed by value and compared
// with ==. Scalar math goes through math32 to stay in float32 end to end.
package geom

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// Epsilon is float32 machine epsilon. Plane approach speeds and reflected
// velocities smaller than this are treated as zero.
const Epsilon float32 = 1.1920929e-07

// Vec2 is the simulation's 2-D vector type.
type Vec2 = mgl32.Vec2

// V is shorthand for building a Vec2.
func V(x, y float32) Vec2 {
	return Vec2{x, y}
}

// LenSq returns the squared length of v.
func LenSq(v Vec2) float32 {
	return v.Dot(v)
}

// DistSq returns the squared distance between a and b.
func DistSq(a, b Vec2) float32 {
	d := a.Sub(b)
	return d.Dot(d)
}

// Normalize returns v scaled to unit length and true, or the zero vector and
// false when v is too short to normalize safely.
func Normalize(v Vec2) (Vec2, bool) {
	l := v.Len()
	if l < Epsilon {
		return Vec2{}, false
	}
	return v.Mul(1 / l), true
}

// Reflect mirrors v about the line whose unit normal is n.
func Reflect(v, n Vec2) Vec2 {
	return v.Sub(n.Mul(2 * v.Dot(n)))
}

// WithLength returns v rescaled to length l. The second result is false when
// v has no usable direction.
func WithLength(v Vec2, l float32) (Vec2, bool) {
	dir, ok := Normalize(v)
	if !ok {
		return Vec2{}, false
	}
	return dir.Mul(l), true
}

// Clamp limits each component of v to [lo, hi].
func Clamp(v, lo, hi Vec2) Vec2 {
	return Vec2{
		math32.Min(math32.Max(v[0], lo[0]), hi[0]),
		math32.Min(math32.Max(v[1], lo[1]), hi[1]),
	}
}

// ApproxEqual reports whether a and b differ by at most tol per component.
func ApproxEqual(a, b Vec2, tol float32) bool {
	return math32.Abs(a[0]-b[0]) <= tol && math32.Abs(a[1]-b[1]) <= tol
}
