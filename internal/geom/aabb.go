package geom

// AABB is an axis-aligned bounding box.
type AABB struct {
	Min, Max Vec2
}

// CircleBounds returns the box [c - r, c + r].
func CircleBounds(c Vec2, r float32) AABB {
	return AABB{Min: V(c[0]-r, c[1]-r), Max: V(c[0]+r, c[1]+r)}
}

// Overlaps reports whether a and b intersect (touching counts).
func (a AABB) Overlaps(b AABB) bool {
	return a.Min[0] <= b.Max[0] && b.Min[0] <= a.Max[0] &&
		a.Min[1] <= b.Max[1] && b.Min[1] <= a.Max[1]
}

// Contains reports whether p lies inside the box.
func (a AABB) Contains(p Vec2) bool {
	return p[0] >= a.Min[0] && p[0] <= a.Max[0] && p[1] >= a.Min[1] && p[1] <= a.Max[1]
}

// Width returns the extent along x.
func (a AABB) Width() float32 { return a.Max[0] - a.Min[0] }

// Height returns the extent along y.
func (a AABB) Height() float32 { return a.Max[1] - a.Min[1] }
