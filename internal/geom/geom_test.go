package geom

import (
	"testing"

	"github.com/chewxy/math32"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   Vec2
		want Vec2
		ok   bool
	}{
		{"axis", V(3, 0), V(1, 0), true},
		{"diagonal", V(3, 4), V(0.6, 0.8), true},
		{"zero", V(0, 0), Vec2{}, false},
		{"below epsilon", V(Epsilon/4, 0), Vec2{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Normalize(tt.in)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if !ApproxEqual(got, tt.want, 1e-6) {
				t.Errorf("Normalize(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestReflectPreservesLength(t *testing.T) {
	normals := []Vec2{V(1, 0), V(-1, 0), V(0, 1), V(0, -1), V(0.6, 0.8)}
	velocities := []Vec2{V(1, 0), V(-3, 2), V(0.25, -7), V(5, 5)}
	for _, n := range normals {
		for _, v := range velocities {
			r := Reflect(v, n)
			if math32.Abs(r.Len()-v.Len()) > 1e-5*v.Len() {
				t.Errorf("Reflect(%v, %v) = %v changed length %g -> %g", v, n, r, v.Len(), r.Len())
			}
		}
	}
}

func TestReflectFlipsNormalComponent(t *testing.T) {
	r := Reflect(V(-1, 2), V(-1, 0))
	if r != V(1, 2) {
		t.Errorf("Reflect = %v, want (1,2)", r)
	}
}

func TestWithLength(t *testing.T) {
	got, ok := WithLength(V(0, 2), 5)
	if !ok || !ApproxEqual(got, V(0, 5), 1e-6) {
		t.Errorf("WithLength = %v,%v want (0,5),true", got, ok)
	}
	if _, ok := WithLength(Vec2{}, 5); ok {
		t.Error("WithLength of zero vector should fail")
	}
}

func TestClamp(t *testing.T) {
	got := Clamp(V(-1, 12), V(0.5, 0.5), V(9.5, 9.5))
	if got != V(0.5, 9.5) {
		t.Errorf("Clamp = %v, want (0.5,9.5)", got)
	}
}

func TestBoundaryPlanes(t *testing.T) {
	planes := BoundaryPlanes(10, 20)
	inside := V(5, 5)

	for i, p := range planes {
		if p.Side != Side(i) {
			t.Errorf("plane %d has side %v", i, p.Side)
		}
		if d := p.SignedDistance(inside); d >= 0 {
			t.Errorf("%v: interior point has signed distance %g, want < 0", p.Side, d)
		}
		if l := p.Normal.Len(); math32.Abs(l-1) > 1e-6 {
			t.Errorf("%v: normal length %g", p.Side, l)
		}
	}

	if d := planes[SideRight].SignedDistance(V(11, 5)); d != 1 {
		t.Errorf("right plane distance = %g, want 1", d)
	}
	if d := planes[SideTop].SignedDistance(V(5, 20)); d != 0 {
		t.Errorf("top plane distance = %g, want 0", d)
	}
}

func TestPlaneShrinkAndProject(t *testing.T) {
	left := BoundaryPlanes(10, 10)[SideLeft]
	shrunk := left.Shrink(0.5)

	if d := shrunk.SignedDistance(V(0.5, 3)); d != 0 {
		t.Errorf("centre at x=r should sit on shrunk plane, got %g", d)
	}
	if d := shrunk.SignedDistance(V(0.3, 3)); d <= 0 {
		t.Errorf("centre at x=0.3 should be outside shrunk plane, got %g", d)
	}

	p := shrunk.Project(V(0.3, 3))
	if !ApproxEqual(p, V(0.5, 3), 1e-6) {
		t.Errorf("Project = %v, want (0.5,3)", p)
	}
}

func TestNewPlaneNormalizes(t *testing.T) {
	p := NewPlane(V(0, 2), 8, SideTop)
	if p.Normal != V(0, 1) || p.Distance != 4 {
		t.Errorf("NewPlane = %+v, want normal (0,1) distance 4", p)
	}
}

func TestAABB(t *testing.T) {
	a := CircleBounds(V(1, 1), 1)
	if a.Min != V(0, 0) || a.Max != V(2, 2) {
		t.Fatalf("CircleBounds = %+v", a)
	}
	if a.Width() != 2 || a.Height() != 2 {
		t.Errorf("size = %gx%g", a.Width(), a.Height())
	}

	tests := []struct {
		name string
		b    AABB
		want bool
	}{
		{"disjoint", CircleBounds(V(5, 5), 1), false},
		{"touching", CircleBounds(V(3, 1), 1), true},
		{"overlapping", CircleBounds(V(2, 2), 1), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := a.Overlaps(tt.b); got != tt.want {
				t.Errorf("Overlaps = %v, want %v", got, tt.want)
			}
		})
	}

	if !a.Contains(V(1, 1)) || a.Contains(V(3, 1)) {
		t.Error("Contains gave wrong answer")
	}
}

func TestSideString(t *testing.T) {
	if SideBottom.String() != "bottom" || Side(9).String() != "unknown" {
		t.Error("unexpected Side names")
	}
}
