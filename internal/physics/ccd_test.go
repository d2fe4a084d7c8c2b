package physics

import (
	"testing"

	"sphere-field/internal/geom"

	"github.com/chewxy/math32"
)

func approx(a, b, tol float32) bool {
	return math32.Abs(a-b) <= tol
}

func TestSweepBoundaries(t *testing.T) {
	planes := geom.BoundaryPlanes(10, 10)

	tests := []struct {
		name     string
		c, v     geom.Vec2
		r        float32
		want     int
		side     geom.Side
		t        float32
		contact  geom.Vec2
		velAfter geom.Vec2
	}{
		{
			name: "hits right wall mid-step",
			c:    geom.V(5, 5), v: geom.V(10, 0), r: 0.5,
			want: 1, side: geom.SideRight, t: 0.45,
			contact: geom.V(9.5, 5), velAfter: geom.V(-5.5, 0),
		},
		{
			name: "hits bottom wall",
			c:    geom.V(5, 1), v: geom.V(0, -1), r: 0.5,
			want: 1, side: geom.SideBottom, t: 0.5,
			contact: geom.V(5, 0.5), velAfter: geom.V(0, 0.5),
		},
		{
			name: "stops short of the wall",
			c:    geom.V(5, 5), v: geom.V(1, 0), r: 0.5,
			want: 0,
		},
		{
			name: "no motion",
			c:    geom.V(5, 5), v: geom.V(0, 0), r: 0.5,
			want: 0,
		},
		{
			name: "on the plane heading out",
			c:    geom.V(0.5, 5), v: geom.V(-1, 0), r: 0.5,
			want: 1, side: geom.SideLeft, t: 0,
			contact: geom.V(0.5, 5), velAfter: geom.V(1, 0),
		},
		{
			name: "on the right plane heading out",
			c:    geom.V(9.5, 5), v: geom.V(3, 0), r: 0.5,
			want: 1, side: geom.SideRight, t: 0,
			contact: geom.V(9.5, 5), velAfter: geom.V(-3, 0),
		},
		{
			name: "on the plane heading in",
			c:    geom.V(0.5, 5), v: geom.V(1, 0), r: 0.5,
			want: 0,
		},
		{
			name: "sliding along the plane",
			c:    geom.V(0.5, 5), v: geom.V(0, 1), r: 0.5,
			want: 0,
		},
		{
			name: "rounding just inside the plane",
			c:    geom.V(9.5-2e-6, 5), v: geom.V(1, 0), r: 0.5,
			want: 1, side: geom.SideRight, t: 0,
			contact: geom.V(9.5, 5), velAfter: geom.V(-1, 0),
		},
		{
			name: "penetrating and heading back in",
			c:    geom.V(0.3, 5), v: geom.V(1, 0), r: 0.5,
			want: 0,
		},
		{
			name: "penetrating and heading out",
			c:    geom.V(0.3, 5), v: geom.V(-1, 0), r: 0.5,
			want: 1, side: geom.SideLeft, t: 0,
			contact: geom.V(0.5, 5), velAfter: geom.V(1, 0),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SweepBoundaries(tt.c, tt.v, tt.r, planes[:], nil)
			if len(got) != tt.want {
				t.Fatalf("got %d candidates, want %d: %+v", len(got), tt.want, got)
			}
			if tt.want == 0 {
				return
			}
			c := got[0]
			if c.Kind != HitPlane || c.Side != tt.side {
				t.Errorf("kind/side = %v/%v, want plane/%v", c.Kind, c.Side, tt.side)
			}
			if !approx(c.T, tt.t, 1e-6) {
				t.Errorf("T = %g, want %g", c.T, tt.t)
			}
			if !geom.ApproxEqual(c.Contact, tt.contact, 1e-5) {
				t.Errorf("Contact = %v, want %v", c.Contact, tt.contact)
			}
			if c.PositionAfter != c.Contact {
				t.Errorf("PositionAfter = %v, want contact %v", c.PositionAfter, c.Contact)
			}
			if !geom.ApproxEqual(c.VelocityAfter, tt.velAfter, 1e-5) {
				t.Errorf("VelocityAfter = %v, want %v", c.VelocityAfter, tt.velAfter)
			}
			if c.T < 0 || c.T >= 1 {
				t.Errorf("T = %g outside [0,1)", c.T)
			}
		})
	}
}

func TestSweepBoundariesCorner(t *testing.T) {
	planes := geom.BoundaryPlanes(10, 10)
	got := SweepBoundaries(geom.V(9, 9), geom.V(2, 2), 0.5, planes[:], nil)
	if len(got) != 2 {
		t.Fatalf("got %d candidates, want 2", len(got))
	}
	win, ok := Earliest(got)
	if !ok || win.Side != geom.SideRight {
		t.Errorf("tie should keep the first candidate found, got %v", win.Side)
	}
}

func TestEarliest(t *testing.T) {
	if _, ok := Earliest(nil); ok {
		t.Error("Earliest(nil) reported a winner")
	}
	cands := []Collision{
		{T: 0.7, Kind: HitPlane},
		{T: 0.2, Kind: HitBody, Other: 3},
		{T: 0.2, Kind: HitPlane},
		{T: 0.9, Kind: HitPlane},
	}
	win, ok := Earliest(cands)
	if !ok || win.T != 0.2 || win.Kind != HitBody || win.Other != 3 {
		t.Errorf("Earliest = %+v", win)
	}
}

func TestSweepBody(t *testing.T) {
	a := NewBody(geom.V(0, 0), 0.5, geom.V(4, 0))
	b := NewBody(geom.V(3, 0), 0.5, geom.Vec2{})

	c, ok := SweepBody(a, b, 7, 1)
	if !ok {
		t.Fatal("expected a contact")
	}
	if c.Kind != HitBody || c.Other != 7 {
		t.Errorf("kind/other = %v/%d", c.Kind, c.Other)
	}
	if !approx(c.T, 0.5, 1e-6) || !geom.ApproxEqual(c.Contact, geom.V(2, 0), 1e-5) {
		t.Errorf("T = %g contact = %v, want 0.5 (2,0)", c.T, c.Contact)
	}

	// Too slow to meet within the step.
	a.SetVelocity(geom.V(1, 0))
	if _, ok := SweepBody(a, b, 7, 1); ok {
		t.Error("slow body reported a contact")
	}

	// Already touching and closing gives t = 0.
	a.SetPosition(geom.V(2.2, 0))
	c, ok = SweepBody(a, b, 7, 1)
	if !ok || c.T != 0 {
		t.Errorf("overlapping closing pair: %+v %v", c, ok)
	}

	// Overlapping but separating is ignored.
	a.SetVelocity(geom.V(-1, 0))
	if _, ok := SweepBody(a, b, 7, 1); ok {
		t.Error("separating overlap reported a contact")
	}
}
