package physics

import (
	"sort"
	"testing"

	"sphere-field/internal/geom"
)

func newTestGrid(t *testing.T) (*Grid, *Store) {
	t.Helper()
	store := NewStore(16)
	g, err := NewGrid(10, 10, 5, 5, store)
	if err != nil {
		t.Fatalf("NewGrid: %v", err)
	}
	return g, store
}

func TestNewGridRejectsBadShape(t *testing.T) {
	tests := []struct {
		name          string
		w, h          float32
		rows, columns int
	}{
		{"zero width", 0, 10, 5, 5},
		{"negative height", 10, -1, 5, 5},
		{"no rows", 10, 10, 0, 5},
		{"no columns", 10, 10, 5, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewGrid(tt.w, tt.h, tt.rows, tt.columns, NewStore(0)); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestCellOf(t *testing.T) {
	g, _ := newTestGrid(t)
	tests := []struct {
		p    geom.Vec2
		want CellIndex
	}{
		{geom.V(0, 0), 0},
		{geom.V(1.99, 1.99), 0},
		{geom.V(3, 5), 11},
		{geom.V(9.5, 9.5), 24},
		{geom.V(10, 10), 0},
		{geom.V(-0.5, 0), 4},
	}
	for _, tt := range tests {
		if got := g.CellOf(tt.p); got != tt.want {
			t.Errorf("CellOf(%v) = %d, want %d", tt.p, got, tt.want)
		}
	}
}

func TestNeighbors(t *testing.T) {
	g, _ := newTestGrid(t)
	tests := []struct {
		name string
		c    CellIndex
		want []CellIndex
	}{
		{"corner", 0, []CellIndex{0, 1, 5, 6}},
		{"edge", 4, []CellIndex{3, 4, 8, 9}},
		{"interior", 12, []CellIndex{6, 7, 8, 11, 12, 13, 16, 17, 18}},
		{"far corner", 24, []CellIndex{18, 19, 23, 24}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := g.Neighbors(tt.c)
			sort.Slice(got, func(i, j int) bool { return got[i] < got[j] })
			if len(got) != len(tt.want) {
				t.Fatalf("Neighbors(%d) = %v, want %v", tt.c, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("Neighbors(%d) = %v, want %v", tt.c, got, tt.want)
				}
			}
		})
	}
}

func TestInsertAndIntersecting(t *testing.T) {
	g, store := newTestGrid(t)
	a := store.Add(NewBody(geom.V(1.8, 1.8), 0.5, geom.Vec2{}))
	b := store.Add(NewBody(geom.V(2.2, 2.2), 0.5, geom.Vec2{}))
	c := store.Add(NewBody(geom.V(8, 8), 0.5, geom.Vec2{}))
	for _, h := range []Handle{a, b, c} {
		g.Insert(h)
	}

	if store.Get(a).cell != 0 || store.Get(b).cell != 6 {
		t.Errorf("cells = %d,%d want 0,6", store.Get(a).cell, store.Get(b).cell)
	}

	// a and b sit in different cells but are neighbours.
	if other, ok := g.FirstIntersecting(a); !ok || other != b {
		t.Errorf("FirstIntersecting(a) = %d,%v want %d,true", other, ok, b)
	}
	if !g.AnyIntersecting(b) {
		t.Error("b should intersect a")
	}
	if g.AnyIntersecting(c) {
		t.Error("c should be alone")
	}
	if g.intersectingExcept(a, b) {
		t.Error("a overlaps only b")
	}

	st := g.Stats()
	if st.TotalBodies != 3 || st.NonEmptyCells != 3 || st.TotalCells != 25 {
		t.Errorf("Stats = %+v", st)
	}
}

func TestReassign(t *testing.T) {
	g, store := newTestGrid(t)
	h := store.Add(NewBody(geom.V(1, 1), 0.5, geom.Vec2{}))
	g.Insert(h)

	if g.Reassign(h) {
		t.Error("unmoved body was reassigned")
	}

	store.Get(h).SetPosition(geom.V(5, 5))
	if !g.Reassign(h) {
		t.Fatal("moved body was not reassigned")
	}
	if g.Reassign(h) {
		t.Error("second Reassign should be a no-op")
	}

	m := g.Membership()
	cells := m[h]
	if len(cells) != 1 || cells[0] != g.CellOf(geom.V(5, 5)) {
		t.Errorf("membership = %v, want [%d]", cells, g.CellOf(geom.V(5, 5)))
	}
	if len(g.Bucket(0)) != 0 {
		t.Errorf("old bucket still holds %v", g.Bucket(0))
	}
}

func TestClearKeepsShape(t *testing.T) {
	g, store := newTestGrid(t)
	g.Insert(store.Add(NewBody(geom.V(1, 1), 0.5, geom.Vec2{})))
	g.Clear()
	if len(g.Membership()) != 0 {
		t.Error("Clear left handles behind")
	}
	rows, columns, cw, ch := g.Dimensions()
	if rows != 5 || columns != 5 || cw != 2 || ch != 2 {
		t.Errorf("Dimensions = %d %d %g %g", rows, columns, cw, ch)
	}
}
