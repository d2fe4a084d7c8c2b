package physics

import (
	"fmt"
	"testing"

	"sphere-field/internal/geom"
)

func TestPartitionCoversColumns(t *testing.T) {
	tests := []struct {
		workers, columns int
		wantParts        int
	}{
		{4, 10, 4},
		{4, 3, 3},
		{1, 7, 1},
		{16, 16, 16},
	}
	for _, tt := range tests {
		p := newPipeline(tt.workers)
		p.partition(tt.columns)
		if len(p.partitions) != tt.wantParts {
			t.Errorf("%d workers, %d columns: %d partitions, want %d", tt.workers, tt.columns, len(p.partitions), tt.wantParts)
			continue
		}
		next := 0
		for _, part := range p.partitions {
			if part.colStart != next || part.colEnd <= part.colStart {
				t.Errorf("%d workers, %d columns: bad range [%d,%d) after %d", tt.workers, tt.columns, part.colStart, part.colEnd, next)
			}
			next = part.colEnd
		}
		if next != tt.columns {
			t.Errorf("%d workers, %d columns: ranges end at %d", tt.workers, tt.columns, next)
		}
	}
}

func TestNewPipelineCapsWorkers(t *testing.T) {
	if p := newPipeline(64); p.numWorkers != MaxWorkers {
		t.Errorf("numWorkers = %d, want %d", p.numWorkers, MaxWorkers)
	}
	if p := newPipeline(0); p.numWorkers < 1 {
		t.Errorf("numWorkers = %d, want at least 1", p.numWorkers)
	}
}

func TestResolveBodyRecoversPanic(t *testing.T) {
	store := NewStore(1)
	g, err := NewGrid(10, 10, 5, 5, store)
	if err != nil {
		t.Fatal(err)
	}
	h := store.Add(NewBody(geom.V(5, 5), 0.5, geom.V(1, 0)))
	g.Insert(h)

	// A plane candidate with an unknown side and no usable velocity makes
	// the resolver index past the boundary planes.
	b := store.Get(h)
	b.candidates = []Collision{{T: 0.1, Kind: HitPlane, Side: geom.Side(7), Contact: geom.V(5, 5)}}
	b.SetVelocity(geom.Vec2{})

	part := &partition{colEnd: 5}
	ctx := &stepContext{step: 1, dt: 1, grid: g, store: store, dom: newDomain(10, 10), maxBounces: 1}
	resolveBody(h, part, ctx)

	if part.stats.faults != 1 {
		t.Fatalf("faults = %d, want 1", part.stats.faults)
	}
	if b.Position() != geom.V(5, 5) {
		t.Errorf("position = %v, want the saved position", b.Position())
	}
	if len(g.Membership()[h]) != 1 {
		t.Error("body lost its bucket after a recovered panic")
	}
}

func TestPipelineStateString(t *testing.T) {
	names := map[PipelineState]string{
		StateIdle:        "idle",
		StateDetecting:   "detecting",
		StateBarrier1:    "barrier1",
		StateReassigning: "reassigning",
		StateBarrier2:    "barrier2",
	}
	for s, want := range names {
		if s.String() != want {
			t.Errorf("%d.String() = %q, want %q", s, s.String(), want)
		}
	}
}

func TestExchangePairsSettlesStaleContacts(t *testing.T) {
	tests := []struct {
		name          string
		partner       geom.Vec2
		wantExchanges int
		wantStopper   geom.Vec2
	}{
		{"partner bounced into overlap", geom.V(4.9, 5), 1, geom.V(3.9, 5)},
		{"partner bounced out of reach", geom.V(6, 5), 0, geom.V(4, 5)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewStore(2)
			g, err := NewGrid(10, 10, 5, 5, store)
			if err != nil {
				t.Fatal(err)
			}
			// a stopped against b, b applied a wall contact instead.
			a := NewBody(geom.V(4, 5), 0.5, geom.V(2, 0))
			a.hit, a.hitOther = HitBody, 1
			b := NewBody(tt.partner, 0.5, geom.V(-1, 0))
			b.hit = HitPlane
			g.Insert(store.Add(a))
			g.Insert(store.Add(b))

			ctx := &stepContext{step: 1, dt: 1, grid: g, store: store, dom: newDomain(10, 10), maxBounces: 1}
			n := exchangePairs([]bodyPair{makePair(0, 1)}, ctx)

			if n != tt.wantExchanges {
				t.Errorf("exchanges = %d, want %d", n, tt.wantExchanges)
			}
			if !geom.ApproxEqual(a.Position(), tt.wantStopper, 1e-5) {
				t.Errorf("stopped body at %v, want %v", a.Position(), tt.wantStopper)
			}
			if b.Position() != tt.partner {
				t.Errorf("partner moved to %v", b.Position())
			}
			if err := validateMembership(g, store); err != nil {
				t.Error(err)
			}
		})
	}
}

func validateMembership(g *Grid, store *Store) error {
	m := g.Membership()
	for i := 0; i < store.Len(); i++ {
		h := Handle(i)
		if cells := m[h]; len(cells) != 1 || cells[0] != g.CellOf(store.Get(h).Position()) {
			return fmt.Errorf("body %d filed in %v", h, cells)
		}
	}
	return nil
}
