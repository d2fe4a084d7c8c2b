package physics

import (
	"fmt"
	"sync"

	"sphere-field/internal/geom"

	"github.com/chewxy/math32"
)

// CellIndex addresses a grid cell as x + columns*y.
type CellIndex int

// bucket is the set of bodies filed under one cell. Its lock serializes
// concurrent reassignment into and out of the cell.
type bucket struct {
	mu      sync.Mutex
	handles []Handle
}

func (b *bucket) add(h Handle) {
	b.mu.Lock()
	b.handles = append(b.handles, h)
	b.mu.Unlock()
}

func (b *bucket) remove(h Handle) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, x := range b.handles {
		if x == h {
			last := len(b.handles) - 1
			b.handles[i] = b.handles[last]
			b.handles = b.handles[:last]
			return true
		}
	}
	return false
}

// Grid partitions the domain into rows x columns cells and files every body
// handle under the cell containing its centre.
//
// Memory layout: buckets are a dense slice in row-major order
// (buckets[x + columns*y]), preallocated for the whole grid.
//
// Read paths (neighbour scans) take no locks and must not run concurrently
// with Reassign; the simulation's phases guarantee that.
type Grid struct {
	width, height         float32
	rows, columns         int
	cellWidth, cellHeight float32

	buckets []bucket
	store   *Store
}

// NewGrid creates an empty grid over [0,width] x [0,height].
func NewGrid(width, height float32, rows, columns int, store *Store) (*Grid, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("grid extent must be positive, got %gx%g", width, height)
	}
	if rows <= 0 || columns <= 0 {
		return nil, fmt.Errorf("grid must have at least one row and column, got %dx%d", rows, columns)
	}
	return &Grid{
		width:      width,
		height:     height,
		rows:       rows,
		columns:    columns,
		cellWidth:  width / float32(columns),
		cellHeight: height / float32(rows),
		buckets:    make([]bucket, rows*columns),
		store:      store,
	}, nil
}

// Dimensions returns the grid shape and cell size.
func (g *Grid) Dimensions() (rows, columns int, cellWidth, cellHeight float32) {
	return g.rows, g.columns, g.cellWidth, g.cellHeight
}

// Clear empties every bucket, keeping capacity.
func (g *Grid) Clear() {
	for i := range g.buckets {
		g.buckets[i].handles = g.buckets[i].handles[:0]
	}
}

// Insert files h under the cell of its current position. The caller must
// not insert a handle twice.
func (g *Grid) Insert(h Handle) {
	b := g.store.Get(h)
	c := g.CellOf(b.position)
	g.buckets[c].add(h)
	b.cell = c
}

// CellOf hashes a position to its cell. Coordinates wrap modulo the grid
// shape; callers are responsible for keeping positions inside the domain.
func (g *Grid) CellOf(p geom.Vec2) CellIndex {
	x := floorMod(int(math32.Floor(p[0]/g.cellWidth)), g.columns)
	y := floorMod(int(math32.Floor(p[1]/g.cellHeight)), g.rows)
	return g.index(x, y)
}

func (g *Grid) index(x, y int) CellIndex {
	return CellIndex(x + g.columns*y)
}

func (g *Grid) coords(c CellIndex) (x, y int) {
	return int(c) % g.columns, int(c) / g.columns
}

func floorMod(a, n int) int {
	m := a % n
	if m < 0 {
		m += n
	}
	return m
}

// Neighbors returns c and its up to 8 surrounding cells, dropping any that
// fall outside the grid.
func (g *Grid) Neighbors(c CellIndex) []CellIndex {
	var buf [9]CellIndex
	n := g.neighbors(c, &buf)
	out := make([]CellIndex, n)
	copy(out, buf[:n])
	return out
}

func (g *Grid) neighbors(c CellIndex, buf *[9]CellIndex) int {
	cx, cy := g.coords(c)
	n := 0
	for dy := -1; dy <= 1; dy++ {
		y := cy + dy
		if y < 0 || y >= g.rows {
			continue
		}
		for dx := -1; dx <= 1; dx++ {
			x := cx + dx
			if x < 0 || x >= g.columns {
				continue
			}
			buf[n] = g.index(x, y)
			n++
		}
	}
	return n
}

// ForEachNeighbor calls fn for every body other than h filed in the 9-cell
// neighbourhood of h's current position. Iteration stops when fn returns
// true.
func (g *Grid) ForEachNeighbor(h Handle, fn func(o Handle, ob *Body) bool) {
	var buf [9]CellIndex
	n := g.neighbors(g.CellOf(g.store.Get(h).position), &buf)
	for _, c := range buf[:n] {
		for _, o := range g.buckets[c].handles {
			if o == h {
				continue
			}
			if fn(o, g.store.Get(o)) {
				return
			}
		}
	}
}

// FirstIntersecting returns the first body found overlapping h.
func (g *Grid) FirstIntersecting(h Handle) (Handle, bool) {
	b := g.store.Get(h)
	var hit Handle
	found := false
	g.ForEachNeighbor(h, func(o Handle, ob *Body) bool {
		if b.Intersects(ob) {
			hit, found = o, true
		}
		return found
	})
	return hit, found
}

// AnyIntersecting reports whether any body overlaps h.
func (g *Grid) AnyIntersecting(h Handle) bool {
	_, ok := g.FirstIntersecting(h)
	return ok
}

// intersectingExcept reports whether h overlaps any body other than skip.
func (g *Grid) intersectingExcept(h, skip Handle) bool {
	b := g.store.Get(h)
	found := false
	g.ForEachNeighbor(h, func(o Handle, ob *Body) bool {
		found = o != skip && b.Intersects(ob)
		return found
	})
	return found
}

// Reassign refiles h if its position now hashes to a different cell and
// reports whether it moved. Each bucket is locked only while it is edited,
// one at a time.
func (g *Grid) Reassign(h Handle) bool {
	b := g.store.Get(h)
	next := g.CellOf(b.position)
	if next == b.cell {
		return false
	}
	if b.cell >= 0 && int(b.cell) < len(g.buckets) {
		g.buckets[b.cell].remove(h)
	}
	g.buckets[next].add(h)
	b.cell = next
	return true
}

// Bucket returns a copy of the handles filed under c.
func (g *Grid) Bucket(c CellIndex) []Handle {
	bk := &g.buckets[c]
	bk.mu.Lock()
	defer bk.mu.Unlock()
	out := make([]Handle, len(bk.handles))
	copy(out, bk.handles)
	return out
}

// Membership maps every filed handle to the cells it appears in. A
// consistent grid has exactly one entry per body.
func (g *Grid) Membership() map[Handle][]CellIndex {
	m := make(map[Handle][]CellIndex)
	for i := range g.buckets {
		for _, h := range g.buckets[i].handles {
			m[h] = append(m[h], CellIndex(i))
		}
	}
	return m
}

// Stats returns occupancy figures for debugging.
func (g *Grid) Stats() GridStats {
	var total, maxInCell, nonEmpty int
	for i := range g.buckets {
		n := len(g.buckets[i].handles)
		total += n
		if n > maxInCell {
			maxInCell = n
		}
		if n > 0 {
			nonEmpty++
		}
	}
	avg := 0.0
	if nonEmpty > 0 {
		avg = float64(total) / float64(nonEmpty)
	}
	return GridStats{
		TotalCells:     len(g.buckets),
		NonEmptyCells:  nonEmpty,
		TotalBodies:    total,
		MaxInCell:      maxInCell,
		AvgPerNonEmpty: avg,
	}
}

// GridStats contains grid statistics for debugging.
type GridStats struct {
	TotalCells     int     `json:"totalCells"`
	NonEmptyCells  int     `json:"nonEmptyCells"`
	TotalBodies    int     `json:"totalBodies"`
	MaxInCell      int     `json:"maxInCell"`
	AvgPerNonEmpty float64 `json:"avgPerNonEmpty"`
}
