package render

import (
	"bytes"
	"io"
	"sync"
	"sync/atomic"

	"sphere-field/internal/physics"
)

// DefaultCachedFrames is the number of encoded frames kept by a FrameCache.
const DefaultCachedFrames = 4

// FrameCache keeps the PNG encoding of the last few snapshots, keyed by
// snapshot sequence, with LRU eviction. Pollers hitting /api/frame.png
// faster than the tick rate share one render.
type FrameCache struct {
	renderer *Renderer

	mu      sync.Mutex
	frames  map[uint64][]byte
	order   []uint64 // LRU order (oldest first)
	maxSize int

	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewFrameCache wraps r.
func NewFrameCache(r *Renderer, maxSize int) *FrameCache {
	if maxSize <= 0 {
		maxSize = DefaultCachedFrames
	}
	return &FrameCache{
		renderer: r,
		frames:   make(map[uint64][]byte, maxSize),
		order:    make([]uint64, 0, maxSize),
		maxSize:  maxSize,
	}
}

// WritePNG writes the cached frame for snap, rendering it on a miss.
// Unpublished snapshots (sequence 0) are never cached.
func (c *FrameCache) WritePNG(w io.Writer, snap *physics.Snapshot) error {
	if snap == nil || snap.Sequence == 0 {
		c.misses.Add(1)
		return c.renderer.WritePNG(w, snap)
	}

	if frame := c.get(snap.Sequence); frame != nil {
		c.hits.Add(1)
		_, err := w.Write(frame)
		return err
	}

	c.misses.Add(1)
	var buf bytes.Buffer
	if err := c.renderer.WritePNG(&buf, snap); err != nil {
		return err
	}
	c.put(snap.Sequence, buf.Bytes())
	_, err := w.Write(buf.Bytes())
	return err
}

func (c *FrameCache) get(seq uint64) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	frame, ok := c.frames[seq]
	if !ok {
		return nil
	}
	c.touch(seq)
	return frame
}

func (c *FrameCache) put(seq uint64, frame []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.frames[seq]; ok {
		c.touch(seq)
		return
	}
	for len(c.order) >= c.maxSize {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.frames, oldest)
	}
	c.frames[seq] = frame
	c.order = append(c.order, seq)
}

// touch moves seq to the back of the LRU order. Callers hold c.mu.
func (c *FrameCache) touch(seq uint64) {
	for i, s := range c.order {
		if s == seq {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	c.order = append(c.order, seq)
}

// Len returns the number of cached frames.
func (c *FrameCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

// Stats returns cache hits and misses.
func (c *FrameCache) Stats() (hits, misses uint64) {
	return c.hits.Load(), c.misses.Load()
}
