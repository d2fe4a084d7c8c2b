// Package mpsc implements a bounded lock-free multi-producer/single-consumer
// ring buffer.
//
// Each slot carries a sequence number (Vyukov's bounded queue), so a
// producer publishes an item only after it is fully written and the consumer
// never observes a half-written slot. Head and tail live on separate cache
// lines.
package mpsc

import (
	"runtime"
	"sync/atomic"
)

// CacheLineSize is the typical CPU cache line size (64 bytes on x86-64).
const CacheLineSize = 64

type padding [CacheLineSize]byte

type slot[T any] struct {
	seq  atomic.Uint64
	item T
}

// Queue is a bounded MPSC ring. Push is safe from any number of goroutines;
// Pop and Drain must only be called from one goroutine at a time.
type Queue[T any] struct {
	_    padding
	head atomic.Uint64 // next slot to claim (producers)
	_    padding
	tail atomic.Uint64 // next slot to read (consumer)
	_    padding

	mask  uint64
	slots []slot[T]
}

// New creates a queue holding at least capacity items. Capacity is rounded
// up to a power of two.
func New[T any](capacity int) *Queue[T] {
	n := 1
	for n < capacity {
		n <<= 1
	}
	q := &Queue[T]{
		mask:  uint64(n - 1),
		slots: make([]slot[T], n),
	}
	for i := range q.slots {
		q.slots[i].seq.Store(uint64(i))
	}
	return q
}

// TryPush adds item and reports false when the queue is full.
func (q *Queue[T]) TryPush(item T) bool {
	for {
		pos := q.head.Load()
		s := &q.slots[pos&q.mask]
		seq := s.seq.Load()

		switch {
		case seq == pos:
			if q.head.CompareAndSwap(pos, pos+1) {
				s.item = item
				s.seq.Store(pos + 1)
				return true
			}
		case seq < pos:
			// Slot still holds an unread item from the previous lap.
			return false
		}
		runtime.Gosched()
	}
}

// TryPop removes the oldest published item.
func (q *Queue[T]) TryPop() (T, bool) {
	var zero T
	pos := q.tail.Load()
	s := &q.slots[pos&q.mask]
	if s.seq.Load() != pos+1 {
		return zero, false
	}
	item := s.item
	s.item = zero
	s.seq.Store(pos + q.mask + 1)
	q.tail.Store(pos + 1)
	return item, true
}

// Drain pops up to max items into dst and returns it.
func (q *Queue[T]) Drain(dst []T, max int) []T {
	for i := 0; i < max; i++ {
		item, ok := q.TryPop()
		if !ok {
			break
		}
		dst = append(dst, item)
	}
	return dst
}

// Len returns an approximate number of queued items.
func (q *Queue[T]) Len() int {
	h, t := q.head.Load(), q.tail.Load()
	if h < t {
		return 0
	}
	return int(h - t)
}

// Cap returns the ring capacity.
func (q *Queue[T]) Cap() int {
	return len(q.slots)
}
