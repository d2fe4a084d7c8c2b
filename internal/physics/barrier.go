package physics

import "sync"

// Barrier is a reusable count-down latch. Reset arms it for n arrivals,
// workers call Arrive once each, and Wait blocks until all of them have.
type Barrier struct {
	mu      sync.Mutex
	cond    *sync.Cond
	pending int
	gen     uint64
	errs    []error
}

// NewBarrier returns a disarmed barrier.
func NewBarrier() *Barrier {
	b := &Barrier{}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Reset arms the barrier for n arrivals and clears recorded errors. It must
// not be called while a Wait on the previous round is still pending.
func (b *Barrier) Reset(n int) {
	b.mu.Lock()
	b.pending = n
	b.errs = b.errs[:0]
	b.gen++
	b.mu.Unlock()
}

// Arrive records one arrival. A non-nil err is kept for Wait.
func (b *Barrier) Arrive(err error) {
	b.mu.Lock()
	if err != nil {
		b.errs = append(b.errs, err)
	}
	if b.pending > 0 {
		b.pending--
		if b.pending == 0 {
			b.cond.Broadcast()
		}
	}
	b.mu.Unlock()
}

// Wait blocks until every expected arrival has happened and returns the
// errors reported by the round.
func (b *Barrier) Wait() []error {
	b.mu.Lock()
	defer b.mu.Unlock()
	gen := b.gen
	for b.pending > 0 && gen == b.gen {
		b.cond.Wait()
	}
	if len(b.errs) == 0 {
		return nil
	}
	out := make([]error, len(b.errs))
	copy(out, b.errs)
	return out
}

// Pending returns the number of arrivals still expected.
func (b *Barrier) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pending
}
