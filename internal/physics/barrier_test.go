package physics

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestBarrierWaitsForAllArrivals(t *testing.T) {
	b := NewBarrier()
	const n = 8

	for round := 0; round < 3; round++ {
		b.Reset(n)
		var arrived atomic.Int32
		for i := 0; i < n; i++ {
			go func() {
				time.Sleep(time.Millisecond)
				arrived.Add(1)
				b.Arrive(nil)
			}()
		}
		if errs := b.Wait(); errs != nil {
			t.Fatalf("round %d: unexpected errors %v", round, errs)
		}
		if got := arrived.Load(); got != n {
			t.Fatalf("round %d: Wait returned after %d arrivals", round, got)
		}
		if b.Pending() != 0 {
			t.Errorf("round %d: pending = %d", round, b.Pending())
		}
	}
}

func TestBarrierCollectsErrors(t *testing.T) {
	b := NewBarrier()
	b.Reset(3)
	boom := errors.New("boom")

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i == 1 {
				b.Arrive(boom)
				return
			}
			b.Arrive(nil)
		}(i)
	}
	errs := b.Wait()
	wg.Wait()
	if len(errs) != 1 || !errors.Is(errs[0], boom) {
		t.Errorf("errors = %v", errs)
	}

	b.Reset(1)
	b.Arrive(nil)
	if errs := b.Wait(); errs != nil {
		t.Errorf("Reset did not clear errors: %v", errs)
	}
}

func TestBarrierZeroArrivals(t *testing.T) {
	b := NewBarrier()
	b.Reset(0)
	done := make(chan struct{})
	go func() {
		b.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait blocked on an empty round")
	}
}
