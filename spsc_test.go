package qpool

import (
	"fmt"
	"sync"
	"testing"
)

// Basic sanity: sequential push/pop, no wraparound.
func TestRingSPSCSequential(t *testing.T) {
	const capacity = 16

	r := NewRingSPSC[int](capacity)

	for i := 0; i < 5; i++ {
		if !r.TryPush(i) {
			t.Fatalf("push failed at %d (ring unexpectedly full)", i)
		}
	}

	for i := 0; i < 5; i++ {
		v, ok := r.TryPop()
		if !ok {
			t.Fatalf("pop failed at %d (ring unexpectedly empty)", i)
		}
		if v != i {
			t.Fatalf("expected %d, got %d (FIFO violated)", i, v)
		}
	}

	if v, ok := r.TryPop(); ok {
		t.Fatalf("expected empty ring, got value=%v", v)
	}
}

// Capacity/overflow: usable capacity is N-1, not N.
func TestRingSPSCCapacityOverflow(t *testing.T) {
	const capacity = 8
	r := NewRingSPSC[int](capacity)

	for i := 0; i < capacity-1; i++ {
		if !r.TryPush(i) {
			t.Fatalf("push failed at %d (ring unexpectedly full)", i)
		}
	}

	if r.TryPush(999) {
		t.Fatalf("expected overflow (push should return false), but got true")
	}
	if got := r.Capacity(); got != capacity-1 {
		t.Fatalf("expected Capacity()=%d, got %d", capacity-1, got)
	}
}

// Wraparound: repeatedly fill and drain past the end of the backing array
// many times over, to make sure head/tail masking is correct.
func TestRingSPSCWraparound(t *testing.T) {
	const (
		capacity = 4
		rounds   = 10_000
	)
	r := NewRingSPSC[int](capacity)

	next := 0
	for round := 0; round < rounds; round++ {
		for i := 0; i < capacity-1; i++ {
			if !r.TryPush(next) {
				t.Fatalf("push failed at round %d item %d", round, i)
			}
			next++
		}
		for i := 0; i < capacity-1; i++ {
			v, ok := r.TryPop()
			if !ok {
				t.Fatalf("pop failed at round %d item %d", round, i)
			}
			want := next - (capacity - 1) + i
			if v != want {
				t.Fatalf("round %d: expected %d, got %d", round, want, v)
			}
		}
	}
}

func TestRingSPSCTryPopInto(t *testing.T) {
	r := NewRingSPSC[string](4)

	var dst string
	if r.TryPopInto(&dst) {
		t.Fatalf("expected TryPopInto to fail on empty ring")
	}

	r.TryPush("hello")
	if !r.TryPopInto(&dst) {
		t.Fatalf("expected TryPopInto to succeed")
	}
	if dst != "hello" {
		t.Fatalf("expected %q, got %q", "hello", dst)
	}
}

func TestRingSPSCEmpty(t *testing.T) {
	r := NewRingSPSC[int](4)
	if !r.Empty() {
		t.Fatalf("expected new ring to be empty")
	}
	r.TryPush(1)
	if r.Empty() {
		t.Fatalf("expected non-empty ring after push")
	}
	r.TryPop()
	if !r.Empty() {
		t.Fatalf("expected ring to be empty again after pop")
	}
}

func TestNewRingSPSCPanicsOnBadCapacity(t *testing.T) {
	cases := []uint64{0, 1, 3, 5, 6, 7}
	for _, c := range cases {
		func() {
			defer func() {
				if recover() == nil {
					t.Errorf("capacity %d: expected panic", c)
				}
			}()
			NewRingSPSC[int](c)
		}()
	}
}

// Concurrent test: one producer, one consumer, racing for real. Checks
// conservation (every pushed value is popped exactly once, in order).
func TestRingSPSCConcurrent(t *testing.T) {
	const (
		capacity = 1 << 8
		N        = 1_000_000
	)

	r := NewRingSPSC[int](capacity)
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < N; i++ {
			for !r.TryPush(i) {
			}
		}
	}()

	errs := make(chan error, 1)
	go func() {
		defer wg.Done()
		for i := 0; i < N; i++ {
			var v int
			for !r.TryPopInto(&v) {
			}
			if v != i {
				select {
				case errs <- fmt.Errorf("expected %d, got %d (FIFO violated)", i, v):
				default:
				}
				return
			}
		}
	}()

	wg.Wait()
	close(errs)
	if err := <-errs; err != nil {
		t.Fatal(err)
	}
}
