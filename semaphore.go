package qpool

// Semaphore is a counting semaphore used to put pool workers to sleep and
// wake them again on submission or shutdown.
//
// It is backed by a buffered channel of struct{} rather than a mutex and
// condition variable: struct{} occupies zero bytes, so a channel sized to
// the largest permit count this pool will ever need costs nothing beyond
// the channel header itself, and Acquire/Release fall out of plain
// channel receive/send with no locking on our part.
//
// FIFO wake order is not guaranteed; wake-one-on-release is sufficient,
// per the pool's needs. Overflowing the permit count is a programmer error:
// max must exceed the largest number of outstanding tasks the owning pool
// will ever observe, plus its worker count.
type Semaphore struct {
	tokens chan struct{}
}

// NewSemaphore creates a semaphore with zero permits and the given maximum.
func NewSemaphore(max uint64) *Semaphore {
	if max == 0 {
		panic("qpool: semaphore max must be > 0")
	}
	return &Semaphore{tokens: make(chan struct{}, max)}
}

// Acquire blocks until a permit is available, then consumes it.
func (s *Semaphore) Acquire() {
	<-s.tokens
}

// TryAcquire consumes a permit if one is immediately available, without
// blocking.
func (s *Semaphore) TryAcquire() bool {
	select {
	case <-s.tokens:
		return true
	default:
		return false
	}
}

// Release adds n permits, waking up to n waiters. Release panics if it
// would push the permit count past the semaphore's configured maximum.
// Under the pool's intended usage this can't happen (see the Semaphore
// doc comment), so it signals a real capacity miscalculation rather than
// a condition to recover from.
func (s *Semaphore) Release(n uint64) {
	for i := uint64(0); i < n; i++ {
		select {
		case s.tokens <- struct{}{}:
		default:
			panic("qpool: semaphore release exceeded configured maximum permits")
		}
	}
}
