package qpool

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/valyala/fastrand"
)

// Task is the callable a Pool executes. Go's function values are already a
// type-erased, single-invoke-capability callable, so there's no need for a
// polymorphic holder type the way a non-closure language would want one.
type Task func()

// FullQueuePolicy selects what Pool.Submit does when the internal queue is
// full.
type FullQueuePolicy int

const (
	// CallerRuns executes the task synchronously on the submitting
	// goroutine. This is the default: it provides natural backpressure and
	// never blocks, but a task that itself submits to the same pool can
	// grow the caller's stack without bound.
	CallerRuns FullQueuePolicy = iota
	// SpinYield retries the enqueue with a randomized, capped backoff until
	// space is available. It can deadlock a pool whose workers are
	// themselves blocked submitting back to the same queue; only use it
	// when tasks never submit to the pool they run in.
	SpinYield
)

// Option configures a Pool at construction time.
type Option func(*poolConfig)

type poolConfig struct {
	policy            FullQueuePolicy
	semaphoreHeadroom uint64
	spinYieldMaxSpin  uint32
}

// WithFullQueuePolicy overrides the default CallerRuns policy.
func WithFullQueuePolicy(p FullQueuePolicy) Option {
	return func(c *poolConfig) { c.policy = p }
}

// WithSemaphoreHeadroom adds extra permit headroom on top of
// queueCapacity+workers when sizing the pool's internal semaphore. Most
// callers never need this; it exists for pools that call Release from
// outside the normal submit/shutdown paths in tests or benchmarks.
func WithSemaphoreHeadroom(n uint64) Option {
	return func(c *poolConfig) { c.semaphoreHeadroom = n }
}

// WithSpinYieldBackoff caps the randomized jitter of the SpinYield policy:
// after a failed enqueue attempt it calls runtime.Gosched a random number
// of times, at most maxSpin-1, before retrying (every maxSpin-th failed
// attempt yields exactly once). Ignored unless
// WithFullQueuePolicy(SpinYield) is also set. maxSpin must be >= 1;
// NewPool panics otherwise.
func WithSpinYieldBackoff(maxSpin uint32) Option {
	return func(c *poolConfig) { c.spinYieldMaxSpin = maxSpin }
}

// PoolStats reports pool-level counters. The pool never logs task panics or
// full/empty queue conditions (those are normal control flow); this is the
// pool's whole observability surface.
type PoolStats struct {
	Submitted           uint64
	FastPathEnqueue     uint64
	CallerRun           uint64
	Executed            uint64
	Panicked            uint64
	DiscardedAtShutdown uint64
}

type poolStats struct {
	submitted           atomic.Uint64
	fastPathEnqueue     atomic.Uint64
	callerRun           atomic.Uint64
	executed            atomic.Uint64
	panicked            atomic.Uint64
	discardedAtShutdown atomic.Uint64
}

// Pool is a bounded worker pool: a fixed set of goroutines draining a
// QueueMPMC[Task], gated by a Semaphore. Construct with NewPool; a Pool
// must not be copied after construction.
type Pool struct {
	queue      *QueueMPMC[Task]
	sem        *Semaphore
	wg         sync.WaitGroup
	closed     atomic.Bool // Shutdown called: draining, never touch the queue again
	terminated atomic.Bool // Shutdown returned: every worker has joined
	policy     FullQueuePolicy
	spin       uint32
	workers    int
	stats      poolStats
}

// NewPool constructs and starts a pool of workers workers deep, backed by a
// queue of capacity queueCapacity (rounded up to a power of two). workers
// must be >= 1.
func NewPool(workers int, queueCapacity uint64, opts ...Option) *Pool {
	if workers < 1 {
		panic("qpool: workers must be >= 1")
	}

	cfg := poolConfig{
		policy:           CallerRuns,
		spinYieldMaxSpin: 64,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.spinYieldMaxSpin == 0 {
		panic("qpool: spin-yield backoff must be >= 1")
	}

	capacity := roundUpPow2(queueCapacity)
	semMax := capacity + uint64(workers) + cfg.semaphoreHeadroom

	p := &Pool{
		queue:   NewQueueMPMC[Task](capacity),
		sem:     NewSemaphore(semMax),
		policy:  cfg.policy,
		spin:    cfg.spinYieldMaxSpin,
		workers: workers,
	}

	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.workerLoop()
	}
	return p
}

// Submit hands fn to the pool. On the fast path fn is enqueued and a
// worker is woken to run it. If the queue is full, fn runs according to
// the pool's FullQueuePolicy (CallerRuns by default): synchronously on the
// calling goroutine, guaranteed to have completed by the time Submit
// returns.
//
// Submit returns ErrPoolClosed, without running fn, once the pool has
// fully terminated (Shutdown has returned). While the pool is merely
// draining (Shutdown has been called but workers are still joining),
// Submit still accepts and runs fn via caller-runs; callers must not rely
// on that behavior remaining stable.
func (p *Pool) Submit(fn Task) error {
	if p.terminated.Load() {
		return ErrPoolClosed
	}
	p.stats.submitted.Add(1)

	if p.closed.Load() {
		// Draining: workers are on their way out, so never hand them more
		// queued work; run fn here instead. This can still race a Submit
		// that observed !closed a moment ago and is mid-enqueue below, but
		// that item is covered by discardRemaining if no worker picks it up.
		p.stats.callerRun.Add(1)
		p.runTask(fn)
		return nil
	}

	enqueued := false
	switch p.policy {
	case SpinYield:
		enqueued = p.spinUntilEnqueued(fn)
	default:
		enqueued = p.queue.TryEnqueue(fn)
	}

	if enqueued {
		p.stats.fastPathEnqueue.Add(1)
		p.sem.Release(1)
		return nil
	}

	// Full-queue fallback: caller runs. Also reached by SpinYield if the
	// pool started shutting down mid-spin, so a submitter never blocks
	// forever waiting for queue space that will never free up.
	p.stats.callerRun.Add(1)
	p.runTask(fn)
	return nil
}

// spinUntilEnqueued retries TryEnqueue with a randomized backoff until it
// succeeds or the pool starts shutting down.
func (p *Pool) spinUntilEnqueued(fn Task) bool {
	var spins uint32
	for !p.closed.Load() {
		if p.queue.TryEnqueue(fn) {
			return true
		}
		spins++
		if spins%p.spin == 0 {
			runtime.Gosched()
			continue
		}
		// Jittered micro-backoff: spend a random, small number of
		// Gosched rounds before checking the queue again, so many
		// contending producers don't all retry in lockstep.
		for j := fastrand.Uint32n(spins%p.spin + 1); j > 0; j-- {
			runtime.Gosched()
		}
	}
	return false
}

// workerLoop is the body every pool goroutine runs until shutdown.
func (p *Pool) workerLoop() {
	defer p.wg.Done()
	for {
		p.sem.Acquire() // sleep until work is published or shutdown wakes us

		if p.closed.Load() {
			return
		}

		task, ok := p.queue.TryDequeue()
		for !ok {
			// Another worker may have raced us for the ticket this
			// permit corresponds to, or the ticket was abandoned (see
			// QueueMPMC's doc comment). Retry until either we get a
			// task or shutdown is observed.
			if p.closed.Load() {
				return
			}
			runtime.Gosched()
			task, ok = p.queue.TryDequeue()
		}

		p.runTask(task)
	}
}

// runTask executes fn, recovering any panic so a misbehaving task cannot
// take down a worker goroutine or poison the pool.
func (p *Pool) runTask(fn Task) {
	defer func() {
		if r := recover(); r != nil {
			p.stats.panicked.Add(1)
		}
		p.stats.executed.Add(1)
	}()
	fn()
}

// Shutdown stops the pool at most once. The first call sets the shutdown
// flag (entering Draining: Submit still runs fn via caller-runs, but stops
// enqueuing), wakes every worker with a sentinel permit, and blocks until
// all workers have exited their loop. Once every worker has joined, any
// tasks still sitting in the queue are discarded without running, and the
// pool enters Terminated: subsequent Submit calls return ErrPoolClosed.
// Subsequent calls to Shutdown do no further work: they wait until the
// first call has finished terminating the pool, then return.
func (p *Pool) Shutdown() {
	if !p.closed.CompareAndSwap(false, true) {
		// Already stopping or stopped: wait for the first call to finish.
		for !p.terminated.Load() {
			runtime.Gosched()
		}
		return
	}

	// One sentinel permit per worker guarantees every worker wakes and
	// observes the flag, even if it was already asleep in sem.Acquire.
	// NewPool sized the semaphore's max to always have room for this.
	p.sem.Release(uint64(p.workers))

	p.wg.Wait()
	p.discardRemaining()
	p.terminated.Store(true)
}

// Stats returns a point-in-time snapshot of the pool's counters.
func (p *Pool) Stats() PoolStats {
	return PoolStats{
		Submitted:           p.stats.submitted.Load(),
		FastPathEnqueue:     p.stats.fastPathEnqueue.Load(),
		CallerRun:           p.stats.callerRun.Load(),
		Executed:            p.stats.executed.Load(),
		Panicked:            p.stats.panicked.Load(),
		DiscardedAtShutdown: p.stats.discardedAtShutdown.Load(),
	}
}

// discardRemaining drains and discards any tasks left in the queue once
// every worker has joined, so their count is observable via PoolStats
// without ever executing them. It walks the full [head, tail) ticket range
// rather than stopping at the first failed TryDequeue: under the queue's
// ticket-abandonment approximation (see QueueMPMC's doc comment), an
// abandoned ticket can sit in front of a later ticket that was published
// successfully, so a single miss doesn't mean the range behind it is empty.
func (p *Pool) discardRemaining() {
	q := p.queue
	for q.head.Load() < q.tail.Load() {
		if _, ok := q.TryDequeue(); ok {
			p.stats.discardedAtShutdown.Add(1)
		}
	}
}
