// Package qpool implements a small library of concurrent in-memory queues
// and a queue-backed worker pool for high-throughput, low-latency task
// dispatch on shared-memory multicore hardware.
//
// Four pieces, leaves first:
//
//	RingSPSC   - wait-free single-producer/single-consumer ring
//	QueueMPMC  - lock-free multi-producer/multi-consumer bounded queue
//	Semaphore  - counting semaphore used to sleep/wake pool workers
//	Pool       - bounded worker pool built on QueueMPMC + Semaphore
//
// None of these types may be copied after construction, and none allocate
// on the hot path once constructed.
//
// # Basic usage
//
//	p := qpool.NewPool(4, 1024)
//	defer p.Shutdown()
//
//	for i := 0; i < 100; i++ {
//		i := i
//		p.Submit(func() { fmt.Println(i) })
//	}
//
// Original algorithm by Dmitry Vyukov
// https://www.1024cores.net/home/lock-free-algorithms/queues/bounded-mpmc-queue
package qpool

import "sync/atomic"

// slot is the storage cell of QueueMPMC. (RingSPSC stores plain T values in
// its buffer and synchronizes purely via its head/tail counters.)
//
// seq coordinates producer/consumer visits to the slot. val holds the
// payload; Go's garbage collector makes
// explicit destroy-in-place unnecessary, but callers still clear val to its
// zero value on removal so a stale reference isn't retained past the point
// the slot is logically empty.
type slot[T any] struct {
	seq atomic.Uint64
	val T
}

// cacheLinePad occupies the rest of a 64-byte cache line after a single
// atomic.Uint64 field, so that two counters written by different goroutines
// never share a line.
type cacheLinePad [64 - 8]byte
