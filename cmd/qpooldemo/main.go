// Command qpooldemo drives a Pool with a configurable number of producers
// submitting no-op-ish tasks, and reports throughput and pool stats once
// they've all finished.
//
// Usage:
//
//	go run ./cmd/qpooldemo -producers 8 -tasks 200000 -workers 0 -queue 1024
package main

import (
	"flag"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/automaxprocs/maxprocs"

	"github.com/vkazanov/qpool"
)

func main() {
	producers := flag.Int("producers", 4, "number of concurrent submitting goroutines")
	tasksEach := flag.Int("tasks", 100_000, "tasks submitted per producer")
	workers := flag.Int("workers", 0, "pool worker count (0 = GOMAXPROCS after container quota adjustment)")
	queueCap := flag.Uint64("queue", 1024, "pool queue capacity")
	flag.Parse()

	// Adjust GOMAXPROCS to the container's actual CPU quota (cgroup limits
	// are invisible to runtime.NumCPU otherwise), then size the pool off
	// the corrected value when -workers isn't set explicitly.
	undo, err := maxprocs.Set(maxprocs.Logger(func(string, ...interface{}) {}))
	if err != nil {
		fmt.Printf("qpooldemo: maxprocs.Set failed, falling back to GOMAXPROCS as-is: %v\n", err)
	} else {
		defer undo()
	}

	w := *workers
	if w <= 0 {
		w = runtime.GOMAXPROCS(0)
	}

	pool := qpool.NewPool(w, *queueCap)
	defer pool.Shutdown()

	var done atomic.Uint64
	var wg sync.WaitGroup
	wg.Add(*producers)

	start := time.Now()
	for p := 0; p < *producers; p++ {
		go func() {
			defer wg.Done()
			for i := 0; i < *tasksEach; i++ {
				pool.Submit(func() {
					done.Add(1)
				})
			}
		}()
	}
	wg.Wait()

	// Drain: keep polling until every submitted task has actually run, since
	// Submit only guarantees enqueue-or-caller-run, not completion.
	total := uint64(*producers) * uint64(*tasksEach)
	for done.Load() < total {
		time.Sleep(time.Millisecond)
	}
	elapsed := time.Since(start)

	stats := pool.Stats()
	fmt.Printf("workers=%d queue=%d producers=%d tasks/producer=%d\n", w, *queueCap, *producers, *tasksEach)
	fmt.Printf("elapsed=%v throughput=%.0f tasks/sec\n", elapsed, float64(total)/elapsed.Seconds())
	fmt.Printf("submitted=%d fast_path=%d caller_run=%d executed=%d panicked=%d\n",
		stats.Submitted, stats.FastPathEnqueue, stats.CallerRun, stats.Executed, stats.Panicked)
}
