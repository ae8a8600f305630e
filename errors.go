package qpool

import "fmt"

// ErrPoolClosed is returned by Pool.Submit once the pool has fully
// terminated (all workers joined). It is never returned while the pool is
// merely draining; see Pool.Submit.
var ErrPoolClosed = fmt.Errorf("qpool: pool is closed")
