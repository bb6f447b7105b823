//go:build deadlock

// Package syncutil provides the mutex used across the module. Building with
// -tags=deadlock swaps in github.com/sasha-s/go-deadlock so lock-order
// inversions between the delivery task, the transport and the controller
// read loop are reported.
package syncutil

import (
	"time"

	deadlock "github.com/sasha-s/go-deadlock"
)

// A flush at 115200 baud of the largest frame takes about 25 ms, so a
// lock held for seconds is a real stall.
func init() {
	deadlock.Opts.DeadlockTimeout = 5 * time.Second
}

// Mutex wraps deadlock.Mutex for deadlock detection.
type Mutex struct {
	deadlock.Mutex
}
