//go:build !deadlock

// Package syncutil provides the mutex used across the module. Building with
// -tags=deadlock swaps in github.com/sasha-s/go-deadlock so lock-order
// inversions between the delivery task, the transport and the controller
// read loop are reported.
package syncutil

import "sync"

// Mutex is a plain sync.Mutex unless built with -tags=deadlock.
//
//nolint:gocritic // Intentionally embedding sync.Mutex to expose its interface
type Mutex struct {
	sync.Mutex
}
