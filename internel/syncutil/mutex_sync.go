//go:build !deadlock

// Package syncutil provides the mutex used by the windows and queues.
// Build with -tags=deadlock to swap in github.com/sasha-s/go-deadlock.
package syncutil

import "sync"

type Mutex struct {
	sync.Mutex
}
