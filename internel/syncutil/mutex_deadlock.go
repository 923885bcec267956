//go:build deadlock

// Package syncutil provides the mutex used by the windows and queues.
// Built with -tags=deadlock it reports lock-order inversions and long waits.
package syncutil

import deadlock "github.com/sasha-s/go-deadlock"

type Mutex struct {
	deadlock.Mutex
}
