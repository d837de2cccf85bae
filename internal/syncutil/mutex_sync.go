//go:build !deadlock

// Package syncutil provides the lock types used by the session. Building
// with -tags=deadlock swaps in go-deadlock for lock-order and timeout
// detection.
package syncutil

import (
	"sync"
	"time"
)

// DeadlockDetection reports whether locks are instrumented.
const DeadlockDetection = false

// Mutex wraps sync.Mutex.
type Mutex struct {
	sync.Mutex
}

// RWMutex wraps sync.RWMutex.
type RWMutex struct {
	sync.RWMutex
}

// SetLockTimeout is a no-op without the deadlock build tag.
func SetLockTimeout(time.Duration) {}
