package utils

import (
	"errors"
	"sync"
)

var ErrBusy = errors.New("another operation is already running")

// Exclusive runs fn unless a previous call on the same Exclusive is still in
// flight, in which case it returns ErrBusy right away.
type Exclusive struct {
	mu sync.Mutex
}

func (e *Exclusive) Run(fn func() error) error {
	if !e.mu.TryLock() {
		return ErrBusy
	}
	defer e.mu.Unlock()
	return fn()
}
