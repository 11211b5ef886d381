// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package workers

import (
	"context"
	"time"
)

// FiredSignal is a signal that is always in the fired state.
var FiredSignal Signal

func init() {
	fired := make(chan struct{})
	close(fired)
	FiredSignal = fired
}

// Signal notifies that a work has completed.
// Nothing is ever sent through a signal, it is closed when fired.
type Signal <-chan struct{}

// Fired returns true if the signal has been fired.
func (s Signal) Fired() bool {
	select {
	case <-s:
		return true
	default:
		return false
	}
}

// Wait blocks until the signal has been fired or the context is done.
// Returns false if the context ended first.
func (s Signal) Wait(ctx context.Context) bool {
	select {
	case <-s:
		return true
	case <-ctx.Done():
		return false
	}
}

// TryWait waits for the signal, the context or the timeout,
// whichever comes first. Returns true only if the signal fired.
func (s Signal) TryWait(ctx context.Context, timeout time.Duration) bool {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-s:
		return true
	case <-ctx.Done():
		return false
	case <-t.C:
		return false
	}
}
