// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package pipeline

import "sync/atomic"

// failureLatch is a single-assignment cell for the outcome-deciding error of one request.
// Spawn failures, stage exits and consumer cancellation race to Fail; the first one wins and
// later calls are no-ops, whatever order they arrive in.
type failureLatch struct {
	v    atomic.Pointer[latched]
	done chan struct{}
}

type latched struct{ err error }

func newFailureLatch() *failureLatch {
	return &failureLatch{done: make(chan struct{})}
}

// Fail records err if nothing was recorded yet. It reports whether err won.
func (l *failureLatch) Fail(err error) bool {
	if err == nil {
		return false
	}
	if !l.v.CompareAndSwap(nil, &latched{err: err}) {
		return false
	}
	close(l.done)
	return true
}

// Err returns the winning error, or nil.
func (l *failureLatch) Err() error {
	if p := l.v.Load(); p != nil {
		return p.err
	}
	return nil
}

// Done is closed once an error has been recorded.
func (l *failureLatch) Done() <-chan struct{} {
	return l.done
}
