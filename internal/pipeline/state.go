// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package pipeline

import "sync/atomic"

// State is the lifecycle position of one request.
//
//	Spawning -> Streaming -> Done | Failed | Canceled
//	Spawning -> Rejected
type State int32

const (
	StateSpawning  State = iota // processes launched, no handle delivered
	StateStreaming              // handle delivered, bytes may flow
	StateDone                   // all bytes delivered, every stage exited 0
	StateFailed                 // error surfaced on the stream
	StateRejected               // failed before a handle existed
	StateCanceled               // consumer went away before the end
)

func (s State) String() string {
	switch s {
	case StateSpawning:
		return "spawning"
	case StateStreaming:
		return "streaming"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	case StateRejected:
		return "rejected"
	case StateCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	switch s {
	case StateDone, StateFailed, StateRejected, StateCanceled:
		return true
	}
	return false
}

var validTransitions = map[State][]State{
	StateSpawning:  {StateStreaming, StateRejected},
	StateStreaming: {StateDone, StateFailed, StateCanceled},
}

type stateMachine struct {
	v atomic.Int32
}

func (m *stateMachine) Load() State {
	return State(m.v.Load())
}

// transition moves from -> to if the edge exists and the current state is still from.
func (m *stateMachine) transition(from, to State) bool {
	allowed := false
	for _, s := range validTransitions[from] {
		if s == to {
			allowed = true
			break
		}
	}
	if !allowed {
		return false
	}
	return m.v.CompareAndSwap(int32(from), int32(to))
}
