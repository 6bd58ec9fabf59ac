// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package procgroup spawns external processes as process-group leaders and
// terminates whole groups, so helpers forked by a child do not outlive it.
package procgroup

import (
	"errors"
	"os/exec"
	"time"
)

// ErrNotStarted is returned when a signal is requested for a command that never started.
var ErrNotStarted = errors.New("procgroup: process not started")

// Terminate asks the group led by cmd to exit (SIGTERM) and escalates to SIGKILL
// once grace has elapsed. It does not wait; the caller reaps through cmd.Wait and
// closes exited afterwards. Escalation is dropped when exited is closed and the group
// has no members left, so a recycled PGID is never signalled. A nil exited always escalates.
// Mandatory: cmd MUST have been configured with Set before Start.
func Terminate(cmd *exec.Cmd, exited <-chan struct{}, grace time.Duration) error {
	if cmd == nil || cmd.Process == nil {
		return ErrNotStarted
	}
	err := Kill(cmd, sigTerm)
	if grace <= 0 {
		return Kill(cmd, sigKill)
	}
	go escalate(cmd, exited, grace)
	return err
}

func escalate(cmd *exec.Cmd, exited <-chan struct{}, grace time.Duration) {
	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-exited:
		// Leader reaped; helpers that ignored SIGTERM keep the PGID reserved.
		if !Alive(cmd) {
			return
		}
		<-timer.C
	}
	if isClosed(exited) && !Alive(cmd) {
		return
	}
	_ = Kill(cmd, sigKill)
}

func isClosed(ch <-chan struct{}) bool {
	if ch == nil {
		return false
	}
	select {
	case <-ch:
		return true
	default:
		return false
	}
}
