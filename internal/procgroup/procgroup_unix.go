// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build unix

package procgroup

import (
	"errors"
	"os/exec"
	"syscall"

	"github.com/ManuGH/podstream/internal/log"
)

const (
	sigTerm = syscall.SIGTERM
	sigKill = syscall.SIGKILL
)

// Set configures the command to start in a new process group.
// Mandatory for Kill and Terminate to reach the whole tree.
func Set(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}

// Kill sends sig to the process group led by cmd.
// A group that is already gone is treated as success.
func Kill(cmd *exec.Cmd, sig syscall.Signal) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}

	// Setpgid makes the leader's PID the PGID. The PID is used directly because
	// Getpgid fails once the leader was reaped while helpers may still be alive.
	pid := cmd.Process.Pid
	if pid <= 0 {
		return nil
	}
	if err := syscall.Kill(-pid, sig); err != nil {
		if errors.Is(err, syscall.ESRCH) {
			return nil
		}
		log.L().Debug().Int(log.FieldPID, pid).Err(err).Msg("group signal failed, falling back to leader")
		if perr := cmd.Process.Signal(sig); perr != nil && !errors.Is(perr, syscall.ESRCH) {
			return perr
		}
	}
	return nil
}

// Alive reports whether the group led by cmd still has members, zombies included.
func Alive(cmd *exec.Cmd) bool {
	if cmd == nil || cmd.Process == nil || cmd.Process.Pid <= 0 {
		return false
	}
	return syscall.Kill(-cmd.Process.Pid, 0) == nil
}
