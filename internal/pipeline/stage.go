// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package pipeline

import (
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/ManuGH/podstream/internal/procgroup"
)

const (
	stageExtractor  = "extractor"
	stageTranscoder = "transcoder"
)

// ExitKind tells whether a process is still running, exited, or was killed by a signal.
type ExitKind int

const (
	ExitRunning ExitKind = iota
	ExitExited
	ExitSignaled
)

// ExitState is the exit status of one supervised process.
type ExitState struct {
	Kind ExitKind
	Code int // valid for ExitExited
}

// Success reports a clean exit with status 0.
func (s ExitState) Success() bool {
	return s.Kind == ExitExited && s.Code == 0
}

func (s ExitState) String() string {
	switch s.Kind {
	case ExitExited:
		return fmt.Sprintf("exit status %d", s.Code)
	case ExitSignaled:
		return "terminated by signal"
	default:
		return "running"
	}
}

// reason is the low-cardinality metric label of the exit.
func (s ExitState) reason() string {
	switch {
	case s.Success():
		return "ok"
	case s.Kind == ExitSignaled:
		return "signaled"
	case s.Kind == ExitExited:
		return "nonzero"
	default:
		return "unknown"
	}
}

func exitStateOf(ps *os.ProcessState) ExitState {
	if ps == nil {
		return ExitState{Kind: ExitRunning}
	}
	// ExitCode is -1 for processes killed by a signal.
	if code := ps.ExitCode(); code >= 0 {
		return ExitState{Kind: ExitExited, Code: code}
	}
	return ExitState{Kind: ExitSignaled, Code: -1}
}

// stage owns one external process: its command, its stderr ring and its exit state.
// It is released once the process was reaped.
type stage struct {
	name  string
	kind  Kind
	cmd   *exec.Cmd
	diag  *lineRing
	grace time.Duration

	exited chan struct{}

	mu       sync.Mutex
	exit     ExitState
	waitErr  error
	termOnce sync.Once
}

// wait reaps the process and records its exit state. It must be called exactly once.
func (s *stage) wait() {
	err := s.cmd.Wait()
	s.diag.flush()

	s.mu.Lock()
	s.exit = exitStateOf(s.cmd.ProcessState)
	s.waitErr = err
	s.mu.Unlock()
	close(s.exited)
}

func (s *stage) Exit() ExitState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exit
}

func (s *stage) hasExited() bool {
	select {
	case <-s.exited:
		return true
	default:
		return false
	}
}

// terminate signals the process group once; SIGKILL follows after the grace period
// unless the group emptied first. Helpers outliving a reaped leader are torn down too,
// since they may still hold the stream's write end.
func (s *stage) terminate() {
	if s.hasExited() && !procgroup.Alive(s.cmd) {
		return
	}
	s.termOnce.Do(func() {
		_ = procgroup.Terminate(s.cmd, s.exited, s.grace)
	})
}

// failure builds the classified error for a non-zero exit.
func (s *stage) failure(lines int) *Error {
	s.mu.Lock()
	exit, err := s.exit, s.waitErr
	s.mu.Unlock()

	e := &Error{
		Kind:        s.kind,
		Stage:       s.name,
		Exit:        exit,
		Diagnostics: s.diag.LastN(lines),
	}
	// *exec.ExitError only restates the exit state; keep I/O errors.
	if _, ok := err.(*exec.ExitError); !ok && err != nil {
		e.Err = err
	}
	return e
}
