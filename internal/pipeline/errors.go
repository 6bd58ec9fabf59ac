// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrSpawnFailure classifies errors where the OS could not start a process.
	ErrSpawnFailure = errors.New("spawn failure")
	// ErrExtractionFailure classifies extractor failures.
	ErrExtractionFailure = errors.New("extraction failure")
	// ErrTranscodeFailure classifies transcoder failures.
	ErrTranscodeFailure = errors.New("transcode failure")

	// ErrCanceled is the terminal error of a stream whose consumer went away.
	// It is a normal outcome, not a failure.
	ErrCanceled = errors.New("pipeline canceled by consumer")
	// ErrNoOutput is attached when the extractor exited cleanly without emitting a byte.
	ErrNoOutput = errors.New("extractor exited without output")
)

// Kind classifies a pipeline failure.
type Kind int

const (
	KindSpawn Kind = iota + 1
	KindExtraction
	KindTranscode
)

func (k Kind) String() string {
	switch k {
	case KindSpawn:
		return ErrSpawnFailure.Error()
	case KindExtraction:
		return ErrExtractionFailure.Error()
	case KindTranscode:
		return ErrTranscodeFailure.Error()
	default:
		return "unknown failure"
	}
}

// Error describes a failed stage. Use errors.Is with the Err*Failure sentinels to classify it.
type Error struct {
	Kind        Kind
	Stage       string
	Exit        ExitState
	Diagnostics []string // tail of the stage's stderr, bounded
	Err         error
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", e.Stage, e.Kind)
	switch {
	case e.Err != nil:
		fmt.Fprintf(&b, ": %v", e.Err)
	case e.Exit.Kind != ExitRunning:
		fmt.Fprintf(&b, ": %s", e.Exit)
	}
	if n := len(e.Diagnostics); n > 0 {
		fmt.Fprintf(&b, " (%s)", e.Diagnostics[n-1])
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the classification sentinels.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrSpawnFailure:
		return e.Kind == KindSpawn
	case ErrExtractionFailure:
		return e.Kind == KindExtraction
	case ErrTranscodeFailure:
		return e.Kind == KindTranscode
	}
	return false
}

// DiagnosticText joins the captured stderr tail with newlines.
func (e *Error) DiagnosticText() string {
	return strings.Join(e.Diagnostics, "\n")
}
