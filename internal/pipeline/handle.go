// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package pipeline

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ManuGH/podstream/internal/log"
	"github.com/rs/zerolog"
)

var _ io.ReadCloser = (*Handle)(nil)

// Handle is the byte stream of one request plus its descriptive metadata.
//
// Read returns the audio bytes and finally either io.EOF (every stage exited 0) or the
// classified failure. Bytes emitted before a failure are still delivered; the failure
// follows once the output is drained. Close tears down every owned process and must be
// called once the consumer is done; a stream closed before its end terminates with ErrCanceled.
type Handle struct {
	topology    Topology
	contentType string
	title       string
	extension   string
	diagLines   int
	logger      zerolog.Logger
	openedAt    time.Time

	stages []*stage
	out    *os.File // read end of the final stage's stdout
	prefix []byte   // first chunk consumed by the single-stage gate

	state  stateMachine
	latch  *failureLatch
	reaped chan struct{} // closed once every stage was reaped
	done   chan struct{} // closed once a terminal state was reached

	readMu    sync.Mutex
	bytes     atomic.Int64
	termOnce  sync.Once
	termErr   error
	closeOnce sync.Once
	stopCtx   func() bool
}

func newHandle(req Request, topology Topology, diagLines int, logger zerolog.Logger) *Handle {
	return &Handle{
		topology:    topology,
		contentType: req.Profile.ContentType,
		title:       req.suggestedTitle(),
		extension:   req.Profile.FileExtension,
		diagLines:   diagLines,
		logger:      logger,
		openedAt:    time.Now(),
		latch:       newFailureLatch(),
		reaped:      make(chan struct{}),
		done:        make(chan struct{}),
		stopCtx:     func() bool { return false },
	}
}

// ContentType is the profile's MIME type, passed through verbatim.
func (h *Handle) ContentType() string { return h.contentType }

// SuggestedTitle is the title the consumer may present for the stream.
func (h *Handle) SuggestedTitle() string { return h.title }

// FileExtension is the profile's file extension, passed through verbatim.
func (h *Handle) FileExtension() string { return h.extension }

// Topology reports which pipeline shape serves the stream.
func (h *Handle) Topology() Topology { return h.topology }

// State reports the current lifecycle state.
func (h *Handle) State() State { return h.state.Load() }

// BytesRead is the number of bytes handed to the consumer so far.
func (h *Handle) BytesRead() int64 { return h.bytes.Load() }

// Done is closed once the stream reached its terminal state.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Err returns the terminal error once Done is closed: nil for a complete stream,
// ErrCanceled after a consumer disconnect, a *Error otherwise.
func (h *Handle) Err() error {
	select {
	case <-h.done:
	default:
		return nil
	}
	if errors.Is(h.termErr, io.EOF) {
		return nil
	}
	return h.termErr
}

// Read implements io.Reader.
func (h *Handle) Read(p []byte) (int, error) {
	h.readMu.Lock()
	defer h.readMu.Unlock()

	// Nothing more is delivered once the consumer went away.
	if errors.Is(h.latch.Err(), ErrCanceled) {
		return 0, h.settle()
	}

	if len(h.prefix) > 0 {
		n := copy(p, h.prefix)
		h.prefix = h.prefix[n:]
		h.account(n)
		return n, nil
	}

	n, err := h.out.Read(p)
	h.account(n)
	if err == nil {
		return n, nil
	}
	if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
		h.abort(fmt.Errorf("read %s output: %w", h.finalStage().name, err))
	}
	err = h.settle()
	h.closeOut()
	return n, err
}

// Close destroys the stream and every process feeding it. It does not wait for the
// processes to exit; Done reports when teardown finished. Closing a finished stream only
// releases its undrained output.
func (h *Handle) Close() error {
	if h.state.Load().Terminal() {
		h.closeOut()
		return nil
	}
	h.abort(ErrCanceled)
	h.closeOut()
	return nil
}

func (h *Handle) account(n int) {
	if n <= 0 {
		return
	}
	h.bytes.Add(int64(n))
	bytesTotal.WithLabelValues(h.topology.String()).Add(float64(n))
}

func (h *Handle) finalStage() *stage {
	return h.stages[len(h.stages)-1]
}

// abort records cause (if it is the first outcome-deciding event) and terminates every
// stage still running. Once the handle is streaming, the stream is settled as well.
func (h *Handle) abort(cause error) {
	h.latch.Fail(cause)
	for _, s := range h.stages {
		s.terminate()
	}
	if h.state.Load() == StateStreaming {
		go h.settle()
	}
}

// watch starts one reaper per stage. A non-zero exit is a failure candidate and tears down
// the peers, so an upstream stage is never left running after its downstream died.
func (h *Handle) watch() {
	var wg sync.WaitGroup
	for _, s := range h.stages {
		wg.Add(1)
		go func(s *stage) {
			defer wg.Done()
			s.wait()

			exit := s.Exit()
			processExitTotal.WithLabelValues(s.name, exit.reason()).Inc()
			h.logger.Debug().
				Str(log.FieldStage, s.name).
				Int(log.FieldPID, s.cmd.Process.Pid).
				Str("exit", exit.String()).
				Msg("process exited")

			if !exit.Success() {
				h.abort(s.failure(h.diagLines))
			}
		}(s)
	}
	go func() {
		wg.Wait()
		close(h.reaped)
	}()
}

// markStreaming delivers the handle. A failure that landed before delivery still surfaces
// on the stream.
func (h *Handle) markStreaming() {
	if !h.state.transition(StateSpawning, StateStreaming) {
		return
	}
	activeStreams.WithLabelValues(h.topology.String()).Inc()
	if h.latch.Err() != nil {
		go h.settle()
	}
}

// settle waits for every stage to be reaped and fixes the terminal state. Safe to call
// from several goroutines; only the first call decides.
func (h *Handle) settle() error {
	h.termOnce.Do(func() {
		<-h.reaped
		cause := h.latch.Err()
		switch {
		case cause == nil:
			h.finish(StateDone, io.EOF)
		case errors.Is(cause, ErrCanceled):
			h.finish(StateCanceled, ErrCanceled)
		default:
			h.finish(StateFailed, cause)
		}
	})
	<-h.done
	return h.termErr
}

// reject ends a request that never delivered a handle.
func (h *Handle) reject(cause error) {
	h.termOnce.Do(func() {
		h.finish(StateRejected, cause)
	})
}

func (h *Handle) finish(to State, err error) {
	from := h.state.Load()
	if !h.state.transition(from, to) {
		h.logger.Error().Str(log.FieldOldState, from.String()).Str(log.FieldNewState, to.String()).Msg("invalid pipeline state transition")
	}
	h.termErr = err
	// A failed stream keeps its output readable until drained or closed.
	if to != StateFailed {
		h.closeOut()
	}
	h.stopCtx()

	topo := h.topology.String()
	if from == StateStreaming {
		activeStreams.WithLabelValues(topo).Dec()
		outcomeTotal.WithLabelValues(topo, to.String()).Inc()
	}

	evt := h.logger.Info()
	switch to {
	case StateFailed, StateRejected:
		evt = h.logger.Warn().Err(err)
	case StateCanceled:
		evt = h.logger.Debug()
	}
	evt.
		Str(log.FieldEvent, "pipeline."+to.String()).
		Int64(log.FieldBytes, h.bytes.Load()).
		Int64(log.FieldDurationMS, time.Since(h.openedAt).Milliseconds()).
		Msg("pipeline finished")
	close(h.done)
}

func (h *Handle) closeOut() {
	h.closeOnce.Do(func() {
		if h.out != nil {
			_ = h.out.Close()
		}
	})
}
