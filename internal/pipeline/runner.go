// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package pipeline turns a source id and a profile into a stream of audio bytes by
// supervising an extractor process, optionally piped into a transcoder process.
//
// One request owns its processes and its stream exclusively; nothing is shared between
// requests, so Open may be called concurrently without limit.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"time"

	"github.com/ManuGH/podstream/internal/log"
	"github.com/ManuGH/podstream/internal/procgroup"
	"github.com/ManuGH/podstream/internal/telemetry"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultKillGrace = 5 * time.Second
	firstChunkSize   = 32 * 1024
)

// Config holds the process-level settings shared by every request.
type Config struct {
	ExtractorPath     string        // defaults to "yt-dlp"
	TranscoderPath    string        // defaults to "ffmpeg"
	SourceURLTemplate string        // defaults to DefaultSourceURLTemplate
	PostprocessorTag  string        // defaults to DefaultPostprocessorTag
	DiagnosticLines   int           // stderr lines kept per process
	KillGrace         time.Duration // SIGTERM -> SIGKILL delay on teardown
	Concurrency       int           // extractor concurrency hint; defaults to runtime.NumCPU()
	Logger            *zerolog.Logger
}

// Runner spawns and supervises pipelines.
type Runner struct {
	cfg    Config
	logger zerolog.Logger
	tracer trace.Tracer
}

// NewRunner creates a Runner, filling unset fields with defaults.
func NewRunner(cfg Config) *Runner {
	if cfg.ExtractorPath == "" {
		cfg.ExtractorPath = "yt-dlp"
	}
	if cfg.TranscoderPath == "" {
		cfg.TranscoderPath = "ffmpeg"
	}
	if cfg.SourceURLTemplate == "" {
		cfg.SourceURLTemplate = DefaultSourceURLTemplate
	}
	if cfg.PostprocessorTag == "" {
		cfg.PostprocessorTag = DefaultPostprocessorTag
	}
	if cfg.DiagnosticLines <= 0 {
		cfg.DiagnosticLines = defaultDiagnosticLines
	}
	if cfg.KillGrace <= 0 {
		cfg.KillGrace = defaultKillGrace
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = runtime.NumCPU()
	}
	logger := log.WithComponent("pipeline")
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	return &Runner{
		cfg:    cfg,
		logger: logger,
		tracer: telemetry.Tracer("podstream.pipeline"),
	}
}

// Open starts the pipeline for req and returns its stream.
//
// Single-stage: Open returns once the extractor emitted its first byte, or fails if it exits
// before that. Two-stage: Open returns as soon as both processes were spawned; later failures
// of either process surface as the stream's terminal error.
//
// Exactly one of (handle, error) is returned. Cancelling ctx after Open returned is equivalent
// to Handle.Close.
func (r *Runner) Open(ctx context.Context, req Request) (*Handle, error) {
	topology := SelectTopology(req.Profile)
	topo := topology.String()

	ctx, span := r.tracer.Start(ctx, "pipeline.open", trace.WithAttributes(
		attribute.String(telemetry.PipelineTopologyKey, topo),
		attribute.String(telemetry.PipelineSourceKey, req.SourceID),
		attribute.String(telemetry.PipelineFormatKey, req.Profile.AudioFormat),
	))
	defer span.End()

	logger := log.WithContext(ctx, r.logger).With().
		Str(log.FieldSourceID, req.SourceID).
		Str(log.FieldTopology, topo).
		Logger()

	h := newHandle(req, topology, r.cfg.DiagnosticLines, logger)

	var err error
	if topology == TopologyTwoStage {
		err = r.spawnTwoStage(h, req)
	} else {
		err = r.spawnSingle(h, req)
	}
	if err != nil {
		h.latch.Fail(err)
		return nil, r.rejected(span, h, h.latch.Err())
	}

	h.watch()
	h.stopCtx = context.AfterFunc(ctx, func() { _ = h.Close() })

	if topology == TopologySingle {
		span.AddEvent("awaiting first byte")
		if err := h.awaitFirstByte(); err != nil {
			<-h.reaped
			if cause := context.Cause(ctx); cause != nil && errors.Is(err, ErrCanceled) {
				err = fmt.Errorf("%w: %w", ErrCanceled, cause)
			}
			return nil, r.rejected(span, h, err)
		}
	}

	h.markStreaming()
	openTotal.WithLabelValues(topo, "ok").Inc()
	firstByteSeconds.WithLabelValues(topo).Observe(time.Since(h.openedAt).Seconds())
	span.SetStatus(codes.Ok, "")
	logger.Info().
		Str(log.FieldEvent, "pipeline.streaming").
		Dur("startup", time.Since(h.openedAt)).
		Msg("pipeline streaming")
	return h, nil
}

func (r *Runner) rejected(span trace.Span, h *Handle, err error) error {
	h.reject(err)
	openTotal.WithLabelValues(h.topology.String(), "rejected").Inc()
	if !errors.Is(err, ErrCanceled) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "pipeline rejected")
	}
	return err
}

// awaitFirstByte blocks until the extractor produced output or the request failed.
// The gate is the only signal separating "fails before producing anything" from
// "is genuinely streaming".
func (h *Handle) awaitFirstByte() error {
	buf := make([]byte, firstChunkSize)
	n, err := h.out.Read(buf)
	if n > 0 {
		h.prefix = buf[:n]
		// A cancellation racing the first byte still wins: the consumer is gone.
		if cause := h.latch.Err(); errors.Is(cause, ErrCanceled) {
			return cause
		}
		return nil
	}
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
		h.abort(fmt.Errorf("read %s output: %w", stageExtractor, err))
	}

	<-h.reaped
	if cause := h.latch.Err(); cause != nil {
		return cause
	}
	ext := h.stages[0]
	e := ext.failure(h.diagLines)
	e.Kind = KindExtraction
	e.Err = ErrNoOutput
	h.latch.Fail(e)
	return h.latch.Err()
}

func (r *Runner) newStage(name string, kind Kind, path string, args []string, logger zerolog.Logger) *stage {
	// #nosec G204 -- binaries come from operator configuration; args are not shell-interpreted
	cmd := exec.Command(path, args...)
	procgroup.Set(cmd)
	cmd.WaitDelay = r.cfg.KillGrace + time.Second

	stageLogger := logger.With().Str(log.FieldStage, name).Logger()
	ring := newLineRing(r.cfg.DiagnosticLines, maxDiagnosticLineBytes, func(line string) {
		if sev, ok := severityOf(line); ok {
			stageLogger.Debug().Str(log.FieldSeverity, sev).Str("line", line).Msg("process diagnostic")
		}
	})
	cmd.Stderr = ring

	return &stage{
		name:   name,
		kind:   kind,
		cmd:    cmd,
		diag:   ring,
		grace:  r.cfg.KillGrace,
		exited: make(chan struct{}),
	}
}

func spawnError(name string, err error) *Error {
	return &Error{Kind: KindSpawn, Stage: name, Err: err}
}

func closeFiles(files ...*os.File) {
	for _, f := range files {
		if f != nil {
			_ = f.Close()
		}
	}
}

func (r *Runner) spawnSingle(h *Handle, req Request) error {
	locator := SourceLocator(r.cfg.SourceURLTemplate, req.SourceID)
	ext := r.newStage(stageExtractor, KindExtraction, r.cfg.ExtractorPath,
		extractorArgs(TopologySingle, req.Profile, locator, r.cfg.Concurrency), h.logger)

	outR, outW, err := os.Pipe()
	if err != nil {
		return spawnError(stageExtractor, fmt.Errorf("create stdout pipe: %w", err))
	}
	ext.cmd.Stdout = outW

	if err := ext.cmd.Start(); err != nil {
		closeFiles(outR, outW)
		return spawnError(stageExtractor, err)
	}
	// The child holds its own copy; ours must go so EOF is observable.
	closeFiles(outW)

	h.stages = []*stage{ext}
	h.out = outR
	h.logger.Debug().Int(log.FieldPID, ext.cmd.Process.Pid).Strs("args", ext.cmd.Args).Msg("extractor spawned")
	return nil
}

// spawnTwoStage wires extractor stdout -> OS pipe -> transcoder stdin. The pipe is owned by
// the two children only; flow control is the kernel's.
func (r *Runner) spawnTwoStage(h *Handle, req Request) error {
	locator := SourceLocator(r.cfg.SourceURLTemplate, req.SourceID)
	ext := r.newStage(stageExtractor, KindExtraction, r.cfg.ExtractorPath,
		extractorArgs(TopologyTwoStage, req.Profile, locator, r.cfg.Concurrency), h.logger)
	tr := r.newStage(stageTranscoder, KindTranscode, r.cfg.TranscoderPath,
		transcoderArgs(req.Profile, r.cfg.PostprocessorTag), h.logger)

	relayR, relayW, err := os.Pipe()
	if err != nil {
		return spawnError(stageExtractor, fmt.Errorf("create relay pipe: %w", err))
	}
	outR, outW, err := os.Pipe()
	if err != nil {
		closeFiles(relayR, relayW)
		return spawnError(stageTranscoder, fmt.Errorf("create stdout pipe: %w", err))
	}
	ext.cmd.Stdout = relayW
	tr.cmd.Stdin = relayR
	tr.cmd.Stdout = outW

	if err := ext.cmd.Start(); err != nil {
		closeFiles(relayR, relayW, outR, outW)
		return spawnError(stageExtractor, err)
	}
	if err := tr.cmd.Start(); err != nil {
		closeFiles(relayR, relayW, outR, outW)
		_ = procgroup.Terminate(ext.cmd, nil, 0)
		_ = ext.cmd.Wait()
		return spawnError(stageTranscoder, err)
	}
	closeFiles(relayR, relayW, outW)

	h.stages = []*stage{ext, tr}
	h.out = outR
	h.logger.Debug().
		Int("extractor_pid", ext.cmd.Process.Pid).
		Int("transcoder_pid", tr.cmd.Process.Pid).
		Strs("transcoder_args", tr.cmd.Args).
		Msg("pipeline spawned")
	return nil
}
