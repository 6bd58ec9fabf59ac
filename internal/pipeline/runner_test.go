// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build unix

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

var (
	mp3Profile = Profile{
		Description:   "MP3 via extractor",
		AudioFormat:   "mp3",
		ContentType:   "audio/mpeg",
		FileExtension: "mp3",
	}
	transcodedProfile = Profile{
		Description:       "MP3 64k mono via transcoder",
		AudioFormat:       "mp3",
		ContentType:       "audio/mpeg",
		FileExtension:     "mp3",
		PostprocessorArgs: "ffmpeg:-c:a libmp3lame -b:a 64k",
	}
)

// fakeBinary writes an executable shell script standing in for yt-dlp or ffmpeg.
func fakeBinary(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func newTestRunner(extractor, transcoder string) *Runner {
	logger := zerolog.Nop()
	return NewRunner(Config{
		ExtractorPath:     extractor,
		TranscoderPath:    transcoder,
		SourceURLTemplate: "https://example.test/v/%s",
		KillGrace:         200 * time.Millisecond,
		Concurrency:       2,
		Logger:            &logger,
	})
}

func waitDone(t *testing.T, h *Handle) {
	t.Helper()
	select {
	case <-h.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("stream did not reach a terminal state (state=%s)", h.State())
	}
}

func readArgs(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
}

// numbered is what `seq 1 n` prints; distinct lines make reordering or loss visible.
func numbered(n int) string {
	var b strings.Builder
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&b, "%d\n", i)
	}
	return b.String()
}

func TestOpen_SingleStage_StreamsAllBytes(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	argsFile := filepath.Join(t.TempDir(), "args")
	extractor := fakeBinary(t, "yt-dlp", fmt.Sprintf(`printf '%%s\n' "$@" > '%s'
seq 1 40000`, argsFile))
	want := numbered(40000)

	p := mp3Profile
	p.AdditionalArgs = []string{"--embed-metadata"}
	h, err := newTestRunner(extractor, "ffmpeg").Open(context.Background(), Request{SourceID: "abc", Profile: p, Title: "Episode"})
	require.NoError(t, err)

	assert.Equal(t, TopologySingle, h.Topology())
	assert.Equal(t, "audio/mpeg", h.ContentType())
	assert.Equal(t, "mp3", h.FileExtension())
	assert.Equal(t, "Episode", h.SuggestedTitle())

	data, err := io.ReadAll(h)
	require.NoError(t, err)
	require.Len(t, data, len(want))
	assert.True(t, string(data) == want, "stream content differs from extractor output")
	assert.Equal(t, int64(len(want)), h.BytesRead())
	assert.Equal(t, StateDone, h.State())
	assert.NoError(t, h.Err())
	assert.NoError(t, h.Close(), "closing a finished stream is a no-op")

	wantArgs := []string{"-N", "2", "-x", "--audio-format", "mp3", "-o", "-", "--embed-metadata", "https://example.test/v/abc"}
	if diff := cmp.Diff(wantArgs, readArgs(t, argsFile)); diff != "" {
		t.Errorf("extractor args mismatch (-want +got):\n%s", diff)
	}
}

func TestOpen_SingleStage_FailureBeforeFirstByteRejects(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	extractor := fakeBinary(t, "yt-dlp", `echo "[youtube] abc: Downloading webpage" >&2
echo "ERROR: [youtube] abc: Video unavailable" >&2
exit 1`)

	h, err := newTestRunner(extractor, "ffmpeg").Open(context.Background(), Request{SourceID: "abc", Profile: mp3Profile})
	require.Error(t, err)
	assert.Nil(t, h, "a rejected request must not produce a handle")
	assert.ErrorIs(t, err, ErrExtractionFailure)

	var pe *Error
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, stageExtractor, pe.Stage)
	assert.Equal(t, ExitState{Kind: ExitExited, Code: 1}, pe.Exit)
	assert.Equal(t, []string{
		"[youtube] abc: Downloading webpage",
		"ERROR: [youtube] abc: Video unavailable",
	}, pe.Diagnostics)
	assert.Contains(t, err.Error(), "Video unavailable")
}

func TestOpen_SingleStage_CleanExitWithoutOutputRejects(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	extractor := fakeBinary(t, "yt-dlp", `exit 0`)

	_, err := newTestRunner(extractor, "ffmpeg").Open(context.Background(), Request{SourceID: "abc", Profile: mp3Profile})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExtractionFailure)
	assert.ErrorIs(t, err, ErrNoOutput)
}

func TestOpen_SingleStage_FailureAfterFirstByteSurfacesOnStream(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	extractor := fakeBinary(t, "yt-dlp", `printf 'partial'
echo "ERROR: unable to download video data: HTTP Error 403" >&2
exit 2`)

	h, err := newTestRunner(extractor, "ffmpeg").Open(context.Background(), Request{SourceID: "abc", Profile: mp3Profile})
	require.NoError(t, err, "first byte arrived, so the handle must be delivered")

	data, err := io.ReadAll(h)
	require.Error(t, err)
	assert.Equal(t, "partial", string(data))
	assert.ErrorIs(t, err, ErrExtractionFailure)
	assert.Equal(t, StateFailed, h.State())
	assert.Equal(t, err, h.Err())

	// The terminal error is sticky.
	_, again := h.Read(make([]byte, 8))
	assert.Equal(t, err, again)
}

func TestOpen_SingleStage_FailedStreamStillDeliversEmittedBytes(t *testing.T) {
	tests := []struct {
		name   string
		script string
		want   string
	}{
		{"gated chunk only", `printf 'partial'
exit 2`, "partial"},
		{"gated chunk plus buffered output", `printf 'a'
sleep 0.1
printf 'bcdefgh'
exit 3`, "abcdefgh"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

			extractor := fakeBinary(t, "yt-dlp", tt.script)
			h, err := newTestRunner(extractor, "ffmpeg").Open(context.Background(), Request{SourceID: "abc", Profile: mp3Profile})
			require.NoError(t, err)
			defer func() { _ = h.Close() }()

			// The stream fails completely before the consumer reads anything.
			waitDone(t, h)
			assert.Equal(t, StateFailed, h.State())

			data, err := io.ReadAll(h)
			assert.Equal(t, tt.want, string(data))
			assert.Equal(t, int64(len(tt.want)), h.BytesRead())
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrExtractionFailure)
			assert.Equal(t, h.Err(), err)
		})
	}
}

func TestOpen_SpawnFailureRejects(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	missing := filepath.Join(t.TempDir(), "does-not-exist")

	_, err := newTestRunner(missing, "ffmpeg").Open(context.Background(), Request{SourceID: "abc", Profile: mp3Profile})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSpawnFailure)

	var pe *Error
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, stageExtractor, pe.Stage)
}

func TestOpen_TwoStage_TranscoderSpawnFailureReapsExtractor(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	extractor := fakeBinary(t, "yt-dlp", `exec sleep 30`)
	missing := filepath.Join(t.TempDir(), "no-ffmpeg")

	start := time.Now()
	_, err := newTestRunner(extractor, missing).Open(context.Background(), Request{SourceID: "abc", Profile: transcodedProfile})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSpawnFailure)
	assert.Less(t, time.Since(start), 5*time.Second, "extractor must be killed, not awaited")

	var pe *Error
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, stageTranscoder, pe.Stage)
}

func TestOpen_TwoStage_RelaysThroughTranscoder(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	dir := t.TempDir()
	extArgs := filepath.Join(dir, "extractor-args")
	trArgs := filepath.Join(dir, "transcoder-args")
	extractor := fakeBinary(t, "yt-dlp", fmt.Sprintf(`printf '%%s\n' "$@" > '%s'
printf 'raw-audio'`, extArgs))
	transcoder := fakeBinary(t, "ffmpeg", fmt.Sprintf(`printf '%%s\n' "$@" > '%s'
tr 'a-z' 'A-Z'`, trArgs))

	h, err := newTestRunner(extractor, transcoder).Open(context.Background(), Request{SourceID: "abc", Profile: transcodedProfile})
	require.NoError(t, err)
	assert.Equal(t, TopologyTwoStage, h.Topology())
	assert.Equal(t, "audio/mpeg", h.ContentType())

	data, err := io.ReadAll(h)
	require.NoError(t, err)
	assert.Equal(t, "RAW-AUDIO", string(data))
	assert.Equal(t, StateDone, h.State())

	if diff := cmp.Diff([]string{"-N", "2", "-f", "bestaudio", "-o", "-", "https://example.test/v/abc"}, readArgs(t, extArgs)); diff != "" {
		t.Errorf("extractor args mismatch (-want +got):\n%s", diff)
	}
	wantTr := []string{"-hide_banner", "-i", "pipe:0", "-c:a", "libmp3lame", "-b:a", "64k", "-f", "mp3", "pipe:1"}
	if diff := cmp.Diff(wantTr, readArgs(t, trArgs)); diff != "" {
		t.Errorf("transcoder args mismatch (-want +got):\n%s", diff)
	}
}

func TestOpen_TwoStage_ReturnsBeforeAnyOutput(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	extractor := fakeBinary(t, "yt-dlp", `exec sleep 30`)
	transcoder := fakeBinary(t, "ffmpeg", `exec cat`)

	start := time.Now()
	h, err := newTestRunner(extractor, transcoder).Open(context.Background(), Request{SourceID: "abc", Profile: transcodedProfile})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, StateStreaming, h.State())

	require.NoError(t, h.Close())
	waitDone(t, h)
	assert.Equal(t, StateCanceled, h.State())
	assert.ErrorIs(t, h.Err(), ErrCanceled)
}

func TestOpen_TwoStage_ExtractorFailureFailsStream(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	extractor := fakeBinary(t, "yt-dlp", `echo "ERROR: [youtube] abc: Private video" >&2
exit 1`)
	transcoder := fakeBinary(t, "ffmpeg", `exec cat`)

	h, err := newTestRunner(extractor, transcoder).Open(context.Background(), Request{SourceID: "abc", Profile: transcodedProfile})
	require.NoError(t, err, "two-stage delivers the handle before any failure is known")

	_, err = io.ReadAll(h)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExtractionFailure)
	assert.Equal(t, StateFailed, h.State())

	for _, s := range h.stages {
		assert.True(t, s.hasExited(), "%s must be reaped", s.name)
	}
}

func TestOpen_TwoStage_TranscoderFailureTerminatesExtractor(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	extractor := fakeBinary(t, "yt-dlp", `printf 'abcdef'
exec sleep 30`)
	transcoder := fakeBinary(t, "ffmpeg", `head -c 3
echo "[error] Error while decoding stream" >&2
exit 5`)

	h, err := newTestRunner(extractor, transcoder).Open(context.Background(), Request{SourceID: "abc", Profile: transcodedProfile})
	require.NoError(t, err)

	data, err := io.ReadAll(h)
	require.Error(t, err)
	assert.Equal(t, "abc", string(data), "output written before the failure is delivered")
	assert.ErrorIs(t, err, ErrTranscodeFailure)

	var pe *Error
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 5, pe.Exit.Code)
	assert.Equal(t, []string{"[error] Error while decoding stream"}, pe.Diagnostics)

	waitDone(t, h)
	assert.Equal(t, StateFailed, h.State())
	ext := h.stages[0]
	assert.True(t, ext.hasExited())
	assert.Equal(t, ExitSignaled, ext.Exit().Kind, "extractor must be terminated, not left sleeping")
}

func TestHandle_CloseMidStreamCancels(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	extractor := fakeBinary(t, "yt-dlp", `printf 'x'
exec sleep 30`)

	h, err := newTestRunner(extractor, "ffmpeg").Open(context.Background(), Request{SourceID: "abc", Profile: mp3Profile})
	require.NoError(t, err)

	buf := make([]byte, 16)
	n, err := h.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "x", string(buf[:n]))

	require.NoError(t, h.Close())
	waitDone(t, h)
	assert.Equal(t, StateCanceled, h.State())
	assert.ErrorIs(t, h.Err(), ErrCanceled)

	_, err = h.Read(buf)
	assert.ErrorIs(t, err, ErrCanceled)
	assert.NoError(t, h.Close(), "second Close is a no-op")
}

func TestOpen_ContextCancelAfterOpenCancelsStream(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	extractor := fakeBinary(t, "yt-dlp", `printf 'x'
exec sleep 30`)

	ctx, cancel := context.WithCancel(context.Background())
	h, err := newTestRunner(extractor, "ffmpeg").Open(ctx, Request{SourceID: "abc", Profile: mp3Profile})
	require.NoError(t, err)

	cancel()
	waitDone(t, h)
	assert.Equal(t, StateCanceled, h.State())
}

func TestOpen_ContextCanceledBeforeFirstByteRejects(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	extractor := fakeBinary(t, "yt-dlp", `exec sleep 30`)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	h, err := newTestRunner(extractor, "ffmpeg").Open(ctx, Request{SourceID: "abc", Profile: mp3Profile})
	require.Error(t, err)
	assert.Nil(t, h)
	assert.ErrorIs(t, err, ErrCanceled)
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "cause should be preserved: %v", err)
}

func TestOpen_ConcurrentRequestsAreIndependent(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	extractor := fakeBinary(t, "yt-dlp", `for a in "$@"; do last="$a"; done
printf '%s' "$last"`)
	r := newTestRunner(extractor, "ffmpeg")

	const n = 8
	type result struct {
		id   string
		data string
		err  error
	}
	results := make(chan result, n)
	for i := 0; i < n; i++ {
		go func(id string) {
			h, err := r.Open(context.Background(), Request{SourceID: id, Profile: mp3Profile})
			if err != nil {
				results <- result{id: id, err: err}
				return
			}
			data, err := io.ReadAll(h)
			results <- result{id: id, data: string(data), err: err}
		}(fmt.Sprintf("id%d", i))
	}
	for i := 0; i < n; i++ {
		res := <-results
		require.NoError(t, res.err)
		assert.Equal(t, "https://example.test/v/"+res.id, res.data)
	}
}
