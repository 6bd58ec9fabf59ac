// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"github.com/ManuGH/podstream/internal/log"
	"github.com/ManuGH/podstream/internal/pipeline"
	"github.com/ManuGH/podstream/internal/problem"
	"github.com/ManuGH/podstream/internal/profiles"
	"github.com/ManuGH/podstream/internal/telemetry"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// HeaderTopology reports which pipeline shape serves the response.
const HeaderTopology = "X-Pipeline-Topology"

const (
	streamChunkSize = 32 * 1024
	maxTitleLen     = 200
)

var sourceIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// errClientGone marks a failed write to the HTTP client.
var errClientGone = errors.New("client write failed")

func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "profile")
	sourceID := stripExtension(chi.URLParam(r, "sourceID"))

	logger := log.WithComponentFromContext(r.Context(), "api").With().
		Str(log.FieldProfile, name).
		Str(log.FieldSourceID, sourceID).
		Logger()

	profile, err := s.profiles.Get(name)
	if err != nil {
		if errors.Is(err, profiles.ErrUnknownProfile) {
			problem.Write(w, r, http.StatusNotFound, "audio/unknown_profile", "Unknown Profile",
				problem.CodeNotFound, fmt.Sprintf("profile %q is not configured", name), nil)
			return
		}
		logger.Error().Err(err).Msg("profile lookup failed")
		problem.Write(w, r, http.StatusInternalServerError, "system/internal", "Internal Server Error",
			problem.CodeInternal, "", nil)
		return
	}
	if !sourceIDPattern.MatchString(sourceID) {
		problem.Write(w, r, http.StatusBadRequest, "audio/invalid_source_id", "Invalid Source ID",
			problem.CodeInvalidInput, "source id must match [A-Za-z0-9_-]{1,128}", nil)
		return
	}

	req := pipeline.Request{
		SourceID: sourceID,
		Profile:  profile,
		Title:    sanitizeTitle(r.URL.Query().Get("title")),
	}

	h, err := s.runner.Open(r.Context(), req)
	if err != nil {
		s.writeOpenError(w, r, logger, err)
		return
	}
	defer func() { _ = h.Close() }()

	hdr := w.Header()
	hdr.Set("Content-Type", h.ContentType())
	hdr.Set("Content-Disposition", contentDisposition(h.SuggestedTitle(), h.FileExtension()))
	hdr.Set("Cache-Control", "no-store")
	hdr.Set("X-Content-Type-Options", "nosniff")
	hdr.Set(HeaderTopology, h.Topology().String())
	w.WriteHeader(http.StatusOK)

	streamErr := copyStream(w, h)

	trace.SpanFromContext(r.Context()).SetAttributes(
		telemetry.StreamResultAttributes(name, h.State().String(), h.BytesRead())...)

	switch {
	case streamErr == nil:
		return
	case errors.Is(streamErr, errClientGone), errors.Is(streamErr, pipeline.ErrCanceled):
		_ = h.Close()
		logger.Debug().
			Err(streamErr).
			Int64(log.FieldBytes, h.BytesRead()).
			Msg("consumer disconnected")
		return
	default:
		evt := logger.Error().Err(streamErr).Int64(log.FieldBytes, h.BytesRead())
		var pe *pipeline.Error
		if errors.As(streamErr, &pe) {
			evt = evt.Str(log.FieldStage, pe.Stage).Strs("diagnostics", pe.Diagnostics)
		}
		evt.Msg("stream failed after response started")
		// Headers are gone; truncate the transfer so the client cannot mistake it for complete.
		panic(http.ErrAbortHandler)
	}
}

func (s *Server) writeOpenError(w http.ResponseWriter, r *http.Request, logger zerolog.Logger, err error) {
	if errors.Is(err, pipeline.ErrCanceled) {
		logger.Debug().Err(err).Msg("consumer disconnected before first byte")
		return
	}

	var extra map[string]any
	evt := logger.Warn().Err(err)
	var pe *pipeline.Error
	if errors.As(err, &pe) {
		extra = map[string]any{"stage": pe.Stage}
		evt = evt.Str(log.FieldStage, pe.Stage).Strs("diagnostics", pe.Diagnostics)
		if pe.Exit.Kind == pipeline.ExitExited {
			evt = evt.Int(log.FieldExitCode, pe.Exit.Code)
		}
	}
	evt.Msg("pipeline rejected")

	if errors.Is(err, pipeline.ErrSpawnFailure) {
		problem.Write(w, r, http.StatusInternalServerError, "audio/spawn_failed", "Spawn Failed",
			problem.CodeSpawnFailed, "The audio pipeline could not be started.", extra)
		return
	}
	problem.Write(w, r, http.StatusBadGateway, "audio/extraction_failed", "Extraction Failed",
		problem.CodeExtractionFailed, "No audio could be produced for this source.", extra)
}

// copyStream pumps h into w, flushing after every chunk. It returns nil at a clean end of
// stream, errClientGone (wrapped) on a write failure, or the stream's terminal error.
func copyStream(w http.ResponseWriter, h io.Reader) error {
	rc := http.NewResponseController(w)
	// Flush headers so two-stage clients see the response before the first chunk.
	_ = rc.Flush()

	buf := make([]byte, streamChunkSize)
	for {
		n, rerr := h.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return fmt.Errorf("%w: %w", errClientGone, werr)
			}
			if ferr := rc.Flush(); ferr != nil && !errors.Is(ferr, http.ErrNotSupported) {
				return fmt.Errorf("%w: %w", errClientGone, ferr)
			}
		}
		if errors.Is(rerr, io.EOF) {
			return nil
		}
		if rerr != nil {
			return rerr
		}
	}
}

// stripExtension drops a trailing ".ext" so /audio/mp3/abc.mp3 addresses source abc.
func stripExtension(id string) string {
	if i := strings.LastIndexByte(id, '.'); i > 0 {
		return id[:i]
	}
	return id
}

func sanitizeTitle(title string) string {
	title = norm.NFC.String(title)
	title = strings.Map(func(r rune) rune {
		switch {
		case r < 0x20, r == 0x7f, r == '/', r == '\\':
			return -1
		}
		return r
	}, strings.TrimSpace(title))
	if len(title) > maxTitleLen {
		title = strings.ToValidUTF8(title[:maxTitleLen], "")
	}
	return title
}

// contentDisposition renders an inline disposition with an ASCII filename and, when the title
// is not plain ASCII, an RFC 5987 filename* carrying the original.
func contentDisposition(title, ext string) string {
	filename := title
	if ext != "" {
		filename += "." + ext
	}
	// Decompose and drop combining marks so "café" falls back to "cafe" rather than "caf_".
	folded, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), filename)
	if err != nil {
		folded = filename
	}
	ascii := strings.Map(func(r rune) rune {
		if r < 0x20 || r > 0x7e || r == '"' || r == '\\' {
			return '_'
		}
		return r
	}, folded)
	v := `inline; filename="` + ascii + `"`
	if ascii != filename {
		v += "; filename*=UTF-8''" + url.PathEscape(filename)
	}
	return v
}
