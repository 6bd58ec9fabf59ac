// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

import (
	"net/http"
	"time"
)

// Middleware logs one access line per request after the handler returned.
// Streaming responses are logged once the stream ended, so duration covers the full transfer.
func Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			defer func() {
				logger := WithComponentFromContext(r.Context(), "http")
				evt := logger.Info()
				if rec.status >= http.StatusInternalServerError {
					evt = logger.Warn()
				}
				evt.
					Str(FieldEvent, "request.handled").
					Str(FieldMethod, r.Method).
					Str(FieldPath, r.URL.Path).
					Int(FieldStatus, rec.status).
					Int64(FieldBytes, rec.bytes).
					Int64(FieldDurationMS, time.Since(start).Milliseconds()).
					Str(FieldRemoteAddr, r.RemoteAddr).
					Msg("request handled")
			}()

			next.ServeHTTP(rec, r)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	bytes       int64
	wroteHeader bool
}

func (s *statusRecorder) WriteHeader(code int) {
	if !s.wroteHeader {
		s.status = code
		s.wroteHeader = true
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(p []byte) (int, error) {
	s.wroteHeader = true
	n, err := s.ResponseWriter.Write(p)
	s.bytes += int64(n)
	return n, err
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}
