// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package problem

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ManuGH/podstream/internal/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrite(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/audio/flac/abc", nil)
	req = req.WithContext(log.ContextWithRequestID(req.Context(), "req-123"))
	rec := httptest.NewRecorder()

	Write(rec, req, http.StatusNotFound, "audio/unknown_profile", "Not Found", CodeNotFound,
		"profile \"flac\" is not configured", map[string]any{"profile": "flac", "status": 999})

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "req-123", rec.Header().Get(HeaderRequestID))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "audio/unknown_profile", body["type"])
	assert.Equal(t, CodeNotFound, body["code"])
	assert.Equal(t, float64(http.StatusNotFound), body["status"], "reserved keys cannot be overridden")
	assert.Equal(t, "flac", body["profile"])
	assert.Equal(t, "/audio/flac/abc", body["instance"])
	assert.Equal(t, "req-123", body[JSONKeyRequestID])
}

func TestWrite_WithoutRequestID(t *testing.T) {
	rec := httptest.NewRecorder()
	Write(rec, httptest.NewRequest(http.MethodGet, "/", nil), http.StatusInternalServerError, "system/internal", "Internal Error", CodeInternal, "", nil)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotContains(t, body, JSONKeyRequestID)
	assert.NotContains(t, body, "detail")
}
