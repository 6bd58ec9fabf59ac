// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ManuGH/podstream/internal/health"
	"github.com/ManuGH/podstream/internal/pipeline"
	"github.com/ManuGH/podstream/internal/problem"
	"github.com/ManuGH/podstream/internal/profiles"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// stubOpener returns a fixed error and records the requests it saw.
type stubOpener struct {
	err  error
	seen []pipeline.Request
}

func (o *stubOpener) Open(_ context.Context, req pipeline.Request) (*pipeline.Handle, error) {
	o.seen = append(o.seen, req)
	return nil, o.err
}

func newTestServer(t *testing.T, cfg Config, opener Opener) *Server {
	t.Helper()
	reg, err := profiles.NewRegistry("")
	require.NoError(t, err)
	return New(cfg, opener, reg, nil)
}

func decodeProblem(t *testing.T, body io.Reader) map[string]any {
	t.Helper()
	var p map[string]any
	require.NoError(t, json.NewDecoder(body).Decode(&p))
	return p
}

func TestServer_ServeAndShutdown(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	hm := health.NewManager("test")
	reg, err := profiles.NewRegistry("")
	require.NoError(t, err)
	srv := New(Config{ShutdownTimeout: time.Second}, &stubOpener{}, reg, hm)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	tr := &http.Transport{}
	client := &http.Client{Transport: tr, Timeout: 5 * time.Second}
	resp, err := client.Get("http://" + ln.Addr().String() + "/healthz")
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	tr.CloseIdleConnections()

	require.NoError(t, srv.Shutdown(context.Background()))
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after Shutdown")
	}
}

func TestServer_ServeTwiceFails(t *testing.T) {
	srv := newTestServer(t, Config{}, &stubOpener{})

	ln1, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln1) }()

	// Wait until the first Serve registered its server.
	require.Eventually(t, func() bool {
		srv.mu.Lock()
		defer srv.mu.Unlock()
		return srv.httpSrv != nil
	}, 5*time.Second, 10*time.Millisecond)

	ln2, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	assert.Error(t, srv.Serve(ln2))

	require.NoError(t, srv.Shutdown(context.Background()))
	assert.NoError(t, <-errCh)
}

func TestServer_ShutdownBeforeServe(t *testing.T) {
	srv := newTestServer(t, Config{}, &stubOpener{})
	assert.NoError(t, srv.Shutdown(context.Background()))
}

func TestProfilesEndpoint(t *testing.T) {
	srv := newTestServer(t, Config{}, &stubOpener{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/profiles", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body struct {
		Profiles []profiles.Info `json:"profiles"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	names := make([]string, 0, len(body.Profiles))
	topologies := map[string]string{}
	for _, p := range body.Profiles {
		names = append(names, p.Name)
		topologies[p.Name] = p.Topology
	}
	assert.Equal(t, []string{"m4a", "mp3", "mp3-64k", "opus"}, names)
	assert.Equal(t, pipeline.TopologySingle.String(), topologies["mp3"])
	assert.Equal(t, pipeline.TopologyTwoStage.String(), topologies["mp3-64k"])
}

func TestAudio_UnknownProfile(t *testing.T) {
	opener := &stubOpener{}
	srv := newTestServer(t, Config{}, opener)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/audio/flac/abc", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, problem.CodeNotFound, decodeProblem(t, rec.Body)["code"])
	assert.Empty(t, opener.seen)
}

func TestAudio_InvalidSourceID(t *testing.T) {
	opener := &stubOpener{}
	srv := newTestServer(t, Config{}, opener)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/audio/mp3/bad!id", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, problem.CodeInvalidInput, decodeProblem(t, rec.Body)["code"])
	assert.Empty(t, opener.seen)
}

func TestAudio_RejectionMapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantBody string
	}{
		{
			name:     "spawn failure",
			err:      &pipeline.Error{Kind: pipeline.KindSpawn, Stage: "extractor"},
			wantCode: http.StatusInternalServerError,
			wantBody: problem.CodeSpawnFailed,
		},
		{
			name:     "extraction failure",
			err:      &pipeline.Error{Kind: pipeline.KindExtraction, Stage: "extractor", Diagnostics: []string{"ERROR: gone"}},
			wantCode: http.StatusBadGateway,
			wantBody: problem.CodeExtractionFailed,
		},
		{
			name:     "transcode failure",
			err:      &pipeline.Error{Kind: pipeline.KindTranscode, Stage: "transcoder"},
			wantCode: http.StatusBadGateway,
			wantBody: problem.CodeExtractionFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, Config{}, &stubOpener{err: tt.err})

			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/audio/mp3/abc", nil))
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
			assert.Empty(t, rec.Header().Get(HeaderTopology))

			p := decodeProblem(t, rec.Body)
			assert.Equal(t, tt.wantBody, p["code"])
			assert.NotEmpty(t, p["stage"])
		})
	}
}

func TestAudio_CanceledBeforeFirstByteWritesNothing(t *testing.T) {
	srv := newTestServer(t, Config{}, &stubOpener{err: pipeline.ErrCanceled})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/audio/mp3/abc", nil))
	assert.Zero(t, rec.Body.Len())
	assert.Empty(t, rec.Header().Get("Content-Type"))
}

func TestAudio_RequestCarriesIDAndTitle(t *testing.T) {
	opener := &stubOpener{err: pipeline.ErrCanceled}
	srv := newTestServer(t, Config{}, opener)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/audio/MP3/dQw4w9WgXcQ.mp3?title=My%20Song", nil))

	require.Len(t, opener.seen, 1)
	assert.Equal(t, "dQw4w9WgXcQ", opener.seen[0].SourceID)
	assert.Equal(t, "My Song", opener.seen[0].Title)
	assert.Equal(t, "audio/mpeg", opener.seen[0].Profile.ContentType)
}

func TestAudio_RateLimited(t *testing.T) {
	srv := newTestServer(t, Config{
		RateLimit: RateLimitConfig{Enabled: true, Requests: 1, Window: time.Minute},
	}, &stubOpener{})

	h := srv.Handler()
	first := httptest.NewRecorder()
	h.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/audio/nope/abc", nil))
	assert.Equal(t, http.StatusNotFound, first.Code)

	second := httptest.NewRecorder()
	h.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/audio/nope/abc", nil))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)

	// Other routes are not limited.
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRoutes_MethodNotAllowedAndNotFound(t *testing.T) {
	srv := newTestServer(t, Config{}, &stubOpener{})
	h := srv.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/profiles", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, problem.CodeMethodNotAllowed, decodeProblem(t, rec.Body)["code"])

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nowhere", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRoutes_MetricsToggle(t *testing.T) {
	on := newTestServer(t, Config{MetricsEnabled: true}, &stubOpener{})
	rec := httptest.NewRecorder()
	on.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")

	off := newTestServer(t, Config{}, &stubOpener{})
	rec = httptest.NewRecorder()
	off.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHelpers(t *testing.T) {
	assert.Equal(t, "abc", stripExtension("abc.mp3"))
	assert.Equal(t, "abc", stripExtension("abc"))
	assert.Equal(t, ".hidden", stripExtension(".hidden"))

	assert.Equal(t, "ab", sanitizeTitle(" a/b\n "))
	assert.Len(t, sanitizeTitle(string(make([]byte, 500))), 0)

	assert.Equal(t, `inline; filename="abc.mp3"`, contentDisposition("abc", "mp3"))
	assert.Equal(t, `inline; filename="x_y.mp3"; filename*=UTF-8''x%22y.mp3`, contentDisposition(`x"y`, "mp3"))
	assert.Equal(t, `inline; filename="cafe.mp3"; filename*=UTF-8''caf%C3%A9.mp3`, contentDisposition("café", "mp3"))
}
