// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func TestNewProvider_Disabled(t *testing.T) {
	p, err := NewProvider(context.Background(), Config{Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.NoError(t, p.Shutdown(context.Background()))

	_, span := Tracer("test").Start(context.Background(), "noop")
	assert.False(t, span.SpanContext().IsValid(), "noop provider must not produce valid spans")
	span.End()
}

func TestNewProvider_UnsupportedExporter(t *testing.T) {
	_, err := NewProvider(context.Background(), Config{
		Enabled:      true,
		ServiceName:  "podstream",
		ExporterType: "carrier-pigeon",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported exporter type")
}

func TestSampler(t *testing.T) {
	assert.Equal(t, "AlwaysOnSampler", sampler(1).Description())
	assert.Equal(t, "AlwaysOffSampler", sampler(0).Description())
	assert.Contains(t, sampler(0.5).Description(), "TraceIDRatioBased")
}

func TestNilProviderShutdown(t *testing.T) {
	var p *Provider
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestHTTPAttributes(t *testing.T) {
	attrs := HTTPAttributes("GET", "/audio/{profile}/{sourceID}", 200)
	assert.Contains(t, attrs, attribute.String(HTTPMethodKey, "GET"))
	assert.Contains(t, attrs, attribute.Int(HTTPStatusCodeKey, 200))

	attrs = HTTPAttributes("GET", "/", 0)
	assert.Len(t, attrs, 2)
}

func TestStreamResultAttributes(t *testing.T) {
	attrs := StreamResultAttributes("mp3", "done", 42)
	assert.Contains(t, attrs, attribute.Int64(PipelineBytesKey, 42))
	assert.Contains(t, attrs, attribute.String(PipelineStateKey, "done"))
}
