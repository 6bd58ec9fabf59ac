// SPDX-License-Identifier: MIT

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for consistent tracing across the application.
const (
	// HTTP attributes
	HTTPMethodKey     = "http.method"
	HTTPStatusCodeKey = "http.status_code"
	HTTPRouteKey      = "http.route"

	// Pipeline attributes
	PipelineTopologyKey = "pipeline.topology"
	PipelineSourceKey   = "pipeline.source_id"
	PipelineFormatKey   = "pipeline.audio_format"
	PipelineProfileKey  = "pipeline.profile"
	PipelineStateKey    = "pipeline.state"
	PipelineBytesKey    = "pipeline.bytes"
)

// HTTPAttributes creates common HTTP span attributes.
func HTTPAttributes(method, route string, statusCode int) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(HTTPMethodKey, method),
		attribute.String(HTTPRouteKey, route),
	}
	if statusCode > 0 {
		attrs = append(attrs, attribute.Int(HTTPStatusCodeKey, statusCode))
	}
	return attrs
}

// StreamResultAttributes describes how a delivered stream ended.
func StreamResultAttributes(profile, state string, bytes int64) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(PipelineProfileKey, profile),
		attribute.String(PipelineStateKey, state),
		attribute.Int64(PipelineBytesKey, bytes),
	}
}
