// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package pipeline

import "strings"

// Topology is the shape of the process pipeline serving one request.
type Topology int

const (
	// TopologySingle runs the extractor alone; it converts audio itself.
	TopologySingle Topology = iota
	// TopologyTwoStage pipes raw extractor output into a transcoder.
	TopologyTwoStage
)

func (t Topology) String() string {
	switch t {
	case TopologySingle:
		return "single"
	case TopologyTwoStage:
		return "two_stage"
	default:
		return "unknown"
	}
}

// SelectTopology decides whether a profile needs the transcoding stage.
// Non-blank postprocessor arguments select the two-stage pipeline.
func SelectTopology(p Profile) Topology {
	if strings.TrimSpace(p.PostprocessorArgs) != "" {
		return TopologyTwoStage
	}
	return TopologySingle
}
