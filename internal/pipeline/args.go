// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package pipeline

import (
	"strconv"
	"strings"
)

const (
	// DefaultSourceURLTemplate builds the extractor locator; "%s" is replaced by the source id.
	DefaultSourceURLTemplate = "https://www.youtube.com/watch?v=%s"
	// DefaultPostprocessorTag is the prefix stripped from postprocessor arguments ("ffmpeg:-c:a ...").
	DefaultPostprocessorTag = "ffmpeg"
)

// SourceLocator substitutes sourceID into the first "%s" of template.
// The id is not validated; malformed ids surface as extractor failures.
func SourceLocator(template, sourceID string) string {
	if template == "" {
		template = DefaultSourceURLTemplate
	}
	return strings.Replace(template, "%s", sourceID, 1)
}

// PostprocessorTokens strips the "<tag>:" prefix from raw and splits the rest on whitespace.
// Empty tokens are discarded.
func PostprocessorTokens(raw, tag string) []string {
	s := strings.TrimSpace(raw)
	if tag != "" {
		s = strings.TrimPrefix(s, tag+":")
	}
	return strings.Fields(s)
}

// extractorArgs renders the extractor argument template for the given topology.
//
// single:    -N <n> -x --audio-format <fmt> -o - <additional...> <locator>
// two-stage: -N <n> -f bestaudio -o - <locator>
func extractorArgs(topology Topology, p Profile, locator string, concurrency int) []string {
	args := []string{"-N", strconv.Itoa(concurrency)}
	if topology == TopologyTwoStage {
		// Conversion is deferred to the transcoder; ask for the best raw audio.
		args = append(args, "-f", "bestaudio", "-o", "-")
	} else {
		args = append(args, "-x", "--audio-format", p.AudioFormat, "-o", "-")
		args = append(args, p.AdditionalArgs...)
	}
	return append(args, locator)
}

// transcoderArgs reads stdin, applies the profile's postprocessor tokens and forces the
// profile's container on stdout.
func transcoderArgs(p Profile, tag string) []string {
	args := []string{"-hide_banner", "-i", "pipe:0"}
	args = append(args, PostprocessorTokens(p.PostprocessorArgs, tag)...)
	return append(args, "-f", p.AudioFormat, "pipe:1")
}
