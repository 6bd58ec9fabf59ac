// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package pipeline

// Profile is the set of extraction and transcoding parameters of one named output format.
// The pipeline treats every field as opaque; quality decisions live in configuration.
type Profile struct {
	Description       string   // diagnostic only
	AudioFormat       string   // target codec/container tag, e.g. "mp3"
	ContentType       string   // passed through to the caller, e.g. "audio/mpeg"
	FileExtension     string   // passed through to the caller, e.g. "mp3"
	AdditionalArgs    []string // appended verbatim to the single-stage extractor
	PostprocessorArgs string   // non-blank selects the two-stage pipeline
}

// Request asks for the audio of one source rendered with one profile.
type Request struct {
	SourceID string
	Profile  Profile

	// Title is the suggested title of the stream. Defaults to SourceID.
	Title string
}

func (r Request) suggestedTitle() string {
	if r.Title != "" {
		return r.Title
	}
	return r.SourceID
}
