// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package profiles holds the named output formats a client can request.
//
// A profile is read from YAML:
//
//	profiles:
//	  mp3-64k:
//	    description: "MP3 64 kbit/s mono"
//	    audioFormat: mp3
//	    contentType: audio/mpeg
//	    fileExtension: mp3
//	    postprocessorArgs: "ffmpeg:-c:a libmp3lame -b:a 64k -ac 1"
package profiles

import (
	"errors"
	"regexp"
	"sort"
	"strings"

	"github.com/ManuGH/podstream/internal/pipeline"
)

var (
	// ErrUnknownProfile is returned for names not present in the registry.
	ErrUnknownProfile = errors.New("unknown profile")
	// ErrNoProfiles is returned when a document defines no profile at all.
	ErrNoProfiles = errors.New("no profiles defined")
)

var namePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]*$`)

// Definition is one profile as written in YAML.
type Definition struct {
	Description       string   `yaml:"description,omitempty" json:"description,omitempty"`
	AudioFormat       string   `yaml:"audioFormat" json:"audioFormat"`
	ContentType       string   `yaml:"contentType" json:"contentType"`
	FileExtension     string   `yaml:"fileExtension" json:"fileExtension"`
	AdditionalArgs    []string `yaml:"additionalArgs,omitempty" json:"additionalArgs,omitempty"`
	PostprocessorArgs string   `yaml:"postprocessorArgs,omitempty" json:"postprocessorArgs,omitempty"`
}

// Profile converts the definition into the pipeline's parameter set.
func (d Definition) Profile() pipeline.Profile {
	return pipeline.Profile{
		Description:       d.Description,
		AudioFormat:       d.AudioFormat,
		ContentType:       d.ContentType,
		FileExtension:     d.FileExtension,
		AdditionalArgs:    append([]string(nil), d.AdditionalArgs...),
		PostprocessorArgs: d.PostprocessorArgs,
	}
}

// Document is the top-level YAML shape.
type Document struct {
	Profiles map[string]Definition `yaml:"profiles"`
}

// Info summarizes a profile for listings.
type Info struct {
	Name          string `json:"name"`
	Description   string `json:"description,omitempty"`
	ContentType   string `json:"contentType"`
	FileExtension string `json:"fileExtension"`
	Topology      string `json:"topology"`
}

// Normalize canonicalizes a requested profile name.
func Normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Defaults returns the built-in profiles used when no file is configured.
func Defaults() Document {
	return Document{Profiles: map[string]Definition{
		"mp3": {
			Description:   "MP3 converted by the extractor",
			AudioFormat:   "mp3",
			ContentType:   "audio/mpeg",
			FileExtension: "mp3",
		},
		"mp3-64k": {
			Description:       "MP3 64 kbit/s mono for low-bandwidth clients",
			AudioFormat:       "mp3",
			ContentType:       "audio/mpeg",
			FileExtension:     "mp3",
			PostprocessorArgs: "ffmpeg:-vn -c:a libmp3lame -b:a 64k -ac 1",
		},
		"m4a": {
			Description:   "AAC in MP4 container",
			AudioFormat:   "m4a",
			ContentType:   "audio/mp4",
			FileExtension: "m4a",
		},
		"opus": {
			Description:       "Opus in Ogg container",
			AudioFormat:       "ogg",
			ContentType:       "audio/ogg",
			FileExtension:     "opus",
			PostprocessorArgs: "ffmpeg:-vn -c:a libopus -b:a 96k",
		},
	}}
}

func infoOf(name string, d Definition) Info {
	return Info{
		Name:          name,
		Description:   d.Description,
		ContentType:   d.ContentType,
		FileExtension: d.FileExtension,
		Topology:      pipeline.SelectTopology(d.Profile()).String(),
	}
}

func sortedNames(set map[string]Definition) []string {
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
