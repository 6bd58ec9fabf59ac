// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package profiles

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ManuGH/podstream/internal/validate"
	"github.com/google/renameio/v2"
	"gopkg.in/yaml.v3"
)

// LoadFile reads and validates a profiles document.
func LoadFile(path string) (Document, error) {
	// #nosec G304 -- profile paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Document{}, fmt.Errorf("read profiles: %w", err)
	}
	return Parse(data)
}

// Parse decodes one strict YAML document, normalizes names and validates every profile.
func Parse(data []byte) (Document, error) {
	var doc Document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return Document{}, fmt.Errorf("parse profiles: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return Document{}, fmt.Errorf("parse profiles: multiple documents or trailing content")
	}

	normalized := make(map[string]Definition, len(doc.Profiles))
	for name, def := range doc.Profiles {
		key := Normalize(name)
		if _, dup := normalized[key]; dup {
			return Document{}, fmt.Errorf("parse profiles: duplicate profile %q", key)
		}
		normalized[key] = def
	}
	doc.Profiles = normalized

	if err := Validate(doc); err != nil {
		return Document{}, err
	}
	return doc, nil
}

// Validate checks every profile of doc.
func Validate(doc Document) error {
	if len(doc.Profiles) == 0 {
		return ErrNoProfiles
	}
	v := validate.New()
	for _, name := range sortedNames(doc.Profiles) {
		def := doc.Profiles[name]
		v.Pattern("profiles."+name, name, namePattern)
		v.NotEmpty("profiles."+name+".audioFormat", def.AudioFormat)
		v.NotEmpty("profiles."+name+".contentType", def.ContentType)
		v.NotEmpty("profiles."+name+".fileExtension", def.FileExtension)
	}
	return v.Err()
}

// WriteFile atomically replaces path with doc rendered as YAML.
func WriteFile(path string, doc Document) (err error) {
	if err := Validate(doc); err != nil {
		return err
	}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode profiles: %w", err)
	}

	// renameio handles: temp file creation, fsync, atomic rename, cleanup on error
	pendingFile, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o644))
	if err != nil {
		return fmt.Errorf("create pending profiles file: %w", err)
	}
	defer func() {
		if cerr := pendingFile.Cleanup(); cerr != nil && err == nil {
			err = fmt.Errorf("cleanup pending profiles file: %w", cerr)
		}
	}()

	if _, err := pendingFile.Write(data); err != nil {
		return fmt.Errorf("write profiles data: %w", err)
	}
	if err := pendingFile.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace profiles file: %w", err)
	}
	return nil
}
