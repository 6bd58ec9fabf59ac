// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package profiles

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/ManuGH/podstream/internal/log"
	"github.com/ManuGH/podstream/internal/pipeline"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

const defaultDebounce = 500 * time.Millisecond

// Registry is the concurrent-safe set of profiles served to requests.
// A failed reload keeps the previous set.
type Registry struct {
	path     string
	debounce time.Duration
	logger   zerolog.Logger

	mu  sync.RWMutex
	set map[string]Definition
}

// NewRegistry loads the profiles at path. An empty path selects Defaults.
func NewRegistry(path string) (*Registry, error) {
	r := &Registry{
		path:     path,
		debounce: defaultDebounce,
		logger:   log.WithComponent("profiles"),
	}
	if path == "" {
		r.set = Defaults().Profiles
		return r, nil
	}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Path is the backing file, empty for the built-in set.
func (r *Registry) Path() string { return r.path }

// Get resolves a profile by name.
func (r *Registry) Get(name string) (pipeline.Profile, error) {
	key := Normalize(name)
	r.mu.RLock()
	def, ok := r.set[key]
	r.mu.RUnlock()
	if !ok {
		return pipeline.Profile{}, fmt.Errorf("%w: %q", ErrUnknownProfile, key)
	}
	return def.Profile(), nil
}

// List returns every profile sorted by name.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Info, 0, len(r.set))
	for _, name := range sortedNames(r.set) {
		out = append(out, infoOf(name, r.set[name]))
	}
	return out
}

// Len is the number of profiles.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.set)
}

// Reload re-reads the backing file. On error the current set stays in place.
func (r *Registry) Reload() error {
	if r.path == "" {
		return nil
	}
	doc, err := LoadFile(r.path)
	if err != nil {
		r.logger.Error().
			Err(err).
			Str(log.FieldEvent, "profiles.reload_failed").
			Str("path", r.path).
			Msg("failed to load profiles, keeping previous set")
		return err
	}

	r.mu.Lock()
	r.set = doc.Profiles
	r.mu.Unlock()

	r.logger.Info().
		Str(log.FieldEvent, "profiles.loaded").
		Str("path", r.path).
		Int("count", len(doc.Profiles)).
		Msg("profiles loaded")
	return nil
}

// Watch reloads the registry whenever its file changes, until ctx is done.
// The parent directory is watched so atomic replacements (rename over the file) are seen.
// Without a backing file Watch blocks until ctx is done.
func (r *Registry) Watch(ctx context.Context) error {
	if r.path == "" {
		r.logger.Info().
			Str(log.FieldEvent, "profiles.watcher_disabled").
			Msg("profile watcher disabled (using built-in profiles)")
		<-ctx.Done()
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	target := filepath.Clean(r.path)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watch profiles directory: %w", err)
	}

	r.logger.Info().
		Str(log.FieldEvent, "profiles.watcher_started").
		Str("path", target).
		Msg("watching profiles for changes")

	var (
		debounceTimer *time.Timer
		fire          <-chan time.Time
	)
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Str(log.FieldEvent, "profiles.watcher_stopped").Msg("profile watcher stopped")
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			r.logger.Debug().
				Str(log.FieldEvent, "profiles.file_changed").
				Str("op", event.Op.String()).
				Msg("profiles file changed")

			// Debounce: editors emit several events per save.
			if debounceTimer == nil {
				debounceTimer = time.NewTimer(r.debounce)
			} else {
				debounceTimer.Reset(r.debounce)
			}
			fire = debounceTimer.C

		case <-fire:
			fire = nil
			_ = r.Reload()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Error().
				Err(err).
				Str(log.FieldEvent, "profiles.watcher_error").
				Msg("profile watcher error")
		}
	}
}
