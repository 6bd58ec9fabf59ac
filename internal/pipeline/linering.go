// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package pipeline

import (
	"bytes"
	"strings"
	"sync"
)

const (
	defaultDiagnosticLines = 64
	maxDiagnosticLineBytes = 1024
)

// lineRing keeps the last lines written to a process's stderr.
// Memory is bounded by capacity*maxLine regardless of input length, and Write never blocks
// on anything but its own mutex. Both '\n' and '\r' end a line, so carriage-return progress
// updates become separate (mostly overwritten) lines.
type lineRing struct {
	mu      sync.Mutex
	lines   []string
	head    int
	count   int
	maxLine int
	partial []byte

	// onLine observes every completed line, outside the lock.
	onLine func(string)
}

func newLineRing(capacity, maxLine int, onLine func(string)) *lineRing {
	if capacity < 1 {
		capacity = defaultDiagnosticLines
	}
	if maxLine < 1 {
		maxLine = maxDiagnosticLineBytes
	}
	return &lineRing{
		lines:   make([]string, capacity),
		maxLine: maxLine,
		partial: make([]byte, 0, 128),
		onLine:  onLine,
	}
}

// Write implements io.Writer. Partial lines are held until their terminator arrives;
// bytes beyond maxLine are dropped.
func (r *lineRing) Write(p []byte) (int, error) {
	n := len(p)
	var completed []string

	r.mu.Lock()
	for len(p) > 0 {
		i := bytes.IndexAny(p, "\r\n")
		chunk := p
		if i >= 0 {
			chunk = p[:i]
			p = p[i+1:]
		} else {
			p = nil
		}
		if room := r.maxLine - len(r.partial); room > 0 {
			if len(chunk) > room {
				chunk = chunk[:room]
			}
			r.partial = append(r.partial, chunk...)
		}
		if i >= 0 {
			if line, ok := r.commitLocked(); ok {
				completed = append(completed, line)
			}
		}
	}
	r.mu.Unlock()

	r.notify(completed)
	return n, nil
}

// flush commits a trailing line that never got its terminator.
func (r *lineRing) flush() {
	r.mu.Lock()
	line, ok := r.commitLocked()
	r.mu.Unlock()
	if ok {
		r.notify([]string{line})
	}
}

func (r *lineRing) commitLocked() (string, bool) {
	line := strings.TrimSpace(string(r.partial))
	r.partial = r.partial[:0]
	if line == "" {
		return "", false
	}
	r.lines[r.head] = line
	r.head = (r.head + 1) % len(r.lines)
	if r.count < len(r.lines) {
		r.count++
	}
	return line, true
}

func (r *lineRing) notify(lines []string) {
	if r.onLine == nil {
		return
	}
	for _, l := range lines {
		r.onLine(l)
	}
}

// LastN returns up to n most recent lines in chronological order.
func (r *lineRing) LastN(n int) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n > r.count {
		n = r.count
	}
	if n <= 0 {
		return nil
	}
	out := make([]string, 0, n)
	size := len(r.lines)
	for i := n; i > 0; i-- {
		out = append(out, r.lines[(r.head-i+size)%size])
	}
	return out
}

// severityMarkers are the line prefixes worth forwarding to the operational log.
// Everything else (download progress, ffmpeg stats) stays in the ring only.
var severityMarkers = []struct {
	prefix   string
	severity string
}{
	{"error:", "error"},
	{"warning:", "warning"},
	{"[error]", "error"},
	{"[warning]", "warning"},
	{"[fatal]", "fatal"},
	{"[panic]", "fatal"},
}

// severityOf reports the severity marker a line starts with, if any.
func severityOf(line string) (string, bool) {
	lower := strings.ToLower(strings.TrimSpace(line))
	for _, m := range severityMarkers {
		if strings.HasPrefix(lower, m.prefix) {
			return m.severity, true
		}
	}
	return "", false
}
