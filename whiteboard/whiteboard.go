// Package whiteboard is an append-friendly diagnostic message board. Scan
// and evaluation code posts human-readable notes under named sections; the
// CLI renders the board at the end of a run. A run normally owns its own
// board, with one process-wide default kept for convenience.
package whiteboard

import (
	"sort"
	"sync"
)

// ScratchSection receives notes posted through Scribble.
const ScratchSection = "scratch"

// Whiteboard holds titled notes grouped into sections. Safe for concurrent
// use.
type Whiteboard struct {
	mu       sync.RWMutex
	sections map[string]map[string]any
}

// New creates an empty board.
func New() *Whiteboard {
	return &Whiteboard{sections: make(map[string]map[string]any)}
}

// Write posts a note under a section, replacing any prior note with the
// same title.
func (w *Whiteboard) Write(section, title string, value any) {
	w.mu.Lock()
	defer w.mu.Unlock()
	s, ok := w.sections[section]
	if !ok {
		s = make(map[string]any)
		w.sections[section] = s
	}
	s[title] = value
}

// Scribble posts a note into the scratch section.
func (w *Whiteboard) Scribble(title string, value any) {
	w.Write(ScratchSection, title, value)
}

// Get returns the note posted under a section and title.
func (w *Whiteboard) Get(section, title string) (any, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	s, ok := w.sections[section]
	if !ok {
		return nil, false
	}
	v, ok := s[title]
	return v, ok
}

// Section returns a copy of every note in a section.
func (w *Whiteboard) Section(section string) map[string]any {
	w.mu.RLock()
	defer w.mu.RUnlock()
	s, ok := w.sections[section]
	if !ok {
		return nil
	}
	out := make(map[string]any, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Sections returns the section names in sorted order.
func (w *Whiteboard) Sections() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]string, 0, len(w.sections))
	for name := range w.sections {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Erase removes one note. Removing the last note of a section removes the
// section.
func (w *Whiteboard) Erase(section, title string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	s, ok := w.sections[section]
	if !ok {
		return
	}
	delete(s, title)
	if len(s) == 0 {
		delete(w.sections, section)
	}
}

var (
	defaultMu    sync.Mutex
	defaultBoard = New()
)

// Default returns the process-wide board.
func Default() *Whiteboard {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	return defaultBoard
}

// Reset replaces the process-wide board with a fresh one.
func Reset() {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultBoard = New()
}
