// Package dedup implements the short-window duplicate-suppression
// component: a bounded mapping from fingerprint to last-seen time with
// age-based eviction.
package dedup

import (
	"sync"
	"time"
)

// Window is a process-local duplicate window. It is safe for concurrent use.
type Window struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]time.Time
}

// NewWindow builds a Window that forgets fingerprints older than ttl.
func NewWindow(ttl time.Duration) *Window {
	return &Window{
		ttl:     ttl,
		entries: make(map[string]time.Time),
	}
}

// CheckAndRecord reports whether fingerprint was already present within the
// window, then records it at now. An empty fingerprint is never considered
// a duplicate and is not recorded.
func (w *Window) CheckAndRecord(fingerprint string, now time.Time) bool {
	if fingerprint == "" {
		return false
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.pruneLocked(now)

	_, duplicate := w.entries[fingerprint]
	w.entries[fingerprint] = now
	return duplicate
}

// pruneLocked evicts every entry whose age exceeds ttl. Called with mu held.
func (w *Window) pruneLocked(now time.Time) {
	if w.ttl <= 0 {
		return
	}
	for fp, seen := range w.entries {
		if now.Sub(seen) > w.ttl {
			delete(w.entries, fp)
		}
	}
}

// Len reports the current number of tracked fingerprints, for status
// reporting only.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.entries)
}
