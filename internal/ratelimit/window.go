// Package ratelimit implements an advisory, per-identity sliding-window
// request counter.
//
// A Window keeps the timestamps of accepted requests per id and, on each
// call, drops those older than the window before counting. There is no
// background timer; ids that go quiet are pruned opportunistically.
//
// This is a convenience guard for well-behaved callers, not an enforcement
// point: a caller that bypasses it reaches the network directly. The HTTP
// edge has its own token-bucket limiter (see internal/http/middleware).
package ratelimit

import (
	"sync"
	"time"
)

const (
	// DefaultMax is the number of requests allowed per window.
	DefaultMax = 10
	// DefaultWindow is the trailing window length.
	DefaultWindow = time.Minute

	pruneEvery = 1000
)

// Window is a sliding-window limiter keyed by identity. Safe for concurrent use.
type Window struct {
	max    int
	window time.Duration
	now    func() time.Time

	mu    sync.Mutex
	hits  map[string][]time.Time
	calls uint64
}

// New constructs a Window allowing max requests per window. Non-positive
// values fall back to DefaultMax / DefaultWindow.
func New(max int, window time.Duration) *Window {
	if max <= 0 {
		max = DefaultMax
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Window{
		max:    max,
		window: window,
		now:    time.Now,
		hits:   make(map[string][]time.Time),
	}
}

// WithClock replaces the time source and returns w (tests).
func (w *Window) WithClock(now func() time.Time) *Window {
	w.mu.Lock()
	w.now = now
	w.mu.Unlock()
	return w
}

// CanMakeRequest reports whether id has fewer than max requests in the
// trailing window. When it does, the current time is recorded.
func (w *Window) CanMakeRequest(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	w.calls++
	if w.calls%pruneEvery == 0 {
		w.prune(now)
	}

	recent := trim(w.hits[id], now.Add(-w.window))
	if len(recent) >= w.max {
		w.hits[id] = recent
		return false
	}
	w.hits[id] = append(recent, now)
	return true
}

// Remaining reports how many requests id may still make in the current window.
func (w *Window) Remaining(id string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := len(trim(w.hits[id], w.now().Add(-w.window)))
	if n >= w.max {
		return 0
	}
	return w.max - n
}

// Reset forgets all recorded requests for id.
func (w *Window) Reset(id string) {
	w.mu.Lock()
	delete(w.hits, id)
	w.mu.Unlock()
}

// prune drops ids whose newest hit has left the window.
func (w *Window) prune(now time.Time) {
	cutoff := now.Add(-w.window)
	for id, ts := range w.hits {
		if len(ts) == 0 || !ts[len(ts)-1].After(cutoff) {
			delete(w.hits, id)
		}
	}
}

// trim returns the suffix of ts strictly after cutoff. ts is sorted ascending.
func trim(ts []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(ts) && !ts[i].After(cutoff) {
		i++
	}
	return ts[i:]
}
