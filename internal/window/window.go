// Package window collects the latest pending reading per location and flushes
// the collection to a publish sink on a fixed interval.
package window

import (
	"sort"
	"sync"

	"lacrosse-relay/internal/types"
)

// Window holds at most one pending reading per location. A newer reading for
// a location replaces the pending one. All methods are safe for concurrent use.
type Window struct {
	mu      sync.Mutex
	pending map[string]types.Reading
}

func New() *Window {
	return &Window{pending: make(map[string]types.Reading)}
}

// Put stores r as the pending reading for r.Location and reports whether it
// replaced an earlier one. Readings without a location are ignored.
func (w *Window) Put(r types.Reading) (replaced bool) {
	if !r.HasLocation() {
		return false
	}
	w.mu.Lock()
	_, replaced = w.pending[r.Location]
	w.pending[r.Location] = r
	w.mu.Unlock()
	return replaced
}

// Drain takes every pending reading and empties the window in one step.
// The result is sorted by location.
func (w *Window) Drain() []types.Reading {
	w.mu.Lock()
	taken := w.pending
	w.pending = make(map[string]types.Reading, len(taken))
	w.mu.Unlock()

	out := make([]types.Reading, 0, len(taken))
	for _, r := range taken {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Location < out[j].Location })
	return out
}

// Len returns the number of pending readings.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}
