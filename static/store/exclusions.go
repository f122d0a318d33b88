package store

import (
	"slices"
	"strings"
	"sync"
)

// PrefetchExclusions lists paths that are never fetched ahead of navigation.
// Paths compare after trimming whitespace and one trailing slash.
type PrefetchExclusions struct {
	mu    sync.RWMutex
	paths []string
}

func (e *PrefetchExclusions) Add(paths ...string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, p := range paths {
		e.paths = append(e.paths, normalizeExclusion(p))
	}
}

func (e *PrefetchExclusions) Contains(path string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return slices.Contains(e.paths, normalizeExclusion(path))
}

func normalizeExclusion(p string) string {
	return strings.TrimSuffix(strings.TrimSpace(p), "/")
}
