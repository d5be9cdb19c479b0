package resync

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// staleFilter drops events not newer than the last one handled for the same
// area, so redelivered or reordered notifications do not repeat a re-sync.
type staleFilter struct {
	mu  sync.Mutex
	lru *lru.Cache[string, time.Time]
}

func newStaleFilter(size int) *staleFilter {
	if size <= 0 {
		size = 4096
	}
	c, _ := lru.New[string, time.Time](size)
	return &staleFilter{lru: c}
}

func (f *staleFilter) fresh(key string, ts time.Time) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if last, ok := f.lru.Get(key); ok && !ts.After(last) {
		return false
	}
	return true
}

// done records ts after a successful re-sync; failures stay retryable.
func (f *staleFilter) done(key string, ts time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if last, ok := f.lru.Get(key); ok && !ts.After(last) {
		return
	}
	f.lru.Add(key, ts)
}
