package crawler

import (
	"context"
	"strings"
	"sync"
	"time"
)

// visitedSet holds the normalized URLs admitted during one crawl. It only grows.
type visitedSet struct {
	seen map[string]struct{}
}

func newVisitedSet() *visitedSet {
	return &visitedSet{seen: make(map[string]struct{})}
}

// Contains reports whether the normalized URL was already admitted.
func (v *visitedSet) Contains(normalized string) bool {
	_, ok := v.seen[normalized]
	return ok
}

// MarkIfNew stores the URL if it has not been seen before and returns true.
func (v *visitedSet) MarkIfNew(normalized string) bool {
	if normalized == "" || v.Contains(normalized) {
		return false
	}
	v.seen[normalized] = struct{}{}
	return true
}

// Len returns the number of admitted URLs.
func (v *visitedSet) Len() int {
	return len(v.seen)
}

// forbiddenTracker stops capturing hosts that keep answering 403.
type forbiddenTracker struct {
	mu        sync.Mutex
	threshold int
	counts    map[string]int
}

func newForbiddenTracker(threshold int) *forbiddenTracker {
	if threshold <= 0 {
		threshold = defaultForbiddenThreshold
	}
	return &forbiddenTracker{
		threshold: threshold,
		counts:    make(map[string]int),
	}
}

// IsBlocked reports whether host reached the threshold.
func (f *forbiddenTracker) IsBlocked(host string) bool {
	if host == "" {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[strings.ToLower(host)] >= f.threshold
}

// MarkForbidden counts a 403 for host and returns true once it is blocked.
func (f *forbiddenTracker) MarkForbidden(host string) bool {
	if host == "" {
		return false
	}
	key := strings.ToLower(host)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[key]++
	return f.counts[key] >= f.threshold
}

// pauseController abstracts how the crawler waits between retries.
type pauseController interface {
	Pause(ctx context.Context, delay time.Duration)
}

type timerPauseController struct{}

func (p *timerPauseController) Pause(ctx context.Context, delay time.Duration) {
	if delay <= 0 {
		return
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
