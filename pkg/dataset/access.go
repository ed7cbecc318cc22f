package dataset

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// IssueFunc requests a new transient access for one file.
type IssueFunc func(ctx context.Context, file File) (Access, error)

type cacheEntry[T any] struct {
	value     T
	expiresAt time.Time
}

// isExpired reports whether the entry has a known expiry that has passed.
func (e *cacheEntry[T]) isExpired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// AccessCache memoizes transient access per file for the lifetime of one
// adapter. Entries are re-issued only once their known expiry has passed.
type AccessCache struct {
	issue IssueFunc
	clock clockwork.Clock

	mu      sync.Mutex
	entries map[string]*cacheEntry[Access]
}

// NewAccessCache creates a cache around issue. A nil clock uses real time.
func NewAccessCache(issue IssueFunc, clock clockwork.Clock) *AccessCache {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &AccessCache{
		issue:   issue,
		clock:   clock,
		entries: make(map[string]*cacheEntry[Access]),
	}
}

// Acquire returns the cached access for file or issues a new one.
func (c *AccessCache) Acquire(ctx context.Context, file File) (Access, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.entries[file.Name]; ok && !entry.isExpired(c.clock.Now()) {
		return entry.value, nil
	}

	access, err := c.issue(ctx, file)
	if err != nil {
		return Access{}, err
	}
	c.entries[file.Name] = &cacheEntry[Access]{value: access, expiresAt: access.ExpiresAt}
	return access, nil
}

// Len returns the number of cached entries.
func (c *AccessCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
