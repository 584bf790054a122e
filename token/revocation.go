package token

import (
	"sync"
	"time"
)

// UsedTokenCache remembers consumed token ids until they expire, making each
// confirmation single-use.
type UsedTokenCache interface {
	// MarkUsed records jti and reports false if it was already used.
	MarkUsed(jti string, exp time.Time) bool
	Cleanup(now time.Time) int
}

// InMemoryUsedTokenCache is a simple in-memory implementation
type InMemoryUsedTokenCache struct {
	used map[string]time.Time
	mu   sync.Mutex
}

func NewInMemoryUsedTokenCache() *InMemoryUsedTokenCache {
	return &InMemoryUsedTokenCache{
		used: make(map[string]time.Time),
	}
}

func (c *InMemoryUsedTokenCache) MarkUsed(jti string, exp time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.used[jti]; exists {
		return false
	}
	c.used[jti] = exp
	return true
}

// Cleanup removes entries that expired before now
func (c *InMemoryUsedTokenCache) Cleanup(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for jti, exp := range c.used {
		if now.After(exp) {
			delete(c.used, jti)
			n++
		}
	}
	return n
}
