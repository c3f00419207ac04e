package moderation

import (
	"sync"
	"time"

	"github.com/zeebo/blake3"

	"chaperone/internal/domain"
)

type cacheEntry struct {
	verdict domain.Verdict
	expires time.Time
}

// Cache remembers recent non-blocked verdicts so keystroke-level re-evaluation of the same
// draft does not reach the oracle. Entries are keyed by a blake3 digest; text is never held.
type Cache struct {
	mu      sync.Mutex
	entries map[[32]byte]cacheEntry
	ttl     time.Duration
	max     int
	now     func() time.Time
}

func NewCache(ttl time.Duration, max int) *Cache {
	if max <= 0 {
		max = 4096
	}
	return &Cache{entries: make(map[[32]byte]cacheEntry), ttl: ttl, max: max, now: time.Now}
}

func (c *Cache) Get(text string) (domain.Verdict, bool) {
	if c == nil {
		return domain.Verdict{}, false
	}
	key := blake3.Sum256([]byte(text))
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return domain.Verdict{}, false
	}
	if !c.now().Before(e.expires) {
		delete(c.entries, key)
		return domain.Verdict{}, false
	}
	return e.verdict, true
}

// Put stores v. Blocked verdicts are ignored.
func (c *Cache) Put(text string, v domain.Verdict) {
	if c == nil || c.ttl <= 0 || v.Outcome == domain.OutcomeBlocked {
		return
	}
	key := blake3.Sum256([]byte(text))
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) >= c.max {
		c.evictLocked()
	}
	c.entries[key] = cacheEntry{verdict: v, expires: c.now().Add(c.ttl)}
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) evictLocked() {
	now := c.now()
	for k, e := range c.entries {
		if !now.Before(e.expires) {
			delete(c.entries, k)
		}
	}
	for k := range c.entries {
		if len(c.entries) < c.max {
			return
		}
		delete(c.entries, k)
	}
}
