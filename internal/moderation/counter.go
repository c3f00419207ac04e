package moderation

import (
	"context"
	"maps"
	"sync"
)

// MemoryCounter is the single-process Counter.
type MemoryCounter struct {
	mu     sync.Mutex
	counts map[string]map[string]int64
}

func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{counts: make(map[string]map[string]int64)}
}

func (c *MemoryCounter) Increment(_ context.Context, day, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts[day] == nil {
		c.counts[day] = make(map[string]int64)
	}
	c.counts[day][reason]++
	return nil
}

func (c *MemoryCounter) Counts(_ context.Context, day string) (map[string]int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return maps.Clone(c.counts[day]), nil
}
