package window

import (
	"context"
	"sync"
	"time"

	"chaperone/internal/policy/models"
)

// InMemoryStore counts sends in per-key sliding windows and keeps cooldown deadlines.
// State is per process.
type InMemoryStore struct {
	mu        sync.Mutex
	windows   map[string]*slidingWindow
	cooldowns map[string]time.Time
}

type slidingWindow struct {
	timestamps []time.Time
	window     time.Duration
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		windows:   make(map[string]*slidingWindow),
		cooldowns: make(map[string]time.Time),
	}
}

// Allow records one event for key unless limit events already fall inside the window.
func (s *InMemoryStore) Allow(_ context.Context, key string, limit int, window time.Duration, now time.Time) (models.WindowResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sw := s.windows[key]
	if sw == nil {
		sw = &slidingWindow{window: window}
		s.windows[key] = sw
	}
	sw.window = window
	sw.cleanup(now)

	if len(sw.timestamps) < limit {
		sw.timestamps = append(sw.timestamps, now)
		return models.WindowResult{Allowed: true, Remaining: limit - len(sw.timestamps)}, nil
	}
	retry := window
	if len(sw.timestamps) > 0 {
		retry = sw.timestamps[0].Add(window).Sub(now)
	}
	return models.WindowResult{Allowed: false, RetryAfter: retry}, nil
}

// Peek reports whether Allow would admit an event for key at now. Nothing is recorded.
func (s *InMemoryStore) Peek(_ context.Context, key string, limit int, window time.Duration, now time.Time) (models.WindowResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sw := s.windows[key]
	if sw == nil {
		return models.WindowResult{Allowed: limit > 0, Remaining: limit}, nil
	}
	cutoff := now.Add(-window)
	var live []time.Time
	for _, ts := range sw.timestamps {
		if ts.After(cutoff) {
			live = append(live, ts)
		}
	}
	if len(live) < limit {
		return models.WindowResult{Allowed: true, Remaining: limit - len(live)}, nil
	}
	retry := window
	if len(live) > 0 {
		retry = live[0].Add(window).Sub(now)
	}
	return models.WindowResult{Allowed: false, RetryAfter: retry}, nil
}

func (s *InMemoryStore) SetCooldown(_ context.Context, key string, until, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cooldowns[key] = until
	return nil
}

// Cooldown returns how long key stays cooled down, or zero.
func (s *InMemoryStore) Cooldown(_ context.Context, key string, now time.Time) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	until, ok := s.cooldowns[key]
	if !ok {
		return 0, nil
	}
	if !now.Before(until) {
		delete(s.cooldowns, key)
		return 0, nil
	}
	return until.Sub(now), nil
}

// Reset forgets key's window and cooldown.
func (s *InMemoryStore) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.windows, key)
	delete(s.cooldowns, key)
	return nil
}

// cleanup drops timestamps that left the window.
func (sw *slidingWindow) cleanup(now time.Time) {
	cutoff := now.Add(-sw.window)
	i := 0
	for ; i < len(sw.timestamps); i++ {
		if sw.timestamps[i].After(cutoff) {
			break
		}
	}
	sw.timestamps = sw.timestamps[i:]
}
