// Package usage tracks active messaging minutes per ward and local day.
package usage

import (
	"context"
	"sync"

	id "chaperone/pkg/domain"
)

type dayKey struct {
	ward id.ParticipantID
	day  string
}

// InMemoryStore keeps one minute set per ward and day. Days are never pruned; the process is
// expected to restart long before that matters.
type InMemoryStore struct {
	mu   sync.Mutex
	days map[dayKey]map[int]struct{}
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{days: make(map[dayKey]map[int]struct{})}
}

// Record marks minute (0-1439) of day active and returns the number of distinct active minutes.
func (s *InMemoryStore) Record(_ context.Context, ward id.ParticipantID, day string, minute int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := dayKey{ward, day}
	set := s.days[k]
	if set == nil {
		set = make(map[int]struct{})
		s.days[k] = set
	}
	set[minute] = struct{}{}
	return len(set), nil
}

// Used returns the active minute count for day and whether minute is already among them.
func (s *InMemoryStore) Used(_ context.Context, ward id.ParticipantID, day string, minute int) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.days[dayKey{ward, day}]
	_, counted := set[minute]
	return len(set), counted, nil
}
