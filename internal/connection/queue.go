package connection

import (
	dErrors "chaperone/pkg/domain-errors"
)

var ErrQueueOverflow = dErrors.New(dErrors.CodeQueueOverflow, "recipient's offline queue is full")

// Queue is a bounded FIFO of events for an unreachable participant. A full queue refuses new
// events instead of evicting old ones.
type Queue struct {
	items    []Event
	capacity int
}

func NewQueue(capacity int) *Queue {
	return &Queue{capacity: capacity}
}

func (q *Queue) Push(e Event) error {
	if len(q.items) >= q.capacity {
		return ErrQueueOverflow
	}
	q.items = append(q.items, e)
	return nil
}

// Restore puts events a dead channel never wrote back at the head, ahead of anything queued
// since. It may exceed capacity; those events were already accepted once.
func (q *Queue) Restore(events []Event) {
	if len(events) == 0 {
		return
	}
	q.items = append(append(make([]Event, 0, len(events)+len(q.items)), events...), q.items...)
}

// Drain empties the queue and returns its events in order.
func (q *Queue) Drain() []Event {
	out := q.items
	q.items = nil
	return out
}

func (q *Queue) Len() int { return len(q.items) }
