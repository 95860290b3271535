package events

import (
	"context"
	"sync"
	"time"
)

// QueuedMessage is one enqueued event with its delivery parameters
type QueuedMessage struct {
	Event Event
	Queue string
	Delay time.Duration
}

// MemoryEnqueuer is an in-process Enqueuer that records messages instead of
// delivering them. Tests and local setups use it; deployments plug in a
// real queue client behind the same interface.
type MemoryEnqueuer struct {
	mu       sync.Mutex
	messages []QueuedMessage
}

// NewMemoryEnqueuer creates an empty in-memory enqueuer
func NewMemoryEnqueuer() *MemoryEnqueuer {
	return &MemoryEnqueuer{}
}

// Enqueue implements Enqueuer
func (e *MemoryEnqueuer) Enqueue(ctx context.Context, event Event, queue string, delay time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.messages = append(e.messages, QueuedMessage{Event: event, Queue: queue, Delay: delay})
	return nil
}

// Messages returns the enqueued messages in order
func (e *MemoryEnqueuer) Messages() []QueuedMessage {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]QueuedMessage, len(e.messages))
	copy(out, e.messages)
	return out
}
