package api

import (
	"sync"

	"github.com/jobson/jobson-cli/internal/events"
)

// RequestTracker counts API requests in flight and publishes the count on the
// event bus whenever it changes.
type RequestTracker struct {
	mu      sync.Mutex
	pending int
	bus     *events.EventBus
}

// NewRequestTracker creates a tracker. bus may be nil.
func NewRequestTracker(bus *events.EventBus) *RequestTracker {
	return &RequestTracker{bus: bus}
}

// Begin records a new request and returns the function that completes it.
// Calling the returned function more than once has no further effect.
func (t *RequestTracker) Begin() (done func()) {
	t.add(1)
	var once sync.Once
	return func() {
		once.Do(func() { t.add(-1) })
	}
}

// Pending returns the number of requests in flight.
func (t *RequestTracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending
}

func (t *RequestTracker) add(delta int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending += delta
	// Publish never blocks, so counts reach subscribers in order.
	t.bus.PublishPendingRequests(t.pending)
}
