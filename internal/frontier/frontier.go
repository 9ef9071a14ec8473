// Package frontier provides a bounded FIFO queue of URIs waiting to be fetched.
package frontier

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// DefaultCapacity is the capacity of a frontier when none is given.
const DefaultCapacity = 10_000

// Frontier is a bounded FIFO queue of URIs.
//
// A batch is either enqueued entirely or not at all. Items of a batch are contiguous in the queue, so the delivery order
// among items submitted by the same producer is preserved. Duplicates are kept as separate occurrences.
//
// Frontier is safe for concurrent use by multiple producers and consumers.
type Frontier struct {
	items chan string

	// mu serializes producers so that the capacity check and the insertion of a batch happen atomically. Consumers only
	// shrink the queue, so a batch that passed the check never blocks.
	mu     sync.Mutex
	closed bool
}

// EnqueueBatch appends all the uris to the frontier.
//
// If the batch does not fit into the remaining capacity, nothing is enqueued and an error wrapping ErrCapacityExceeded is
// returned. An empty batch is a no-op.
func (f *Frontier) EnqueueBatch(uris []string) error {
	if len(uris) == 0 {
		return nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return ErrClosed
	}

	if remaining := cap(f.items) - len(f.items); len(uris) > remaining {
		return fmt.Errorf("%w: batch size %d, remaining %d", ErrCapacityExceeded, len(uris), remaining)
	}

	for _, uri := range uris {
		f.items <- uri
	}

	return nil
}

// Dequeue removes and returns the oldest uri.
//
// If no uri arrives within the timeout, it returns false without error. If the context is done, it returns the context
// error. If the frontier is closed, it returns ErrClosed.
func (f *Frontier) Dequeue(ctx context.Context, timeout time.Duration) (string, bool, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return "", false, ctx.Err()

	case uri, ok := <-f.items:
		if !ok {
			return "", false, ErrClosed
		}

		return uri, true, nil

	case <-timer.C:
		return "", false, nil
	}
}

// Len returns the number of pending uris.
func (f *Frontier) Len() int {
	return len(f.items)
}

// Cap returns the capacity of the frontier.
func (f *Frontier) Cap() int {
	return cap(f.items)
}

// Close closes the frontier and returns the number of discarded pending uris. Further enqueues fail with ErrClosed.
func (f *Frontier) Close() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return 0
	}

	f.closed = true

	close(f.items)

	// Drain so that consumers see the closed channel right away.
	discarded := 0

	for range f.items {
		discarded++
	}

	return discarded
}

// New creates a new frontier with the given capacity. A capacity smaller than 1 falls back to DefaultCapacity.
func New(capacity int) *Frontier {
	if capacity < 1 {
		capacity = DefaultCapacity
	}

	return &Frontier{
		items: make(chan string, capacity),
	}
}
