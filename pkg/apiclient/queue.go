package apiclient

import "context"

// Queue bounds outbound concurrency with a buffered semaphore channel
// (§4.6: default max-concurrent=6). Submit ignores its priority argument:
// waiting submissions acquire a free slot in no defined order.
type Queue struct {
	sem chan struct{}
}

// NewQueue creates a Queue allowing up to maxConcurrent simultaneous calls.
func NewQueue(maxConcurrent int) *Queue {
	return &Queue{sem: make(chan struct{}, maxConcurrent)}
}

// Submit runs fn once a slot is free, or returns ctx.Err() if ctx is
// cancelled first (removing a queued-but-not-started call has no effect
// beyond that, per §5 cancellation semantics).
func (q *Queue) Submit(ctx context.Context, _ int, fn func() (*Response, error)) (*Response, error) {
	select {
	case q.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-q.sem }()
	return fn()
}
