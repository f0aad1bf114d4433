package apiclient

import "sync"

// OfflineQueue buffers requests that failed due to connectivity loss,
// replaying them FIFO once the caller invokes Drain after reconnecting
// (§4.6: bounded size 100, persist requests while offline, replay FIFO on
// reconnect). The queue itself is in-memory only; callers that need the
// buffer to survive a process restart are responsible for persisting
// Snapshot elsewhere.
type OfflineQueue struct {
	mu       sync.Mutex
	maxSize  int
	pending  []Request
}

// NewOfflineQueue creates an OfflineQueue holding at most maxSize requests;
// enqueuing past that bound drops the oldest entry.
func NewOfflineQueue(maxSize int) *OfflineQueue {
	return &OfflineQueue{maxSize: maxSize}
}

// Enqueue appends req, evicting the oldest entry if the queue is full.
func (q *OfflineQueue) Enqueue(req Request) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) >= q.maxSize {
		q.pending = q.pending[1:]
	}
	q.pending = append(q.pending, req)
}

// Len reports how many requests are currently queued.
func (q *OfflineQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Snapshot returns a copy of the currently queued requests without
// draining them.
func (q *OfflineQueue) Snapshot() []Request {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Request, len(q.pending))
	copy(out, q.pending)
	return out
}

// Drain removes every queued request in FIFO order and replays it through
// send. Requests that fail again are re-enqueued in their original
// relative order; send is called with the queue lock released so it may
// itself call back into the Client.
func (q *OfflineQueue) Drain(send func(Request) error) {
	q.mu.Lock()
	batch := q.pending
	q.pending = nil
	q.mu.Unlock()

	var failed []Request
	for _, req := range batch {
		if err := send(req); err != nil {
			failed = append(failed, req)
		}
	}

	if len(failed) == 0 {
		return
	}
	q.mu.Lock()
	q.pending = append(failed, q.pending...)
	if len(q.pending) > q.maxSize {
		q.pending = q.pending[len(q.pending)-q.maxSize:]
	}
	q.mu.Unlock()
}
