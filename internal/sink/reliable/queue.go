package reliable

import "sync"

// retryQueue is a bounded, mutex-guarded FIFO of batches awaiting a later
// flush attempt. Any goroutine may enqueue; only the flusher dequeues,
// keeping a single consumer so ordering across retries is preserved.
type retryQueue[R any] struct {
	mu    sync.Mutex
	items []R
	limit int
}

func newRetryQueue[R any](limit int) *retryQueue[R] {
	if limit <= 0 {
		limit = DefaultQueueLimit
	}
	return &retryQueue[R]{limit: limit}
}

// enqueue appends item to the tail. If the queue is already at capacity the
// oldest entry is dropped to make room; the return value reports whether a
// drop occurred.
func (q *retryQueue[R]) enqueue(item R) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	dropped := false
	if len(q.items) >= q.limit {
		q.items = q.items[1:]
		dropped = true
	}
	q.items = append(q.items, item)
	return dropped
}

// peekFront returns the oldest item without removing it.
func (q *retryQueue[R]) peekFront() (R, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero R
	if len(q.items) == 0 {
		return zero, false
	}
	return q.items[0], true
}

// popFront removes the oldest item. Called only after it has been sent
// successfully during flush.
func (q *retryQueue[R]) popFront() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return
	}
	q.items = q.items[1:]
}

func (q *retryQueue[R]) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// snapshot returns a copy of the queue contents, oldest first. Used only by
// tests to assert ordering.
func (q *retryQueue[R]) snapshot() []R {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]R, len(q.items))
	copy(out, q.items)
	return out
}
