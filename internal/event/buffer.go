package event

import (
	"sync"
)

// compactFloor is the minimum consumed prefix before the backing slice is
// compacted.
const compactFloor = 32

// Queue is an unbounded thread-safe FIFO. Push never blocks; Pop blocks
// until an item arrives or the queue is closed. The backing slice is
// compacted once more than half of it has been consumed.
type Queue[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []T
	head   int // read position
	closed bool

	// Stats
	pushed int64
	popped int64
}

// NewQueue creates an empty queue sized for hint items.
func NewQueue[T any](hint int) *Queue[T] {
	if hint < 0 {
		hint = 0
	}
	q := &Queue[T]{items: make([]T, 0, hint)}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends item to the queue. Returns false if the queue is closed.
func (q *Queue[T]) Push(item T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.items = append(q.items, item)
	q.pushed++
	q.cond.Signal()
	return true
}

// Pop removes and returns the oldest item. Blocks until an item is available
// or the queue is closed. Returns the zero value and false once the queue is
// closed and drained.
func (q *Queue[T]) Pop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.head == len(q.items) && !q.closed {
		q.cond.Wait()
	}

	if q.head == len(q.items) {
		var zero T
		return zero, false
	}
	return q.popLocked(), true
}

// TryPop removes and returns the oldest item without blocking.
func (q *Queue[T]) TryPop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.head == len(q.items) {
		var zero T
		return zero, false
	}
	return q.popLocked(), true
}

// PopBatch removes up to max items without blocking. A max of 0 or less
// drains everything. Returns nil when the queue is empty.
func (q *Queue[T]) PopBatch(max int) []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.items) - q.head
	if n == 0 {
		return nil
	}
	if max > 0 && max < n {
		n = max
	}

	batch := make([]T, n)
	for i := range batch {
		batch[i] = q.popLocked()
	}
	return batch
}

// popLocked removes the head item and compacts the backing slice when due
// (caller must hold the lock and have checked the queue is non-empty).
func (q *Queue[T]) popLocked() T {
	item := q.items[q.head]
	var zero T
	q.items[q.head] = zero // Clear reference for GC
	q.head++
	q.popped++

	if q.head >= compactFloor && q.head > len(q.items)/2 {
		n := copy(q.items, q.items[q.head:])
		clear(q.items[n:])
		q.items = q.items[:n]
		q.head = 0
	}
	return item
}

// Close marks the queue closed and wakes all blocked readers. Items already
// queued remain poppable.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	q.cond.Broadcast()
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}

// Stats returns occupancy and lifetime counters.
func (q *Queue[T]) Stats() QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return QueueStats{
		Depth:  len(q.items) - q.head,
		Pushed: q.pushed,
		Popped: q.popped,
	}
}

// QueueStats contains queue statistics.
type QueueStats struct {
	Depth  int
	Pushed int64
	Popped int64
}
