package relay

import (
	"context"
	"fmt"
	"sync"
)

// OverflowPolicy decides what a full queue does with a new item
type OverflowPolicy string

const (
	// DropOldest evicts the head of the queue to make room
	DropOldest OverflowPolicy = "drop_oldest"
	// DropNewest discards the incoming item
	DropNewest OverflowPolicy = "drop_newest"
)

// ParseOverflowPolicy converts a config string to a policy. Empty means DropOldest.
func ParseOverflowPolicy(s string) (OverflowPolicy, error) {
	switch OverflowPolicy(s) {
	case "", DropOldest:
		return DropOldest, nil
	case DropNewest:
		return DropNewest, nil
	default:
		return "", fmt.Errorf("unknown overflow policy: %s", s)
	}
}

// Queue is a bounded FIFO ring shared by one producer side (the router) and
// one consumer (the session writer). It never grows and never blocks Push.
type Queue[T any] struct {
	mu       sync.Mutex
	cond     *sync.Cond
	buf      []T
	head     int
	tail     int
	count    int
	capacity int
	policy   OverflowPolicy
	closed   bool

	pushed  int64
	popped  int64
	dropped int64
}

// QueueStats contains queue statistics
type QueueStats struct {
	Len      int   `json:"len"`
	Capacity int   `json:"capacity"`
	Pushed   int64 `json:"pushed"`
	Popped   int64 `json:"popped"`
	Dropped  int64 `json:"dropped"`
	Closed   bool  `json:"closed"`
}

// NewQueue creates a queue holding at most capacity items
func NewQueue[T any](capacity int, policy OverflowPolicy) *Queue[T] {
	if capacity < 1 {
		capacity = 1
	}
	if policy == "" {
		policy = DropOldest
	}
	q := &Queue[T]{
		buf:      make([]T, capacity),
		capacity: capacity,
		policy:   policy,
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push adds an item. When the queue is full one item is dropped according
// to the policy and dropped is true. Push on a closed queue returns ErrClosed.
func (q *Queue[T]) Push(item T) (dropped bool, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false, ErrClosed
	}

	if q.count == q.capacity {
		q.dropped++
		if q.policy == DropNewest {
			return true, nil
		}
		var zero T
		q.buf[q.head] = zero
		q.head = (q.head + 1) % q.capacity
		q.count--
		dropped = true
	}

	q.buf[q.tail] = item
	q.tail = (q.tail + 1) % q.capacity
	q.count++
	q.pushed++

	q.cond.Signal()
	return dropped, nil
}

// Pop blocks until an item is available, the queue is closed, or ctx is
// done. It returns false on close or cancellation. Items still queued at
// close are discarded.
func (q *Queue[T]) Pop(ctx context.Context) (T, bool) {
	stop := context.AfterFunc(ctx, func() {
		q.mu.Lock()
		q.cond.Broadcast()
		q.mu.Unlock()
	})
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()

	for q.count == 0 && !q.closed && ctx.Err() == nil {
		q.cond.Wait()
	}

	var zero T
	if q.closed || ctx.Err() != nil {
		return zero, false
	}
	return q.take(), true
}

// TryPop removes the head item without blocking
func (q *Queue[T]) TryPop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == 0 || q.closed {
		var zero T
		return zero, false
	}
	return q.take(), true
}

// take removes the head item. Must be called with lock held and count > 0.
func (q *Queue[T]) take() T {
	item := q.buf[q.head]
	var zero T
	q.buf[q.head] = zero
	q.head = (q.head + 1) % q.capacity
	q.count--
	q.popped++
	return item
}

// Close closes the queue and wakes the consumer. Safe to call repeatedly.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	for i := range q.buf {
		var zero T
		q.buf[i] = zero
	}
	q.count = 0
	q.cond.Broadcast()
}

// Len returns the current number of queued items
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Cap returns the queue capacity
func (q *Queue[T]) Cap() int {
	return q.capacity
}

// Stats returns queue statistics
func (q *Queue[T]) Stats() QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return QueueStats{
		Len:      q.count,
		Capacity: q.capacity,
		Pushed:   q.pushed,
		Popped:   q.popped,
		Dropped:  q.dropped,
		Closed:   q.closed,
	}
}
