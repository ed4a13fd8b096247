// Package queue implements the bounded multi-producer, single-consumer
// hand-off between instrumented code and the aggregation loop.
package queue

import (
	"context"
	"sync"
	"sync/atomic"

	"codeberg.org/mutker/anemone/internal/errors"
)

const ErrInvalidCapacity = errors.ErrorCode("queue_invalid_capacity")

// Counters are cumulative since the queue was created
type Counters struct {
	Pushed  uint64
	Dropped uint64
	Popped  uint64
}

// Queue is FIFO. Push never blocks: when the buffer is full the message is
// dropped and counted.
type Queue[T any] struct {
	ch      chan T
	mu      sync.RWMutex
	closed  bool
	pushed  atomic.Uint64
	dropped atomic.Uint64
	popped  atomic.Uint64
}

func New[T any](capacity int) (*Queue[T], error) {
	if capacity < 1 {
		return nil, errors.New().WithData(ErrInvalidCapacity, capacity)
	}

	return &Queue[T]{ch: make(chan T, capacity)}, nil
}

// Push enqueues value, reporting false when it was dropped
func (q *Queue[T]) Push(value T) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		q.dropped.Add(1)
		return false
	}

	select {
	case q.ch <- value:
		q.pushed.Add(1)
		return true
	default:
		q.dropped.Add(1)
		return false
	}
}

// C exposes the receive side for select loops. Callers that receive from it
// directly must call Ack for each message.
func (q *Queue[T]) C() <-chan T {
	return q.ch
}

// Ack records a message received through C
func (q *Queue[T]) Ack() {
	q.popped.Add(1)
}

// Pop blocks until a message is available, the queue is closed and drained,
// or ctx is done.
func (q *Queue[T]) Pop(ctx context.Context) (out T, ok bool) {
	select {
	case <-ctx.Done():
		return out, false
	case out, ok = <-q.ch:
		if ok {
			q.popped.Add(1)
		}
		return out, ok
	}
}

// TryPop returns immediately
func (q *Queue[T]) TryPop() (out T, ok bool) {
	select {
	case out, ok = <-q.ch:
		if ok {
			q.popped.Add(1)
		}
		return out, ok
	default:
		return out, false
	}
}

// Close stops accepting messages. Buffered messages can still be popped.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.ch)
}

func (q *Queue[T]) Len() int {
	return len(q.ch)
}

func (q *Queue[T]) Cap() int {
	return cap(q.ch)
}

func (q *Queue[T]) Dropped() uint64 {
	return q.dropped.Load()
}

func (q *Queue[T]) Counters() Counters {
	return Counters{
		Pushed:  q.pushed.Load(),
		Dropped: q.dropped.Load(),
		Popped:  q.popped.Load(),
	}
}
