package buffer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
)

// ErrFull is returned by TryPush when the queue has no free slot.
var ErrFull = errors.New("buffer: queue full")

// Queue is a bounded FIFO of items with a non-blocking producer side.
//
// TryPush never waits: when the queue is full the offered item is rejected
// with ErrFull and the queued items are left untouched (drop-newest). Pop
// blocks until an item is available or the queue is closed for writing and
// drained, which makes Queue suitable as the hand-off between a real-time
// producer and a single slow consumer.
type Queue[T any] struct {
	cond *sync.Cond

	mu         sync.Mutex
	buf        []T
	head, tail int64
	closeWrite bool
	closeErr   error
}

// NewQueue creates a Queue holding at most size items.
func NewQueue[T any](size int) *Queue[T] {
	if size <= 0 {
		size = 1
	}
	q := &Queue[T]{buf: make([]T, size)}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// TryPush appends v without blocking.
func (q *Queue[T]) TryPush(v T) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.writableLocked(); err != nil {
		return err
	}
	if q.tail-q.head == int64(len(q.buf)) {
		return ErrFull
	}
	q.pushLocked(v)
	return nil
}

// Push appends v, waiting for a free slot until ctx is done.
func (q *Queue[T]) Push(ctx context.Context, v T) error {
	stop := context.AfterFunc(ctx, func() {
		q.mu.Lock()
		q.cond.Broadcast()
		q.mu.Unlock()
	})
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		if err := q.writableLocked(); err != nil {
			return err
		}
		if q.tail-q.head < int64(len(q.buf)) {
			q.pushLocked(v)
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		q.cond.Wait()
	}
}

func (q *Queue[T]) writableLocked() error {
	if q.closeErr != nil {
		return fmt.Errorf("buffer: push to closed queue: %w", q.closeErr)
	}
	if q.closeWrite {
		return fmt.Errorf("buffer: push to closed queue: %w", io.ErrClosedPipe)
	}
	return nil
}

func (q *Queue[T]) pushLocked(v T) {
	q.buf[q.tail%int64(len(q.buf))] = v
	q.tail++
	q.cond.Broadcast()
}

// Pop removes and returns the oldest item, blocking while the queue is
// empty. It returns io.EOF once the queue is closed for writing and empty.
func (q *Queue[T]) Pop() (T, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var zero T
	for q.head == q.tail {
		if q.closeErr != nil {
			return zero, fmt.Errorf("buffer: pop from closed queue: %w", q.closeErr)
		}
		if q.closeWrite {
			return zero, io.EOF
		}
		q.cond.Wait()
	}
	if q.closeErr != nil {
		return zero, fmt.Errorf("buffer: pop from closed queue: %w", q.closeErr)
	}
	return q.popLocked(), nil
}

// TryPop removes and returns the oldest item if there is one.
func (q *Queue[T]) TryPop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.head == q.tail || q.closeErr != nil {
		var zero T
		return zero, false
	}
	return q.popLocked(), true
}

func (q *Queue[T]) popLocked() T {
	var zero T
	i := q.head % int64(len(q.buf))
	v := q.buf[i]
	q.buf[i] = zero
	q.head++
	q.cond.Broadcast()
	return v
}

// Drain removes every queued item and returns them oldest first.
func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]T, 0, q.tail-q.head)
	for q.head != q.tail {
		out = append(out, q.popLocked())
	}
	return out
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int(q.tail - q.head)
}

// Cap returns the queue capacity.
func (q *Queue[T]) Cap() int {
	return len(q.buf)
}

// CloseWrite rejects further pushes. Items already queued can still be
// popped; Pop returns io.EOF after the last one.
func (q *Queue[T]) CloseWrite() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closeWrite {
		return nil
	}
	q.closeWrite = true
	q.cond.Broadcast()
	return nil
}

// CloseWithError closes both sides. Blocked Push and Pop calls return err.
// If err is nil, io.ErrClosedPipe is used.
func (q *Queue[T]) CloseWithError(err error) error {
	if err == nil {
		err = io.ErrClosedPipe
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closeErr != nil {
		return nil
	}
	q.closeErr = err
	q.closeWrite = true
	q.cond.Broadcast()
	return nil
}

// Close closes the queue immediately. Queued items are discarded.
func (q *Queue[T]) Close() error {
	return q.CloseWithError(nil)
}
