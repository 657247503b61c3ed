// Package memory provides the bounded in-process job queue that feeds the
// workers.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/sitepdf/internal/crawler"
)

var (
	// ErrQueueClosed is returned once Close has been called and, for Dequeue,
	// every buffered item has been handed out.
	ErrQueueClosed = crawler.ErrQueueClosed
	// ErrQueueFull is returned by TryEnqueue when no slot is free.
	ErrQueueFull = crawler.ErrQueueFull
)

// Queue is a bounded in-memory queue with context-aware operations.
type Queue struct {
	ch        chan crawler.QueueItem
	done      chan struct{}
	closeOnce sync.Once
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	if capacity < 0 {
		capacity = 0
	}
	return &Queue{
		ch:   make(chan crawler.QueueItem, capacity),
		done: make(chan struct{}),
	}
}

// Enqueue blocks until the job is accepted, the queue closes, or ctx ends.
func (q *Queue) Enqueue(ctx context.Context, job crawler.QueueItem) error {
	select {
	case <-q.done:
		return ErrQueueClosed
	default:
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case <-q.done:
		return ErrQueueClosed
	case q.ch <- job:
		return nil
	}
}

// TryEnqueue accepts the job only if a slot is free right now.
func (q *Queue) TryEnqueue(job crawler.QueueItem) error {
	select {
	case <-q.done:
		return ErrQueueClosed
	default:
	}
	select {
	case q.ch <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Dequeue pops the next job, respecting context cancellation. Items buffered
// before Close are still delivered.
func (q *Queue) Dequeue(ctx context.Context) (crawler.QueueItem, error) {
	select {
	case <-ctx.Done():
		return crawler.QueueItem{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case job := <-q.ch:
		return job, nil
	case <-q.done:
		select {
		case job := <-q.ch:
			return job, nil
		default:
			return crawler.QueueItem{}, ErrQueueClosed
		}
	}
}

// Len reports how many jobs are waiting.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Cap reports the queue capacity.
func (q *Queue) Cap() int {
	return cap(q.ch)
}

// Close stops accepting jobs. It is safe to call more than once.
func (q *Queue) Close() {
	q.closeOnce.Do(func() { close(q.done) })
}
