package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitepdf/internal/crawler"
	memqueue "github.com/JakeFAU/sitepdf/internal/queue/memory"
	memstore "github.com/JakeFAU/sitepdf/internal/storage/memory"
	"github.com/JakeFAU/sitepdf/internal/worker"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type seqIDs struct{ n int }

func (s *seqIDs) NewID() (string, error) {
	s.n++
	return fmt.Sprintf("job-%d", s.n), nil
}

type failingIDs struct{}

func (failingIDs) NewID() (string, error) { return "", errors.New("entropy exhausted") }

// TestDispatcherRunStartsWorkers ensures workers begin processing and stop on cancel.
func TestDispatcherRunStartsWorkers(t *testing.T) {
	t.Parallel()

	queue := &blockingQueue{started: make(chan struct{}, 1)}
	w := worker.New(queue, nil, nil, nil, nil, nil, nil, worker.Config{}, zap.NewNop())
	dispatch := New(queue, nil, nil, nil, []*worker.Worker{w})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		dispatch.Run(ctx)
		close(done)
	}()

	select {
	case <-queue.started:
	case <-time.After(time.Second):
		t.Fatal("worker did not begin dequeuing")
	}

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop after context cancel")
	}
}

// TestDispatcherEnqueueForwardsErrors verifies queue errors are wrapped for callers.
func TestDispatcherEnqueueForwardsErrors(t *testing.T) {
	t.Parallel()

	queue := &errorQueue{err: errors.New("boom")}
	dispatch := New(queue, nil, nil, nil, nil)

	err := dispatch.Enqueue(context.Background(), crawler.QueueItem{JobID: "job"})
	require.Error(t, err)
	assert.Equal(t, "queue enqueue: boom", err.Error())
}

func TestDispatcherSubmitQueuesJob(t *testing.T) {
	t.Parallel()

	queue := memqueue.NewQueue(1)
	jobs := memstore.NewJobStore()
	now := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	dispatch := New(queue, jobs, &seqIDs{}, fixedClock{now: now}, nil)
	params := crawler.JobParameters{
		Crawl:      crawler.CrawlConfig{RootURL: "https://acme.example/", MaxPages: 3},
		IncludePDF: true,
	}

	job, err := dispatch.Submit(context.Background(), params)
	require.NoError(t, err)
	assert.Equal(t, "job-1", job.ID)
	assert.Equal(t, crawler.JobStatusQueued, job.Status)
	assert.Equal(t, now, job.Submitted)

	stored, err := jobs.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, params, stored.Parameters)

	item, err := queue.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "job-1", item.JobID)
	assert.Equal(t, now.Unix(), item.Submitted)
}

func TestDispatcherSubmitQueueFull(t *testing.T) {
	t.Parallel()

	queue := memqueue.NewQueue(1)
	jobs := memstore.NewJobStore()
	dispatch := New(queue, jobs, &seqIDs{}, fixedClock{now: time.Now()}, nil)

	_, err := dispatch.Submit(context.Background(), crawler.JobParameters{})
	require.NoError(t, err)
	_, err = dispatch.Submit(context.Background(), crawler.JobParameters{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, crawler.ErrQueueFull))

	rejected, err := jobs.GetJob(context.Background(), "job-2")
	require.NoError(t, err)
	assert.Equal(t, crawler.JobStatusFailed, rejected.Status)
}

func TestDispatcherSubmitIDFailure(t *testing.T) {
	t.Parallel()

	dispatch := New(memqueue.NewQueue(1), memstore.NewJobStore(), failingIDs{}, fixedClock{}, nil)
	_, err := dispatch.Submit(context.Background(), crawler.JobParameters{})
	assert.ErrorContains(t, err, "generate job id: entropy exhausted")
}

type blockingQueue struct {
	started chan struct{}
}

func (q *blockingQueue) Enqueue(_ context.Context, _ crawler.QueueItem) error {
	select {
	case q.started <- struct{}{}:
	default:
	}
	return nil
}

func (q *blockingQueue) Dequeue(ctx context.Context) (crawler.QueueItem, error) {
	select {
	case q.started <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return crawler.QueueItem{}, fmt.Errorf("blocking dequeue canceled: %w", ctx.Err())
}

type errorQueue struct {
	err error
}

func (q *errorQueue) Enqueue(context.Context, crawler.QueueItem) error {
	return q.err
}

func (q *errorQueue) Dequeue(context.Context) (crawler.QueueItem, error) {
	return crawler.QueueItem{}, nil
}
