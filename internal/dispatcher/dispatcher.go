// Package dispatcher accepts job submissions and fans queue work out to a
// pool of workers.
package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/sitepdf/internal/crawler"
	"github.com/JakeFAU/sitepdf/internal/worker"
)

// tryEnqueuer is implemented by bounded queues that can refuse work instead
// of blocking the submitter.
type tryEnqueuer interface {
	TryEnqueue(item crawler.QueueItem) error
}

// Dispatcher fans out queue work to a pool of workers.
type Dispatcher struct {
	queue    crawler.Queue
	jobStore crawler.JobStore
	ids      crawler.IDGenerator
	clock    crawler.Clock
	workers  []*worker.Worker
}

// New creates a Dispatcher.
func New(
	queue crawler.Queue,
	jobStore crawler.JobStore,
	ids crawler.IDGenerator,
	clock crawler.Clock,
	workers []*worker.Worker,
) *Dispatcher {
	return &Dispatcher{
		queue:    queue,
		jobStore: jobStore,
		ids:      ids,
		clock:    clock,
		workers:  workers,
	}
}

// Run starts all workers and blocks until the context finishes and every
// worker has returned.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(wk *worker.Worker) {
			defer wg.Done()
			wk.Run(ctx)
		}(w)
	}
	<-ctx.Done()
	wg.Wait()
}

// Submit records a queued job and hands it to the queue. When the queue
// refuses the job it is marked failed and the error is returned.
func (d *Dispatcher) Submit(ctx context.Context, params crawler.JobParameters) (crawler.Job, error) {
	id, err := d.ids.NewID()
	if err != nil {
		return crawler.Job{}, fmt.Errorf("generate job id: %w", err)
	}
	now := d.clock.Now()
	job := crawler.Job{
		ID:         id,
		Status:     crawler.JobStatusQueued,
		Submitted:  now,
		Parameters: params,
	}
	if err := d.jobStore.CreateJob(ctx, job); err != nil {
		return crawler.Job{}, fmt.Errorf("create job: %w", err)
	}
	item := crawler.QueueItem{JobID: id, Params: params, Submitted: now.Unix()}
	if err := d.Enqueue(ctx, item); err != nil {
		if uerr := d.jobStore.UpdateJobStatus(ctx, id, crawler.JobStatusFailed, err.Error(), crawler.JobCounters{}); uerr != nil {
			return crawler.Job{}, fmt.Errorf("%w (mark failed: %v)", err, uerr)
		}
		return crawler.Job{}, err
	}
	return job, nil
}

// Enqueue proxies to the underlying queue, without blocking when the queue
// supports it.
func (d *Dispatcher) Enqueue(ctx context.Context, item crawler.QueueItem) error {
	if q, ok := d.queue.(tryEnqueuer); ok {
		if err := q.TryEnqueue(item); err != nil {
			return fmt.Errorf("queue enqueue: %w", err)
		}
		return nil
	}
	if err := d.queue.Enqueue(ctx, item); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}
