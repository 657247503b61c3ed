package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitepdf/internal/crawler"
	"github.com/JakeFAU/sitepdf/internal/metrics"
	"github.com/JakeFAU/sitepdf/internal/pdf"
	"github.com/JakeFAU/sitepdf/internal/pipeline"
	mempub "github.com/JakeFAU/sitepdf/internal/publisher/memory"
	memqueue "github.com/JakeFAU/sitepdf/internal/queue/memory"
	memstore "github.com/JakeFAU/sitepdf/internal/storage/memory"
	"github.com/JakeFAU/sitepdf/internal/summary"
)

type fakeRunner struct {
	mu    sync.Mutex
	calls []pipeline.Request
	run   func(ctx context.Context, req pipeline.Request, call int) (pipeline.Result, error)
}

func (f *fakeRunner) Run(ctx context.Context, req pipeline.Request) (pipeline.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	call := len(f.calls)
	f.mu.Unlock()
	return f.run(ctx, req, call)
}

func (f *fakeRunner) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeClock struct{ now time.Time }

func (c fakeClock) Now() time.Time { return c.now }

type harness struct {
	queue     *memqueue.Queue
	jobs      *memstore.JobStore
	blobs     *memstore.BlobStore
	catalog   *memstore.CaptureCatalog
	publisher *mempub.Publisher
	runner    *fakeRunner
	worker    *Worker
}

func newHarness(t *testing.T, cfg Config, run func(context.Context, pipeline.Request, int) (pipeline.Result, error)) *harness {
	t.Helper()
	metrics.Init()
	h := &harness{
		queue:     memqueue.NewQueue(4),
		jobs:      memstore.NewJobStore(),
		blobs:     memstore.NewBlobStore(),
		catalog:   memstore.NewCaptureCatalog(),
		publisher: mempub.New(),
		runner:    &fakeRunner{run: run},
	}
	h.worker = New(
		h.queue,
		h.jobs,
		h.blobs,
		h.catalog,
		h.publisher,
		h.runner,
		fakeClock{now: time.Date(2025, 5, 1, 9, 30, 0, 0, time.UTC)},
		cfg,
		zap.NewNop(),
	)
	return h
}

func (h *harness) submit(t *testing.T, params crawler.JobParameters) crawler.QueueItem {
	t.Helper()
	item := crawler.QueueItem{JobID: "job-1", Params: params}
	require.NoError(t, h.jobs.CreateJob(context.Background(), crawler.Job{
		ID:         item.JobID,
		Status:     crawler.JobStatusQueued,
		Parameters: params,
	}))
	return item
}

func sampleParams() crawler.JobParameters {
	return crawler.JobParameters{
		Crawl:          crawler.CrawlConfig{RootURL: "https://acme.example/", MaxPages: 5, Mode: crawler.ModeFast},
		DetailLevel:    "detailed",
		IncludePDF:     true,
		IncludeTOC:     true,
		IncludeArchive: true,
		IncludeSummary: true,
	}
}

func sampleResult() pipeline.Result {
	captured := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	return pipeline.Result{
		JobID: "job-1",
		Crawl: crawler.CrawlResult{
			Pages: []crawler.CapturedPage{
				{URL: "https://acme.example/", Title: "Acme", Text: "hello", Depth: 0, StatusCode: 200, CapturedAt: captured},
				{URL: "https://acme.example/about", Title: "About", Text: "about us", Depth: 1, StatusCode: 200, CapturedAt: captured},
			},
			TotalPages: 2,
			FailedURLs: []string{"https://acme.example/broken"},
			StartedAt:  captured,
			FinishedAt: captured.Add(3 * time.Second),
		},
		Document: &pdf.Result{
			Merged:    []byte("%PDF-1.3 merged"),
			TOC:       []pdf.TOCEntry{{Title: "Acme", URL: "https://acme.example/"}, {Title: "About", URL: "https://acme.example/about"}},
			TotalSize: 15,
			PageCount: 3,
			TOCPages:  1,
			Font:      "builtin",
		},
		Archive:      []byte("PK zip"),
		DocumentHash: "abc123",
		Summary: &summary.Outcome{
			Kind:    summary.KindOK,
			Level:   summary.LevelDetailed,
			Summary: summary.Summary{CompanyName: "Acme", Overview: "Makes anvils."},
		},
		Warnings: []string{"font fallback"},
	}
}

func readBlob(t *testing.T, blobs *memstore.BlobStore, path string) string {
	t.Helper()
	rc, err := blobs.GetObject(context.Background(), path)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(data)
}

func TestWorker_ProcessJob_SuccessFlow(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{BlobPrefix: "jobs", Topic: "artifacts", IncludeReport: true},
		func(context.Context, pipeline.Request, int) (pipeline.Result, error) {
			return sampleResult(), nil
		})
	item := h.submit(t, sampleParams())

	h.worker.processJob(context.Background(), item)

	require.Equal(t, 1, h.runner.Calls())
	req := h.runner.calls[0]
	assert.Equal(t, summary.LevelDetailed, req.DetailLevel)
	assert.True(t, req.IncludeArchive)
	assert.Equal(t, "https://acme.example/", req.Crawl.RootURL)

	job, err := h.jobs.GetJob(context.Background(), item.JobID)
	require.NoError(t, err)
	assert.Equal(t, crawler.JobStatusSucceeded, job.Status)
	assert.Empty(t, job.ErrorText)
	assert.Equal(t, crawler.JobCounters{PagesCaptured: 2, PagesFailed: 1}, job.Counters)
	assert.Equal(t, "jobs/job-1/site.pdf", job.Artifacts.DocumentPath)
	assert.Equal(t, "memory://jobs/job-1/site.pdf", job.Artifacts.DocumentURI)
	assert.Equal(t, "abc123", job.Artifacts.DocumentHash)
	assert.Equal(t, "jobs/job-1/pages.zip", job.Artifacts.ArchivePath)
	assert.Equal(t, "jobs/job-1/summary.json", job.Artifacts.SummaryPath)
	assert.Equal(t, "jobs/job-1/report.md", job.Artifacts.ReportPath)
	assert.Equal(t, []string{"font fallback"}, job.Warnings)

	assert.Equal(t, "%PDF-1.3 merged", readBlob(t, h.blobs, "jobs/job-1/site.pdf"))
	assert.Equal(t, "application/zip", h.blobs.ContentType("jobs/job-1/pages.zip"))
	assert.Contains(t, readBlob(t, h.blobs, "jobs/job-1/summary.json"), `"companyName": "Acme"`)
	assert.Contains(t, readBlob(t, h.blobs, "jobs/job-1/report.md"), "https://acme.example/about")

	captures, err := h.catalog.ListCaptures(context.Background(), item.JobID)
	require.NoError(t, err)
	require.Len(t, captures, 2)
	assert.Equal(t, "job-1-002", captures[1].ID)
	assert.Equal(t, 1, captures[1].Depth)
	assert.Equal(t, len("about us"), captures[1].TextBytes)

	msgs := h.publisher.Messages("artifacts")
	require.Len(t, msgs, 1)
	note, ok := msgs[0].Payload.(Notification)
	require.True(t, ok)
	assert.Equal(t, "job-1", note.JobID)
	assert.Equal(t, 2, note.Pages)
	assert.Equal(t, "memory://jobs/job-1/site.pdf", note.DocumentURI)
	assert.Equal(t, "2025-05-01T09:30:00Z", note.Timestamp)
}

func TestWorker_ProcessJob_SummaryFailureKeepsDocument(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{}, func(context.Context, pipeline.Request, int) (pipeline.Result, error) {
		res := sampleResult()
		res.Summary = nil
		res.SummaryErr = errors.Join(pipeline.ErrSummaryFailed, summary.ErrTransport)
		return res, res.SummaryErr
	})
	item := h.submit(t, sampleParams())

	h.worker.processJob(context.Background(), item)

	job, err := h.jobs.GetJob(context.Background(), item.JobID)
	require.NoError(t, err)
	assert.Equal(t, crawler.JobStatusSucceeded, job.Status)
	assert.Contains(t, job.ErrorText, "summary stage failed")
	assert.Equal(t, "job-1/site.pdf", job.Artifacts.DocumentPath)
	assert.Empty(t, job.Artifacts.SummaryPath)
	assert.Empty(t, job.Artifacts.ReportPath)
}

func TestWorker_ProcessJob_FailuresAndEmptyCrawls(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		res     pipeline.Result
		err     error
		errText string
	}{
		{
			name:    "invalid config",
			err:     crawler.ErrInvalidConfig,
			errText: "invalid crawl config",
		},
		{
			name:    "no pages",
			res:     pipeline.Result{Crawl: crawler.CrawlResult{FailedURLs: []string{"https://acme.example/"}}},
			errText: "no pages were captured",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			h := newHarness(t, Config{Topic: "artifacts"}, func(context.Context, pipeline.Request, int) (pipeline.Result, error) {
				return tc.res, tc.err
			})
			item := h.submit(t, sampleParams())

			h.worker.processJob(context.Background(), item)

			job, err := h.jobs.GetJob(context.Background(), item.JobID)
			require.NoError(t, err)
			assert.Equal(t, crawler.JobStatusFailed, job.Status)
			assert.Equal(t, tc.errText, job.ErrorText)
			assert.NotNil(t, job.Finished)
			assert.Empty(t, h.publisher.Messages())
			assert.Empty(t, h.blobs.List(""))
		})
	}
}

func TestWorker_ProcessJob_SkipsCanceledJob(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{}, func(context.Context, pipeline.Request, int) (pipeline.Result, error) {
		return sampleResult(), nil
	})
	item := h.submit(t, sampleParams())
	require.NoError(t, h.jobs.UpdateJobStatus(context.Background(), item.JobID, crawler.JobStatusCanceled, "", crawler.JobCounters{}))

	h.worker.processJob(context.Background(), item)

	assert.Zero(t, h.runner.Calls())
	job, err := h.jobs.GetJob(context.Background(), item.JobID)
	require.NoError(t, err)
	assert.Equal(t, crawler.JobStatusCanceled, job.Status)
}

func TestWorker_ProcessJob_ContextCanceled(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{}, func(ctx context.Context, _ pipeline.Request, _ int) (pipeline.Result, error) {
		res := sampleResult()
		res.Document = nil
		res.Archive = nil
		res.Summary = nil
		return res, ctx.Err()
	})
	item := h.submit(t, sampleParams())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	h.worker.processJob(ctx, item)

	job, err := h.jobs.GetJob(context.Background(), item.JobID)
	require.NoError(t, err)
	assert.Equal(t, crawler.JobStatusCanceled, job.Status)
	assert.Equal(t, 2, job.Counters.PagesCaptured)
}

func TestWorker_RetryLogic(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{MaxAttempts: 2}, func(_ context.Context, _ pipeline.Request, call int) (pipeline.Result, error) {
		if call == 1 {
			return pipeline.Result{}, errors.New("generate document: transient")
		}
		return sampleResult(), nil
	})
	item := h.submit(t, sampleParams())

	h.worker.processJob(context.Background(), item)

	job, err := h.jobs.GetJob(context.Background(), item.JobID)
	require.NoError(t, err)
	assert.Equal(t, crawler.JobStatusQueued, job.Status)
	assert.Contains(t, job.ErrorText, "transient")
	require.Equal(t, 1, h.queue.Len())

	next, err := h.queue.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, next.Attempt)

	h.worker.processJob(context.Background(), next)

	job, err = h.jobs.GetJob(context.Background(), item.JobID)
	require.NoError(t, err)
	assert.Equal(t, crawler.JobStatusSucceeded, job.Status)
	assert.Equal(t, 2, h.runner.Calls())
	assert.Zero(t, h.queue.Len())
}

func TestWorker_RetryStopsAtMaxAttempts(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{MaxAttempts: 2}, func(context.Context, pipeline.Request, int) (pipeline.Result, error) {
		return pipeline.Result{}, errors.New("launch capture session: chrome missing")
	})
	item := h.submit(t, sampleParams())
	item.Attempt = 1

	h.worker.processJob(context.Background(), item)

	job, err := h.jobs.GetJob(context.Background(), item.JobID)
	require.NoError(t, err)
	assert.Equal(t, crawler.JobStatusFailed, job.Status)
	assert.Zero(t, h.queue.Len())
}

func TestWorker_RunDrainsQueueUntilClosed(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{}, func(context.Context, pipeline.Request, int) (pipeline.Result, error) {
		return sampleResult(), nil
	})
	item := h.submit(t, sampleParams())
	require.NoError(t, h.queue.Enqueue(context.Background(), item))
	h.queue.Close()

	done := make(chan struct{})
	go func() {
		h.worker.Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after queue close")
	}

	job, err := h.jobs.GetJob(context.Background(), item.JobID)
	require.NoError(t, err)
	assert.Equal(t, crawler.JobStatusSucceeded, job.Status)
}

func TestWorker_NoRunnerFailsJob(t *testing.T) {
	t.Parallel()

	metrics.Init()
	jobs := memstore.NewJobStore()
	require.NoError(t, jobs.CreateJob(context.Background(), crawler.Job{ID: "job-1"}))
	w := New(nil, jobs, nil, nil, nil, nil, nil, Config{}, nil)

	w.processJob(context.Background(), crawler.QueueItem{JobID: "job-1"})

	job, err := jobs.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, crawler.JobStatusFailed, job.Status)
	assert.Equal(t, "no pipeline configured", job.ErrorText)
}

func TestBlobPath(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "job/site.pdf", BlobPath("", "job", DocumentFile))
	assert.Equal(t, "sites/job/pages.zip", BlobPath("/sites/", "job", ArchiveFile))
}

func TestWorker_CustomCaptureIDs(t *testing.T) {
	t.Parallel()

	cfg := Config{CaptureID: func(jobID string, ordinal int) string {
		return fmt.Sprintf("%s/%d", jobID, ordinal)
	}}
	h := newHarness(t, cfg, func(context.Context, pipeline.Request, int) (pipeline.Result, error) {
		return sampleResult(), nil
	})
	item := h.submit(t, sampleParams())

	h.worker.processJob(context.Background(), item)

	captures, err := h.catalog.ListCaptures(context.Background(), item.JobID)
	require.NoError(t, err)
	require.Len(t, captures, 2)
	assert.Equal(t, "job-1/1", captures[0].ID)
	assert.Equal(t, "job-1/2", captures[1].ID)
}
