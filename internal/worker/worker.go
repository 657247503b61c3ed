// Package worker drains the job queue and runs each job through the site
// pipeline, persisting its artifacts.
package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitepdf/internal/crawler"
	"github.com/JakeFAU/sitepdf/internal/metrics"
	"github.com/JakeFAU/sitepdf/internal/pipeline"
	"github.com/JakeFAU/sitepdf/internal/report"
)

// Artifact file names under each job's prefix.
const (
	DocumentFile = "site.pdf"
	ArchiveFile  = "pages.zip"
	SummaryFile  = "summary.json"
	ReportFile   = "report.md"
)

// Runner executes one pipeline request.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) (pipeline.Result, error)
}

// Config controls Worker behavior.
type Config struct {
	BlobPrefix    string
	Topic         string
	IncludeReport bool
	// MaxAttempts bounds how often a job whose pipeline failed is requeued.
	// Zero or one means no retry.
	MaxAttempts int
	// CaptureID names capture catalog rows. Nil means "<job>-<ordinal>".
	CaptureID func(jobID string, ordinal int) string
}

// Notification is published once a job's artifacts are stored.
type Notification struct {
	JobID        string `json:"job_id"`
	Status       string `json:"status"`
	RootURL      string `json:"root_url"`
	Pages        int    `json:"pages"`
	DocumentURI  string `json:"document_uri,omitempty"`
	DocumentHash string `json:"document_hash,omitempty"`
	ArchiveURI   string `json:"archive_uri,omitempty"`
	SummaryURI   string `json:"summary_uri,omitempty"`
	Timestamp    string `json:"timestamp"`
}

// Worker consumes queue items and executes the pipeline.
type Worker struct {
	queue     crawler.Queue
	jobStore  crawler.JobStore
	blobStore crawler.BlobStore
	catalog   crawler.CaptureCatalog
	publisher crawler.Publisher
	runner    Runner
	clock     crawler.Clock
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Worker. catalog and publisher may be nil.
func New(
	queue crawler.Queue,
	jobStore crawler.JobStore,
	blobStore crawler.BlobStore,
	catalog crawler.CaptureCatalog,
	publisher crawler.Publisher,
	runner Runner,
	clock crawler.Clock,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	return &Worker{
		queue:     queue,
		jobStore:  jobStore,
		blobStore: blobStore,
		catalog:   catalog,
		publisher: publisher,
		runner:    runner,
		clock:     clock,
		cfg:       cfg,
		logger:    logger.Named("worker"),
	}
}

// Run blocks, consuming queue items until the context finishes or the queue
// is closed.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, crawler.ErrQueueClosed) {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued job", zap.String("job_id", item.JobID), zap.Int("attempt", item.Attempt))
		w.processJob(ctx, item)
	}
}

func (w *Worker) processJob(ctx context.Context, item crawler.QueueItem) {
	logger := w.logger.With(zap.String("job_id", item.JobID))
	if w.runner == nil {
		logger.Error("no pipeline configured")
		w.finish(ctx, item.JobID, crawler.JobStatusFailed, "no pipeline configured", crawler.JobCounters{})
		return
	}

	job, err := w.jobStore.GetJob(ctx, item.JobID)
	if err != nil {
		logger.Error("load job failed", zap.Error(err))
		return
	}
	if job.Status.IsTerminal() {
		logger.Info("skipping finished job", zap.String("status", string(job.Status)))
		return
	}
	if err := w.jobStore.UpdateJobStatus(ctx, item.JobID, crawler.JobStatusRunning, "", crawler.JobCounters{}); err != nil {
		logger.Error("update job status failed", zap.Error(err))
		return
	}

	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	started := w.now()
	res, runErr := w.runner.Run(ctx, pipeline.RequestFor(item.JobID, item.Params))
	metrics.ObserveStage("pipeline", w.now().Sub(started))

	counters := crawler.JobCounters{
		PagesCaptured: res.Crawl.TotalPages,
		PagesFailed:   len(res.Crawl.FailedURLs),
	}
	metrics.ObservePages(item.Params.Crawl.RootURL, counters.PagesCaptured, counters.PagesFailed)

	// Bookkeeping below must land even when the worker is shutting down.
	bookCtx := context.WithoutCancel(ctx)

	if w.shouldRetry(ctx, item, runErr) {
		w.requeue(ctx, bookCtx, item, runErr, counters)
		return
	}

	status, errText := deriveFinalStatus(ctx, res, runErr)
	w.recordCaptures(bookCtx, item.JobID, res.Crawl.Pages)
	artifacts, warnings := w.storeArtifacts(bookCtx, item, res, status)
	if err := w.jobStore.SetArtifacts(bookCtx, item.JobID, artifacts, warnings); err != nil {
		logger.Error("record artifacts failed", zap.Error(err))
	}
	if status == crawler.JobStatusSucceeded {
		w.publishResult(bookCtx, item, res, artifacts, status)
	}
	w.finish(bookCtx, item.JobID, status, errText, counters)
	logger.Info("job finished",
		zap.String("status", string(status)),
		zap.Int("pages", counters.PagesCaptured),
		zap.Int("failed", counters.PagesFailed),
		zap.Int("warnings", len(warnings)),
	)
}

func (w *Worker) finish(ctx context.Context, jobID string, status crawler.JobStatus, errText string, counters crawler.JobCounters) {
	metrics.ObserveJob(string(status))
	if err := w.jobStore.UpdateJobStatus(ctx, jobID, status, errText, counters); err != nil {
		w.logger.Error("final job status update failed", zap.String("job_id", jobID), zap.Error(err))
	}
}

func (w *Worker) shouldRetry(ctx context.Context, item crawler.QueueItem, err error) bool {
	if err == nil || ctx.Err() != nil || w.cfg.MaxAttempts <= 1 {
		return false
	}
	if errors.Is(err, crawler.ErrInvalidConfig) || errors.Is(err, pipeline.ErrSummaryFailed) {
		return false
	}
	return item.Attempt+1 < w.cfg.MaxAttempts
}

func (w *Worker) requeue(ctx, bookCtx context.Context, item crawler.QueueItem, cause error, counters crawler.JobCounters) {
	next := item
	next.Attempt++
	w.logger.Warn("retrying job",
		zap.String("job_id", item.JobID),
		zap.Int("attempt", next.Attempt),
		zap.Error(cause),
	)
	if err := w.jobStore.UpdateJobStatus(bookCtx, item.JobID, crawler.JobStatusQueued, cause.Error(), counters); err != nil {
		w.logger.Error("requeue status update failed", zap.String("job_id", item.JobID), zap.Error(err))
		return
	}
	if err := w.queue.Enqueue(ctx, next); err != nil {
		w.finish(bookCtx, item.JobID, crawler.JobStatusFailed, fmt.Sprintf("requeue: %v", err), counters)
	}
}

// deriveFinalStatus maps a pipeline outcome onto a job status. A summary
// failure keeps the job successful and reports the cause as error text.
func deriveFinalStatus(ctx context.Context, res pipeline.Result, err error) (crawler.JobStatus, string) {
	switch {
	case ctx.Err() != nil:
		return crawler.JobStatusCanceled, "job canceled"
	case err != nil && errors.Is(err, pipeline.ErrSummaryFailed):
		return crawler.JobStatusSucceeded, err.Error()
	case err != nil:
		return crawler.JobStatusFailed, err.Error()
	case res.Crawl.TotalPages == 0:
		return crawler.JobStatusFailed, "no pages were captured"
	default:
		return crawler.JobStatusSucceeded, ""
	}
}

// BlobPath joins the configured prefix, job ID, and artifact name.
func BlobPath(prefix, jobID, name string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return fmt.Sprintf("%s/%s", jobID, name)
	}
	return fmt.Sprintf("%s/%s/%s", prefix, jobID, name)
}

func (w *Worker) storeArtifacts(
	ctx context.Context,
	item crawler.QueueItem,
	res pipeline.Result,
	status crawler.JobStatus,
) (crawler.JobArtifacts, []string) {
	warnings := append([]string(nil), res.Warnings...)
	var artifacts crawler.JobArtifacts
	if w.blobStore == nil {
		return artifacts, warnings
	}
	put := func(name, contentType string, data []byte) (string, string, bool) {
		path := BlobPath(w.cfg.BlobPrefix, item.JobID, name)
		uri, err := w.blobStore.PutObject(ctx, path, contentType, bytes.NewReader(data))
		if err != nil {
			w.logger.Error("store artifact failed",
				zap.String("job_id", item.JobID),
				zap.String("path", path),
				zap.Error(err),
			)
			warnings = append(warnings, fmt.Sprintf("%s not stored: %v", name, err))
			return "", "", false
		}
		return path, uri, true
	}

	if res.Document != nil {
		if path, uri, ok := put(DocumentFile, "application/pdf", res.Document.Merged); ok {
			artifacts.DocumentPath, artifacts.DocumentURI = path, uri
			artifacts.DocumentHash = res.DocumentHash
			metrics.ObserveDocument(len(res.Document.Merged))
		}
	}
	if len(res.Archive) > 0 {
		if path, uri, ok := put(ArchiveFile, "application/zip", res.Archive); ok {
			artifacts.ArchivePath, artifacts.ArchiveURI = path, uri
		}
	}
	if res.Summary != nil {
		metrics.ObserveSummary(string(res.Summary.Kind))
		data, err := json.MarshalIndent(res.Summary.Summary, "", "  ")
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s not stored: %v", SummaryFile, err))
		} else if path, uri, ok := put(SummaryFile, "application/json", data); ok {
			artifacts.SummaryPath, artifacts.SummaryURI = path, uri
		}
	}
	if w.cfg.IncludeReport && status != crawler.JobStatusCanceled {
		var buf bytes.Buffer
		err := report.WriteMarkdown(&buf, report.Input{
			RootURL:     item.Params.Crawl.RootURL,
			GeneratedAt: w.now(),
			Result:      res,
		})
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s not stored: %v", ReportFile, err))
		} else if path, uri, ok := put(ReportFile, "text/markdown; charset=utf-8", buf.Bytes()); ok {
			artifacts.ReportPath, artifacts.ReportURI = path, uri
		}
	}
	return artifacts, warnings
}

func (w *Worker) recordCaptures(ctx context.Context, jobID string, pages []crawler.CapturedPage) {
	if w.catalog == nil {
		return
	}
	for i, page := range pages {
		record := crawler.CaptureRecord{
			ID:         w.captureID(jobID, i+1),
			JobID:      jobID,
			Ordinal:    i + 1,
			URL:        page.URL,
			Title:      page.Title,
			Depth:      page.Depth,
			StatusCode: page.StatusCode,
			TextBytes:  len(page.Text),
			Rasterized: len(page.Raster) > 0,
			CapturedAt: page.CapturedAt,
		}
		if err := w.catalog.RecordCapture(ctx, record); err != nil {
			w.logger.Warn("record capture failed",
				zap.String("job_id", jobID),
				zap.String("url", page.URL),
				zap.Error(err),
			)
		}
	}
}

func (w *Worker) captureID(jobID string, ordinal int) string {
	if w.cfg.CaptureID != nil {
		return w.cfg.CaptureID(jobID, ordinal)
	}
	return fmt.Sprintf("%s-%03d", jobID, ordinal)
}

func (w *Worker) publishResult(
	ctx context.Context,
	item crawler.QueueItem,
	res pipeline.Result,
	artifacts crawler.JobArtifacts,
	status crawler.JobStatus,
) {
	if w.cfg.Topic == "" || w.publisher == nil {
		return
	}
	payload := Notification{
		JobID:        item.JobID,
		Status:       string(status),
		RootURL:      item.Params.Crawl.RootURL,
		Pages:        res.Crawl.TotalPages,
		DocumentURI:  artifacts.DocumentURI,
		DocumentHash: artifacts.DocumentHash,
		ArchiveURI:   artifacts.ArchiveURI,
		SummaryURI:   artifacts.SummaryURI,
		Timestamp:    w.now().Format(time.RFC3339),
	}
	id, err := w.publisher.Publish(ctx, w.cfg.Topic, payload)
	if err != nil {
		w.logger.Warn("publish notification failed", zap.String("job_id", item.JobID), zap.Error(err))
		return
	}
	w.logger.Info("job published",
		zap.String("job_id", item.JobID),
		zap.String("message_id", id),
		zap.String("document_uri", artifacts.DocumentURI),
	)
}

func (w *Worker) now() time.Time {
	if w.clock != nil {
		return w.clock.Now()
	}
	return time.Now().UTC()
}
