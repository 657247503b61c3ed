package crawler

import (
	"context"
	"io"
	"time"
)

// Launcher opens a capture session. One session serves one crawl.
type Launcher interface {
	Open(ctx context.Context) (Session, error)
}

// Session captures pages one at a time and must be closed exactly once.
type Session interface {
	Capture(ctx context.Context, url string, raster bool) (Capture, error)
	Close() error
}

// RobotsPolicy decides whether a URL may be captured.
type RobotsPolicy interface {
	Allowed(ctx context.Context, rawURL string) bool
}

// RetryPolicy decides whether and when a failed capture is retried.
type RetryPolicy interface {
	ShouldRetry(err error, attempt int) bool
	Backoff(attempt int) time.Duration
}

// JobStore keeps job metadata.
type JobStore interface {
	CreateJob(ctx context.Context, job Job) error
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errText string, counters JobCounters) error
	SetArtifacts(ctx context.Context, jobID string, artifacts JobArtifacts, warnings []string) error
	GetJob(ctx context.Context, jobID string) (Job, error)
}

// CaptureCatalog records one row per captured page.
type CaptureCatalog interface {
	RecordCapture(ctx context.Context, record CaptureRecord) error
}

// BlobStore writes and reads generated artifacts.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
	GetObject(ctx context.Context, path string) (io.ReadCloser, error)
}

// Publisher pushes artifact notifications to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Queue provides enqueue/dequeue semantics for site jobs.
type Queue interface {
	Enqueue(ctx context.Context, job QueueItem) error
	Dequeue(ctx context.Context) (QueueItem, error)
}

// Hasher computes digests for artifact integrity.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job IDs.
type IDGenerator interface {
	NewID() (string, error)
}
