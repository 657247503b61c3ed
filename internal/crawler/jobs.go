package crawler

import (
	"errors"
	"time"
)

var (
	// ErrJobNotFound is returned by job stores for unknown IDs.
	ErrJobNotFound = errors.New("job not found")
	// ErrJobExists is returned when a job ID is already taken.
	ErrJobExists = errors.New("job already exists")
	// ErrJobFinished is returned when a terminal job would change status.
	ErrJobFinished = errors.New("job already finished")
	// ErrQueueClosed is returned by queues that no longer hand out work.
	ErrQueueClosed = errors.New("queue closed")
	// ErrQueueFull is returned when a bounded queue has no free slot.
	ErrQueueFull = errors.New("queue full")
	// ErrObjectNotFound is returned by blob stores for unknown paths.
	ErrObjectNotFound = errors.New("object not found")
)

// JobStatus represents the lifecycle state of an asynchronous site job.
type JobStatus string

// Job status values held by the job store.
const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCanceled  JobStatus = "canceled"
)

// IsTerminal reports whether no further transitions are expected.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusSucceeded, JobStatusFailed, JobStatusCanceled:
		return true
	default:
		return false
	}
}

// JobParameters captures the per-job knobs requested by the client.
type JobParameters struct {
	Crawl          CrawlConfig `json:"crawl"`
	DetailLevel    string      `json:"detail_level"`
	IncludePDF     bool        `json:"include_pdf"`
	IncludeTOC     bool        `json:"include_toc"`
	IncludeArchive bool        `json:"include_archive"`
	IncludeSummary bool        `json:"include_summary"`
}

// Job is the metadata kept for each submitted request.
type Job struct {
	ID         string        `json:"id"`
	Status     JobStatus     `json:"status"`
	Submitted  time.Time     `json:"submitted_at"`
	Started    *time.Time    `json:"started_at,omitempty"`
	Finished   *time.Time    `json:"finished_at,omitempty"`
	ErrorText  string        `json:"error_text,omitempty"`
	Parameters JobParameters `json:"parameters"`
	Counters   JobCounters   `json:"counters"`
	Artifacts  JobArtifacts  `json:"artifacts"`
	Warnings   []string      `json:"warnings,omitempty"`
}

// JobCounters tracks capture stats per job.
type JobCounters struct {
	PagesCaptured int `json:"pages_captured"`
	PagesFailed   int `json:"pages_failed"`
}

// JobArtifacts points at the blobs written for a finished job.
type JobArtifacts struct {
	DocumentPath string `json:"document_path,omitempty"`
	DocumentURI  string `json:"document_uri,omitempty"`
	DocumentHash string `json:"document_hash,omitempty"`
	ArchivePath  string `json:"archive_path,omitempty"`
	ArchiveURI   string `json:"archive_uri,omitempty"`
	SummaryPath  string `json:"summary_path,omitempty"`
	SummaryURI   string `json:"summary_uri,omitempty"`
	ReportPath   string `json:"report_path,omitempty"`
	ReportURI    string `json:"report_uri,omitempty"`
}

// CaptureRecord is catalogued for each captured page of a job.
type CaptureRecord struct {
	ID         string    `json:"id"`
	JobID      string    `json:"job_id"`
	Ordinal    int       `json:"ordinal"`
	URL        string    `json:"url"`
	Title      string    `json:"title"`
	Depth      int       `json:"depth"`
	StatusCode int       `json:"status_code"`
	TextBytes  int       `json:"text_bytes"`
	Rasterized bool      `json:"rasterized"`
	CapturedAt time.Time `json:"captured_at"`
}

// QueueItem wraps a job ready to run.
type QueueItem struct {
	JobID     string
	Params    JobParameters
	Attempt   int
	Submitted int64
}
