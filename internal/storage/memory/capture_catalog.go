package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/JakeFAU/sitepdf/internal/crawler"
)

// CaptureCatalog keeps capture rows per job.
type CaptureCatalog struct {
	mu      sync.RWMutex
	records map[string][]crawler.CaptureRecord
}

// NewCaptureCatalog constructs an empty catalog.
func NewCaptureCatalog() *CaptureCatalog {
	return &CaptureCatalog{records: make(map[string][]crawler.CaptureRecord)}
}

// RecordCapture appends a capture row for its job.
func (c *CaptureCatalog) RecordCapture(_ context.Context, record crawler.CaptureRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records[record.JobID] = append(c.records[record.JobID], record)
	return nil
}

// ListCaptures returns a copy of a job's rows ordered by ordinal.
func (c *CaptureCatalog) ListCaptures(_ context.Context, jobID string) ([]crawler.CaptureRecord, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rows := c.records[jobID]
	out := make([]crawler.CaptureRecord, len(rows))
	copy(out, rows)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Ordinal < out[j].Ordinal })
	return out, nil
}
