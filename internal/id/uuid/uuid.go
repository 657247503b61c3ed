// Package uuid generates job and capture identifiers.
package uuid

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"
)

// captureNamespace scopes name-based capture IDs.
var captureNamespace = uuid.MustParse("6f1c2b7e-3d0a-4c55-9a43-5b8e2f1d7c90")

// Generator creates time-ordered UUIDv7 job IDs.
type Generator struct{}

// New creates a Generator.
func New() *Generator {
	return &Generator{}
}

// NewID implements crawler.IDGenerator.
func (Generator) NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate uuid7: %w", err)
	}
	return id.String(), nil
}

// CaptureID derives a stable ID for the capture at ordinal within jobID, so
// re-recording a capture after a retry yields the same row key.
func CaptureID(jobID string, ordinal int) string {
	return uuid.NewSHA1(captureNamespace, []byte(jobID+"#"+strconv.Itoa(ordinal))).String()
}
