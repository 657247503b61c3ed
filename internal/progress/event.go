package progress

import (
	"errors"
	"fmt"
	"time"
)

// Stage denotes the milestone an Event reports.
type Stage string

// Supported progress stages.
const (
	StageJobStart   Stage = "JOB_START"
	StagePageDone   Stage = "PAGE_DONE"
	StagePageFailed Stage = "PAGE_FAILED"
	StageStepDone   Stage = "STEP_DONE"
	StageJobDone    Stage = "JOB_DONE"
	StageJobError   Stage = "JOB_ERROR"
)

// Pipeline steps reported with StageStepDone.
const (
	StepCrawl    = "crawl"
	StepDocument = "document"
	StepSummary  = "summary"
)

// StatusClass is a coarse HTTP response grouping.
type StatusClass string

// Status classes tracked for page events.
const (
	Status2xx   StatusClass = "2xx"
	Status3xx   StatusClass = "3xx"
	Status4xx   StatusClass = "4xx"
	Status5xx   StatusClass = "5xx"
	StatusOther StatusClass = "other"
)

// Event is one unit of pipeline progress.
type Event struct {
	// JobID names the pipeline run the event belongs to.
	JobID string
	// TS is the UTC time the emitter observed the milestone.
	TS    time.Time
	Stage Stage
	// URL is set on page events.
	URL string
	// Ordinal is the 1-based capture position of a PAGE_DONE event.
	Ordinal     int
	Depth       int
	StatusClass StatusClass
	// Step names the finished pipeline step on STEP_DONE events.
	Step string
	// Dur is the page capture time, step time, or job time.
	Dur time.Duration
	// Note holds low-volume context such as error text.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.JobID == "" {
		return errors.New("job id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageJobStart, StageJobDone, StageJobError:
	case StagePageDone, StagePageFailed:
		if e.URL == "" {
			return fmt.Errorf("%s requires url", e.Stage)
		}
	case StageStepDone:
		if e.Step == "" {
			return errors.New("step done requires step")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// ClassifyStatus groups HTTP status codes for page events.
func ClassifyStatus(code int) StatusClass {
	switch {
	case code >= 200 && code < 300:
		return Status2xx
	case code >= 300 && code < 400:
		return Status3xx
	case code >= 400 && code < 500:
		return Status4xx
	case code >= 500 && code < 600:
		return Status5xx
	default:
		return StatusOther
	}
}
