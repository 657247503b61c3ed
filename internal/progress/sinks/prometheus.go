package sinks

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/sitepdf/internal/metrics"
	"github.com/JakeFAU/sitepdf/internal/progress"
)

// PrometheusSink exports page level progress: capture outcomes and latency
// per site, plus the number of pipelines in flight.
type PrometheusSink struct {
	pipelinesRunning prometheus.Gauge
	pipelineRuntime  *prometheus.HistogramVec
	pages            *prometheus.CounterVec
	pageDuration     *prometheus.HistogramVec
	stepDuration     *prometheus.HistogramVec

	tracker *runTracker
}

// NewPrometheusSink registers the collectors against reg, or the default
// registerer when reg is nil. Collectors already registered are reused.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		pipelinesRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sitepdf_pipelines_running",
			Help: "Pipelines that have started and not yet finished.",
		}),
		pipelineRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sitepdf_pipeline_runtime_seconds",
			Help:    "Wall time per finished pipeline.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"result"}),
		pages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sitepdf_progress_pages_total",
			Help: "Capture outcomes partitioned by site and status class.",
		}, []string{"site", "status_class"}),
		pageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sitepdf_page_capture_seconds",
			Help:    "Capture time per page, retries included.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		}, []string{"site"}),
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sitepdf_step_duration_seconds",
			Help:    "Duration of each pipeline step.",
			Buckets: prometheus.DefBuckets,
		}, []string{"step"}),
		tracker: newRunTracker(),
	}
	s.pipelinesRunning = register(reg, s.pipelinesRunning)
	s.pipelineRuntime = register(reg, s.pipelineRuntime)
	s.pages = register(reg, s.pages)
	s.pageDuration = register(reg, s.pageDuration)
	s.stepDuration = register(reg, s.stepDuration)
	if s.pipelinesRunning == nil || s.pipelineRuntime == nil || s.pages == nil ||
		s.pageDuration == nil || s.stepDuration == nil {
		return nil, fmt.Errorf("register progress collectors: conflicting collector")
	}
	return s, nil
}

// register returns c, or the equivalent collector that is already registered.
// It returns the zero value when registration fails otherwise.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	err := reg.Register(c)
	if err == nil {
		return c
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(C); ok {
			return existing
		}
	}
	var zero C
	return zero
}

// Consume implements progress.Sink.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageJobStart:
			if s.tracker.start(evt.JobID) {
				s.pipelinesRunning.Inc()
			}
		case progress.StageJobDone:
			s.finish(evt, "success")
		case progress.StageJobError:
			s.finish(evt, "error")
		case progress.StagePageDone, progress.StagePageFailed:
			s.observePage(evt)
		case progress.StageStepDone:
			s.stepDuration.WithLabelValues(evt.Step).Observe(evt.Dur.Seconds())
		}
	}
	return nil
}

func (s *PrometheusSink) finish(evt progress.Event, result string) {
	if s.tracker.complete(evt.JobID) {
		s.pipelinesRunning.Dec()
	}
	if evt.Dur > 0 {
		s.pipelineRuntime.WithLabelValues(result).Observe(evt.Dur.Seconds())
	}
}

func (s *PrometheusSink) observePage(evt progress.Event) {
	site := metrics.SanitizeSite(evt.URL)
	class := evt.StatusClass
	if class == "" {
		class = progress.StatusOther
	}
	s.pages.WithLabelValues(site, string(class)).Inc()
	if evt.Dur > 0 {
		s.pageDuration.WithLabelValues(site).Observe(evt.Dur.Seconds())
	}
}

// Close implements progress.Sink.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type runTracker struct {
	mu      sync.Mutex
	running map[string]struct{}
}

func newRunTracker() *runTracker {
	return &runTracker{running: make(map[string]struct{})}
}

func (t *runTracker) start(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *runTracker) complete(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
