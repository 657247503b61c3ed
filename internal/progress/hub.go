package progress

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Config controls buffering and batching for the Hub. Zero values select
// defaults: a 1024 event buffer, 256 event batches, 250ms batch wait, and a
// 5s per-sink timeout.
type Config struct {
	BufferSize     int
	MaxBatchEvents int
	// MaxBatchWait bounds how long the first event of a batch waits for a flush.
	MaxBatchWait time.Duration
	SinkTimeout  time.Duration
	// BaseContext parents every sink call. Defaults to context.Background().
	BaseContext context.Context
	Logger      *zap.Logger
}

const (
	defaultBufferSize     = 1024
	defaultMaxBatchEvents = 256
	defaultMaxBatchWait   = 250 * time.Millisecond
	defaultSinkTimeout    = 5 * time.Second
	dropLogInterval       = 5 * time.Second
)

// Hub batches events and fans them out to sinks. Emit never blocks; when the
// buffer is full events are dropped.
type Hub struct {
	cfg     Config
	sinks   []Sink
	events  chan Event
	stopCh  chan struct{}
	doneCh  chan struct{}
	logger  *zap.Logger
	dropped atomic.Int64
	lastLog atomic.Int64
	closed  atomic.Bool

	closeOnce sync.Once
	closeCtx  context.Context
}

// NewHub starts the batching goroutine. Call Close to flush and stop it.
func NewHub(cfg Config, sinks ...Sink) *Hub {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	if cfg.MaxBatchEvents <= 0 {
		cfg.MaxBatchEvents = defaultMaxBatchEvents
	}
	if cfg.MaxBatchWait <= 0 {
		cfg.MaxBatchWait = defaultMaxBatchWait
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = defaultSinkTimeout
	}
	if cfg.BaseContext == nil {
		cfg.BaseContext = context.Background()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{
		cfg:    cfg,
		sinks:  append([]Sink(nil), sinks...),
		events: make(chan Event, cfg.BufferSize),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
		logger: logger.Named("progress"),
	}
	go h.run()
	return h
}

// Emit enqueues evt. Invalid events are discarded.
func (h *Hub) Emit(evt Event) {
	if h == nil || h.closed.Load() {
		return
	}
	if err := evt.Validate(); err != nil {
		h.logger.Debug("discarding invalid progress event", zap.Error(err))
		return
	}
	select {
	case h.events <- evt:
	default:
		h.dropped.Add(1)
		h.warnDropped(time.Now())
	}
}

// Dropped reports events discarded since the last drop warning.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

func (h *Hub) warnDropped(now time.Time) {
	last := h.lastLog.Load()
	if now.UnixNano()-last < dropLogInterval.Nanoseconds() {
		return
	}
	if !h.lastLog.CompareAndSwap(last, now.UnixNano()) {
		return
	}
	h.logger.Warn("progress events dropped", zap.Int64("dropped", h.dropped.Swap(0)))
}

// Close stops intake, flushes buffered events, closes the sinks, and waits
// for the batching goroutine or ctx.
func (h *Hub) Close(ctx context.Context) error {
	if h == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	h.closeOnce.Do(func() {
		h.closed.Store(true)
		h.closeCtx = ctx
		close(h.stopCh)
	})
	select {
	case <-h.doneCh:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("progress hub close wait: %w", ctx.Err())
	}
}

func (h *Hub) run() {
	defer close(h.doneCh)
	b := &batcher{hub: h, events: make([]Event, 0, h.cfg.MaxBatchEvents)}
	for {
		select {
		case evt := <-h.events:
			b.add(evt)
		case <-b.wait:
			b.flush()
		case <-h.stopCh:
			for {
				select {
				case evt := <-h.events:
					b.add(evt)
				default:
					b.flush()
					h.closeSinks()
					return
				}
			}
		}
	}
}

// batcher is owned by the run goroutine. wait is nil while no batch is open.
type batcher struct {
	hub    *Hub
	events []Event
	timer  *time.Timer
	wait   <-chan time.Time
}

func (b *batcher) add(evt Event) {
	b.events = append(b.events, evt)
	if len(b.events) >= b.hub.cfg.MaxBatchEvents {
		b.flush()
		return
	}
	if b.wait == nil {
		b.timer = time.NewTimer(b.hub.cfg.MaxBatchWait)
		b.wait = b.timer.C
	}
}

func (b *batcher) flush() {
	if b.timer != nil {
		b.timer.Stop()
		b.timer, b.wait = nil, nil
	}
	if len(b.events) == 0 {
		return
	}
	b.hub.deliver(append([]Event(nil), b.events...))
	b.events = b.events[:0]
}

func (h *Hub) deliver(batch []Event) {
	for _, sink := range h.sinks {
		if sink == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(h.cfg.BaseContext, h.cfg.SinkTimeout)
		if err := sink.Consume(ctx, batch); err != nil {
			h.logger.Warn("progress sink consume failed", zap.Error(err))
		}
		cancel()
	}
}

func (h *Hub) closeSinks() {
	ctx := h.closeCtx
	if ctx == nil {
		ctx = context.Background()
	}
	for _, sink := range h.sinks {
		if sink == nil {
			continue
		}
		if err := sink.Close(ctx); err != nil {
			h.logger.Warn("progress sink close failed", zap.Error(err))
		}
	}
}
