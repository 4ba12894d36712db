package progress

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Config controls how the Hub buffers run events before handing them to sinks.
//   - BufferSize: capacity of the inbound queue (default 4096).
//   - MaxBatchEvents: deliver once this many events are pending (default 1000).
//   - MaxBatchWait: deliver this long after the first pending event (default 500ms).
//   - SinkTimeout: bound on one sink call (default 10s).
//   - BaseContext: parent of every sink call context (default context.Background()).
//   - Logger: receives drop and sink failure warnings.
type Config struct {
	BufferSize     int
	MaxBatchEvents int
	MaxBatchWait   time.Duration
	SinkTimeout    time.Duration
	BaseContext    context.Context
	Logger         *zap.Logger
}

const (
	defaultBufferSize     = 4096
	defaultMaxBatchEvents = 1000
	defaultMaxBatchWait   = 500 * time.Millisecond
	defaultSinkTimeout    = 10 * time.Second
	dropLogInterval       = 5 * time.Second
)

func (c Config) withDefaults() Config {
	if c.BufferSize <= 0 {
		c.BufferSize = defaultBufferSize
	}
	if c.MaxBatchEvents <= 0 {
		c.MaxBatchEvents = defaultMaxBatchEvents
	}
	if c.MaxBatchWait <= 0 {
		c.MaxBatchWait = defaultMaxBatchWait
	}
	if c.SinkTimeout <= 0 {
		c.SinkTimeout = defaultSinkTimeout
	}
	if c.BaseContext == nil {
		c.BaseContext = context.Background()
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

// Hub queues run events and delivers them in batches to its sinks from a
// single background goroutine. Emit never blocks, so a collector's progress
// callback cannot stall on a slow store.
type Hub struct {
	cfg   Config
	sinks []Sink
	queue chan Event
	quit  chan struct{}
	done  chan struct{}
	log   *zap.Logger

	dropWarn     *rate.Sometimes
	droppedSince atomic.Int64
	droppedTotal atomic.Int64
	closed       atomic.Bool

	closeOnce sync.Once
	closeCtx  context.Context
}

// NewHub starts a Hub delivering to sinks. It accepts events immediately.
func NewHub(cfg Config, sinks ...Sink) *Hub {
	cfg = cfg.withDefaults()
	h := &Hub{
		cfg:      cfg,
		sinks:    append([]Sink(nil), sinks...),
		queue:    make(chan Event, cfg.BufferSize),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
		log:      cfg.Logger,
		dropWarn: &rate.Sometimes{Interval: dropLogInterval},
	}
	go h.loop()
	return h
}

// Emit queues evt. Invalid events are discarded; when the queue is full the
// event is dropped and counted.
func (h *Hub) Emit(evt Event) {
	if h == nil || h.closed.Load() {
		return
	}
	if err := evt.Validate(); err != nil {
		h.log.Debug("discarding invalid progress event", zap.Error(err))
		return
	}
	select {
	case h.queue <- evt:
		return
	default:
	}
	h.droppedTotal.Add(1)
	h.droppedSince.Add(1)
	h.dropWarn.Do(func() {
		h.log.Warn("progress events dropped due to backpressure",
			zap.Int64("dropped", h.droppedSince.Swap(0)),
			zap.String("job_id", evt.JobID),
			zap.String("stage", string(evt.Stage)),
		)
	})
}

// Dropped reports how many events were lost to a full queue since start.
func (h *Hub) Dropped() int64 {
	return h.droppedTotal.Load()
}

// Close stops intake, delivers everything still queued, closes the sinks, and
// waits for the background goroutine. Later calls only wait.
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
		close(h.quit)
	})
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("progress hub close wait: %w", ctx.Err())
	}
}

// batchWindow is a one-shot timer armed by the first event of a batch.
type batchWindow struct {
	timer *time.Timer
	wait  time.Duration
	armed bool
}

func newBatchWindow(wait time.Duration) *batchWindow {
	t := time.NewTimer(wait)
	t.Stop()
	return &batchWindow{timer: t, wait: wait}
}

func (w *batchWindow) arm() {
	if w.armed {
		return
	}
	w.timer.Reset(w.wait)
	w.armed = true
}

func (w *batchWindow) disarm() {
	w.timer.Stop()
	w.armed = false
}

func (h *Hub) loop() {
	defer close(h.done)

	pending := make([]Event, 0, h.cfg.MaxBatchEvents)
	window := newBatchWindow(h.cfg.MaxBatchWait)
	for {
		select {
		case evt := <-h.queue:
			pending = append(pending, evt)
			if len(pending) < h.cfg.MaxBatchEvents {
				window.arm()
				continue
			}
			window.disarm()
			pending = h.deliver(pending)
		case <-window.timer.C:
			window.armed = false
			pending = h.deliver(pending)
		case <-h.quit:
			window.disarm()
			h.drain(pending)
			h.closeSinks()
			return
		}
	}
}

// drain delivers pending plus whatever is still queued, in batches.
func (h *Hub) drain(pending []Event) {
	for {
		select {
		case evt := <-h.queue:
			pending = append(pending, evt)
			if len(pending) >= h.cfg.MaxBatchEvents {
				pending = h.deliver(pending)
			}
		default:
			h.deliver(pending)
			return
		}
	}
}

// deliver hands a copy of batch to every sink and returns batch emptied for reuse.
func (h *Hub) deliver(batch []Event) []Event {
	if len(batch) == 0 {
		return batch
	}
	snapshot := append([]Event(nil), batch...)
	for _, sink := range h.sinks {
		if sink != nil {
			h.consume(sink, snapshot)
		}
	}
	return batch[:0]
}

func (h *Hub) consume(sink Sink, batch []Event) {
	ctx, cancel := context.WithTimeout(h.cfg.BaseContext, h.cfg.SinkTimeout)
	defer cancel()
	if err := sink.Consume(ctx, batch); err != nil {
		h.log.Warn("progress sink consume failed", zap.Int("events", len(batch)), zap.Error(err))
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
			h.log.Warn("progress sink close failed", zap.Error(err))
		}
	}
}
