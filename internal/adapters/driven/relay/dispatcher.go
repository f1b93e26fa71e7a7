package relay

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/layerforge/internal/core/domain"
	"github.com/custodia-labs/layerforge/internal/core/ports/driven"
	"github.com/custodia-labs/layerforge/internal/logger"
)

// Ensure Dispatcher implements the interface.
var _ driven.EventPublisher = (*Dispatcher)(nil)

// DefaultBuffer is the queue size used when none is configured.
const DefaultBuffer = 64

// DefaultEmitTimeout bounds a single sink write.
const DefaultEmitTimeout = 5 * time.Second

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithEmitTimeout sets the per-event sink timeout.
func WithEmitTimeout(d time.Duration) DispatcherOption {
	return func(p *Dispatcher) { p.timeout = d }
}

// WithClock overrides the clock used to stamp events.
func WithClock(now func() time.Time) DispatcherOption {
	return func(p *Dispatcher) { p.now = now }
}

// Dispatcher is a fire-and-forget EventPublisher.
//
// Publish never blocks: when the queue is full or the dispatcher is closed
// the event is dropped and counted.
type Dispatcher struct {
	sink    driven.RelaySink
	timeout time.Duration
	now     func() time.Time

	queue chan domain.RelayEvent
	done  chan struct{}

	// mu guards closed and diag.
	mu     sync.Mutex
	closed bool
	diag   domain.RelayDiagnostics
}

// NewDispatcher starts a dispatcher writing to sink.
// Callers must Close it to flush queued events and stop the worker.
func NewDispatcher(sink driven.RelaySink, buffer int, opts ...DispatcherOption) *Dispatcher {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	d := &Dispatcher{
		sink:    sink,
		timeout: DefaultEmitTimeout,
		now:     time.Now,
		queue:   make(chan domain.RelayEvent, buffer),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	go d.run()
	return d
}

// Publish stamps the event with an ID and time and queues it.
func (d *Dispatcher) Publish(event domain.RelayEvent) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Time.IsZero() {
		event.Time = d.now()
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		d.diag.Dropped++
		return
	}
	select {
	case d.queue <- event:
	default:
		d.diag.Dropped++
		logger.Debug("relay queue full, dropped %s event", event.Type)
	}
}

// Diagnostics returns a snapshot of the delivery counters.
func (d *Dispatcher) Diagnostics() domain.RelayDiagnostics {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.diag
}

// Close stops accepting events, drains the queue and waits for the worker.
// It is safe to call more than once.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	<-d.done
	return nil
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for event := range d.queue {
		d.deliver(event)
	}
}

func (d *Dispatcher) deliver(event domain.RelayEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	path, err := d.sink.Emit(ctx, event)

	d.mu.Lock()
	defer d.mu.Unlock()
	if err != nil {
		d.diag.Failed++
		d.diag.LastError = err.Error()
		logger.Warn("relay %s event: %v", event.Type, err)
		return
	}
	d.diag.Emitted++
	d.diag.LastPath = path
}
