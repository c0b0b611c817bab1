package pricechange

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"pricewatch/internal/domain"
	"pricewatch/internal/observability"
)

// Default alert dispatch bounds.
const (
	DefaultAlertQueueSize    = 1024
	DefaultDeliveryRetries   = 2
	DefaultDeliveryBackoff   = 250 * time.Millisecond
	DefaultDeliveryTimeout   = 5 * time.Second
	DefaultShutdownDrainTime = 10 * time.Second
)

// AlertSink delivers one alert to an external channel. Implementations
// must be safe for calls from a single dispatcher goroutine.
type AlertSink interface {
	Deliver(ctx context.Context, event *domain.PriceEvent) error
}

// Dispatcher fans detected events out to a sink without ever blocking the
// detection path. The queue is bounded; when it is full the alert is
// dropped and counted, and the event itself stays safely in the gold
// layer regardless.
type Dispatcher struct {
	sink    AlertSink
	queue   chan *domain.PriceEvent
	retries int
	backoff time.Duration
	timeout time.Duration
	logger  *log.Logger

	dropped   atomic.Int64
	delivered atomic.Int64
	failed    atomic.Int64

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// DispatcherOptions contains configuration for creating a Dispatcher.
type DispatcherOptions struct {
	Sink            AlertSink
	QueueSize       int           // default 1024
	DeliveryRetries int           // default 2
	DeliveryBackoff time.Duration // default 250ms
	DeliveryTimeout time.Duration // default 5s
	Logger          *log.Logger
}

// NewDispatcher creates the dispatcher and starts its consumer goroutine.
func NewDispatcher(opts DispatcherOptions) *Dispatcher {
	queueSize := opts.QueueSize
	if queueSize <= 0 {
		queueSize = DefaultAlertQueueSize
	}
	retries := opts.DeliveryRetries
	if retries < 0 {
		retries = DefaultDeliveryRetries
	}
	backoff := opts.DeliveryBackoff
	if backoff <= 0 {
		backoff = DefaultDeliveryBackoff
	}
	timeout := opts.DeliveryTimeout
	if timeout <= 0 {
		timeout = DefaultDeliveryTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	d := &Dispatcher{
		sink:    opts.Sink,
		queue:   make(chan *domain.PriceEvent, queueSize),
		retries: retries,
		backoff: backoff,
		timeout: timeout,
		logger:  logger,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go d.consume()
	return d
}

// Dispatch enqueues an alert. Never blocks; a full queue drops the alert.
func (d *Dispatcher) Dispatch(event *domain.PriceEvent) {
	select {
	case d.queue <- event:
		observability.SetAlertQueueDepth(len(d.queue))
	default:
		d.dropped.Add(1)
		observability.RecordAlertDropped()
		d.logger.Printf("Alert queue full, dropping %s for %s/%s",
			event.Classification, event.Source, event.ProductKey)
	}
}

// Close stops the consumer after draining what is already queued.
func (d *Dispatcher) Close() {
	d.stopOnce.Do(func() { close(d.stop) })
	select {
	case <-d.done:
	case <-time.After(DefaultShutdownDrainTime):
		d.logger.Printf("Alert dispatcher drain timed out with %d queued", len(d.queue))
	}
}

// Stats returns delivery counters: delivered, failed, dropped.
func (d *Dispatcher) Stats() (delivered, failed, dropped int64) {
	return d.delivered.Load(), d.failed.Load(), d.dropped.Load()
}

// QueueDepth reports the current backlog, for metrics.
func (d *Dispatcher) QueueDepth() int {
	return len(d.queue)
}

func (d *Dispatcher) consume() {
	defer close(d.done)
	for {
		select {
		case event := <-d.queue:
			d.deliver(event)
		case <-d.stop:
			// Drain without waiting for new work.
			for {
				select {
				case event := <-d.queue:
					d.deliver(event)
				default:
					return
				}
			}
		}
	}
}

// deliver attempts the sink with a small bounded retry. Alert delivery is
// best-effort: after the retries run out the failure is logged and counted,
// never propagated back to detection.
func (d *Dispatcher) deliver(event *domain.PriceEvent) {
	var lastErr error
	for attempt := 0; attempt <= d.retries; attempt++ {
		if attempt > 0 {
			time.Sleep(d.backoff)
		}
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		err := d.sink.Deliver(ctx, event)
		cancel()
		if err == nil {
			d.delivered.Add(1)
			observability.RecordAlertDelivered()
			observability.SetAlertQueueDepth(len(d.queue))
			return
		}
		lastErr = err
	}
	d.failed.Add(1)
	observability.RecordAlertFailed()
	d.logger.Printf("Alert delivery failed for %s %s/%s after %d attempts: %v",
		event.Classification, event.Source, event.ProductKey, d.retries+1, lastErr)
}

// LogSink writes alerts to the process log. It is the default sink when no
// external channel is configured.
type LogSink struct {
	logger *log.Logger
}

// NewLogSink creates a log-backed alert sink.
func NewLogSink(logger *log.Logger) *LogSink {
	if logger == nil {
		logger = log.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Deliver(_ context.Context, event *domain.PriceEvent) error {
	s.logger.Printf("ALERT %s %s/%s: %.2f -> %.2f (%.1f%%)",
		event.Classification, event.Source, event.ProductKey,
		event.OldPrice, event.NewPrice, event.ChangePct*100)
	return nil
}

var _ AlertSink = (*LogSink)(nil)
