package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dejobratic/storefront/internal/orders/metrics"
	"github.com/dejobratic/storefront/internal/orders/ports"
)

const (
	DefaultQueueSize   = 256
	DefaultWorkers     = 2
	DefaultSendTimeout = 10 * time.Second
)

type Config struct {
	QueueSize   int
	Workers     int
	SendTimeout time.Duration
}

// Dispatcher decouples notification delivery from the request path. Enqueue never blocks:
// when the queue is full the notification is dropped and counted.
type Dispatcher struct {
	queue   chan ports.Notification
	sink    ports.NotificationSink
	workers int
	timeout time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewDispatcher(sink ports.NotificationSink, cfg Config, logger *slog.Logger, metrics *metrics.Metrics) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = DefaultSendTimeout
	}
	return &Dispatcher{
		queue:   make(chan ports.Notification, cfg.QueueSize),
		sink:    sink,
		workers: cfg.Workers,
		timeout: cfg.SendTimeout,
		logger:  logger,
		metrics: metrics,
	}
}

func (d *Dispatcher) Enqueue(ctx context.Context, n ports.Notification) {
	select {
	case d.queue <- n:
	default:
		d.metrics.RecordNotificationDropped(ctx, string(n.Kind))
		d.logger.WarnContext(ctx, "notification queue full, dropping notification",
			"kind", string(n.Kind),
			"order_id", n.OrderID,
			"order_number", n.OrderNumber,
		)
	}
}

// Run delivers queued notifications until ctx is cancelled, then flushes what is still buffered.
func (d *Dispatcher) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := 0; i < d.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.work(ctx)
		}()
	}
	wg.Wait()

	d.drain(context.WithoutCancel(ctx))
	return nil
}

func (d *Dispatcher) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-d.queue:
			d.deliver(ctx, n)
		}
	}
}

func (d *Dispatcher) drain(ctx context.Context) {
	for {
		select {
		case n := <-d.queue:
			d.deliver(ctx, n)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, n ports.Notification) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if err := d.sink.Notify(ctx, n); err != nil {
		d.logger.ErrorContext(ctx, "failed to deliver notification",
			"kind", string(n.Kind),
			"order_id", n.OrderID,
			"error", err,
		)
	}
}

// Pending reports how many notifications wait in the queue.
func (d *Dispatcher) Pending() int {
	return len(d.queue)
}
