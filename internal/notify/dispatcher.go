package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/hairbuy/intake/internal/observability"
	"github.com/hairbuy/intake/internal/store"
)

// Kind names what happened.
type Kind string

const KindApplicationCreated Kind = "application.created"

// Event is one thing staff should hear about.
type Event struct {
	Kind        Kind
	Application store.Application
}

// Notifier delivers an event over one channel.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, ev Event) error
}

// ErrPermanent marks a delivery failure that retrying cannot fix.
var ErrPermanent = errors.New("permanent notification failure")

// Options tune the dispatcher. Zero values take defaults.
type Options struct {
	Workers        int
	QueueSize      int
	MaxRetries     uint64
	Backoff        time.Duration
	AttemptTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = 2
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 64
	}
	if o.Backoff <= 0 {
		o.Backoff = 2 * time.Second
	}
	if o.AttemptTimeout <= 0 {
		o.AttemptTimeout = 30 * time.Second
	}
	return o
}

// Dispatcher fans events out to notifiers on background workers. Enqueue
// never blocks the caller; when the queue is full the event is dropped.
type Dispatcher struct {
	notifiers []Notifier
	opts      Options
	logger    *zap.Logger

	mu     sync.RWMutex
	queue  chan Event
	closed bool
	cancel context.CancelFunc

	startOnce sync.Once
	wg        sync.WaitGroup
}

// NewDispatcher builds a dispatcher. Call Start before events are expected to
// be delivered and Shutdown or Close when the process stops.
func NewDispatcher(logger *zap.Logger, opts Options, notifiers ...Notifier) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts = opts.withDefaults()
	return &Dispatcher{
		notifiers: notifiers,
		opts:      opts,
		logger:    logger,
		queue:     make(chan Event, opts.QueueSize),
	}
}

// Start launches the workers. Cancelling ctx does not stop delivery: events
// accepted before a shutdown signal still go out. Workers stop once Shutdown
// has drained the queue or its deadline has passed.
func (d *Dispatcher) Start(ctx context.Context) {
	d.startOnce.Do(func() {
		runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		d.mu.Lock()
		d.cancel = cancel
		d.mu.Unlock()

		for i := 0; i < d.opts.Workers; i++ {
			d.wg.Add(1)
			go func() {
				defer d.wg.Done()
				for ev := range d.queue {
					observability.NotifyQueueDepth.Set(float64(len(d.queue)))
					if runCtx.Err() != nil {
						d.drop(ev, "shutdown deadline passed")
						continue
					}
					d.deliver(runCtx, ev)
				}
			}()
		}
	})
}

// Enqueue schedules ev and reports whether it was accepted.
func (d *Dispatcher) Enqueue(ev Event) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.drop(ev, "dispatcher closed")
		return false
	}
	select {
	case d.queue <- ev:
		observability.NotifyQueueDepth.Set(float64(len(d.queue)))
		return true
	default:
		d.drop(ev, "queue full")
		return false
	}
}

// Shutdown stops accepting events and waits for queued ones to be delivered.
// When ctx ends first, in-flight retries are abandoned, the events still
// queued are dropped and ctx.Err() is returned.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	cancel := d.cancel
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		if cancel != nil {
			cancel()
		}
		<-done
		return ctx.Err()
	}
}

// Close waits without a deadline for queued events to be delivered.
func (d *Dispatcher) Close() {
	_ = d.Shutdown(context.Background())
}

func (d *Dispatcher) drop(ev Event, reason string) {
	observability.Notifications.WithLabelValues("queue", "dropped").Inc()
	d.logger.Warn("notification dropped",
		zap.String("reason", reason),
		zap.String("kind", string(ev.Kind)),
		zap.Int64("application_id", ev.Application.ID),
	)
}

// deliver tries every notifier independently; one failing channel does not
// stop the others.
func (d *Dispatcher) deliver(ctx context.Context, ev Event) {
	for _, n := range d.notifiers {
		attempts := 0
		backoff := retry.WithMaxRetries(d.opts.MaxRetries, retry.NewExponential(d.opts.Backoff))
		err := retry.Do(ctx, backoff, func(ctx context.Context) error {
			attempts++
			attemptCtx, cancel := context.WithTimeout(ctx, d.opts.AttemptTimeout)
			defer cancel()

			err := n.Notify(attemptCtx, ev)
			if err == nil || errors.Is(err, ErrPermanent) {
				return err
			}
			d.logger.Debug("notification attempt failed",
				zap.String("channel", n.Name()),
				zap.Int("attempt", attempts),
				zap.Error(err),
			)
			return retry.RetryableError(err)
		})

		fields := []zap.Field{
			zap.String("channel", n.Name()),
			zap.String("kind", string(ev.Kind)),
			zap.Int64("application_id", ev.Application.ID),
			zap.Int("attempts", attempts),
		}
		if err != nil {
			observability.Notifications.WithLabelValues(n.Name(), "failed").Inc()
			d.logger.Error("notification failed", append(fields, zap.Error(err))...)
			continue
		}
		observability.Notifications.WithLabelValues(n.Name(), "delivered").Inc()
		d.logger.Info("notification delivered", fields...)
	}
}
