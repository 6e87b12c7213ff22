package audit

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Async buffers events and delivers them to a Publisher from a single
// background worker. Events are dropped when the buffer is full.
type Async struct {
	events  chan Event
	pub     Publisher
	lg      *zap.Logger
	now     func() time.Time
	dropped atomic.Int64
}

var _ Sink = (*Async)(nil)

// NewAsync creates an Async sink with the given buffer size.
func NewAsync(pub Publisher, lg *zap.Logger, buffer int) *Async {
	if buffer <= 0 {
		buffer = 1
	}
	return &Async{
		events: make(chan Event, buffer),
		pub:    pub,
		lg:     lg,
		now:    time.Now,
	}
}

// Record implements Sink.
func (a *Async) Record(ctx context.Context, e Event) {
	if e.RequestID == "" {
		e.RequestID = requestID(ctx)
	}
	if e.At.IsZero() {
		e.At = a.now()
	}
	select {
	case a.events <- e:
	default:
		if n := a.dropped.Add(1); n == 1 || n%100 == 0 {
			a.lg.Warn("Audit buffer full, dropping events",
				zap.String("type", e.Type),
				zap.Int64("dropped", n),
			)
		}
	}
}

// Dropped returns the number of events discarded so far.
func (a *Async) Dropped() int64 { return a.dropped.Load() }

// Run delivers events until ctx is done, then drains what is already
// buffered using a fresh context bounded by drainTimeout.
func (a *Async) Run(ctx context.Context, drainTimeout time.Duration) error {
	for {
		select {
		case e := <-a.events:
			a.publish(ctx, e)
		case <-ctx.Done():
			drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), drainTimeout)
			defer cancel()
			for {
				select {
				case e := <-a.events:
					a.publish(drainCtx, e)
				default:
					return nil
				}
			}
		}
	}
}

func (a *Async) publish(ctx context.Context, e Event) {
	if err := a.pub.Publish(ctx, e); err != nil {
		a.lg.Warn("Publish audit event",
			zap.String("type", e.Type),
			zap.String("order_id", e.OrderID),
			zap.Error(err),
		)
	}
}

// LogPublisher writes events to a logger. It backs the sink when no
// broker is configured.
type LogPublisher struct {
	lg *zap.Logger
}

// NewLogPublisher creates a LogPublisher.
func NewLogPublisher(lg *zap.Logger) *LogPublisher {
	return &LogPublisher{lg: lg}
}

// Publish implements Publisher.
func (p *LogPublisher) Publish(_ context.Context, e Event) error {
	fields := []zap.Field{
		zap.String("type", e.Type),
		zap.Stringer("merchant", e.MerchantID),
		zap.Time("at", e.At),
	}
	if e.OrderID != "" {
		fields = append(fields, zap.String("order_id", e.OrderID))
	}
	if e.PaymentID != "" {
		fields = append(fields, zap.String("payment_id", e.PaymentID))
	}
	for k, v := range e.Attrs {
		fields = append(fields, zap.String(k, v))
	}
	p.lg.Info("Audit", fields...)
	return nil
}
