package payment

import (
	"context"

	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/tikis23/psp-2025/internal/domain/audit"
	"github.com/tikis23/psp-2025/internal/domain/order"
)

// Processor webhook event types.
const (
	EventIntentSucceeded  = "payment_intent.succeeded"
	EventIntentProcessing = "payment_intent.processing"
	EventIntentFailed     = "payment_intent.payment_failed"
	EventIntentCanceled   = "payment_intent.canceled"
)

var webhookStatuses = map[string]order.PaymentStatus{
	EventIntentSucceeded:  order.PaymentSucceeded,
	EventIntentProcessing: order.PaymentProcessing,
	EventIntentFailed:     order.PaymentFailed,
	EventIntentCanceled:   order.PaymentCanceled,
}

// WebhookEvent is a verified processor event.
type WebhookEvent struct {
	ID   string
	Type string
	// ExternalRef is the payment intent id the event is about.
	ExternalRef string
}

// EventDeduper remembers processed webhook event ids.
type EventDeduper interface {
	// Claim marks id as in progress and reports whether it was new.
	Claim(ctx context.Context, id string) (bool, error)
	// Release forgets id so a redelivery is processed again.
	Release(ctx context.Context, id string) error
}

// StatusForEvent maps a processor event type to a payment status.
func StatusForEvent(eventType string) (order.PaymentStatus, bool) {
	s, ok := webhookStatuses[eventType]
	return s, ok
}

// HandleWebhook applies a processor event. Failures are logged and
// swallowed because the processor redelivers events.
func (l *Ledger) HandleWebhook(ctx context.Context, ev WebhookEvent) {
	outcome := l.handleWebhook(ctx, ev)
	l.metrics.webhooks.Add(ctx, 1, metric.WithAttributes(
		attribute.String("type", ev.Type),
		attribute.String("outcome", outcome),
	))
}

func (l *Ledger) handleWebhook(ctx context.Context, ev WebhookEvent) string {
	lg := zctx.From(ctx).With(
		zap.String("event_id", ev.ID),
		zap.String("event_type", ev.Type),
		zap.String("external_ref", ev.ExternalRef),
	)

	status, ok := StatusForEvent(ev.Type)
	if !ok {
		lg.Debug("Webhook event ignored")
		return "ignored"
	}
	if ev.ExternalRef == "" {
		lg.Warn("Webhook event without payment reference")
		return "invalid"
	}

	claimed := false
	if l.deduper != nil && ev.ID != "" {
		fresh, err := l.deduper.Claim(ctx, ev.ID)
		switch {
		case err != nil:
			// The payment status guard still keeps redeliveries idempotent.
			lg.Warn("Claim webhook event", zap.Error(err))
		case !fresh:
			lg.Debug("Duplicate webhook event")
			return "duplicate"
		default:
			claimed = true
		}
	}

	if err := l.UpdateStatus(ctx, ev.ExternalRef, status); err != nil {
		lg.Error("Process webhook event", zap.Error(err))
		if claimed {
			if err := l.deduper.Release(ctx, ev.ID); err != nil {
				lg.Warn("Release webhook event", zap.Error(err))
			}
		}
		return "error"
	}

	l.audit.Record(ctx, audit.Event{
		Type:  audit.WebhookEventProcessed,
		Attrs: map[string]string{"event_id": ev.ID, "event_type": ev.Type, "external_ref": ev.ExternalRef},
	})
	return "processed"
}
