// Package audit records mutations of orders, payments, refunds and gift
// cards as a best-effort event stream.
package audit

import (
	"context"
	"sort"
	"time"

	"github.com/go-faster/jx"

	"github.com/tikis23/psp-2025/internal/domain/tenant"
)

// Event types.
const (
	OrderCreated          = "order.created"
	OrderUpdated          = "order.updated"
	OrderStatusChanged    = "order.status_changed"
	PaymentCreated        = "payment.created"
	PaymentStatusChanged  = "payment.status_changed"
	PaymentCanceled       = "payment.canceled"
	PaymentOverpaid       = "payment.overpaid"
	RefundCreated         = "refund.created"
	RefundPartialFailure  = "refund.partial_failure"
	GiftCardIssued        = "giftcard.issued"
	GiftCardDebited       = "giftcard.debited"
	WebhookEventProcessed = "webhook.processed"
)

// Event is a single audit record.
type Event struct {
	Type       string
	MerchantID tenant.MerchantID
	OrderID    string
	PaymentID  string
	// RequestID correlates the event with the API request that caused it.
	RequestID string
	Attrs     map[string]string
	At        time.Time
}

// Encode writes e as a JSON object.
func (e Event) Encode(enc *jx.Encoder) {
	enc.ObjStart()
	enc.FieldStart("type")
	enc.Str(e.Type)
	enc.FieldStart("merchant_id")
	enc.Int64(int64(e.MerchantID))
	if e.OrderID != "" {
		enc.FieldStart("order_id")
		enc.Str(e.OrderID)
	}
	if e.PaymentID != "" {
		enc.FieldStart("payment_id")
		enc.Str(e.PaymentID)
	}
	if e.RequestID != "" {
		enc.FieldStart("request_id")
		enc.Str(e.RequestID)
	}
	if len(e.Attrs) > 0 {
		keys := make([]string, 0, len(e.Attrs))
		for k := range e.Attrs {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		enc.FieldStart("attrs")
		enc.ObjStart()
		for _, k := range keys {
			enc.FieldStart(k)
			enc.Str(e.Attrs[k])
		}
		enc.ObjEnd()
	}
	enc.FieldStart("at")
	enc.Str(e.At.UTC().Format(time.RFC3339Nano))
	enc.ObjEnd()
}

type requestIDKey struct{}

// WithRequestID returns a context whose recorded events carry id.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, id)
}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// Sink accepts audit events. Record must not block the caller on delivery
// and never fails the operation being audited.
type Sink interface {
	Record(ctx context.Context, e Event)
}

// Publisher delivers a single event to durable storage or a broker.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Nop discards events.
type Nop struct{}

var _ Sink = Nop{}

// Record implements Sink.
func (Nop) Record(context.Context, Event) {}
