// Package payment settles order balances through cash, gift card and card
// tenders and applies asynchronous card status updates.
package payment

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/tikis23/psp-2025/internal/domain/apperr"
	"github.com/tikis23/psp-2025/internal/domain/audit"
	"github.com/tikis23/psp-2025/internal/domain/giftcard"
	"github.com/tikis23/psp-2025/internal/domain/order"
	"github.com/tikis23/psp-2025/internal/domain/pricing"
	"github.com/tikis23/psp-2025/internal/domain/tenant"
)

const instrumentationName = "github.com/tikis23/psp-2025/internal/domain/payment"

var (
	// ErrAlreadyPaid is returned when the order has no remaining balance.
	ErrAlreadyPaid = apperr.Mark(errors.New("order is already paid"), apperr.InvalidState)
	// ErrInvalidAmount is returned for payment amounts that are not positive
	// after rounding to cents or exceed MaxAmount.
	ErrInvalidAmount = apperr.Mark(errors.New("payment amount must be positive and within range"), apperr.Validation)
	// ErrInvalidTip is returned for negative tips and tips above MaxAmount.
	ErrInvalidTip = apperr.Mark(errors.New("tip must not be negative or out of range"), apperr.Validation)
	// ErrGiftCardCodeRequired is returned for gift card payments without a code.
	ErrGiftCardCodeRequired = apperr.Mark(errors.New("gift card code is required"), apperr.Validation)
	// ErrUnsupportedTender is returned for unknown tender kinds.
	ErrUnsupportedTender = apperr.Mark(errors.New("unsupported tender"), apperr.Validation)
	// ErrNotCancelable is returned when cancelling a payment that is not a
	// pending card payment.
	ErrNotCancelable = apperr.Mark(errors.New("payment cannot be canceled"), apperr.InvalidState)
)

// Request holds the input for a payment.
type Request struct {
	Tender order.Tender
	// Amount is the cash handed over or the card charge before tip. For
	// gift cards a positive Amount caps the redemption.
	Amount       decimal.Decimal
	Tip          decimal.Decimal
	GiftCardCode string
}

// Result is the outcome of a payment.
type Result struct {
	Payment         order.Payment
	OrderStatus     order.Status
	Total           decimal.Decimal
	RemainingBefore decimal.Decimal
	// Remaining is the order balance after this payment. Card payments do
	// not reduce it until they succeed.
	Remaining    decimal.Decimal
	ChangeDue    decimal.Decimal
	GiftCard     *giftcard.GiftCard
	ClientSecret string
}

// Options configures optional Ledger collaborators.
type Options struct {
	Deduper        EventDeduper
	Audit          audit.Sink
	MeterProvider  metric.MeterProvider
	TracerProvider trace.TracerProvider
}

type metrics struct {
	created  metric.Int64Counter
	settled  metric.Float64Counter
	webhooks metric.Int64Counter
}

// Ledger creates payments against orders.
type Ledger struct {
	store     order.Store
	pricer    *order.Pricer
	processor Processor
	deduper   EventDeduper
	audit     audit.Sink
	tracer    trace.Tracer
	metrics   metrics
	now       func() time.Time
	handlers  map[order.Tender]tenderHandler
}

// NewLedger creates a Ledger.
func NewLedger(store order.Store, pricer *order.Pricer, processor Processor, opts Options) (*Ledger, error) {
	if opts.Audit == nil {
		opts.Audit = audit.Nop{}
	}
	if opts.MeterProvider == nil {
		opts.MeterProvider = metricnoop.NewMeterProvider()
	}
	if opts.TracerProvider == nil {
		opts.TracerProvider = tracenoop.NewTracerProvider()
	}

	meter := opts.MeterProvider.Meter(instrumentationName)
	var (
		m   metrics
		err error
	)
	if m.created, err = meter.Int64Counter("psp.payments.created",
		metric.WithDescription("Payments created, by tender and status"),
	); err != nil {
		return nil, errors.Wrap(err, "payments.created counter")
	}
	if m.settled, err = meter.Float64Counter("psp.payments.settled_amount",
		metric.WithDescription("Amount applied to order balances by succeeded payments"),
	); err != nil {
		return nil, errors.Wrap(err, "payments.settled_amount counter")
	}
	if m.webhooks, err = meter.Int64Counter("psp.webhooks.events",
		metric.WithDescription("Processor webhook events, by type and outcome"),
	); err != nil {
		return nil, errors.Wrap(err, "webhooks.events counter")
	}

	l := &Ledger{
		store:     store,
		pricer:    pricer,
		processor: processor,
		deduper:   opts.Deduper,
		audit:     opts.Audit,
		tracer:    opts.TracerProvider.Tracer(instrumentationName),
		metrics:   m,
		now:       time.Now,
	}
	l.handlers = map[order.Tender]tenderHandler{
		order.TenderCash:     l.settleCash,
		order.TenderGiftCard: l.settleGiftCard,
		order.TenderCard:     l.startCard,
	}
	return l, nil
}

// CreatePayment settles part of the order balance with the requested tender.
func (l *Ledger) CreatePayment(ctx context.Context, merchant tenant.MerchantID, orderID string, req Request) (_ *Result, rerr error) {
	handler, ok := l.handlers[req.Tender]
	if !ok {
		return nil, errors.Wrapf(ErrUnsupportedTender, "tender %q", req.Tender)
	}
	if req.Tip.IsNegative() || req.Tip.Round(2).GreaterThan(MaxAmount) {
		return nil, ErrInvalidTip
	}

	ctx, span := l.tracer.Start(ctx, "payment.Create", trace.WithAttributes(
		attribute.String("psp.order_id", orderID),
		attribute.String("psp.tender", string(req.Tender)),
	))
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		span.End()
	}()

	var res *Result
	err := l.store.WithinOrder(ctx, merchant, orderID, func(ctx context.Context, tx order.Tx) error {
		o := tx.Order()
		if err := o.EnsureOpen(); err != nil {
			return err
		}

		costs, err := l.pricer.Reprice(ctx, o)
		if err != nil {
			return errors.Wrap(err, "price order")
		}
		payments, err := tx.Payments(ctx)
		if err != nil {
			return errors.Wrap(err, "list payments")
		}
		remaining := pricing.Remaining(costs.Total, order.SumSucceeded(payments))
		if !remaining.IsPositive() {
			return errors.Wrapf(ErrAlreadyPaid, "order %s", o.ID)
		}

		now := l.now()
		r, err := handler(ctx, &settlement{tx: tx, order: o, req: req, remaining: remaining, now: now})
		if err != nil {
			return err
		}

		r.Total = costs.Total
		r.RemainingBefore = remaining
		r.Remaining = remaining
		if r.Payment.Status == order.PaymentSucceeded {
			r.Remaining = pricing.Remaining(remaining, r.Payment.Amount)
			if r.Remaining.IsZero() {
				if err := o.TransitionTo(order.StatusPaid, now); err != nil {
					return err
				}
			}
		}
		r.OrderStatus = o.Status

		if err := tx.Save(ctx); err != nil {
			return errors.Wrap(err, "save order")
		}
		res = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	p := res.Payment
	l.metrics.created.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tender", string(p.Tender)),
		attribute.String("status", string(p.Status)),
	))
	if p.Status == order.PaymentSucceeded {
		l.metrics.settled.Add(ctx, p.Amount.InexactFloat64(), metric.WithAttributes(
			attribute.String("tender", string(p.Tender)),
		))
	}
	zctx.From(ctx).Info("Payment created",
		zap.String("order_id", orderID),
		zap.String("payment_id", p.ID),
		zap.String("tender", string(p.Tender)),
		zap.String("status", string(p.Status)),
		zap.String("amount", p.Amount.StringFixed(2)),
		zap.String("remaining", res.Remaining.StringFixed(2)),
	)
	l.audit.Record(ctx, audit.Event{
		Type:       audit.PaymentCreated,
		MerchantID: merchant,
		OrderID:    orderID,
		PaymentID:  p.ID,
		Attrs: map[string]string{
			"tender": string(p.Tender),
			"status": string(p.Status),
			"amount": p.Amount.StringFixed(2),
		},
	})
	if res.GiftCard != nil {
		l.audit.Record(ctx, audit.Event{
			Type:       audit.GiftCardDebited,
			MerchantID: merchant,
			OrderID:    orderID,
			PaymentID:  p.ID,
			Attrs: map[string]string{
				"code":    res.GiftCard.Code,
				"amount":  p.Amount.StringFixed(2),
				"balance": res.GiftCard.CurrentBalance.StringFixed(2),
			},
		})
	}
	if res.OrderStatus == order.StatusPaid {
		l.audit.Record(ctx, audit.Event{
			Type:       audit.OrderStatusChanged,
			MerchantID: merchant,
			OrderID:    orderID,
			Attrs:      map[string]string{"status": string(order.StatusPaid)},
		})
	}
	return res, nil
}

func newPayment(s *settlement, tender order.Tender, amount decimal.Decimal, status order.PaymentStatus) *order.Payment {
	return &order.Payment{
		ID:           uuid.New().String(),
		OrderID:      s.order.ID,
		MerchantID:   s.order.MerchantID,
		Tender:       tender,
		Amount:       amount,
		CashReceived: decimal.Zero,
		Tip:          decimal.Zero,
		Status:       status,
		CreatedAt:    s.now,
		UpdatedAt:    s.now,
	}
}

func processorError(op string, err error) error {
	var pe *ProcessorError
	if errors.As(err, &pe) {
		return err
	}
	return &ProcessorError{Op: op, Err: err}
}
