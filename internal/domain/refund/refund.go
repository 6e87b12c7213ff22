// Package refund reverses the settled payments of a paid order and closes
// it as REFUNDED.
package refund

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tikis23/psp-2025/internal/domain/apperr"
	"github.com/tikis23/psp-2025/internal/domain/audit"
	"github.com/tikis23/psp-2025/internal/domain/order"
	"github.com/tikis23/psp-2025/internal/domain/payment"
	"github.com/tikis23/psp-2025/internal/domain/tenant"
)

var (
	// ErrOrderAlreadyRefunded is returned for orders that were refunded before.
	ErrOrderAlreadyRefunded = apperr.Mark(errors.New("order is already refunded"), apperr.InvalidState)
	// ErrOrderNotPaid is returned for orders that are not PAID.
	ErrOrderNotPaid = apperr.Mark(errors.New("order is not paid"), apperr.InvalidState)
	// ErrNoRefundablePayments is returned when nothing could be reversed.
	ErrNoRefundablePayments = apperr.Mark(errors.New("no refundable payments"), apperr.InvalidState)
)

// Outcome is the result of reversing one payment.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	OutcomeSkipped   Outcome = "skipped"
)

// Line reports what happened to one settled payment.
type Line struct {
	PaymentID string
	Tender    order.Tender
	// Amount is what this tender contributed to the order total, tip excluded.
	Amount           decimal.Decimal
	Outcome          Outcome
	PaymentStatus    order.PaymentStatus
	ExternalRefundID string
	// Error is set for failed lines.
	Error string
}

// Result is a created refund with its per-payment breakdown.
type Result struct {
	Refund order.Refund
	Lines  []Line
}

// Failed reports whether any payment could not be reversed.
func (r *Result) Failed() bool {
	for _, l := range r.Lines {
		if l.Outcome == OutcomeFailed {
			return true
		}
	}
	return false
}

// Engine creates full refunds.
type Engine struct {
	store     order.Store
	processor payment.Processor
	audit     audit.Sink
	now       func() time.Time
}

// NewEngine creates an Engine.
func NewEngine(store order.Store, processor payment.Processor, sink audit.Sink) *Engine {
	if sink == nil {
		sink = audit.Nop{}
	}
	return &Engine{
		store:     store,
		processor: processor,
		audit:     sink,
		now:       time.Now,
	}
}

// CreateFullRefund reverses every SUCCEEDED payment of a PAID order. Cash is
// marked REFUNDED directly, card payments are refunded at the processor and
// gift card payments are skipped. A card refund failure leaves that payment
// SUCCEEDED and does not stop the others. The order becomes REFUNDED as soon
// as anything was reversed.
func (e *Engine) CreateFullRefund(ctx context.Context, merchant tenant.MerchantID, orderID, reason string) (*Result, error) {
	lg := zctx.From(ctx).With(zap.String("order_id", orderID))

	var res Result
	err := e.store.WithinOrder(ctx, merchant, orderID, func(ctx context.Context, tx order.Tx) error {
		o := tx.Order()
		switch o.Status {
		case order.StatusRefunded:
			return errors.Wrapf(ErrOrderAlreadyRefunded, "order %s", o.ID)
		case order.StatusPaid:
		default:
			return errors.Wrapf(ErrOrderNotPaid, "order %s is %s", o.ID, o.Status)
		}

		payments, err := tx.Payments(ctx)
		if err != nil {
			return errors.Wrap(err, "list payments")
		}

		now := e.now()
		total := decimal.Zero
		for i := range payments {
			p := &payments[i]
			if p.Status != order.PaymentSucceeded {
				continue
			}
			line := e.reverse(ctx, p)
			res.Lines = append(res.Lines, line)
			if line.Outcome != OutcomeCompleted {
				if line.Outcome == OutcomeFailed {
					lg.Warn("Card refund failed",
						zap.String("payment_id", p.ID),
						zap.String("error", line.Error),
					)
				}
				continue
			}

			p.Status = order.PaymentRefunded
			p.UpdatedAt = now
			if err := tx.UpdatePayment(ctx, p); err != nil {
				return errors.Wrapf(err, "update payment %s", p.ID)
			}
			total = total.Add(line.Amount)
		}
		if total.IsZero() {
			return errors.Wrapf(ErrNoRefundablePayments, "order %s", o.ID)
		}

		res.Refund = order.Refund{
			ID:          uuid.New().String(),
			OrderID:     o.ID,
			TotalAmount: total,
			Status:      order.RefundProcessing,
			Reason:      reason,
			CreatedAt:   now,
		}
		if err := tx.InsertRefund(ctx, &res.Refund); err != nil {
			return errors.Wrap(err, "insert refund")
		}
		if err := o.TransitionTo(order.StatusRefunded, now); err != nil {
			return err
		}
		if err := tx.Save(ctx); err != nil {
			return errors.Wrap(err, "save order")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	lg.Info("Order refunded",
		zap.String("refund_id", res.Refund.ID),
		zap.String("total", res.Refund.TotalAmount.StringFixed(2)),
		zap.Int("payments", len(res.Lines)),
	)
	e.audit.Record(ctx, audit.Event{
		Type:       audit.RefundCreated,
		MerchantID: merchant,
		OrderID:    orderID,
		Attrs: map[string]string{
			"refund_id": res.Refund.ID,
			"total":     res.Refund.TotalAmount.StringFixed(2),
			"reason":    reason,
		},
	})
	e.audit.Record(ctx, audit.Event{
		Type:       audit.OrderStatusChanged,
		MerchantID: merchant,
		OrderID:    orderID,
		Attrs:      map[string]string{"status": string(order.StatusRefunded)},
	})
	for _, l := range res.Lines {
		if l.Outcome != OutcomeFailed {
			continue
		}
		e.audit.Record(ctx, audit.Event{
			Type:       audit.RefundPartialFailure,
			MerchantID: merchant,
			OrderID:    orderID,
			PaymentID:  l.PaymentID,
			Attrs:      map[string]string{"refund_id": res.Refund.ID, "error": l.Error},
		})
	}
	return &res, nil
}

// reverse attempts to give back one settled payment. Tips stay with the
// merchant; only the amount applied to the order is returned.
func (e *Engine) reverse(ctx context.Context, p *order.Payment) Line {
	line := Line{
		PaymentID:     p.ID,
		Tender:        p.Tender,
		Amount:        p.Amount,
		PaymentStatus: p.Status,
	}
	switch p.Tender {
	case order.TenderCash:
		line.Outcome = OutcomeCompleted
	case order.TenderCard:
		ext, err := e.processor.Refund(ctx, p.ExternalRef, payment.MinorUnits(line.Amount))
		if err != nil {
			line.Outcome = OutcomeFailed
			line.Error = err.Error()
			return line
		}
		line.Outcome = OutcomeCompleted
		line.ExternalRefundID = ext.ID
	default:
		// Gift card balances are not restored.
		line.Outcome = OutcomeSkipped
		return line
	}
	line.PaymentStatus = order.PaymentRefunded
	return line
}
