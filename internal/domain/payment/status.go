package payment

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/tikis23/psp-2025/internal/domain/audit"
	"github.com/tikis23/psp-2025/internal/domain/order"
	"github.com/tikis23/psp-2025/internal/domain/pricing"
	"github.com/tikis23/psp-2025/internal/domain/tenant"
)

// UpdateStatus applies a processor status to the card payment carrying
// externalRef. Updates to payments in a final status, or to the status
// they already have, are ignored. A transition to SUCCEEDED closes the
// order once its balance reaches zero.
func (l *Ledger) UpdateStatus(ctx context.Context, externalRef string, status order.PaymentStatus) error {
	p, err := l.store.PaymentByExternalRef(ctx, externalRef)
	if err != nil {
		return errors.Wrap(err, "find payment")
	}
	lg := zctx.From(ctx).With(
		zap.String("payment_id", p.ID),
		zap.String("order_id", p.OrderID),
	)

	var (
		prev     order.PaymentStatus
		changed  bool
		closed   bool
		overpaid bool
	)
	err = l.store.WithinOrder(ctx, p.MerchantID, p.OrderID, func(ctx context.Context, tx order.Tx) error {
		cur, err := tx.Payment(ctx, p.ID)
		if err != nil {
			return errors.Wrap(err, "load payment")
		}
		prev = cur.Status
		if cur.Status == status || cur.Status.Final() {
			return nil
		}

		now := l.now()
		cur.Status = status
		cur.UpdatedAt = now
		if err := tx.UpdatePayment(ctx, cur); err != nil {
			return errors.Wrap(err, "update payment")
		}
		changed = true
		if status != order.PaymentSucceeded {
			return nil
		}

		// Settle against the order.
		o := tx.Order()
		costs, err := l.pricer.Reprice(ctx, o)
		if err != nil {
			return errors.Wrap(err, "price order")
		}
		payments, err := tx.Payments(ctx)
		if err != nil {
			return errors.Wrap(err, "list payments")
		}
		paid := order.SumSucceeded(payments)
		overpaid = paid.GreaterThan(costs.Total)
		if o.Status == order.StatusOpen && pricing.Remaining(costs.Total, paid).IsZero() {
			if err := o.TransitionTo(order.StatusPaid, now); err != nil {
				return err
			}
			closed = true
		}
		if err := tx.Save(ctx); err != nil {
			return errors.Wrap(err, "save order")
		}
		return nil
	})
	if err != nil {
		return err
	}

	if !changed {
		lg.Debug("Payment status update ignored",
			zap.String("status", string(prev)),
			zap.String("requested", string(status)),
		)
		return nil
	}

	lg.Info("Payment status updated",
		zap.String("from", string(prev)),
		zap.String("to", string(status)),
	)
	l.audit.Record(ctx, audit.Event{
		Type:       audit.PaymentStatusChanged,
		MerchantID: p.MerchantID,
		OrderID:    p.OrderID,
		PaymentID:  p.ID,
		Attrs:      map[string]string{"from": string(prev), "to": string(status)},
	})
	if status == order.PaymentSucceeded {
		l.metrics.settled.Add(ctx, p.Amount.InexactFloat64())
	}
	if overpaid {
		lg.Warn("Order collected more than its total")
		l.audit.Record(ctx, audit.Event{Type: audit.PaymentOverpaid, MerchantID: p.MerchantID, OrderID: p.OrderID, PaymentID: p.ID})
	}
	if closed {
		l.audit.Record(ctx, audit.Event{
			Type:       audit.OrderStatusChanged,
			MerchantID: p.MerchantID,
			OrderID:    p.OrderID,
			Attrs:      map[string]string{"status": string(order.StatusPaid)},
		})
	}
	return nil
}

// CancelPayment cancels a pending card payment at the processor and marks
// it CANCELED. Nothing changes locally when the processor call fails.
func (l *Ledger) CancelPayment(ctx context.Context, merchant tenant.MerchantID, paymentID string) (*order.Payment, error) {
	p, err := l.store.PaymentByID(ctx, merchant, paymentID)
	if err != nil {
		return nil, errors.Wrap(err, "find payment")
	}
	if p.Tender != order.TenderCard || p.ExternalRef == "" {
		return nil, errors.Wrapf(ErrNotCancelable, "payment %s is a %s payment", p.ID, p.Tender)
	}

	var canceled order.Payment
	err = l.store.WithinOrder(ctx, merchant, p.OrderID, func(ctx context.Context, tx order.Tx) error {
		cur, err := tx.Payment(ctx, p.ID)
		if err != nil {
			return errors.Wrap(err, "load payment")
		}
		if cur.Status.Final() {
			return errors.Wrapf(ErrNotCancelable, "payment %s is %s", cur.ID, cur.Status)
		}

		intent, err := l.processor.GetIntent(ctx, cur.ExternalRef)
		if err != nil {
			return errors.Wrap(processorError("get intent", err), "retrieve payment intent")
		}
		if intent.Status != IntentCanceled {
			if _, err := l.processor.CancelIntent(ctx, cur.ExternalRef); err != nil {
				return errors.Wrap(processorError("cancel intent", err), "cancel payment intent")
			}
		}

		cur.Status = order.PaymentCanceled
		cur.UpdatedAt = l.now()
		if err := tx.UpdatePayment(ctx, cur); err != nil {
			return errors.Wrap(err, "update payment")
		}
		canceled = *cur
		return nil
	})
	if err != nil {
		zctx.From(ctx).Warn("Cancel payment failed",
			zap.String("payment_id", paymentID),
			zap.Error(err),
		)
		return nil, err
	}

	zctx.From(ctx).Info("Payment canceled", zap.String("payment_id", paymentID))
	l.audit.Record(ctx, audit.Event{
		Type:       audit.PaymentCanceled,
		MerchantID: merchant,
		OrderID:    p.OrderID,
		PaymentID:  p.ID,
	})
	return &canceled, nil
}
