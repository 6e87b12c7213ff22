package payment

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tikis23/psp-2025/internal/domain/giftcard"
	"github.com/tikis23/psp-2025/internal/domain/order"
)

// MaxAmount is the largest amount a single payment, tip included, may carry.
// It matches the NUMERIC(12,2) money columns.
var MaxAmount = decimal.RequireFromString("9999999999.99")

// requestedAmount rounds the requested amount to cents and checks its range.
func requestedAmount(amount decimal.Decimal) (decimal.Decimal, error) {
	rounded := amount.Round(2)
	if !rounded.IsPositive() || rounded.GreaterThan(MaxAmount) {
		return decimal.Zero, errors.Wrapf(ErrInvalidAmount, "amount %s", amount.String())
	}
	return rounded, nil
}

// settlement is the state shared with a tender handler while the order is
// locked.
type settlement struct {
	tx        order.Tx
	order     *order.Order
	req       Request
	remaining decimal.Decimal
	now       time.Time
}

// tenderHandler records one payment for its tender. It must not change the
// order status.
type tenderHandler func(ctx context.Context, s *settlement) (*Result, error)

// settleCash applies up to the remaining balance and returns the rest as
// change. Cash settles immediately.
func (l *Ledger) settleCash(ctx context.Context, s *settlement) (*Result, error) {
	received, err := requestedAmount(s.req.Amount)
	if err != nil {
		return nil, err
	}
	applied := decimal.Min(received, s.remaining)

	p := newPayment(s, order.TenderCash, applied, order.PaymentSucceeded)
	p.CashReceived = received
	p.Tip = s.req.Tip.Round(2)
	if err := s.tx.InsertPayment(ctx, p); err != nil {
		return nil, errors.Wrap(err, "insert payment")
	}
	return &Result{Payment: *p, ChangeDue: received.Sub(applied)}, nil
}

// settleGiftCard redeems as much of the card as the balance allows. The
// deduction commits together with the payment.
func (l *Ledger) settleGiftCard(ctx context.Context, s *settlement) (*Result, error) {
	code := giftcard.NormalizeCode(s.req.GiftCardCode)
	if code == "" {
		return nil, ErrGiftCardCodeRequired
	}
	// A zero amount redeems as much as the balance allows.
	limit := decimal.Zero
	if !s.req.Amount.IsZero() {
		var err error
		if limit, err = requestedAmount(s.req.Amount); err != nil {
			return nil, err
		}
	}

	cards := s.tx.GiftCards()
	card, err := cards.Get(ctx, s.order.MerchantID, code)
	if err != nil {
		return nil, errors.Wrap(err, "get gift card")
	}
	if err := card.Usable(s.now); err != nil {
		return nil, err
	}
	if !card.CurrentBalance.IsPositive() {
		return nil, errors.Wrapf(giftcard.ErrInsufficientBalance, "card %s is empty", code)
	}

	applied := decimal.Min(s.remaining, card.CurrentBalance)
	if limit.IsPositive() {
		applied = decimal.Min(applied, limit)
	}
	card, err = cards.Deduct(ctx, s.order.MerchantID, code, applied, s.now)
	if err != nil {
		return nil, errors.Wrap(err, "deduct gift card")
	}

	p := newPayment(s, order.TenderGiftCard, applied, order.PaymentSucceeded)
	p.GiftCardCode = card.Code
	if err := s.tx.InsertPayment(ctx, p); err != nil {
		return nil, errors.Wrap(err, "insert payment")
	}
	return &Result{Payment: *p, GiftCard: card}, nil
}

// startCard creates a processor intent for the applied amount plus tip and
// records the payment as awaiting customer action. The balance is settled
// later by UpdateStatus.
func (l *Ledger) startCard(ctx context.Context, s *settlement) (*Result, error) {
	requested, err := requestedAmount(s.req.Amount)
	if err != nil {
		return nil, err
	}
	applied := decimal.Min(requested, s.remaining)
	tip := s.req.Tip.Round(2)
	if applied.Add(tip).GreaterThan(MaxAmount) {
		return nil, errors.Wrap(ErrInvalidAmount, "amount plus tip out of range")
	}

	p := newPayment(s, order.TenderCard, applied, order.PaymentRequiresAction)
	p.Tip = tip

	intent, err := l.processor.CreateIntent(ctx, IntentRequest{
		AmountMinor:    MinorUnits(applied.Add(tip)),
		IdempotencyKey: p.ID,
		Metadata: map[string]string{
			"order_id":    s.order.ID,
			"payment_id":  p.ID,
			"merchant_id": s.order.MerchantID.String(),
		},
	})
	if err != nil {
		return nil, errors.Wrap(processorError("create intent", err), "create payment intent")
	}

	p.ExternalRef = intent.ID
	if err := s.tx.InsertPayment(ctx, p); err != nil {
		l.abandonIntent(ctx, intent.ID, p.ID)
		return nil, errors.Wrap(err, "insert payment")
	}
	return &Result{Payment: *p, ClientSecret: intent.ClientSecret}, nil
}

// abandonIntent cancels an intent whose payment could not be recorded, so the
// customer cannot complete it. Failures are only logged.
func (l *Ledger) abandonIntent(ctx context.Context, intentID, paymentID string) {
	lg := zctx.From(ctx).With(
		zap.String("intent_id", intentID),
		zap.String("payment_id", paymentID),
	)
	if _, err := l.processor.CancelIntent(ctx, intentID); err != nil {
		lg.Error("Orphaned payment intent", zap.Error(err))
		return
	}
	lg.Warn("Canceled payment intent after failed insert")
}
