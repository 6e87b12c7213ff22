package memory

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/tikis23/psp-2025/internal/domain/giftcard"
	"github.com/tikis23/psp-2025/internal/domain/order"
	"github.com/tikis23/psp-2025/internal/domain/tenant"
)

// orderTx stages changes to one order and applies them on commit.
type orderTx struct {
	store    *Store
	order    *order.Order
	saved    bool
	payments []order.Payment
	dirty    map[string]bool
	refund   *order.Refund
	cards    *txCards
}

var _ order.Tx = (*orderTx)(nil)

func (t *orderTx) Order() *order.Order { return t.order }

func (t *orderTx) Save(context.Context) error {
	t.saved = true
	return nil
}

func (t *orderTx) Payments(context.Context) ([]order.Payment, error) {
	return append([]order.Payment(nil), t.payments...), nil
}

func (t *orderTx) Payment(_ context.Context, id string) (*order.Payment, error) {
	for _, p := range t.payments {
		if p.ID == id {
			return &p, nil
		}
	}
	return nil, errors.Wrapf(order.ErrPaymentNotFound, "payment %s", id)
}

func (t *orderTx) InsertPayment(_ context.Context, p *order.Payment) error {
	if p.OrderID != t.order.ID {
		return errors.Errorf("payment %s belongs to order %s", p.ID, p.OrderID)
	}
	t.payments = append(t.payments, *p)
	t.dirty[p.ID] = true
	return nil
}

func (t *orderTx) UpdatePayment(_ context.Context, p *order.Payment) error {
	for i := range t.payments {
		if t.payments[i].ID == p.ID {
			t.payments[i] = *p
			t.dirty[p.ID] = true
			return nil
		}
	}
	return errors.Wrapf(order.ErrPaymentNotFound, "payment %s", p.ID)
}

func (t *orderTx) InsertRefund(_ context.Context, r *order.Refund) error {
	if t.refund != nil {
		return errors.Errorf("order %s already has a refund", t.order.ID)
	}
	cp := *r
	t.refund = &cp
	return nil
}

func (t *orderTx) GiftCards() giftcard.Store {
	if t.cards == nil {
		t.cards = &txCards{GiftCards: t.store.GiftCards()}
	}
	return t.cards
}

func (t *orderTx) commit() {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.saved {
		s.orders[t.order.ID] = t.order.Clone()
	}
	if t.refund != nil {
		if _, ok := s.refunds[t.order.ID]; !ok {
			s.refunds[t.order.ID] = t.refund
		}
	}
	for i := range t.payments {
		p := t.payments[i]
		if !t.dirty[p.ID] {
			continue
		}
		if _, ok := s.payments[p.ID]; !ok {
			s.orderPayments[p.OrderID] = append(s.orderPayments[p.OrderID], p.ID)
		}
		s.payments[p.ID] = &p
		if p.ExternalRef != "" {
			s.paymentRefs[p.ExternalRef] = p.ID
		}
	}
}

func (t *orderTx) rollback() {
	if t.cards != nil {
		t.cards.undo()
	}
}

type deduction struct {
	code   string
	amount decimal.Decimal
}

// txCards applies deductions immediately and restores them on rollback.
type txCards struct {
	*GiftCards
	applied []deduction
}

func (c *txCards) Deduct(ctx context.Context, merchant tenant.MerchantID, code string, amount decimal.Decimal, now time.Time) (*giftcard.GiftCard, error) {
	card, err := c.GiftCards.Deduct(ctx, merchant, code, amount, now)
	if err != nil {
		return nil, err
	}
	c.applied = append(c.applied, deduction{code: code, amount: amount})
	return card, nil
}

func (c *txCards) undo() {
	s := c.store
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(c.applied) - 1; i >= 0; i-- {
		d := c.applied[i]
		card, ok := s.cards[d.code]
		if !ok {
			continue
		}
		restored := *card
		restored.CurrentBalance = restored.CurrentBalance.Add(d.amount)
		restored.Active = restored.CurrentBalance.IsPositive()
		s.cards[d.code] = &restored
	}
	c.applied = nil
}
