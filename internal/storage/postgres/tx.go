package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/tikis23/psp-2025/internal/domain/giftcard"
	"github.com/tikis23/psp-2025/internal/domain/order"
)

// orderTx runs every statement on the transaction holding the order lock.
type orderTx struct {
	tx    pgx.Tx
	order *order.Order
}

var _ order.Tx = (*orderTx)(nil)

func (t *orderTx) Order() *order.Order { return t.order }

func (t *orderTx) Save(ctx context.Context) error {
	o := t.order
	if _, err := t.tx.Exec(ctx, `
		UPDATE orders
		SET status = $2, discount_id = $3, applied_discount = $4, updated_at = $5
		WHERE id = $1`,
		o.ID, string(o.Status), nullable(o.DiscountID), o.AppliedDiscount, o.UpdatedAt,
	); err != nil {
		return errors.Wrapf(err, "update order %s", o.ID)
	}
	return saveItems(ctx, t.tx, o)
}

func (t *orderTx) Payments(ctx context.Context) ([]order.Payment, error) {
	return listPayments(ctx, t.tx, t.order.ID)
}

func (t *orderTx) Payment(ctx context.Context, id string) (*order.Payment, error) {
	p, err := scanPayment(t.tx.QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE id = $1 AND order_id = $2`,
		id, t.order.ID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Wrapf(order.ErrPaymentNotFound, "payment %s", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get payment %s", id)
	}
	return p, nil
}

func (t *orderTx) InsertPayment(ctx context.Context, p *order.Payment) error {
	if _, err := t.tx.Exec(ctx,
		`INSERT INTO payments (`+paymentColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		p.ID, p.OrderID, int64(p.MerchantID), string(p.Tender), p.Amount, p.CashReceived, p.Tip,
		nullable(p.GiftCardCode), nullable(p.ExternalRef), string(p.Status), p.CreatedAt, p.UpdatedAt,
	); err != nil {
		return errors.Wrapf(err, "insert payment %s", p.ID)
	}
	return nil
}

func (t *orderTx) UpdatePayment(ctx context.Context, p *order.Payment) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE payments SET status = $3, external_ref = $4, updated_at = $5
		WHERE id = $1 AND order_id = $2`,
		p.ID, t.order.ID, string(p.Status), nullable(p.ExternalRef), p.UpdatedAt,
	)
	if err != nil {
		return errors.Wrapf(err, "update payment %s", p.ID)
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(order.ErrPaymentNotFound, "payment %s", p.ID)
	}
	return nil
}

func (t *orderTx) InsertRefund(ctx context.Context, r *order.Refund) error {
	if _, err := t.tx.Exec(ctx, `
		INSERT INTO refunds (id, order_id, total_amount, status, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		r.ID, r.OrderID, r.TotalAmount, string(r.Status), r.Reason, r.CreatedAt,
	); err != nil {
		if isUniqueViolation(err) {
			return errors.Errorf("order %s already has a refund", r.OrderID)
		}
		return errors.Wrapf(err, "insert refund %s", r.ID)
	}
	return nil
}

func (t *orderTx) GiftCards() giftcard.Store {
	return &GiftCardRepository{db: t.tx}
}
