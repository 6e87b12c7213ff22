package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/tikis23/psp-2025/internal/domain/order"
	"github.com/tikis23/psp-2025/internal/domain/tenant"
)

var _ order.Store = (*OrderRepository)(nil)

const orderColumns = `id, merchant_id, status, discount_id, applied_discount, created_at, updated_at`

const paymentColumns = `id, order_id, merchant_id, tender, amount, cash_received, tip,
	gift_card_code, external_ref, status, created_at, updated_at`

// OrderRepository implements order.Store backed by PostgreSQL. Items and
// their variations live in child tables and are rewritten on every save.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order with its lines.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO orders (`+orderColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			o.ID, int64(o.MerchantID), string(o.Status), nullable(o.DiscountID),
			o.AppliedDiscount, o.CreatedAt, o.UpdatedAt,
		); err != nil {
			return errors.Wrap(err, "insert order")
		}
		return saveItems(ctx, tx, o)
	})
	if err != nil {
		return errors.Wrapf(err, "create order %s", o.ID)
	}
	return nil
}

// Get returns the order with its lines.
func (r *OrderRepository) Get(ctx context.Context, merchant tenant.MerchantID, id string) (*order.Order, error) {
	o, err := scanOrder(r.pool.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1 AND merchant_id = $2`,
		id, int64(merchant),
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Wrapf(order.ErrNotFound, "order %s", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get order %s", id)
	}
	if o.Items, err = loadItems(ctx, r.pool, id); err != nil {
		return nil, err
	}
	return o, nil
}

// Payments returns the order's payments in creation order.
func (r *OrderRepository) Payments(ctx context.Context, orderID string) ([]order.Payment, error) {
	return listPayments(ctx, r.pool, orderID)
}

// PaymentByID returns a payment of the merchant.
func (r *OrderRepository) PaymentByID(ctx context.Context, merchant tenant.MerchantID, id string) (*order.Payment, error) {
	p, err := scanPayment(r.pool.QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE id = $1 AND merchant_id = $2`,
		id, int64(merchant),
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Wrapf(order.ErrPaymentNotFound, "payment %s", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get payment %s", id)
	}
	return p, nil
}

// PaymentByExternalRef returns the card payment carrying a processor intent id.
func (r *OrderRepository) PaymentByExternalRef(ctx context.Context, ref string) (*order.Payment, error) {
	p, err := scanPayment(r.pool.QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE external_ref = $1`, ref,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Wrapf(order.ErrPaymentNotFound, "external ref %s", ref)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get payment by external ref %s", ref)
	}
	return p, nil
}

// Refund returns the refund recorded for an order.
func (r *OrderRepository) Refund(ctx context.Context, orderID string) (*order.Refund, error) {
	var (
		ref    order.Refund
		status string
	)
	err := r.pool.QueryRow(ctx,
		`SELECT id, order_id, total_amount, status, reason, created_at FROM refunds WHERE order_id = $1`,
		orderID,
	).Scan(&ref.ID, &ref.OrderID, &ref.TotalAmount, &status, &ref.Reason, &ref.CreatedAt)
	if err != nil {
		return nil, errors.Wrapf(err, "get refund of order %s", orderID)
	}
	ref.Status = order.RefundStatus(status)
	return &ref, nil
}

// WithinOrder locks the order row with SELECT ... FOR UPDATE for the
// duration of fn.
func (r *OrderRepository) WithinOrder(ctx context.Context, merchant tenant.MerchantID, id string, fn func(context.Context, order.Tx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			zctx.From(ctx).Warn("Rollback failed", zap.String("order_id", id), zap.Error(err))
		}
	}()

	o, err := scanOrder(tx.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1 AND merchant_id = $2 FOR UPDATE`,
		id, int64(merchant),
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return errors.Wrapf(order.ErrNotFound, "order %s", id)
	}
	if err != nil {
		return errors.Wrapf(err, "lock order %s", id)
	}
	if o.Items, err = loadItems(ctx, tx, id); err != nil {
		return err
	}

	if err := fn(ctx, &orderTx{tx: tx, order: o}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "commit transaction")
	}
	return nil
}

func scanOrder(row pgx.Row) (*order.Order, error) {
	var (
		o          order.Order
		merchant   int64
		status     string
		discountID *string
	)
	if err := row.Scan(&o.ID, &merchant, &status, &discountID, &o.AppliedDiscount, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	o.MerchantID = tenant.MerchantID(merchant)
	o.Status = order.Status(status)
	o.DiscountID = deref(discountID)
	return &o, nil
}

func loadItems(ctx context.Context, q querier, orderID string) ([]order.Item, error) {
	rows, err := q.Query(ctx, `
		SELECT id, catalog_item_id, name, unit_price, quantity, tax_rate_id, tax_rate,
		       discount_id, applied_discount, created_at
		FROM order_items WHERE order_id = $1 ORDER BY position`, orderID)
	if err != nil {
		return nil, errors.Wrapf(err, "list items of order %s", orderID)
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (order.Item, error) {
		var (
			it                    order.Item
			taxRateID, discountID *string
		)
		err := row.Scan(&it.ID, &it.CatalogItemID, &it.Name, &it.UnitPrice, &it.Quantity,
			&taxRateID, &it.TaxRate, &discountID, &it.AppliedDiscount, &it.CreatedAt)
		it.TaxRateID = deref(taxRateID)
		it.DiscountID = deref(discountID)
		return it, err
	})
	if err != nil {
		return nil, errors.Wrapf(err, "scan items of order %s", orderID)
	}
	if len(items) == 0 {
		return nil, nil
	}

	byID := make(map[string]int, len(items))
	for i := range items {
		byID[items[i].ID] = i
	}
	rows, err = q.Query(ctx, `
		SELECT v.order_item_id, v.id, v.variation_id, v.name, v.price_offset
		FROM order_item_variations v
		JOIN order_items i ON i.id = v.order_item_id
		WHERE i.order_id = $1
		ORDER BY v.order_item_id, v.position`, orderID)
	if err != nil {
		return nil, errors.Wrapf(err, "list variations of order %s", orderID)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			itemID string
			v      order.ItemVariation
		)
		if err := rows.Scan(&itemID, &v.ID, &v.VariationID, &v.Name, &v.PriceOffset); err != nil {
			return nil, errors.Wrap(err, "scan variation")
		}
		if i, ok := byID[itemID]; ok {
			items[i].Variations = append(items[i].Variations, v)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate variations")
	}
	return items, nil
}

// saveItems replaces the order's lines in one batch. Deleting the lines
// cascades to their variations.
func saveItems(ctx context.Context, q querier, o *order.Order) error {
	b := &pgx.Batch{}
	b.Queue(`DELETE FROM order_items WHERE order_id = $1`, o.ID)
	for pos, it := range o.Items {
		b.Queue(`
			INSERT INTO order_items (id, order_id, position, catalog_item_id, name, unit_price, quantity,
			                         tax_rate_id, tax_rate, discount_id, applied_discount, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			it.ID, o.ID, pos, it.CatalogItemID, it.Name, it.UnitPrice, it.Quantity,
			nullable(it.TaxRateID), it.TaxRate, nullable(it.DiscountID), it.AppliedDiscount, it.CreatedAt,
		)
		for vpos, v := range it.Variations {
			b.Queue(`
				INSERT INTO order_item_variations (id, order_item_id, position, variation_id, name, price_offset)
				VALUES ($1, $2, $3, $4, $5, $6)`,
				v.ID, it.ID, vpos, v.VariationID, v.Name, v.PriceOffset,
			)
		}
	}
	if err := q.SendBatch(ctx, b).Close(); err != nil {
		return errors.Wrapf(err, "save items of order %s", o.ID)
	}
	return nil
}

func scanPayment(row pgx.Row) (*order.Payment, error) {
	var (
		p                    order.Payment
		merchant             int64
		tender, status       string
		giftCode, externalID *string
	)
	err := row.Scan(&p.ID, &p.OrderID, &merchant, &tender, &p.Amount, &p.CashReceived, &p.Tip,
		&giftCode, &externalID, &status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.MerchantID = tenant.MerchantID(merchant)
	p.Tender = order.Tender(tender)
	p.Status = order.PaymentStatus(status)
	p.GiftCardCode = deref(giftCode)
	p.ExternalRef = deref(externalID)
	return &p, nil
}

func listPayments(ctx context.Context, q querier, orderID string) ([]order.Payment, error) {
	rows, err := q.Query(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE order_id = $1 ORDER BY seq`, orderID,
	)
	if err != nil {
		return nil, errors.Wrapf(err, "list payments of order %s", orderID)
	}
	defer rows.Close()

	var out []order.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan payment")
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate payments")
	}
	return out, nil
}
