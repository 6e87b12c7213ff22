// Package order holds the order aggregate: lines, lifecycle state machine,
// payment and refund records, the persistence port and the order
// mutation service.
package order

import (
	"context"

	"github.com/tikis23/psp-2025/internal/domain/giftcard"
	"github.com/tikis23/psp-2025/internal/domain/tenant"
)

// Store persists orders together with their payments and refunds.
type Store interface {
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, merchant tenant.MerchantID, id string) (*Order, error)
	Payments(ctx context.Context, orderID string) ([]Payment, error)
	PaymentByID(ctx context.Context, merchant tenant.MerchantID, id string) (*Payment, error)
	PaymentByExternalRef(ctx context.Context, ref string) (*Payment, error)

	// WithinOrder runs fn while holding exclusive access to the order.
	// Changes made through tx are committed when fn returns nil and
	// discarded otherwise. Calls for the same order are serialized.
	WithinOrder(ctx context.Context, merchant tenant.MerchantID, id string, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the unit of work bound to one locked order.
type Tx interface {
	// Order returns the locked order. Save persists its current state.
	Order() *Order
	Save(ctx context.Context) error

	Payments(ctx context.Context) ([]Payment, error)
	Payment(ctx context.Context, id string) (*Payment, error)
	InsertPayment(ctx context.Context, p *Payment) error
	UpdatePayment(ctx context.Context, p *Payment) error
	InsertRefund(ctx context.Context, r *Refund) error

	// GiftCards returns a gift card store whose deductions commit or roll
	// back together with the order.
	GiftCards() giftcard.Store
}
