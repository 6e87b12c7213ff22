// Package discount models merchant-defined discounts and the arithmetic for
// applying them to an amount.
package discount

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/tikis23/psp-2025/internal/domain/apperr"
	"github.com/tikis23/psp-2025/internal/domain/tenant"
)

// Type enumerates the supported discount strategies.
type Type string

const (
	// Percentage reduces the base by Value percent.
	Percentage Type = "PERCENTAGE"
	// FixedAmount reduces the base by Value, capped at the base.
	FixedAmount Type = "FIXED_AMOUNT"
)

// Scope selects what a discount can be attached to.
type Scope string

const (
	// ScopeOrder discounts apply to the whole order after tax.
	ScopeOrder Scope = "ORDER"
	// ScopeProduct discounts apply to a single line of one catalog item.
	ScopeProduct Scope = "PRODUCT"
)

var (
	// ErrNotFound is returned when no discount matches the code for the merchant.
	ErrNotFound = apperr.Mark(errors.New("discount not found"), apperr.NotFound)
	// ErrNotValid is returned when the current time is outside the validity window.
	ErrNotValid = apperr.Mark(errors.New("discount is not valid at this time"), apperr.Validation)
	// ErrScopeMismatch is returned when a discount is attached to the wrong target kind.
	ErrScopeMismatch = apperr.Mark(errors.New("discount scope mismatch"), apperr.Validation)
	// ErrProductMismatch is returned when a product discount targets another catalog item.
	ErrProductMismatch = apperr.Mark(errors.New("discount does not apply to this product"), apperr.Validation)
)

var hundred = decimal.NewFromInt(100)

// Discount is a merchant-defined price reduction looked up by code.
type Discount struct {
	ID         string
	MerchantID tenant.MerchantID
	Code       string
	Type       Type
	Scope      Scope
	Value      decimal.Decimal
	// ProductID is the catalog item a ScopeProduct discount targets.
	ProductID string
	ValidFrom *time.Time
	ValidTo   *time.Time
}

// ValidAt reports whether now falls inside the discount's validity window.
func (d *Discount) ValidAt(now time.Time) bool {
	if d.ValidFrom != nil && now.Before(*d.ValidFrom) {
		return false
	}
	if d.ValidTo != nil && now.After(*d.ValidTo) {
		return false
	}
	return true
}

// CheckOrder validates the discount for attachment to a whole order.
func (d *Discount) CheckOrder(now time.Time) error {
	if d.Scope != ScopeOrder {
		return errors.Wrapf(ErrScopeMismatch, "discount %s has scope %s", d.Code, d.Scope)
	}
	if !d.ValidAt(now) {
		return errors.Wrapf(ErrNotValid, "discount %s", d.Code)
	}
	return nil
}

// CheckProduct validates the discount for attachment to a line of productID.
func (d *Discount) CheckProduct(productID string, now time.Time) error {
	if d.Scope != ScopeProduct {
		return errors.Wrapf(ErrScopeMismatch, "discount %s has scope %s", d.Code, d.Scope)
	}
	if d.ProductID != productID {
		return errors.Wrapf(ErrProductMismatch, "discount %s", d.Code)
	}
	if !d.ValidAt(now) {
		return errors.Wrapf(ErrNotValid, "discount %s", d.Code)
	}
	return nil
}

// Amount returns the reduction for base, clamped to [0, base] and rounded
// to cents. Unknown types reduce nothing.
func (d *Discount) Amount(base decimal.Decimal) decimal.Decimal {
	if !base.IsPositive() {
		return decimal.Zero
	}
	var amount decimal.Decimal
	switch d.Type {
	case Percentage:
		amount = base.Mul(d.Value).Div(hundred).Round(2)
	case FixedAmount:
		amount = d.Value.Round(2)
	default:
		return decimal.Zero
	}
	return clamp(amount, base)
}

// NormalizeCode trims a user-entered code. Lookups are case-insensitive.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func clamp(amount, upper decimal.Decimal) decimal.Decimal {
	if amount.IsNegative() {
		return decimal.Zero
	}
	return decimal.Min(amount, upper)
}

// Repository looks up discounts scoped to a merchant.
type Repository interface {
	FindByCode(ctx context.Context, merchant tenant.MerchantID, code string) (*Discount, error)
	FindByID(ctx context.Context, merchant tenant.MerchantID, id string) (*Discount, error)
}
