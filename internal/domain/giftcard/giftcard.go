// Package giftcard holds stored-value cards, their deduction rules and the
// issuance service.
package giftcard

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tikis23/psp-2025/internal/domain/apperr"
	"github.com/tikis23/psp-2025/internal/domain/tenant"
)

var (
	// ErrNotFound is returned when no card exists for the merchant and code.
	ErrNotFound = apperr.Mark(errors.New("gift card not found"), apperr.NotFound)
	// ErrInactive is returned for deactivated or exhausted cards.
	ErrInactive = apperr.Mark(errors.New("gift card is not active"), apperr.InvalidState)
	// ErrExpired is returned for cards past their expiry.
	ErrExpired = apperr.Mark(errors.New("gift card has expired"), apperr.InvalidState)
	// ErrInsufficientBalance is returned when the balance does not cover the deduction.
	ErrInsufficientBalance = apperr.Mark(errors.New("insufficient gift card balance"), apperr.InsufficientFunds)
	// ErrInvalidAmount is returned for non-positive amounts.
	ErrInvalidAmount = apperr.Mark(errors.New("gift card amount must be positive"), apperr.Validation)
	// ErrDuplicateCode is returned by Store.Create when the code is taken.
	ErrDuplicateCode = apperr.Mark(errors.New("gift card code already exists"), apperr.InvalidState)
)

// CodePrefix starts every generated card code.
const CodePrefix = "GC-"

// GiftCard is a merchant-scoped stored-value instrument.
type GiftCard struct {
	Code           string
	MerchantID     tenant.MerchantID
	InitialBalance decimal.Decimal
	CurrentBalance decimal.Decimal
	Active         bool
	ExpiresAt      *time.Time
	CreatedAt      time.Time
}

// Expired reports whether the card is past its expiry at now.
func (g *GiftCard) Expired(now time.Time) bool {
	return g.ExpiresAt != nil && !now.Before(*g.ExpiresAt)
}

// Usable checks that the card can be charged at now.
func (g *GiftCard) Usable(now time.Time) error {
	if !g.Active {
		return errors.Wrapf(ErrInactive, "card %s", g.Code)
	}
	if g.Expired(now) {
		return errors.Wrapf(ErrExpired, "card %s", g.Code)
	}
	return nil
}

// Deduct subtracts amount from the balance, deactivating the card once it
// reaches zero. The card is left untouched on error.
func (g *GiftCard) Deduct(amount decimal.Decimal, now time.Time) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if err := g.Usable(now); err != nil {
		return err
	}
	if g.CurrentBalance.LessThan(amount) {
		return errors.Wrapf(ErrInsufficientBalance, "card %s has %s, need %s",
			g.Code, g.CurrentBalance.StringFixed(2), amount.StringFixed(2))
	}
	g.CurrentBalance = g.CurrentBalance.Sub(amount)
	if g.CurrentBalance.IsZero() {
		g.Active = false
	}
	return nil
}

// NewCode generates a fresh card code of the form GC-XXXXXXXX.
func NewCode() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return CodePrefix + strings.ToUpper(id[:8])
}

// NormalizeCode trims and upper-cases a code typed by a cashier.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Store persists gift cards. Deduct must apply the balance check and the
// subtraction as one atomic step per card.
type Store interface {
	Get(ctx context.Context, merchant tenant.MerchantID, code string) (*GiftCard, error)
	Create(ctx context.Context, card *GiftCard) error
	Deduct(ctx context.Context, merchant tenant.MerchantID, code string, amount decimal.Decimal, now time.Time) (*GiftCard, error)
}
