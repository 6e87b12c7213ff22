package order

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/tikis23/psp-2025/internal/domain/apperr"
	"github.com/tikis23/psp-2025/internal/domain/tenant"
)

// ErrPaymentNotFound is returned when no payment matches the lookup.
var ErrPaymentNotFound = apperr.Mark(errors.New("payment not found"), apperr.NotFound)

// Tender is the instrument used for a payment.
type Tender string

const (
	TenderCash     Tender = "CASH"
	TenderCard     Tender = "CARD"
	TenderGiftCard Tender = "GIFT_CARD"
)

// Valid reports whether t is a known tender.
func (t Tender) Valid() bool {
	switch t {
	case TenderCash, TenderCard, TenderGiftCard:
		return true
	}
	return false
}

// PaymentStatus is the lifecycle state of a payment.
type PaymentStatus string

const (
	PaymentRequiresAction PaymentStatus = "REQUIRES_ACTION"
	PaymentProcessing     PaymentStatus = "PROCESSING"
	PaymentSucceeded      PaymentStatus = "SUCCEEDED"
	PaymentFailed         PaymentStatus = "FAILED"
	PaymentCanceled       PaymentStatus = "CANCELED"
	PaymentRefunded       PaymentStatus = "REFUNDED"
)

// Final reports whether no further external status update may change the
// payment. Failed card payments stay open because the processor allows a
// retry with another payment method.
func (s PaymentStatus) Final() bool {
	switch s {
	case PaymentSucceeded, PaymentCanceled, PaymentRefunded:
		return true
	}
	return false
}

// Payment is one attempt to settle part of an order.
type Payment struct {
	ID         string
	OrderID    string
	MerchantID tenant.MerchantID
	Tender     Tender
	// Amount is the portion of the order balance this payment settles.
	Amount decimal.Decimal
	// CashReceived is the cash handed over, cash tender only.
	CashReceived decimal.Decimal
	// Tip is charged on top of Amount and never reduces the balance.
	Tip          decimal.Decimal
	GiftCardCode string
	// ExternalRef is the processor's payment intent id, card tender only.
	ExternalRef string
	Status      PaymentStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SumSucceeded totals the Amount of SUCCEEDED payments.
func SumSucceeded(payments []Payment) decimal.Decimal {
	sum := decimal.Zero
	for _, p := range payments {
		if p.Status == PaymentSucceeded {
			sum = sum.Add(p.Amount)
		}
	}
	return sum
}
