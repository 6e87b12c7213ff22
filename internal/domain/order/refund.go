package order

import (
	"time"

	"github.com/shopspring/decimal"
)

// RefundStatus is the lifecycle state of a refund record.
type RefundStatus string

const (
	RefundProcessing RefundStatus = "PROCESSING"
	RefundCompleted  RefundStatus = "COMPLETED"
	RefundFailed     RefundStatus = "FAILED"
)

// Refund records a full refund of a paid order.
type Refund struct {
	ID      string
	OrderID string
	// TotalAmount is what was actually reversed, not what was attempted.
	TotalAmount decimal.Decimal
	Status      RefundStatus
	Reason      string
	CreatedAt   time.Time
}
