package payment

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/tikis23/psp-2025/internal/domain/apperr"
)

// IntentCanceled is the processor status of a canceled intent.
const IntentCanceled = "canceled"

// IntentRequest describes a payment intent to create.
type IntentRequest struct {
	// AmountMinor is the charge in minor currency units.
	AmountMinor    int64
	IdempotencyKey string
	Metadata       map[string]string
}

// Intent is the processor's view of a card payment.
type Intent struct {
	ID           string
	ClientSecret string
	Status       string
}

// ExternalRefund is the processor's record of a reversal.
type ExternalRefund struct {
	ID     string
	Status string
}

// Processor is the external card processor. All amounts are in minor units
// of the processor's configured currency.
type Processor interface {
	CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error)
	GetIntent(ctx context.Context, id string) (*Intent, error)
	CancelIntent(ctx context.Context, id string) (*Intent, error)
	Refund(ctx context.Context, intentID string, amountMinor int64) (*ExternalRefund, error)
}

// ProcessorError wraps a failed processor call.
type ProcessorError struct {
	Op  string
	Err error
}

func (e *ProcessorError) Error() string {
	return fmt.Sprintf("processor %s: %v", e.Op, e.Err)
}

func (e *ProcessorError) Unwrap() error { return e.Err }

// Is makes the error match apperr.ExternalService.
func (e *ProcessorError) Is(target error) bool {
	return target == apperr.ExternalService
}

// ErrProcessorDisabled is returned by DisabledProcessor.
var ErrProcessorDisabled = errors.New("card processor is not configured")

// DisabledProcessor rejects every call. It backs card tenders when no
// processor credentials are configured.
type DisabledProcessor struct{}

var _ Processor = DisabledProcessor{}

func (DisabledProcessor) CreateIntent(context.Context, IntentRequest) (*Intent, error) {
	return nil, &ProcessorError{Op: "create intent", Err: ErrProcessorDisabled}
}

func (DisabledProcessor) GetIntent(context.Context, string) (*Intent, error) {
	return nil, &ProcessorError{Op: "get intent", Err: ErrProcessorDisabled}
}

func (DisabledProcessor) CancelIntent(context.Context, string) (*Intent, error) {
	return nil, &ProcessorError{Op: "cancel intent", Err: ErrProcessorDisabled}
}

func (DisabledProcessor) Refund(context.Context, string, int64) (*ExternalRefund, error) {
	return nil, &ProcessorError{Op: "refund", Err: ErrProcessorDisabled}
}

var hundred = decimal.NewFromInt(100)

// MinorUnits converts an amount to minor currency units, rounding half up.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}
