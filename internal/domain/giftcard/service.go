package giftcard

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tikis23/psp-2025/internal/domain/apperr"
	"github.com/tikis23/psp-2025/internal/domain/audit"
	"github.com/tikis23/psp-2025/internal/domain/tenant"
)

// issueAttempts bounds retries on generated-code collisions.
const issueAttempts = 3

// Service issues cards and reports balances.
type Service struct {
	store Store
	audit audit.Sink
	now   func() time.Time
}

// NewService creates a Service.
func NewService(store Store, sink audit.Sink) *Service {
	if sink == nil {
		sink = audit.Nop{}
	}
	return &Service{store: store, audit: sink, now: time.Now}
}

// Issue creates an active card with the given starting balance.
func (s *Service) Issue(ctx context.Context, merchant tenant.MerchantID, amount decimal.Decimal, expiresAt *time.Time) (*GiftCard, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	now := s.now()
	if expiresAt != nil && !expiresAt.After(now) {
		return nil, apperr.Validationf("gift card expiry %s is not in the future", expiresAt.Format(time.RFC3339))
	}

	amount = amount.Round(2)
	for attempt := 1; ; attempt++ {
		card := &GiftCard{
			Code:           NewCode(),
			MerchantID:     merchant,
			InitialBalance: amount,
			CurrentBalance: amount,
			Active:         true,
			ExpiresAt:      expiresAt,
			CreatedAt:      now,
		}
		err := s.store.Create(ctx, card)
		if err == nil {
			zctx.From(ctx).Info("Gift card issued",
				zap.String("code", card.Code),
				zap.Stringer("merchant", merchant),
			)
			s.audit.Record(ctx, audit.Event{
				Type:       audit.GiftCardIssued,
				MerchantID: merchant,
				Attrs:      map[string]string{"code": card.Code, "amount": amount.StringFixed(2)},
			})
			return card, nil
		}
		if !errors.Is(err, ErrDuplicateCode) || attempt == issueAttempts {
			return nil, errors.Wrap(err, "create gift card")
		}
	}
}

// Balance returns the card identified by code.
func (s *Service) Balance(ctx context.Context, merchant tenant.MerchantID, code string) (*GiftCard, error) {
	card, err := s.store.Get(ctx, merchant, NormalizeCode(code))
	if err != nil {
		return nil, errors.Wrap(err, "get gift card")
	}
	return card, nil
}
