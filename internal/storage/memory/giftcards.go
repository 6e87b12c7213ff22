package memory

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/tikis23/psp-2025/internal/domain/giftcard"
	"github.com/tikis23/psp-2025/internal/domain/tenant"
)

// GiftCards is the gift card view of a Store.
type GiftCards struct {
	store *Store
}

// GiftCards returns the store's gift card repository.
func (s *Store) GiftCards() *GiftCards {
	return &GiftCards{store: s}
}

// Get implements giftcard.Store.
func (g *GiftCards) Get(_ context.Context, merchant tenant.MerchantID, code string) (*giftcard.GiftCard, error) {
	s := g.store
	s.mu.RLock()
	defer s.mu.RUnlock()
	card, ok := s.cards[code]
	if !ok || card.MerchantID != merchant {
		return nil, errors.Wrapf(giftcard.ErrNotFound, "card %s", code)
	}
	cp := *card
	return &cp, nil
}

// Create implements giftcard.Store.
func (g *GiftCards) Create(_ context.Context, card *giftcard.GiftCard) error {
	s := g.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cards[card.Code]; ok {
		return errors.Wrapf(giftcard.ErrDuplicateCode, "card %s", card.Code)
	}
	cp := *card
	s.cards[card.Code] = &cp
	return nil
}

// Deduct implements giftcard.Store. The check and the subtraction happen
// under the store's write lock.
func (g *GiftCards) Deduct(_ context.Context, merchant tenant.MerchantID, code string, amount decimal.Decimal, now time.Time) (*giftcard.GiftCard, error) {
	s := g.store
	s.mu.Lock()
	defer s.mu.Unlock()
	card, ok := s.cards[code]
	if !ok || card.MerchantID != merchant {
		return nil, errors.Wrapf(giftcard.ErrNotFound, "card %s", code)
	}
	next := *card
	if err := next.Deduct(amount, now); err != nil {
		return nil, err
	}
	s.cards[code] = &next
	cp := next
	return &cp, nil
}
