package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/tikis23/psp-2025/internal/domain/apperr"
	"github.com/tikis23/psp-2025/internal/domain/giftcard"
	"github.com/tikis23/psp-2025/internal/domain/order"
	"github.com/tikis23/psp-2025/internal/domain/tenant"
)

const merchant tenant.MerchantID = 42

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newOrder(t *testing.T, s *Store, id string) {
	t.Helper()
	require.NoError(t, s.Create(context.Background(), &order.Order{ID: id, MerchantID: merchant, Status: order.StatusOpen}))
}

func TestStore_OrderTenantScoping(t *testing.T) {
	s := New()
	ctx := context.Background()
	newOrder(t, s, "o1")

	_, err := s.Get(ctx, merchant, "o1")
	require.NoError(t, err)

	_, err = s.Get(ctx, merchant+1, "o1")
	require.ErrorIs(t, err, order.ErrNotFound)

	err = s.WithinOrder(ctx, merchant+1, "o1", func(context.Context, order.Tx) error { return nil })
	require.ErrorIs(t, err, apperr.NotFound)
}

func TestStore_WithinOrder_CommitAndRollback(t *testing.T) {
	s := New()
	ctx := context.Background()
	newOrder(t, s, "o1")

	err := s.WithinOrder(ctx, merchant, "o1", func(ctx context.Context, tx order.Tx) error {
		tx.Order().Status = order.StatusPaid
		require.NoError(t, tx.InsertPayment(ctx, &order.Payment{ID: "p1", OrderID: "o1", MerchantID: merchant, ExternalRef: "pi_1", Status: order.PaymentRequiresAction}))
		require.NoError(t, tx.Save(ctx))
		return errors.New("boom")
	})
	require.Error(t, err)

	o, err := s.Get(ctx, merchant, "o1")
	require.NoError(t, err)
	assert.Equal(t, order.StatusOpen, o.Status)
	payments, err := s.Payments(ctx, "o1")
	require.NoError(t, err)
	assert.Empty(t, payments)

	err = s.WithinOrder(ctx, merchant, "o1", func(ctx context.Context, tx order.Tx) error {
		require.NoError(t, tx.InsertPayment(ctx, &order.Payment{ID: "p1", OrderID: "o1", MerchantID: merchant, ExternalRef: "pi_1", Status: order.PaymentRequiresAction}))
		p, err := tx.Payment(ctx, "p1")
		require.NoError(t, err)
		p.Status = order.PaymentSucceeded
		require.NoError(t, tx.UpdatePayment(ctx, p))

		staged, err := tx.Payments(ctx)
		require.NoError(t, err)
		require.Len(t, staged, 1)
		assert.Equal(t, order.PaymentSucceeded, staged[0].Status)
		return nil
	})
	require.NoError(t, err)

	p, err := s.PaymentByExternalRef(ctx, "pi_1")
	require.NoError(t, err)
	assert.Equal(t, "p1", p.ID)
	assert.Equal(t, order.PaymentSucceeded, p.Status)

	_, err = s.PaymentByID(ctx, merchant+1, "p1")
	require.ErrorIs(t, err, order.ErrPaymentNotFound)
}

func TestStore_WithinOrder_Serializes(t *testing.T) {
	s := New()
	ctx := context.Background()
	newOrder(t, s, "o1")

	const workers = 20
	var g errgroup.Group
	for i := range workers {
		g.Go(func() error {
			return s.WithinOrder(ctx, merchant, "o1", func(ctx context.Context, tx order.Tx) error {
				payments, err := tx.Payments(ctx)
				if err != nil {
					return err
				}
				// Read-modify-write: only correct if calls never overlap.
				return tx.InsertPayment(ctx, &order.Payment{
					ID:      string(rune('a' + i)),
					OrderID: "o1",
					Amount:  decimal.NewFromInt(int64(len(payments))),
					Status:  order.PaymentSucceeded,
				})
			})
		})
	}
	require.NoError(t, g.Wait())

	payments, err := s.Payments(ctx, "o1")
	require.NoError(t, err)
	require.Len(t, payments, workers)
	seen := make(map[int64]bool)
	for _, p := range payments {
		seen[p.Amount.IntPart()] = true
	}
	assert.Len(t, seen, workers)
}

func TestGiftCards_DeductConcurrent(t *testing.T) {
	s := New()
	ctx := context.Background()
	cards := s.GiftCards()
	require.NoError(t, cards.Create(ctx, &giftcard.GiftCard{
		Code: "GC-AAAA0001", MerchantID: merchant,
		InitialBalance: dec("10.00"), CurrentBalance: dec("10.00"), Active: true,
	}))

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for range 25 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := cards.Deduct(ctx, merchant, "GC-AAAA0001", dec("1.00"), time.Now())
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, succeeded)
	card, err := cards.Get(ctx, merchant, "GC-AAAA0001")
	require.NoError(t, err)
	assert.True(t, card.CurrentBalance.IsZero())
	assert.False(t, card.Active)

	_, err = cards.Deduct(ctx, merchant, "GC-AAAA0001", dec("1.00"), time.Now())
	require.ErrorIs(t, err, giftcard.ErrInactive)
}

func TestGiftCards_RollbackRestoresBalance(t *testing.T) {
	s := New()
	ctx := context.Background()
	newOrder(t, s, "o1")
	require.NoError(t, s.GiftCards().Create(ctx, &giftcard.GiftCard{
		Code: "GC-BBBB0002", MerchantID: merchant,
		InitialBalance: dec("5.00"), CurrentBalance: dec("5.00"), Active: true,
	}))

	err := s.WithinOrder(ctx, merchant, "o1", func(ctx context.Context, tx order.Tx) error {
		card, err := tx.GiftCards().Deduct(ctx, merchant, "GC-BBBB0002", dec("5.00"), time.Now())
		require.NoError(t, err)
		assert.False(t, card.Active)
		return errors.New("insert failed")
	})
	require.Error(t, err)

	card, err := s.GiftCards().Get(ctx, merchant, "GC-BBBB0002")
	require.NoError(t, err)
	assert.True(t, dec("5.00").Equal(card.CurrentBalance))
	assert.True(t, card.Active)
}

func TestGiftCards_CreateDuplicate(t *testing.T) {
	s := New()
	ctx := context.Background()
	card := &giftcard.GiftCard{Code: "GC-CCCC0003", MerchantID: merchant, InitialBalance: dec("1"), CurrentBalance: dec("1"), Active: true}
	require.NoError(t, s.GiftCards().Create(ctx, card))
	require.ErrorIs(t, s.GiftCards().Create(ctx, card), giftcard.ErrDuplicateCode)

	_, err := s.GiftCards().Get(ctx, merchant+1, "GC-CCCC0003")
	require.ErrorIs(t, err, giftcard.ErrNotFound)
}

func TestDeduper(t *testing.T) {
	d := NewDeduper(time.Minute)
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return now }
	ctx := context.Background()

	fresh, err := d.Claim(ctx, "evt_1")
	require.NoError(t, err)
	assert.True(t, fresh)

	fresh, err = d.Claim(ctx, "evt_1")
	require.NoError(t, err)
	assert.False(t, fresh)

	require.NoError(t, d.Release(ctx, "evt_1"))
	fresh, err = d.Claim(ctx, "evt_1")
	require.NoError(t, err)
	assert.True(t, fresh)

	now = now.Add(2 * time.Minute)
	fresh, err = d.Claim(ctx, "evt_1")
	require.NoError(t, err)
	assert.True(t, fresh)
}

func TestDeduper_SweepInterval(t *testing.T) {
	d := NewDeduper(time.Minute)
	start := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	now := start
	d.now = func() time.Time { return now }
	ctx := context.Background()

	for _, id := range []string{"evt_1", "evt_2", "evt_3"} {
		_, err := d.Claim(ctx, id)
		require.NoError(t, err)
	}

	// Within the interval nothing is swept.
	now = start.Add(30 * time.Second)
	_, err := d.Claim(ctx, "evt_4")
	require.NoError(t, err)
	assert.Len(t, d.seen, 4)

	now = start.Add(61 * time.Second)
	_, err = d.Claim(ctx, "evt_5")
	require.NoError(t, err)
	assert.Len(t, d.seen, 2)
	assert.Contains(t, d.seen, "evt_4")
	assert.Contains(t, d.seen, "evt_5")

	// Expired but unswept ids are still claimable.
	now = start.Add(100 * time.Second)
	fresh, err := d.Claim(ctx, "evt_4")
	require.NoError(t, err)
	assert.True(t, fresh)
}
