package postgres

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/tikis23/psp-2025/internal/domain/giftcard"
	"github.com/tikis23/psp-2025/internal/domain/tenant"
)

var _ giftcard.Store = (*GiftCardRepository)(nil)

const giftCardColumns = `code, merchant_id, initial_balance, current_balance, active, expires_at, created_at`

// GiftCardRepository implements giftcard.Store. Inside an order
// transaction it shares that transaction.
type GiftCardRepository struct {
	db querier
}

// NewGiftCardRepository returns a GiftCardRepository that uses the given pool.
func NewGiftCardRepository(pool *pgxpool.Pool) *GiftCardRepository {
	return &GiftCardRepository{db: pool}
}

// Get returns the merchant's card with the given code.
func (r *GiftCardRepository) Get(ctx context.Context, merchant tenant.MerchantID, code string) (*giftcard.GiftCard, error) {
	card, err := scanGiftCard(r.db.QueryRow(ctx,
		`SELECT `+giftCardColumns+` FROM gift_cards WHERE code = $1 AND merchant_id = $2`,
		code, int64(merchant),
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Wrapf(giftcard.ErrNotFound, "card %s", code)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get gift card %s", code)
	}
	return card, nil
}

// Create inserts a new card. Codes are unique across merchants.
func (r *GiftCardRepository) Create(ctx context.Context, card *giftcard.GiftCard) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO gift_cards (`+giftCardColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		card.Code, int64(card.MerchantID), card.InitialBalance, card.CurrentBalance,
		card.Active, card.ExpiresAt, card.CreatedAt,
	)
	if isUniqueViolation(err) {
		return errors.Wrapf(giftcard.ErrDuplicateCode, "card %s", card.Code)
	}
	if err != nil {
		return errors.Wrapf(err, "insert gift card %s", card.Code)
	}
	return nil
}

// Deduct subtracts amount in a single conditional UPDATE. When no row
// qualifies, the card is re-read to report why.
func (r *GiftCardRepository) Deduct(ctx context.Context, merchant tenant.MerchantID, code string, amount decimal.Decimal, now time.Time) (*giftcard.GiftCard, error) {
	if !amount.IsPositive() {
		return nil, giftcard.ErrInvalidAmount
	}

	card, err := scanGiftCard(r.db.QueryRow(ctx, `
		UPDATE gift_cards
		SET current_balance = current_balance - $3,
		    active = current_balance - $3 > 0
		WHERE code = $1 AND merchant_id = $2
		  AND active
		  AND current_balance >= $3
		  AND (expires_at IS NULL OR expires_at > $4)
		RETURNING `+giftCardColumns,
		code, int64(merchant), amount, now,
	))
	if err == nil {
		return card, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Wrapf(err, "deduct gift card %s", code)
	}

	card, err = r.Get(ctx, merchant, code)
	if err != nil {
		return nil, err
	}
	if err := card.Deduct(amount, now); err != nil {
		return nil, err
	}
	return nil, errors.Errorf("gift card %s changed concurrently", code)
}

func scanGiftCard(row pgx.Row) (*giftcard.GiftCard, error) {
	var (
		card     giftcard.GiftCard
		merchant int64
	)
	err := row.Scan(&card.Code, &merchant, &card.InitialBalance, &card.CurrentBalance,
		&card.Active, &card.ExpiresAt, &card.CreatedAt)
	if err != nil {
		return nil, err
	}
	card.MerchantID = tenant.MerchantID(merchant)
	return &card, nil
}
