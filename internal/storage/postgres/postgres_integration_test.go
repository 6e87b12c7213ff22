//go:build integration

package postgres

import (
	"context"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/tikis23/psp-2025/internal/domain/giftcard"
	"github.com/tikis23/psp-2025/internal/domain/order"
	"github.com/tikis23/psp-2025/internal/domain/tenant"
)

const merchant tenant.MerchantID = 7

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	os.Exit(testMain(m))
}

func testMain(m *testing.M) int {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pg, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "psp",
				"POSTGRES_PASSWORD": "psp",
				"POSTGRES_DB":       "psp",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	if err != nil {
		log.Fatalf("start postgres: %v", err)
	}
	defer func() {
		if err := pg.Terminate(context.Background()); err != nil {
			log.Printf("terminate postgres: %v", err)
		}
	}()

	host, err := pg.Host(ctx)
	if err != nil {
		log.Fatalf("host: %v", err)
	}
	port, err := pg.MappedPort(ctx, "5432/tcp")
	if err != nil {
		log.Fatalf("mapped port: %v", err)
	}

	testPool, err = NewPool(ctx, fmt.Sprintf("postgres://psp:psp@%s:%s/psp?sslmode=disable", host, port.Port()))
	if err != nil {
		log.Fatalf("pool: %v", err)
	}
	defer testPool.Close()

	if err := RunMigrations(ctx, testPool); err != nil {
		log.Fatalf("migrations: %v", err)
	}
	// Migrations must be idempotent.
	if err := RunMigrations(ctx, testPool); err != nil {
		log.Fatalf("migrations rerun: %v", err)
	}

	return m.Run()
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func seedCatalog(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	_, err := testPool.Exec(ctx, `
		INSERT INTO tax_rates (id, merchant_id, name, rate) VALUES ('it-vat', $1, 'VAT', 0.2100)
		ON CONFLICT (id) DO NOTHING`, int64(merchant))
	require.NoError(t, err)
	_, err = testPool.Exec(ctx, `
		INSERT INTO catalog_items (id, merchant_id, name, price, tax_rate_id) VALUES ('it-tea', $1, 'Tea', 3.00, 'it-vat')
		ON CONFLICT (id) DO NOTHING`, int64(merchant))
	require.NoError(t, err)
	_, err = testPool.Exec(ctx, `
		INSERT INTO catalog_variations (id, item_id, name, price_offset) VALUES ('it-tea-lemon', 'it-tea', 'Lemon', 0.30)
		ON CONFLICT (id) DO NOTHING`)
	require.NoError(t, err)
	_, err = testPool.Exec(ctx, `
		INSERT INTO discounts (id, merchant_id, code, type, scope, value) VALUES ('it-half', $1, 'Half', 'PERCENTAGE', 'ORDER', 50)
		ON CONFLICT (id) DO NOTHING`, int64(merchant))
	require.NoError(t, err)
}

func createOrder(t *testing.T, repo *OrderRepository, id string) {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Microsecond)
	require.NoError(t, repo.Create(context.Background(), &order.Order{
		ID:         id,
		MerchantID: merchant,
		Status:     order.StatusOpen,
		CreatedAt:  now,
		UpdatedAt:  now,
	}))
}

func TestCatalogRepository(t *testing.T) {
	seedCatalog(t)
	ctx := context.Background()
	repo := NewCatalogRepository(testPool)

	item, err := repo.GetItem(ctx, merchant, "it-tea")
	require.NoError(t, err)
	assert.Equal(t, "Tea", item.Name)
	assert.True(t, dec("3").Equal(item.Price))
	require.Len(t, item.Variations, 1)
	assert.True(t, dec("0.30").Equal(item.Variations[0].PriceOffset))

	_, err = repo.GetItem(ctx, merchant+1, "it-tea")
	require.Error(t, err)

	rate, err := repo.GetTaxRate(ctx, merchant, "it-vat")
	require.NoError(t, err)
	assert.True(t, dec("0.21").Equal(rate.Rate))

	d, err := NewDiscountRepository(testPool).FindByCode(ctx, merchant, "HALF")
	require.NoError(t, err)
	assert.Equal(t, "it-half", d.ID)
}

func TestOrderRepository_ItemsRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := NewOrderRepository(testPool)
	createOrder(t, repo, "it-order-items")

	err := repo.WithinOrder(ctx, merchant, "it-order-items", func(ctx context.Context, tx order.Tx) error {
		o := tx.Order()
		o.Items = append(o.Items, order.Item{
			ID:            "it-line-1",
			CatalogItemID: "it-tea",
			Name:          "Tea",
			UnitPrice:     dec("3.00"),
			Quantity:      2,
			TaxRateID:     "it-vat",
			TaxRate:       dec("0.21"),
			Variations: []order.ItemVariation{
				{ID: "it-line-1-v1", VariationID: "it-tea-lemon", Name: "Lemon", PriceOffset: dec("0.30")},
			},
			CreatedAt: time.Now().UTC(),
		})
		o.DiscountID = "it-half"
		return tx.Save(ctx)
	})
	require.NoError(t, err)

	o, err := repo.Get(ctx, merchant, "it-order-items")
	require.NoError(t, err)
	assert.Equal(t, "it-half", o.DiscountID)
	require.Len(t, o.Items, 1)
	assert.Equal(t, 2, o.Items[0].Quantity)
	assert.True(t, dec("3.30").Equal(o.Items[0].UnitTotal()))

	_, err = repo.Get(ctx, merchant+1, "it-order-items")
	require.ErrorIs(t, err, order.ErrNotFound)
}

func TestOrderRepository_RollbackOnError(t *testing.T) {
	ctx := context.Background()
	repo := NewOrderRepository(testPool)
	createOrder(t, repo, "it-order-rollback")

	err := repo.WithinOrder(ctx, merchant, "it-order-rollback", func(ctx context.Context, tx order.Tx) error {
		tx.Order().Status = order.StatusCancelled
		if err := tx.Save(ctx); err != nil {
			return err
		}
		return errors.New("boom")
	})
	require.Error(t, err)

	o, err := repo.Get(ctx, merchant, "it-order-rollback")
	require.NoError(t, err)
	assert.Equal(t, order.StatusOpen, o.Status)
}

func TestOrderRepository_PaymentsAndRefund(t *testing.T) {
	ctx := context.Background()
	repo := NewOrderRepository(testPool)
	createOrder(t, repo, "it-order-pay")
	now := time.Now().UTC().Truncate(time.Microsecond)

	err := repo.WithinOrder(ctx, merchant, "it-order-pay", func(ctx context.Context, tx order.Tx) error {
		if err := tx.InsertPayment(ctx, &order.Payment{
			ID: "it-pay-cash", OrderID: "it-order-pay", MerchantID: merchant,
			Tender: order.TenderCash, Amount: dec("5.00"), CashReceived: dec("10.00"), Tip: dec("1.00"),
			Status: order.PaymentSucceeded, CreatedAt: now, UpdatedAt: now,
		}); err != nil {
			return err
		}
		return tx.InsertPayment(ctx, &order.Payment{
			ID: "it-pay-card", OrderID: "it-order-pay", MerchantID: merchant,
			Tender: order.TenderCard, Amount: dec("2.00"), Tip: decimal.Zero,
			ExternalRef: "pi_it_1", Status: order.PaymentRequiresAction, CreatedAt: now.Add(time.Second), UpdatedAt: now,
		})
	})
	require.NoError(t, err)

	payments, err := repo.Payments(ctx, "it-order-pay")
	require.NoError(t, err)
	require.Len(t, payments, 2)
	assert.Equal(t, "it-pay-cash", payments[0].ID)
	assert.True(t, dec("5").Equal(order.SumSucceeded(payments)))

	p, err := repo.PaymentByExternalRef(ctx, "pi_it_1")
	require.NoError(t, err)
	assert.Equal(t, "it-pay-card", p.ID)

	_, err = repo.PaymentByID(ctx, merchant+1, "it-pay-card")
	require.ErrorIs(t, err, order.ErrPaymentNotFound)

	err = repo.WithinOrder(ctx, merchant, "it-order-pay", func(ctx context.Context, tx order.Tx) error {
		p, err := tx.Payment(ctx, "it-pay-card")
		if err != nil {
			return err
		}
		p.Status = order.PaymentSucceeded
		p.UpdatedAt = time.Now().UTC()
		return tx.UpdatePayment(ctx, p)
	})
	require.NoError(t, err)

	p, err = repo.PaymentByID(ctx, merchant, "it-pay-card")
	require.NoError(t, err)
	assert.Equal(t, order.PaymentSucceeded, p.Status)

	refund := func(id string) error {
		return repo.WithinOrder(ctx, merchant, "it-order-pay", func(ctx context.Context, tx order.Tx) error {
			return tx.InsertRefund(ctx, &order.Refund{
				ID: id, OrderID: "it-order-pay", TotalAmount: dec("8.00"),
				Status: order.RefundCompleted, Reason: "test", CreatedAt: time.Now().UTC(),
			})
		})
	}
	require.NoError(t, refund("it-refund-1"))
	require.Error(t, refund("it-refund-2"))

	r, err := repo.Refund(ctx, "it-order-pay")
	require.NoError(t, err)
	assert.Equal(t, "it-refund-1", r.ID)
	assert.True(t, dec("8").Equal(r.TotalAmount))
}

func TestGiftCardRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewGiftCardRepository(testPool)
	now := time.Now().UTC().Truncate(time.Microsecond)

	card := &giftcard.GiftCard{
		Code:           "GC-IT-0001",
		MerchantID:     merchant,
		InitialBalance: dec("20.00"),
		CurrentBalance: dec("20.00"),
		Active:         true,
		CreatedAt:      now,
	}
	require.NoError(t, repo.Create(ctx, card))
	require.ErrorIs(t, repo.Create(ctx, card), giftcard.ErrDuplicateCode)

	got, err := repo.Deduct(ctx, merchant, card.Code, dec("12.50"), now)
	require.NoError(t, err)
	assert.True(t, dec("7.50").Equal(got.CurrentBalance))
	assert.True(t, got.Active)

	_, err = repo.Deduct(ctx, merchant, card.Code, dec("8.00"), now)
	require.ErrorIs(t, err, giftcard.ErrInsufficientBalance)

	got, err = repo.Deduct(ctx, merchant, card.Code, dec("7.50"), now)
	require.NoError(t, err)
	assert.True(t, got.CurrentBalance.IsZero())
	assert.False(t, got.Active)

	_, err = repo.Get(ctx, merchant+1, card.Code)
	require.ErrorIs(t, err, giftcard.ErrNotFound)
}

func TestGiftCardRepository_DeductRollsBackWithOrder(t *testing.T) {
	ctx := context.Background()
	orders := NewOrderRepository(testPool)
	cards := NewGiftCardRepository(testPool)
	createOrder(t, orders, "it-order-gc")
	now := time.Now().UTC()

	require.NoError(t, cards.Create(ctx, &giftcard.GiftCard{
		Code: "GC-IT-0002", MerchantID: merchant,
		InitialBalance: dec("10"), CurrentBalance: dec("10"), Active: true, CreatedAt: now,
	}))

	err := orders.WithinOrder(ctx, merchant, "it-order-gc", func(ctx context.Context, tx order.Tx) error {
		if _, err := tx.GiftCards().Deduct(ctx, merchant, "GC-IT-0002", dec("4"), now); err != nil {
			return err
		}
		return errors.New("payment failed")
	})
	require.Error(t, err)

	got, err := cards.Get(ctx, merchant, "GC-IT-0002")
	require.NoError(t, err)
	assert.True(t, dec("10").Equal(got.CurrentBalance))
}
