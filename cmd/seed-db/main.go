// Command seed-db loads a demo catalog, tax rates and discounts for one
// merchant. Re-running it updates the rows in place.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/tikis23/psp-2025/internal/storage/postgres"
)

type seedFile struct {
	MerchantID int64 `json:"merchantId"`
	TaxRates   []struct {
		ID   string          `json:"id"`
		Name string          `json:"name"`
		Rate decimal.Decimal `json:"rate"`
	} `json:"taxRates"`
	Items []struct {
		ID         string          `json:"id"`
		Name       string          `json:"name"`
		Price      decimal.Decimal `json:"price"`
		TaxRateID  string          `json:"taxRateId"`
		Variations []struct {
			ID          string          `json:"id"`
			Name        string          `json:"name"`
			PriceOffset decimal.Decimal `json:"priceOffset"`
		} `json:"variations"`
	} `json:"items"`
	Discounts []struct {
		ID        string          `json:"id"`
		Code      string          `json:"code"`
		Type      string          `json:"type"`
		Scope     string          `json:"scope"`
		Value     decimal.Decimal `json:"value"`
		ProductID string          `json:"productId"`
		ValidFrom *time.Time      `json:"validFrom"`
		ValidTo   *time.Time      `json:"validTo"`
	} `json:"discounts"`
}

func main() {
	var (
		databaseURL string
		seedPath    string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&seedPath, "seed-file", "db/seed/catalog.json", "path to the catalog JSON file")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, seedPath); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, seedPath string) error {
	slog.Info("reading seed file", slog.String("path", seedPath))

	data, err := os.ReadFile(seedPath)
	if err != nil {
		return errors.Wrap(err, "read seed file")
	}
	var seed seedFile
	if err := json.Unmarshal(data, &seed); err != nil {
		return errors.Wrap(err, "parse seed JSON")
	}
	if seed.MerchantID <= 0 {
		return errors.New("seed file must name a positive merchantId")
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	return seedCatalog(ctx, pool, &seed)
}

// seedCatalog upserts everything in one transaction.
func seedCatalog(ctx context.Context, pool *pgxpool.Pool, seed *seedFile) error {
	return pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		b := &pgx.Batch{}
		for _, r := range seed.TaxRates {
			b.Queue(`
				INSERT INTO tax_rates (id, merchant_id, name, rate, active) VALUES ($1, $2, $3, $4, TRUE)
				ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, rate = EXCLUDED.rate, active = TRUE`,
				r.ID, seed.MerchantID, r.Name, r.Rate,
			)
		}
		for _, it := range seed.Items {
			var taxRateID *string
			if it.TaxRateID != "" {
				taxRateID = &it.TaxRateID
			}
			b.Queue(`
				INSERT INTO catalog_items (id, merchant_id, name, price, tax_rate_id) VALUES ($1, $2, $3, $4, $5)
				ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, price = EXCLUDED.price, tax_rate_id = EXCLUDED.tax_rate_id`,
				it.ID, seed.MerchantID, it.Name, it.Price, taxRateID,
			)
			for _, v := range it.Variations {
				b.Queue(`
					INSERT INTO catalog_variations (id, item_id, name, price_offset) VALUES ($1, $2, $3, $4)
					ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, price_offset = EXCLUDED.price_offset`,
					v.ID, it.ID, v.Name, v.PriceOffset,
				)
			}
		}
		for _, d := range seed.Discounts {
			var productID *string
			if d.ProductID != "" {
				productID = &d.ProductID
			}
			b.Queue(`
				INSERT INTO discounts (id, merchant_id, code, type, scope, value, product_id, valid_from, valid_to)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
				ON CONFLICT (id) DO UPDATE SET code = EXCLUDED.code, type = EXCLUDED.type, scope = EXCLUDED.scope,
					value = EXCLUDED.value, product_id = EXCLUDED.product_id,
					valid_from = EXCLUDED.valid_from, valid_to = EXCLUDED.valid_to`,
				d.ID, seed.MerchantID, d.Code, d.Type, d.Scope, d.Value, productID, d.ValidFrom, d.ValidTo,
			)
		}
		if err := tx.SendBatch(ctx, b).Close(); err != nil {
			return errors.Wrap(err, "upsert catalog")
		}

		slog.Info("seeded catalog",
			slog.Int64("merchant", seed.MerchantID),
			slog.Int("tax_rates", len(seed.TaxRates)),
			slog.Int("items", len(seed.Items)),
			slog.Int("discounts", len(seed.Discounts)),
		)
		return nil
	})
}
