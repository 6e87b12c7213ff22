// Command giftcard-import loads pre-printed gift cards from gzip-compressed
// CSV files ("code,amount[,expires_at]" per line). Codes that occur more
// than once across the input are reported and skipped instead of imported.
package main

import (
	"bufio"
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/tikis23/psp-2025/internal/domain/giftcard"
	"github.com/tikis23/psp-2025/internal/domain/tenant"
	"github.com/tikis23/psp-2025/internal/storage/postgres"
)

const (
	bloomCapacity = 10_000_000
	bloomFPR      = 0.001
	progressEvery = 100_000
	minCodeLen    = 6
	maxCodeLen    = 32
)

// record is one parsed input line.
type record struct {
	code      string
	amount    decimal.Decimal
	expiresAt *time.Time
}

// stats summarises an import.
type stats struct {
	imported   int
	duplicates int
	existing   int
	invalid    int
}

func main() {
	var (
		databaseURL string
		merchantArg string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&merchantArg, "merchant", "", "merchant id owning the imported cards")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	merchant, err := tenant.Parse(merchantArg)
	if err != nil {
		slog.Error("valid --merchant is required", slog.String("error", err.Error()))
		os.Exit(1)
	}
	files := flag.Args()
	if len(files) == 0 {
		slog.Error("no input files given")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, merchant, files); err != nil {
		slog.Error("gift card import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("gift card import completed successfully")
}

func run(ctx context.Context, databaseURL string, merchant tenant.MerchantID, files []string) error {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			return errors.Wrapf(err, "check file %s", f)
		}
	}

	slog.Info("pass 1: finding duplicate codes", slog.Int("files", len(files)))
	dups, err := findDuplicates(ctx, files)
	if err != nil {
		return errors.Wrap(err, "find duplicates")
	}
	slog.Info("duplicate codes found", slog.Int("count", len(dups)))

	slog.Info("connecting to database")
	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	slog.Info("pass 2: importing cards")
	st, err := importCards(ctx, postgres.NewGiftCardRepository(pool), merchant, files, dups, time.Now())
	if err != nil {
		return errors.Wrap(err, "import cards")
	}

	slog.Info("import summary",
		slog.Int("imported", st.imported),
		slog.Int("duplicates", st.duplicates),
		slog.Int("existing", st.existing),
		slog.Int("invalid", st.invalid),
	)
	return nil
}

// findDuplicates returns every code that occurs more than once in files.
// All files are scanned concurrently. A shared bloom filter flags codes
// that may have been seen, and only those are confirmed exactly, so memory
// stays proportional to the number of suspects.
func findDuplicates(ctx context.Context, files []string) (map[string]bool, error) {
	seen := newSuspects()

	g, gctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(func() error {
			var count uint64
			err := streamGzFile(gctx, f, func(line string) {
				rec, err := parseLine(line)
				if err != nil {
					return
				}
				seen.add(rec.code)
				count++
				if count%progressEvery == 0 {
					slog.Info("pass 1 progress", slog.Int("file", i+1), slog.Uint64("codes", count))
				}
			})
			if err != nil {
				return errors.Wrapf(err, "scan file %d", i+1)
			}
			slog.Info("pass 1 complete", slog.Int("file", i+1), slog.Uint64("total_codes", count))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// The bloom filter only yields suspects; count them exactly.
	counts := make(map[string]int, len(seen.codes))
	for _, f := range files {
		if err := streamGzFile(ctx, f, func(line string) {
			rec, err := parseLine(line)
			if err != nil || !seen.codes[rec.code] {
				return
			}
			counts[rec.code]++
		}); err != nil {
			return nil, errors.Wrapf(err, "confirm duplicates in %s", f)
		}
	}

	dups := make(map[string]bool)
	for code, n := range counts {
		if n > 1 {
			dups[code] = true
		}
	}
	return dups, nil
}

// importCards creates every valid, unique card. Cards whose code already
// exists in the store are counted and skipped.
func importCards(ctx context.Context, store giftcard.Store, merchant tenant.MerchantID, files []string, dups map[string]bool, now time.Time) (stats, error) {
	var (
		st       stats
		writeErr error
	)
	for _, f := range files {
		err := streamGzFile(ctx, f, func(line string) {
			if writeErr != nil {
				return
			}
			rec, err := parseLine(line)
			switch {
			case err != nil:
				st.invalid++
				slog.Warn("skipping invalid line", slog.String("file", f), slog.String("error", err.Error()))
				return
			case dups[rec.code]:
				st.duplicates++
				return
			case rec.expiresAt != nil && !rec.expiresAt.After(now):
				st.invalid++
				return
			}

			err = store.Create(ctx, &giftcard.GiftCard{
				Code:           rec.code,
				MerchantID:     merchant,
				InitialBalance: rec.amount,
				CurrentBalance: rec.amount,
				Active:         true,
				ExpiresAt:      rec.expiresAt,
				CreatedAt:      now,
			})
			switch {
			case errors.Is(err, giftcard.ErrDuplicateCode):
				st.existing++
			case err != nil:
				writeErr = errors.Wrapf(err, "create card %s", rec.code)
			default:
				st.imported++
				if st.imported%progressEvery == 0 {
					slog.Info("import progress", slog.Int("imported", st.imported))
				}
			}
		})
		if err != nil {
			return st, err
		}
		if writeErr != nil {
			return st, writeErr
		}
	}
	return st, nil
}

// parseLine parses "code,amount[,expires_at]".
func parseLine(line string) (record, error) {
	fields := strings.Split(strings.TrimSpace(line), ",")
	if len(fields) < 2 || len(fields) > 3 {
		return record{}, errors.Errorf("expected 2 or 3 fields, got %d", len(fields))
	}

	rec := record{code: giftcard.NormalizeCode(fields[0])}
	if len(rec.code) < minCodeLen || len(rec.code) > maxCodeLen {
		return record{}, errors.Errorf("code %q has invalid length", rec.code)
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(fields[1]))
	if err != nil {
		return record{}, errors.Wrapf(err, "parse amount of %s", rec.code)
	}
	if !amount.IsPositive() {
		return record{}, errors.Errorf("amount of %s must be positive", rec.code)
	}
	rec.amount = amount.Round(2)

	if len(fields) == 3 && strings.TrimSpace(fields[2]) != "" {
		t, err := time.Parse(time.RFC3339, strings.TrimSpace(fields[2]))
		if err != nil {
			return record{}, errors.Wrapf(err, "parse expiry of %s", rec.code)
		}
		rec.expiresAt = &t
	}
	return rec, nil
}

// streamGzFile opens a gzip-compressed file and calls fn for each line.
func streamGzFile(ctx context.Context, path string, fn func(line string)) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if line := scanner.Text(); line != "" {
			fn(line)
		}
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}

	return nil
}
