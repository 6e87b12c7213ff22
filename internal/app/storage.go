package app

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/tikis23/psp-2025/internal/domain/audit"
	"github.com/tikis23/psp-2025/internal/domain/catalog"
	"github.com/tikis23/psp-2025/internal/domain/discount"
	"github.com/tikis23/psp-2025/internal/domain/giftcard"
	"github.com/tikis23/psp-2025/internal/domain/order"
	"github.com/tikis23/psp-2025/internal/domain/payment"
	"github.com/tikis23/psp-2025/internal/storage/kafka"
	"github.com/tikis23/psp-2025/internal/storage/memory"
	"github.com/tikis23/psp-2025/internal/storage/postgres"
	"github.com/tikis23/psp-2025/internal/storage/redis"
	"github.com/tikis23/psp-2025/pkg/health"
)

// backends groups the storage ports and the probes of whatever backs them.
type backends struct {
	orders    order.Store
	catalog   catalog.Repository
	discounts discount.Repository
	giftcards giftcard.Store
	deduper   payment.EventDeduper
	publisher audit.Publisher

	checks  map[string]health.CheckFunc
	closers []func()
}

func (b *backends) close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

// openBackends connects every configured external store and falls back to
// process memory for the ones left unset.
func openBackends(ctx context.Context, lg *zap.Logger, cfg *Config) (_ *backends, rerr error) {
	b := &backends{checks: make(map[string]health.CheckFunc)}
	defer func() {
		if rerr != nil {
			b.close()
		}
	}()

	if cfg.DatabaseURL != "" {
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, errors.Wrap(err, "create db pool")
		}
		b.closers = append(b.closers, pool.Close)
		if err := postgres.RunMigrations(ctx, pool); err != nil {
			return nil, errors.Wrap(err, "run migrations")
		}
		b.orders = postgres.NewOrderRepository(pool)
		b.catalog = postgres.NewCatalogRepository(pool)
		b.discounts = postgres.NewDiscountRepository(pool)
		b.giftcards = postgres.NewGiftCardRepository(pool)
		b.checks["postgres"] = health.PingCheck(pool)
	} else {
		lg.Warn("No database configured, using in-memory storage")
		mem := memory.New()
		b.orders = mem
		b.catalog = mem
		b.discounts = mem
		b.giftcards = mem.GiftCards()
	}

	if cfg.Redis.Addr != "" {
		rdb, err := redis.Connect(ctx, redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, lg)
		if err != nil {
			return nil, errors.Wrap(err, "connect redis")
		}
		b.closers = append(b.closers, func() {
			if err := rdb.Close(); err != nil {
				lg.Warn("Close redis", zap.Error(err))
			}
		})
		b.deduper = redis.NewDeduper(rdb, cfg.Redis.DedupeTTL)
		b.checks["redis"] = func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}
	} else {
		b.deduper = memory.NewDeduper(cfg.Redis.DedupeTTL)
	}

	if len(cfg.Kafka.Brokers) > 0 {
		pub := kafka.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.AuditTopic)
		b.closers = append(b.closers, func() {
			if err := pub.Close(); err != nil {
				lg.Warn("Close kafka writer", zap.Error(err))
			}
		})
		b.publisher = pub
		lg.Info("Publishing audit events to kafka",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", cfg.Kafka.AuditTopic),
		)
	} else {
		b.publisher = audit.NewLogPublisher(lg.Named("audit"))
	}
	return b, nil
}

// checkTimeout bounds a single dependency probe.
const checkTimeout = 5 * time.Second
