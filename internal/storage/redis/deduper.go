// Package redis keeps webhook delivery state in Redis so that replicas
// share it.
package redis

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/tikis23/psp-2025/internal/domain/payment"
)

const keyPrefix = "psp:webhook:"

// Options configures the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// Connect opens a client and pings the server.
func Connect(ctx context.Context, opts Options, lg *zap.Logger) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrap(err, "ping redis")
	}

	lg.Info("Redis connected", zap.String("addr", opts.Addr))
	return rdb, nil
}

// Deduper implements payment.EventDeduper with SET NX.
type Deduper struct {
	client redis.Cmdable
	ttl    time.Duration
}

var _ payment.EventDeduper = (*Deduper)(nil)

// NewDeduper creates a Deduper whose claims expire after ttl.
func NewDeduper(client redis.Cmdable, ttl time.Duration) *Deduper {
	return &Deduper{client: client, ttl: ttl}
}

// Claim implements payment.EventDeduper.
func (d *Deduper) Claim(ctx context.Context, id string) (bool, error) {
	ok, err := d.client.SetNX(ctx, keyPrefix+id, time.Now().Unix(), d.ttl).Result()
	if err != nil {
		return false, errors.Wrapf(err, "claim event %s", id)
	}
	return ok, nil
}

// Release implements payment.EventDeduper.
func (d *Deduper) Release(ctx context.Context, id string) error {
	if err := d.client.Del(ctx, keyPrefix+id).Err(); err != nil {
		return errors.Wrapf(err, "release event %s", id)
	}
	return nil
}
