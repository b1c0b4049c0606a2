package redis

import (
	"context"
	"fmt"
	"time"

	"coin-ledger/config"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// keyspace prefixes every key the ledger writes.
const keyspace = "clg:"

// NewClient creates a Redis client and verifies connectivity. timeout bounds
// every command so a slow cache never stalls a ledger operation.
func NewClient(ctx context.Context, cfg config.RedisConfig, timeout time.Duration, log zerolog.Logger) (*goredis.Client, error) {
	client := goredis.NewClient(ClientOptions(cfg, timeout))

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("pinging redis: %w", err)
	}

	log.Info().
		Str("addr", cfg.Addr()).
		Int("db", cfg.DB).
		Dur("timeout", timeout).
		Msg("Redis connection established")

	return client, nil
}

// ClientOptions maps configuration onto go-redis options.
func ClientOptions(cfg config.RedisConfig, timeout time.Duration) *goredis.Options {
	opts := &goredis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if timeout > 0 {
		opts.DialTimeout = timeout
		opts.ReadTimeout = timeout
		opts.WriteTimeout = timeout
	}
	return opts
}
