// Package cache wraps the key-value store used for ephemeral state such as OTP records.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/example/marketplace/internal/apperr"
)

// ErrMiss is returned by Get when the key does not exist.
var ErrMiss = errors.New("cache: key not found")

const maxMutateAttempts = 5

// Options configures the connection.
type Options struct {
	Addr         string
	Password     string
	DB           int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// ConnectRetries bounds the number of ping retries performed by Connect.
	ConnectRetries uint64
	ConnectBackoff time.Duration
}

// Client is a thin wrapper around a single redis connection pool.
type Client struct {
	rdb *redis.Client
	log *zap.Logger
}

// Connect opens the pool and waits until the server answers a ping.
func Connect(ctx context.Context, opts Options, log *zap.Logger) (*Client, error) {
	if opts.DialTimeout == 0 {
		opts.DialTimeout = 5 * time.Second
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = 3 * time.Second
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = 3 * time.Second
	}
	if opts.ConnectRetries == 0 {
		opts.ConnectRetries = 3
	}
	if opts.ConnectBackoff == 0 {
		opts.ConnectBackoff = 200 * time.Millisecond
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  opts.DialTimeout,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
	})

	c := New(rdb, log)

	backoff := retry.WithMaxRetries(opts.ConnectRetries, retry.NewExponential(opts.ConnectBackoff))
	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if err := c.Ping(ctx); err != nil {
			c.log.Warn("cache ping failed", zap.Int("attempt", attempt), zap.String("addr", opts.Addr), zap.Error(err))
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect cache %s: %w", opts.Addr, err)
	}

	c.log.Info("cache connected", zap.String("addr", opts.Addr))
	return c, nil
}

// New wraps an existing redis client.
func New(rdb *redis.Client, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{rdb: rdb, log: log}
}

// Ping reports whether the server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close releases the pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Get returns the stored value or ErrMiss.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	val, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrMiss
	}
	if err != nil {
		return "", fmt.Errorf("cache get %s: %w", key, err)
	}
	return val, nil
}

// SetEx stores value under key with the given expiry, replacing any prior value.
func (c *Client) SetEx(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := c.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}

// TTL returns the remaining lifetime of key. Missing keys yield ErrMiss;
// keys without expiry yield a negative duration.
func (c *Client) TTL(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := c.rdb.PTTL(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("cache ttl %s: %w", key, err)
	}
	if ttl == -2 {
		return 0, ErrMiss
	}
	return ttl, nil
}

// Delete removes key. Deleting a missing key is not an error.
func (c *Client) Delete(ctx context.Context, key string) error {
	if err := c.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("cache del %s: %w", key, err)
	}
	return nil
}

type mutationOp int

const (
	opKeep mutationOp = iota
	opReplace
	opDelete
)

// Mutation is the outcome of a MutateFunc.
type Mutation struct {
	op    mutationOp
	value string
}

// Keep leaves the stored value untouched.
func Keep() Mutation { return Mutation{op: opKeep} }

// Replace rewrites the value, preserving the key's remaining lifetime.
func Replace(value string) Mutation { return Mutation{op: opReplace, value: value} }

// Remove deletes the key.
func Remove() Mutation { return Mutation{op: opDelete} }

// Entry is the state handed to a MutateFunc.
type Entry struct {
	Value string
	TTL   time.Duration
	Found bool
}

// MutateFunc decides what to do with the current entry. It may be invoked
// more than once when a concurrent writer interferes, so it must not have
// side effects besides capturing its result.
type MutateFunc func(Entry) (Mutation, error)

// Mutate performs an atomic read-modify-write of key. A non-nil error from fn
// aborts without writing and is returned as is.
func (c *Client) Mutate(ctx context.Context, key string, fn MutateFunc) error {
	txf := func(tx *redis.Tx) error {
		entry := Entry{}

		val, err := tx.Get(ctx, key).Result()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			entry.Value = val
			entry.Found = true
			ttl, err := tx.PTTL(ctx, key).Result()
			if err != nil {
				return err
			}
			entry.TTL = ttl
		}

		m, err := fn(entry)
		if err != nil {
			return err
		}

		switch m.op {
		case opReplace:
			// Keys that vanished between GET and PTTL report a non-positive ttl.
			ttl := entry.TTL
			if ttl < time.Millisecond {
				ttl = redis.KeepTTL
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, m.value, ttl)
				return nil
			})
		case opDelete:
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key)
				return nil
			})
		}
		return err
	}

	for attempt := 1; attempt <= maxMutateAttempts; attempt++ {
		err := c.rdb.Watch(ctx, txf, key)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			c.log.Debug("cache mutate conflict", zap.String("key", key), zap.Int("attempt", attempt))
			continue
		}
		return err
	}

	return apperr.New(apperr.ErrConflict, "concurrent update, try again")
}
