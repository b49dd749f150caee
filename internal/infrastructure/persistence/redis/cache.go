// Package redis keeps a copy of the latest published roster report in Redis
// so the HTTP layer can answer without touching PostgreSQL.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config is translated to redis.Options by Options.
type Config struct {
	Host     string
	Port     int
	Password string
	DB       int

	PoolSize     int
	MinIdleConns int
	MaxRetries   int

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolTimeout  time.Duration
}

func DefaultConfig() Config {
	return Config{
		Host:         "localhost",
		Port:         6379,
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolTimeout:  4 * time.Second,
	}
}

func (c Config) Addr() string { return net.JoinHostPort(c.Host, strconv.Itoa(c.Port)) }

func (c Config) Options() *redis.Options {
	return &redis.Options{
		Addr:         c.Addr(),
		Password:     c.Password,
		DB:           c.DB,
		PoolSize:     c.PoolSize,
		MinIdleConns: c.MinIdleConns,
		MaxRetries:   c.MaxRetries,
		DialTimeout:  c.DialTimeout,
		ReadTimeout:  c.ReadTimeout,
		WriteTimeout: c.WriteTimeout,
		PoolTimeout:  c.PoolTimeout,
	}
}

var (
	ErrCacheMiss          = errors.New("cache: miss")
	ErrCacheConnection    = errors.New("cache: redis unreachable")
	ErrCacheSerialization = errors.New("cache: bad JSON")
	ErrCacheInvalidTTL    = errors.New("cache: negative TTL")
	ErrCacheKeyEmpty      = errors.New("cache: empty key")
	ErrCacheNilValue      = errors.New("cache: nil value")
)

const (
	KeyLatestReport = "report:latest"

	// TTLReport applies when SetLatestReport gets no TTL.
	TTLReport = 15 * time.Minute
)

// ══════════════════════════════════════════════════════════════════════════════
// JSON CACHE
// ══════════════════════════════════════════════════════════════════════════════

// Cache reads and writes JSON values.
type Cache struct {
	client *redis.Client
}

// NewCache fails with ErrCacheConnection when Redis does not answer a ping
// within DialTimeout; the worker then runs without a cache.
func NewCache(cfg Config) (*Cache, error) {
	client := redis.NewClient(cfg.Options())

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %v", ErrCacheConnection, err)
	}
	return &Cache{client: client}, nil
}

// NewCacheFromClient skips the ping.
func NewCacheFromClient(client *redis.Client) *Cache { return &Cache{client: client} }

func (c *Cache) Close() error { return c.client.Close() }

// Ping backs the worker's cache health check.
func (c *Cache) Ping(ctx context.Context) error { return c.client.Ping(ctx).Err() }

// Set with ttl 0 never expires.
func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := encode(key, value, ttl)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, ttl).Err()
}

// Get decodes the value under key into dest, or returns ErrCacheMiss.
func (c *Cache) Get(ctx context.Context, key string, dest any) error {
	if key == "" {
		return ErrCacheKeyEmpty
	}
	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return ErrCacheMiss
	case err != nil:
		return err
	}
	return decode(data, dest)
}

func encode(key string, value any, ttl time.Duration) ([]byte, error) {
	switch {
	case key == "":
		return nil, ErrCacheKeyEmpty
	case value == nil:
		return nil, ErrCacheNilValue
	case ttl < 0:
		return nil, ErrCacheInvalidTTL
	}
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCacheSerialization, err)
	}
	return data, nil
}

func decode(data []byte, dest any) error {
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheSerialization, err)
	}
	return nil
}
