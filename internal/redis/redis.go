package redis

import (
	"context"
	"crypto/tls"
	"fmt"
	"sync"

	"github.com/redis/go-redis/extra/redisotel/v9"
	r "github.com/redis/go-redis/v9"
)

// Reexport go-redis's Nil constant for DX purposes.
const (
	Nil = r.Nil
)

type (
	Cmdable            = r.Cmdable
	MapStringStringCmd = r.MapStringStringCmd
	Pipeliner          = r.Pipeliner
	Tx                 = r.Tx
	Z                  = r.Z
	ZRangeBy           = r.ZRangeBy
)

type Client interface {
	Cmdable
	Close() error
}

const (
	TxFailedErr = r.TxFailedErr
)

var (
	once                sync.Once
	client              Client
	initializationError error
)

// New returns the process-wide client, connecting and instrumenting it on
// first use. Every store in the relay shares this connection pool.
func New(ctx context.Context, config *RedisConfig) (r.Cmdable, error) {
	once.Do(func() {
		c, err := NewClient(ctx, config)
		if err != nil {
			initializationError = err
			return
		}
		client = c
		initializationError = instrumentOpenTelemetry(client)
	})

	if client == nil && initializationError == nil {
		initializationError = fmt.Errorf("redis client initialization failed: unexpected state")
	}

	return client, initializationError
}

// NewClient creates a new Redis client without using the singleton.
// This should be used by components that need their own Redis connection,
// such as libraries or in test scenarios where isolation is required.
func NewClient(ctx context.Context, config *RedisConfig) (Client, error) {
	options := &r.Options{
		Addr:     fmt.Sprintf("%s:%d", config.Host, config.Port),
		Username: config.Username,
		Password: config.Password,
		DB:       config.Database,
	}

	if config.TLSEnabled {
		options.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	c := r.NewClient(options)

	if err := c.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return c, nil
}

func instrumentOpenTelemetry(c Client) error {
	// OpenTelemetry instrumentation requires a concrete client type for type assertions
	if concreteClient, ok := c.(*r.Client); ok {
		return redisotel.InstrumentTracing(concreteClient)
	}
	return nil
}
