// Package redis implements the engine's signal bus over go-redis/v9
// Pub/Sub.
package redis

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/dmarquez/updownbot/internal/domain"
)

// Channel names published by the engine. Consumers can PSubscribe to
// "updownbot:*" for everything.
const (
	ChannelOpportunities = "updownbot:opportunities"
	ChannelAttempts      = "updownbot:attempts"
	ChannelAlerts        = "updownbot:alerts"
)

// Config holds connection parameters for the bus.
type Config struct {
	Addr       string
	Password   string
	DB         int
	PoolSize   int
	MaxRetries int
	TLSEnabled bool
}

// SignalBus implements domain.SignalBus over Redis Pub/Sub. Delivery is
// fire-and-forget: the engine never blocks on, or retries for, absent
// consumers. The bus owns its connection; Close releases it.
type SignalBus struct {
	rdb *redis.Client
}

// NewSignalBus connects to Redis and pings it to verify connectivity.
func NewSignalBus(ctx context.Context, cfg Config) (*SignalBus, error) {
	opts := &redis.Options{
		Addr:       cfg.Addr,
		Password:   cfg.Password,
		DB:         cfg.DB,
		PoolSize:   cfg.PoolSize,
		MaxRetries: cfg.MaxRetries,
	}
	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return &SignalBus{rdb: rdb}, nil
}

// Close releases the connection.
func (sb *SignalBus) Close() error {
	return sb.rdb.Close()
}

// Publish sends a raw payload to a channel.
func (sb *SignalBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := sb.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe returns a channel of raw payloads for the given Redis
// channel, supporting glob patterns. The subscription closes with the
// context, at which point the returned channel closes too.
func (sb *SignalBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	var pubsub *redis.PubSub
	if strings.ContainsAny(channel, "*?[") {
		pubsub = sb.rdb.PSubscribe(ctx, channel)
	} else {
		pubsub = sb.rdb.Subscribe(ctx, channel)
	}

	// Wait for the subscription confirmation before handing out the channel.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", channel, err)
	}

	out := make(chan []byte, 128)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

var _ domain.SignalBus = (*SignalBus)(nil)
