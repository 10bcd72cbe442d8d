// Package redis carries store change notifications between instances. A
// commit publishes the touched collection name; peers refresh their local
// subscriptions on receipt. Payloads carry no document data, so a lost
// message costs at most one refresh, never correctness.
package redis

import (
	"context"
	"fmt"
	"strings"

	"github.com/mgiraldo-dev/canteen-backend/pkg/config"
	"github.com/mgiraldo-dev/canteen-backend/pkg/logger"
	"github.com/redis/go-redis/v9"
)

// Client wraps the redis connection used as the change bus.
type Client struct {
	raw     *redis.Client
	channel string
}

// New bootstraps a redis client and verifies connectivity.
func New(ctx context.Context, cfg config.RedisConfig, logg *logger.Logger) (*Client, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("redis address is required")
	}
	raw := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := raw.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	if logg != nil {
		logg.Info(ctx, "redis change bus connected")
	}
	return &Client{raw: raw, channel: cfg.Channel}, nil
}

// Publish announces that a collection changed.
func (c *Client) Publish(ctx context.Context, collection string) error {
	return c.raw.Publish(ctx, c.channel, collection).Err()
}

// Run consumes change announcements until ctx is done, invoking notify for
// every received collection name. Intended to run on its own goroutine.
func (c *Client) Run(ctx context.Context, notify func(collection string), logg *logger.Logger) error {
	sub := c.raw.Subscribe(ctx, c.channel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			collection := strings.TrimSpace(msg.Payload)
			if collection == "" {
				continue
			}
			if logg != nil {
				logg.Debug(logg.WithField(ctx, "collection", collection), "change bus message")
			}
			notify(collection)
		}
	}
}

// Ping verifies the connection is alive.
func (c *Client) Ping(ctx context.Context) error {
	return c.raw.Ping(ctx).Err()
}

// Close shuts the connection down.
func (c *Client) Close() error {
	return c.raw.Close()
}
