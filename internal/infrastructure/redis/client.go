package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
)

// InvalidationChannel carries cache invalidation patterns between instances
const InvalidationChannel = "koravi:cache:invalidate"

// Client wraps the Redis client used as the cache invalidation bus
type Client struct {
	rdb    *redis.Client
	origin string
	logger *slog.Logger
}

// invalidation is the message published on InvalidationChannel
type invalidation struct {
	Origin   string   `json:"origin"`
	Patterns []string `json:"patterns"`
}

// NewClient connects to Redis and verifies the connection
func NewClient(ctx context.Context, url string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Client{rdb: rdb, origin: ulid.Make().String(), logger: logger}, nil
}

// Origin identifies this instance in published messages
func (c *Client) Origin() string {
	return c.origin
}

// Publish broadcasts invalidation patterns to the other instances
func (c *Client) Publish(ctx context.Context, patterns ...string) error {
	if len(patterns) == 0 {
		return nil
	}
	payload, err := encodeInvalidation(c.origin, patterns)
	if err != nil {
		return err
	}
	return c.rdb.Publish(ctx, InvalidationChannel, payload).Err()
}

// Subscribe delivers patterns published by other instances until ctx is
// cancelled. Messages from this instance are skipped.
func (c *Client) Subscribe(ctx context.Context, handle func(patterns []string)) error {
	sub := c.rdb.Subscribe(ctx, InvalidationChannel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", InvalidationChannel, err)
	}
	c.logger.Info("subscribed to cache invalidations", slog.String("channel", InvalidationChannel))

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			inv, err := decodeInvalidation(msg.Payload)
			if err != nil {
				c.logger.Warn("dropping malformed invalidation", slog.String("error", err.Error()))
				continue
			}
			if inv.Origin == c.origin {
				continue
			}
			handle(inv.Patterns)
		}
	}
}

// Ping checks connectivity
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func encodeInvalidation(origin string, patterns []string) (string, error) {
	b, err := json.Marshal(invalidation{Origin: origin, Patterns: patterns})
	if err != nil {
		return "", fmt.Errorf("encode invalidation: %w", err)
	}
	return string(b), nil
}

func decodeInvalidation(payload string) (invalidation, error) {
	var inv invalidation
	if err := json.Unmarshal([]byte(payload), &inv); err != nil {
		return inv, fmt.Errorf("decode invalidation: %w", err)
	}
	if len(inv.Patterns) == 0 {
		return inv, fmt.Errorf("decode invalidation: no patterns")
	}
	return inv, nil
}
