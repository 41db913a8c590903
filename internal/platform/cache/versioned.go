package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultVersionKey = "finboard:reference:version"
	// BumpChannel carries version bumps between processes sharing a Redis.
	BumpChannel = "finboard.reference.bump"
)

// Versioned caches JSON payloads under keys suffixed with a global version.
// Bumping the version invalidates every key at once; stale keys expire by TTL.
// A nil *Versioned or one without a client calls loaders directly.
type Versioned struct {
	client     *redis.Client
	ttl        time.Duration
	versionKey string
}

// NewVersioned instantiates the cache helper.
func NewVersioned(client *redis.Client, ttl time.Duration) *Versioned {
	return &Versioned{client: client, ttl: ttl, versionKey: defaultVersionKey}
}

// Version returns the current cache version, initialising when missing.
func (c *Versioned) Version(ctx context.Context) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, c.versionKey).Int64()
	if errors.Is(err, redis.Nil) {
		// SETNX so concurrent initialisers agree on the first version.
		if err := c.client.SetNX(ctx, c.versionKey, 1, 0).Err(); err != nil {
			return 0, fmt.Errorf("platform/cache: init version: %w", err)
		}
		return c.client.Get(ctx, c.versionKey).Int64()
	}
	if err != nil {
		return 0, fmt.Errorf("platform/cache: version: %w", err)
	}
	if ver <= 0 {
		ver = 1
		if err := c.client.Set(ctx, c.versionKey, ver, 0).Err(); err != nil {
			return 0, fmt.Errorf("platform/cache: reset version: %w", err)
		}
	}
	return ver, nil
}

// BuildKey composes the cache key with the current version.
func (c *Versioned) BuildKey(ctx context.Context, parts ...string) (string, error) {
	joined := strings.Join(parts, ":")
	if c == nil || c.client == nil {
		return joined, nil
	}
	ver, err := c.Version(ctx)
	if err != nil {
		return "", err
	}
	return joined + ":" + strconv.FormatInt(ver, 10), nil
}

// FetchJSON returns the cached value for key or populates it using loader.
func FetchJSON[T any](ctx context.Context, c *Versioned, key string, loader func(context.Context) (T, error)) (T, error) {
	var zero T
	if loader == nil {
		return zero, errors.New("platform/cache: loader required")
	}
	if c == nil || c.client == nil {
		return loader(ctx)
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var cached T
		if err := json.Unmarshal(payload, &cached); err == nil {
			return cached, nil
		}
		// Undecodable payloads are treated as misses and overwritten below.
	} else if !errors.Is(err, redis.Nil) {
		return zero, fmt.Errorf("platform/cache: get %s: %w", key, err)
	}
	value, err := loader(ctx)
	if err != nil {
		return zero, err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return zero, fmt.Errorf("platform/cache: encode %s: %w", key, err)
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		return zero, fmt.Errorf("platform/cache: set %s: %w", key, err)
	}
	return value, nil
}

// Bump invalidates the cache by incrementing the version and publishing it.
func (c *Versioned) Bump(ctx context.Context) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	ver, err := c.client.Incr(ctx, c.versionKey).Result()
	if err != nil {
		return 0, fmt.Errorf("platform/cache: bump: %w", err)
	}
	if err := c.client.Publish(ctx, BumpChannel, strconv.FormatInt(ver, 10)).Err(); err != nil {
		return ver, fmt.Errorf("platform/cache: publish bump: %w", err)
	}
	return ver, nil
}

// ListenForInvalidation subscribes to version bump notifications published by
// other Redis deployments mirrored onto this one and fast-forwards the local
// version. It returns once the subscription is confirmed.
func (c *Versioned) ListenForInvalidation(ctx context.Context, channel string) error {
	if c == nil || c.client == nil {
		return nil
	}
	if channel == "" {
		channel = BumpChannel
	}
	pubsub := c.client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("platform/cache: subscribe %s: %w", channel, err)
	}
	go func() {
		defer func() { _ = pubsub.Close() }()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				c.fastForward(ctx, msg.Payload)
			}
		}
	}()
	return nil
}

func (c *Versioned) fastForward(ctx context.Context, payload string) {
	remote, err := strconv.ParseInt(payload, 10, 64)
	if err != nil {
		_ = c.client.Incr(ctx, c.versionKey).Err()
		return
	}
	current, err := c.client.Get(ctx, c.versionKey).Int64()
	if err == nil && current >= remote {
		return
	}
	_ = c.client.Set(ctx, c.versionKey, remote, 0).Err()
}
