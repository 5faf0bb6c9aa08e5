package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/store"
)

const cartKeyPrefix = "pos:cart:"

// RedisCartRepository keeps each terminal's working cart as a JSON document
// that expires after ttl of inactivity.
type RedisCartRepository struct {
	client *redis.Client
	ttl    time.Duration
}

var _ store.CartRepository = (*RedisCartRepository)(nil)

func NewRedisCartRepository(addr string, password string, db int, ttl time.Duration) *RedisCartRepository {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return NewRedisCartRepositoryWithClient(client, ttl)
}

func NewRedisCartRepositoryWithClient(client *redis.Client, ttl time.Duration) *RedisCartRepository {
	return &RedisCartRepository{client: client, ttl: ttl}
}

func (c *RedisCartRepository) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCartRepository) Close() error {
	return c.client.Close()
}

func (c *RedisCartRepository) Load(ctx context.Context, terminalID string) (*domain.Cart, error) {
	val, err := c.client.Get(ctx, cartKey(terminalID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load cart %s: %w", terminalID, err)
	}

	var cart domain.Cart
	if err := json.Unmarshal(val, &cart); err != nil {
		return nil, fmt.Errorf("decode cart %s: %w", terminalID, err)
	}
	return &cart, nil
}

func (c *RedisCartRepository) Save(ctx context.Context, cart domain.Cart) error {
	if cart.TerminalID == "" {
		return store.ErrInvalidTransaction
	}
	payload, err := json.Marshal(cart)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, cartKey(cart.TerminalID), payload, c.ttl).Err()
}

func (c *RedisCartRepository) Delete(ctx context.Context, terminalID string) error {
	return c.client.Del(ctx, cartKey(terminalID)).Err()
}

func cartKey(terminalID string) string {
	return cartKeyPrefix + terminalID
}
