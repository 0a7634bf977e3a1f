package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/flicky/storybook-api/internal/model"
)

// CartRepository persists a full snapshot of a user's cart on every write.
type CartRepository interface {
	Load(ctx context.Context, userID uuid.UUID) ([]model.CartItem, error)
	Save(ctx context.Context, userID uuid.UUID, items []model.CartItem) error
	Delete(ctx context.Context, userID uuid.UUID) error
}

type redisCartRepo struct {
	client *redis.Client
	ttl    time.Duration
}

func NewCartRepository(client *redis.Client, ttl time.Duration) CartRepository {
	return &redisCartRepo{client: client, ttl: ttl}
}

func cartKey(userID uuid.UUID) string { return "cart:" + userID.String() }

func (r *redisCartRepo) Load(ctx context.Context, userID uuid.UUID) ([]model.CartItem, error) {
	raw, err := r.client.Get(ctx, cartKey(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("get cart: %w", err)
	}
	var items []model.CartItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decode cart: %w", err)
	}
	return items, nil
}

func (r *redisCartRepo) Save(ctx context.Context, userID uuid.UUID, items []model.CartItem) error {
	if len(items) == 0 {
		return r.Delete(ctx, userID)
	}
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode cart: %w", err)
	}
	if err := r.client.Set(ctx, cartKey(userID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("save cart: %w", err)
	}
	return nil
}

func (r *redisCartRepo) Delete(ctx context.Context, userID uuid.UUID) error {
	if err := r.client.Del(ctx, cartKey(userID)).Err(); err != nil {
		return fmt.Errorf("delete cart: %w", err)
	}
	return nil
}
