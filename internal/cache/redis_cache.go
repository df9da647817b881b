package cache

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"

	"cicilanpos/backend/internal/domain"
)

type RedisPlanProjectionCache struct {
	client *redis.Client
}

func NewRedisPlanProjectionCache(addr string, password string, db int) *RedisPlanProjectionCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisPlanProjectionCache{client: client}
}

func (c *RedisPlanProjectionCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisPlanProjectionCache) Close() error {
	return c.client.Close()
}

func (c *RedisPlanProjectionCache) Get(ctx context.Context, planID string) (*domain.PlanProjection, bool, error) {
	val, err := c.client.Get(ctx, key(planID)).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var projection domain.PlanProjection
	if err := json.Unmarshal([]byte(val), &projection); err != nil {
		return nil, false, err
	}
	return &projection, true, nil
}

func (c *RedisPlanProjectionCache) Set(ctx context.Context, planID string, value *domain.PlanProjection, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key(planID), payload, ttl).Err()
}

func (c *RedisPlanProjectionCache) Invalidate(ctx context.Context, planID string) error {
	return c.client.Del(ctx, key(planID)).Err()
}

func key(planID string) string {
	return "plan-projection:" + planID
}
