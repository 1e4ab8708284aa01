// Package cache holds commission rates in Redis so the distributor does not
// hit Postgres for every transaction. The cache is advisory: errors are
// logged and the caller falls back to the database.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"reseller-ledger/internal/domain"
	"reseller-ledger/internal/logger"
)

type RateCache interface {
	Get(ctx context.Context, service domain.ServiceID, planID int64) (*domain.ServiceCommissionRate, bool)
	Set(ctx context.Context, rate *domain.ServiceCommissionRate)
	Invalidate(ctx context.Context, service domain.ServiceID, planID int64)
}

func RateKey(service domain.ServiceID, planID int64) string {
	return fmt.Sprintf("rate:%s:%d", service, planID)
}

// Connect opens a Redis client and checks it with a ping.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis at %s: %w", addr, err)
	}
	return rdb, nil
}

type redisRateCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewRedisRateCache(client redis.Cmdable, ttl time.Duration) RateCache {
	return &redisRateCache{client: client, ttl: ttl}
}

func (c *redisRateCache) Get(ctx context.Context, service domain.ServiceID, planID int64) (*domain.ServiceCommissionRate, bool) {
	key := RateKey(service, planID)
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.Warn("Rate cache read failed", "key", key, "error", err)
		}
		return nil, false
	}
	rate, err := decodeRate(data)
	if err != nil {
		logger.Warn("Discarding undecodable cached rate", "key", key, "error", err)
		return nil, false
	}
	return rate, true
}

func (c *redisRateCache) Set(ctx context.Context, rate *domain.ServiceCommissionRate) {
	key := RateKey(rate.Service, rate.PlanID)
	data, err := json.Marshal(rate)
	if err != nil {
		logger.Warn("Failed to encode rate for cache", "key", key, "error", err)
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		logger.Warn("Rate cache write failed", "key", key, "error", err)
	}
}

func (c *redisRateCache) Invalidate(ctx context.Context, service domain.ServiceID, planID int64) {
	key := RateKey(service, planID)
	if err := c.client.Del(ctx, key).Err(); err != nil {
		logger.Warn("Rate cache invalidation failed", "key", key, "error", err)
	}
}

func decodeRate(data []byte) (*domain.ServiceCommissionRate, error) {
	rate := &domain.ServiceCommissionRate{}
	if err := json.Unmarshal(data, rate); err != nil {
		return nil, err
	}
	return rate, nil
}

type nopRateCache struct{}

// NewNopRateCache returns a cache that never hits.
func NewNopRateCache() RateCache { return nopRateCache{} }

func (nopRateCache) Get(context.Context, domain.ServiceID, int64) (*domain.ServiceCommissionRate, bool) {
	return nil, false
}
func (nopRateCache) Set(context.Context, *domain.ServiceCommissionRate)  {}
func (nopRateCache) Invalidate(context.Context, domain.ServiceID, int64) {}
