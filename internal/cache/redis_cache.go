package cache

import (
	"allocation-service/internal/entity"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/go-redis/redis/v8"
	"time"
)

const (
	ruleKeyPrefix  = "allocation_rules"
	ruleKeySet     = "allocation_rules:keys"
	orderSequence  = "allocation:order_seq"
	orderIDStart   = 1000
	idempotencyKey = "idempotent-key:%s"
)

// RedisCache keeps the rule cache, idempotency keys and the order id sequence.
type RedisCache struct {
	rdb           *redis.Client
	ruleTTL       time.Duration
	idempotentTTL time.Duration
}

func NewRedisCache(rdb *redis.Client, ruleTTL, idempotentTTL time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ruleTTL: ruleTTL, idempotentTTL: idempotentTTL}
}

func ruleKey(companyID int) string {
	return fmt.Sprintf("%s:%d", ruleKeyPrefix, companyID)
}

// GetRules returns the cached rules of a company; ok is false on a cache miss.
func (c *RedisCache) GetRules(ctx context.Context, companyID int) ([]*entity.AllocationRule, bool, error) {
	data, err := c.rdb.Get(ctx, ruleKey(companyID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}

	var rules []*entity.AllocationRule
	if err := json.Unmarshal([]byte(data), &rules); err != nil {
		return nil, false, fmt.Errorf("could not unmarshal cached rules: %w", err)
	}
	return rules, true, nil
}

func (c *RedisCache) SetRules(ctx context.Context, companyID int, rules []*entity.AllocationRule) error {
	data, err := json.Marshal(rules)
	if err != nil {
		return err
	}

	key := ruleKey(companyID)
	pipe := c.rdb.TxPipeline()
	pipe.Set(ctx, key, data, c.ruleTTL)
	pipe.SAdd(ctx, ruleKeySet, key)
	_, err = pipe.Exec(ctx)
	return err
}

// InvalidateRules drops every cached rule list. Any rule may be company-less and
// so appear in every company's list.
func (c *RedisCache) InvalidateRules(ctx context.Context) error {
	keys, err := c.rdb.SMembers(ctx, ruleKeySet).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	keys = append(keys, ruleKeySet)
	return c.rdb.Del(ctx, keys...).Err()
}

// ClaimIdempotentKey returns false when the key has already been used.
func (c *RedisCache) ClaimIdempotentKey(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return true, nil
	}
	return c.rdb.SetNX(ctx, fmt.Sprintf(idempotencyKey, key), "exists", c.idempotentTTL).Result()
}

// ReleaseIdempotentKey frees a key whose request was rejected before anything was stored.
func (c *RedisCache) ReleaseIdempotentKey(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	return c.rdb.Del(ctx, fmt.Sprintf(idempotencyKey, key)).Err()
}

// NextOrderID hands out order ids shared by every shard.
func (c *RedisCache) NextOrderID(ctx context.Context) (int, error) {
	n, err := c.rdb.Incr(ctx, orderSequence).Result()
	if err != nil {
		return 0, err
	}
	return orderIDStart + int(n), nil
}
