package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/LJTian/TickerNews/internal/logger"
)

const redisKeyPrefix = "tickernews:cache:"

// RedisBackend 网络缓存；条目带 Redis 过期时间，过期后由 Redis 自行淘汰
type RedisBackend struct {
	rdb *redis.Client
}

func OpenRedis(addr string) (*RedisBackend, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Log.Warnf("redis ping failed: %v", err)
	}
	return &RedisBackend{rdb: rdb}, nil
}

// NewRedisBackend 复用已有的客户端
func NewRedisBackend(rdb *redis.Client) *RedisBackend {
	return &RedisBackend{rdb: rdb}
}

func (r *RedisBackend) Load(ctx context.Context, key string) (*Entry, error) {
	bs, err := r.rdb.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var e Entry
	if err := json.Unmarshal(bs, &e); err != nil {
		return nil, fmt.Errorf("redis decode: %w", err)
	}
	return &e, nil
}

func (r *RedisBackend) Save(ctx context.Context, e *Entry) error {
	bs, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if err := r.rdb.Set(ctx, redisKeyPrefix+e.Key, bs, e.TTL).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (r *RedisBackend) Delete(ctx context.Context, key string) error {
	return r.rdb.Del(ctx, redisKeyPrefix+key).Err()
}

func (r *RedisBackend) Close() error {
	return r.rdb.Close()
}
