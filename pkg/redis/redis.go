package storage

import (
	"context"
	"time"

	"github.com/AksharDP/modhub/pkg/logger"
	"github.com/AksharDP/modhub/pkg/utils"
	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

type RedisClient struct {
	*redis.Client
}

// NewRedis initializes a Redis client with context.
func NewRedis(ctx context.Context, addr, password string, db int) (*RedisClient, error) {
	if err := ctx.Err(); err != nil {
		return nil, utils.WrapError(err, utils.ErrInternalServerError.Code, "redis initialization canceled")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, utils.NewError(utils.ErrInternalServerError.Code, "Failed to connect to Redis", err.Error())
	}

	return &RedisClient{client}, nil
}

// Close shuts down the Redis connection.
func (r *RedisClient) Close(log *logger.Logger) error {
	if err := r.Client.Close(); err != nil {
		log.Error(context.Background()).WithMeta(map[string]string{"error": err.Error()}).Logs("Redis close failed")
		return utils.NewError(utils.ErrInternalServerError.Code, "Failed to close Redis", err.Error())
	}
	log.Info(context.Background()).Logs("Redis connection closed successfully")
	return nil
}

// SetJSON stores v as JSON under key.
func (r *RedisClient) SetJSON(ctx context.Context, key string, v interface{}, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return r.Set(ctx, key, data, ttl).Err()
}

// GetJSON loads key into v. It reports false on a cache miss.
func (r *RedisClient) GetJSON(ctx context.Context, key string, v interface{}) (bool, error) {
	data, err := r.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, err
	}
	return true, nil
}

// Invalidate deletes cache keys, ignoring ones that do not exist.
func (r *RedisClient) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return r.Del(ctx, keys...).Err()
}

// InvalidatePrefix deletes every key starting with prefix.
func (r *RedisClient) InvalidatePrefix(ctx context.Context, prefix string) error {
	iter := r.Scan(ctx, 0, prefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	return r.Invalidate(ctx, keys...)
}

// Once reports true the first time key is seen within ttl.
func (r *RedisClient) Once(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return r.SetNX(ctx, key, 1, ttl).Result()
}

// Hit increments a windowed counter and returns its new value. The window starts at the first hit.
func (r *RedisClient) Hit(ctx context.Context, key string, window time.Duration) (int64, error) {
	n, err := r.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if n == 1 {
		if err := r.Expire(ctx, key, window).Err(); err != nil {
			return n, err
		}
	}
	return n, nil
}
