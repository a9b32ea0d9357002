package utils

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// ErrCacheMiss 键不存在或缓存未启用
var ErrCacheMiss = errors.New("cache miss")

// Cache Redis JSON 缓存。没有客户端的 Cache 处于禁用状态：
// 读取总是未命中，写入不做任何事
type Cache struct {
	rdb *redis.Client
}

// NewCache 包装 rdb，rdb 可以为 nil
func NewCache(rdb *redis.Client) *Cache {
	return &Cache{rdb: rdb}
}

// Enabled 是否连接了 Redis 客户端
func (c *Cache) Enabled() bool {
	return c != nil && c.rdb != nil
}

// Set 以 JSON 存储 value
func (c *Cache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if !c.Enabled() {
		return nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value: %w", err)
	}
	return c.rdb.Set(ctx, key, data, expiration).Err()
}

// Get 读取 key 到 dest
func (c *Cache) Get(ctx context.Context, key string, dest interface{}) error {
	if !c.Enabled() {
		return ErrCacheMiss
	}
	data, err := c.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return ErrCacheMiss
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

// Delete 删除键
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if !c.Enabled() || len(keys) == 0 {
		return nil
	}
	return c.rdb.Del(ctx, keys...).Err()
}

// Counter 读取整数键，不存在时为 0
func (c *Cache) Counter(ctx context.Context, key string) (int64, error) {
	if !c.Enabled() {
		return 0, nil
	}
	n, err := c.rdb.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return n, err
}

// Incr 整数键自增
func (c *Cache) Incr(ctx context.Context, key string) (int64, error) {
	if !c.Enabled() {
		return 0, nil
	}
	return c.rdb.Incr(ctx, key).Result()
}

// GetCacheKey 用 ':' 拼接前缀和各部分
func GetCacheKey(prefix string, keys ...string) string {
	key := prefix
	for _, k := range keys {
		key += ":" + k
	}
	return key
}

// TryLock SET NX key=token 并设置 ttl。缓存未启用时总是获得锁，
// 单实例在没有 Redis 时也能继续工作
func (c *Cache) TryLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	if !c.Enabled() {
		return true, nil
	}
	return c.rdb.SetNX(ctx, key, token, ttl).Result()
}

// unlockScript 只有键仍持有调用方的 token 时才删除
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Unlock 释放 TryLock 获得的锁。已过期并被他人获取的锁不会被删除，
// released 表示释放的是否是自己的锁
func (c *Cache) Unlock(ctx context.Context, key, token string) (released bool, err error) {
	if !c.Enabled() {
		return true, nil
	}
	n, err := unlockScript.Run(ctx, c.rdb, []string{key}, token).Int64()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
