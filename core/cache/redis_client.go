package cache

import (
	"context"
	"time"

	"github.com/gogf/gf/v2/frame/g"
	"github.com/redis/go-redis/v9"
)

const runLockKeyPrefix = "cot:run:"

var rdb *redis.Client

// releaseLock 只删除值等于 owner 的锁
var releaseLock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// InitRedis 按 redis.* 配置连接，Ping 失败时不保留客户端
func InitRedis(ctx context.Context) error {
	cfg := g.Cfg()
	opts := &redis.Options{
		Addr:         cfg.MustGet(ctx, "redis.address", "localhost:6379").String(),
		Password:     cfg.MustGet(ctx, "redis.password", "").String(),
		DB:           cfg.MustGet(ctx, "redis.db", 0).Int(),
		MaxRetries:   cfg.MustGet(ctx, "redis.maxRetries", 3).Int(),
		PoolSize:     cfg.MustGet(ctx, "redis.poolSize", 10).Int(),
		MinIdleConns: cfg.MustGet(ctx, "redis.minIdleConns", 2).Int(),
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		g.Log().Errorf(ctx, "Redis connection to %s failed: %v", opts.Addr, err)
		_ = client.Close()
		return err
	}

	rdb = client
	g.Log().Infof(ctx, "Redis initialized: %s, db=%d", opts.Addr, opts.DB)
	return nil
}

// SetRedisClient 注入已有客户端（测试或外部管理连接时使用）
func SetRedisClient(client *redis.Client) {
	rdb = client
}

// GetRedisClient 未初始化时返回 nil
func GetRedisClient() *redis.Client {
	return rdb
}

// CloseRedis 关闭连接
func CloseRedis(ctx context.Context) error {
	if rdb == nil {
		return nil
	}
	g.Log().Info(ctx, "Closing Redis connection")
	err := rdb.Close()
	rdb = nil
	return err
}

// AcquireRunLock 跨实例占用会话的运行锁，已被占用时返回 false；未启用 Redis 时总是成功
func AcquireRunLock(ctx context.Context, threadID, owner string, ttl time.Duration) (bool, error) {
	if rdb == nil {
		return true, nil
	}
	return rdb.SetNX(ctx, runLockKeyPrefix+threadID, owner, ttl).Result()
}

// ReleaseRunLock 释放自己持有的运行锁，锁已过期或被他人持有时什么都不做
func ReleaseRunLock(ctx context.Context, threadID, owner string) error {
	if rdb == nil {
		return nil
	}
	return releaseLock.Run(ctx, rdb, []string{runLockKeyPrefix + threadID}, owner).Err()
}
