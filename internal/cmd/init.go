package cmd

import (
	"context"

	"github.com/Malowking/finrag/core/cache"
	"github.com/Malowking/finrag/core/config"
	"github.com/Malowking/finrag/internal/logic/cot"
	"github.com/Malowking/finrag/pkg/schema"
	"github.com/gogf/gf/v2/frame/g"
)

// InitAll initializes all components of the application, the returned func releases them
func InitAll(ctx context.Context) func() {
	// Validate configuration before initializing components
	g.Log().Info(ctx, "Validating application configuration...")
	err := config.ValidateConfiguration(ctx)
	if err != nil {
		g.Log().Fatalf(ctx, "Configuration validation failed:\n%v", err)
	}

	// Redis 可选：用于跨实例运行锁和进度回放
	if g.Cfg().MustGet(ctx, "redis.enabled", false).Bool() {
		if err = cache.InitRedis(ctx); err != nil {
			g.Log().Warningf(ctx, "Redis unavailable, progress replay and cross-instance locks disabled: %v", err)
		} else {
			schema.SetRedisStreamConfig(
				g.Cfg().MustGet(ctx, "redis.streamTTL", "10m").Duration(),
				g.Cfg().MustGet(ctx, "redis.streamMaxLen", 1000).Int64(),
			)
		}
	}

	// Initialize reasoning workflow
	closeIndexes, err := cot.InitCot(ctx)
	if err != nil {
		g.Log().Fatalf(ctx, "Reasoning workflow initialization failed: %v", err)
	}

	g.Log().Info(ctx, "✓ All components initialized successfully")
	return func() {
		closeIndexes()
		if err := cache.CloseRedis(ctx); err != nil {
			g.Log().Warningf(ctx, "Failed to close redis: %v", err)
		}
	}
}
