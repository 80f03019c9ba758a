package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Connect 建立 Redis 连接并 PING 验证，失败按固定间隔重试
// 重试耗尽后返回错误，由调用方决定是否致命
func Connect(ctx context.Context, opts *redis.Options, attempts int) (*redis.Client, error) {
	var lastErr error
	for i := 0; i < attempts; i++ {
		client := redis.NewClient(opts)

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := client.Ping(pingCtx).Err()
		cancel()
		if err == nil {
			zap.L().Info("Connected to Redis", zap.String("addr", opts.Addr))
			return client, nil
		}

		lastErr = err
		_ = client.Close()
		zap.L().Error("Failed to connect to Redis",
			zap.Int("attempt", i+1), zap.Error(err))

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
	return nil, fmt.Errorf("failed to connect to redis after %d attempts: %w", attempts, lastErr)
}
