package out

import (
	"context"
	"time"
)

// CoordinationRepository 消费者成员与租约仓储接口
type CoordinationRepository interface {
	// RegisterConsumer 把消费者加入注册集合
	RegisterConsumer(ctx context.Context, consumerID string) error
	// UnregisterConsumer 从注册集合移除消费者
	UnregisterConsumer(ctx context.Context, consumerID string) error
	// Consumers 返回注册集合中的全部消费者
	Consumers(ctx context.Context) ([]string, error)
	// SendHeartbeat 写入带 TTL 的心跳键
	SendHeartbeat(ctx context.Context, consumerID string, ttl time.Duration) error
	// HeartbeatTTL 心跳键的剩余 TTL，已过期返回 <=0
	HeartbeatTTL(ctx context.Context, consumerID string) (time.Duration, error)
	// AssignLeases 整体覆盖租约表（分片 -> 消费者）
	AssignLeases(ctx context.Context, leases map[int]string) error
	// LeasedStreams 返回租给该消费者的全部流名
	LeasedStreams(ctx context.Context, consumerID string) ([]string, error)
}
