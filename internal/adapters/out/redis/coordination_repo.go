package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aurora-im/eventfabric/internal/ports/out"
)

// CoordinationRepositoryRedis 消费者成员与租约仓储的 Redis 实现
type CoordinationRepositoryRedis struct {
	client *redis.Client
}

func NewCoordinationRepositoryRedis(client *redis.Client) out.CoordinationRepository {
	return &CoordinationRepositoryRedis{client: client}
}

func (r *CoordinationRepositoryRedis) RegisterConsumer(ctx context.Context, consumerID string) error {
	return r.client.SAdd(ctx, consumersKey, consumerID).Err()
}

func (r *CoordinationRepositoryRedis) UnregisterConsumer(ctx context.Context, consumerID string) error {
	return r.client.SRem(ctx, consumersKey, consumerID).Err()
}

func (r *CoordinationRepositoryRedis) Consumers(ctx context.Context) ([]string, error) {
	return r.client.SMembers(ctx, consumersKey).Result()
}

func (r *CoordinationRepositoryRedis) SendHeartbeat(ctx context.Context, consumerID string, ttl time.Duration) error {
	return r.client.Set(ctx, heartbeatKey(consumerID), "alive", ttl).Err()
}

// HeartbeatTTL 心跳键不存在或无 TTL 时返回负值
func (r *CoordinationRepositoryRedis) HeartbeatTTL(ctx context.Context, consumerID string) (time.Duration, error) {
	return r.client.TTL(ctx, heartbeatKey(consumerID)).Result()
}

// AssignLeases 事务流水线里先删后写，整体覆盖租约表
func (r *CoordinationRepositoryRedis) AssignLeases(ctx context.Context, leases map[int]string) error {
	values := make(map[string]interface{}, len(leases))
	for shard, consumer := range leases {
		values[StreamName(shard)] = consumer
	}
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, leasesKey)
	pipe.HSet(ctx, leasesKey, values)
	_, err := pipe.Exec(ctx)
	return err
}

func (r *CoordinationRepositoryRedis) LeasedStreams(ctx context.Context, consumerID string) ([]string, error) {
	leases, err := r.client.HGetAll(ctx, leasesKey).Result()
	if err != nil {
		return nil, err
	}
	var streams []string
	for stream, consumer := range leases {
		if consumer == consumerID {
			streams = append(streams, stream)
		}
	}
	return streams, nil
}
