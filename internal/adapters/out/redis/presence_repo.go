package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/aurora-im/eventfabric/internal/ports/out"
)

const (
	// 频道端点集合的过期时间，每次写入刷新
	channelEndpointTTL = 10 * time.Minute
	// 频道成员缓存的过期时间（回源 CRUD 后写入）
	userChannelCacheTTL = 2 * time.Minute
)

// PresenceRepositoryRedis Redis 在线端点仓储实现
type PresenceRepositoryRedis struct {
	client     *redis.Client
	memberRepo out.MemberRepository
}

func NewPresenceRepositoryRedis(client *redis.Client, memberRepo out.MemberRepository) out.PresenceRepository {
	return &PresenceRepositoryRedis{client: client, memberRepo: memberRepo}
}

func (r *PresenceRepositoryRedis) SetUserEndpoint(ctx context.Context, userID, endpoint string, ttl time.Duration) error {
	return r.client.Set(ctx, userEndpointKey(userID), endpoint, ttl).Err()
}

func (r *PresenceRepositoryRedis) DeleteUserEndpoint(ctx context.Context, userID string) error {
	return r.client.Del(ctx, userEndpointKey(userID)).Err()
}

// UserEndpoint 用户离线时返回空列表，不是错误
func (r *PresenceRepositoryRedis) UserEndpoint(ctx context.Context, userID string) ([]string, error) {
	endpoint, err := r.client.Get(ctx, userEndpointKey(userID)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	return []string{endpoint}, nil
}

func (r *PresenceRepositoryRedis) AddChannelEndpoint(ctx context.Context, channelID, endpoint string) error {
	key := channelEndpointsKey(channelID)
	pipe := r.client.Pipeline()
	pipe.SAdd(ctx, key, endpoint)
	pipe.Expire(ctx, key, channelEndpointTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// RemoveChannelEndpoint 集合清空后删除整个键
func (r *PresenceRepositoryRedis) RemoveChannelEndpoint(ctx context.Context, channelID, endpoint string) error {
	key := channelEndpointsKey(channelID)
	if err := r.client.SRem(ctx, key, endpoint).Err(); err != nil {
		return err
	}
	count, err := r.client.SCard(ctx, key).Result()
	if err != nil {
		return err
	}
	if count == 0 {
		return r.client.Del(ctx, key).Err()
	}
	return nil
}

func (r *PresenceRepositoryRedis) ChannelEndpoints(ctx context.Context, channelID string) ([]string, error) {
	return r.client.SMembers(ctx, channelEndpointsKey(channelID)).Result()
}

// UserChannels 先查存储缓存，未命中回源 CRUD 协作方并写回
func (r *PresenceRepositoryRedis) UserChannels(ctx context.Context, userID string) ([]string, error) {
	key := userChannelsKey(userID)

	exists, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	if exists > 0 {
		return r.client.SMembers(ctx, key).Result()
	}

	if r.memberRepo == nil {
		return nil, nil
	}
	channels, err := r.memberRepo.ListUserChannels(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(channels) == 0 {
		return nil, nil
	}

	members := make([]interface{}, len(channels))
	for i, c := range channels {
		members[i] = c
	}
	pipe := r.client.Pipeline()
	pipe.SAdd(ctx, key, members...)
	pipe.Expire(ctx, key, userChannelCacheTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		zap.L().Warn("Failed to cache user channels", zap.String("user_id", userID), zap.Error(err))
	}
	return channels, nil
}
