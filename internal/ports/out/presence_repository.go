package out

import (
	"context"
	"time"
)

// PresenceRepository 在线端点仓储接口
// 记录"哪个网关实例当前服务用户 X / 频道 Y"
type PresenceRepository interface {
	// SetUserEndpoint 写入用户的服务端点，TTL 为令牌剩余有效期
	SetUserEndpoint(ctx context.Context, userID, endpoint string, ttl time.Duration) error
	// DeleteUserEndpoint 删除用户的服务端点
	DeleteUserEndpoint(ctx context.Context, userID string) error
	// UserEndpoint 查询用户的服务端点，离线返回空列表
	UserEndpoint(ctx context.Context, userID string) ([]string, error)
	// AddChannelEndpoint 把端点加入频道的服务端点集合并刷新 TTL
	AddChannelEndpoint(ctx context.Context, channelID, endpoint string) error
	// RemoveChannelEndpoint 从频道集合移除端点，集合空则删除
	RemoveChannelEndpoint(ctx context.Context, channelID, endpoint string) error
	// ChannelEndpoints 查询频道的全部服务端点
	ChannelEndpoints(ctx context.Context, channelID string) ([]string, error)
	// UserChannels 查询用户所属频道，缓存未命中时回源 CRUD 协作方
	UserChannels(ctx context.Context, userID string) ([]string, error)
}

// MemberRepository 频道成员关系协作方（CRUD 层）
// 仅在存储缓存未命中时回源
type MemberRepository interface {
	ListUserChannels(ctx context.Context, userID string) ([]string, error)
}
