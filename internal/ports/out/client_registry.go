package out

import "context"

// ClientRegistry 本实例持有的客户端连接与本地 user↔channel 索引
// 仅用于本地扇出路由，从不持久化
type ClientRegistry interface {
	// ChannelUsers 频道在本实例上的在线用户
	ChannelUsers(channelID string) []string
	// IsConnected 用户是否连接在本实例
	IsConnected(userID string) bool
	// Push 把一帧推给本地用户连接
	Push(ctx context.Context, userID string, payload []byte) error
}
