package ws

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/aurora-im/eventfabric/internal/ports/in"
	"github.com/aurora-im/eventfabric/internal/ports/out"
)

const (
	// 心跳周期
	pingPeriod = 30 * time.Second
	// 读超时
	pongWait = 60 * time.Second
	// 写超时
	writeWait = 10 * time.Second
	// 最大消息大小
	maxMessageSize = 64 * 1024 // 64KB
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // 生产环境应该验证Origin
	},
}

// CurrentUser 通过令牌验证出的客户端身份
type CurrentUser struct {
	UserID    string
	Name      string
	ExpiresAt time.Time
}

// Hub 管理本实例持有的全部客户端连接
// 连接时写入在线端点并重建本地索引，断开时拆除
// 同时实现 out.ClientRegistry 供本地投递用例使用
type Hub struct {
	endpoint string // 本实例对外的 RPC 端点
	presence out.PresenceRepository
	ingest   in.IngestUseCase
	logger   *zap.Logger

	mu      sync.RWMutex
	clients map[string]*Client
	index   *UserChannelIndex
}

func NewHub(endpoint string, presence out.PresenceRepository, ingest in.IngestUseCase, logger *zap.Logger) *Hub {
	return &Hub{
		endpoint: endpoint,
		presence: presence,
		ingest:   ingest,
		logger:   logger,
		clients:  make(map[string]*Client),
		index:    NewUserChannelIndex(),
	}
}

// ServeWs 处理WebSocket连接请求
func (h *Hub) ServeWs(w http.ResponseWriter, r *http.Request, user CurrentUser) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("WebSocket upgrade failed", zap.Error(err))
		return
	}

	client := &Client{
		hub:    h,
		conn:   conn,
		userID: user.UserID,
		name:   user.Name,
		send:   make(chan []byte, 256),
	}

	if err := h.addClient(r.Context(), client, user); err != nil {
		h.logger.Error("Failed to register client",
			zap.String("user_id", user.UserID), zap.Error(err))
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// addClient 注册连接：写入在线端点（TTL 为令牌剩余有效期）、
// 回源频道成员、把本实例端点挂到每个频道并更新本地索引
// 前置步骤全部成功后才把连接登记进 clients，
// 失败的握手不能在注册表里留下无人读取的残影
func (h *Hub) addClient(ctx context.Context, client *Client, user CurrentUser) error {
	ttl := time.Until(user.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("token for user %s already expired", user.UserID)
	}
	if err := h.presence.SetUserEndpoint(ctx, user.UserID, h.endpoint, ttl); err != nil {
		return fmt.Errorf("set user endpoint: %w", err)
	}

	channels, err := h.presence.UserChannels(ctx, user.UserID)
	if err != nil {
		if delErr := h.presence.DeleteUserEndpoint(ctx, user.UserID); delErr != nil {
			h.logger.Warn("Failed to roll back user endpoint",
				zap.String("user_id", user.UserID), zap.Error(delErr))
		}
		return fmt.Errorf("fetch user channels: %w", err)
	}

	h.mu.Lock()
	if old, ok := h.clients[user.UserID]; ok {
		old.Close()
	}
	h.clients[user.UserID] = client
	h.mu.Unlock()

	for _, channelID := range channels {
		h.index.Add(user.UserID, channelID)
		if err := h.presence.AddChannelEndpoint(ctx, channelID, h.endpoint); err != nil {
			h.logger.Warn("Failed to add endpoint to channel",
				zap.String("channel_id", channelID), zap.Error(err))
		}
	}

	h.logger.Info("Client connected",
		zap.String("user_id", user.UserID), zap.Int("channels", len(channels)))
	return nil
}

// removeClient 注销连接：拆本地索引，清掉变空频道上的端点，删在线记录
func (h *Hub) removeClient(ctx context.Context, client *Client) {
	h.mu.Lock()
	if current, ok := h.clients[client.userID]; ok && current == client {
		delete(h.clients, client.userID)
	} else {
		// 已被新连接顶替，索引和在线记录归新连接所有
		h.mu.Unlock()
		return
	}
	h.mu.Unlock()

	emptied := h.index.RemoveUser(client.userID)
	for _, channelID := range emptied {
		if err := h.presence.RemoveChannelEndpoint(ctx, channelID, h.endpoint); err != nil {
			h.logger.Warn("Failed to remove endpoint from channel",
				zap.String("channel_id", channelID), zap.Error(err))
		}
	}
	if err := h.presence.DeleteUserEndpoint(ctx, client.userID); err != nil {
		h.logger.Warn("Failed to delete user endpoint",
			zap.String("user_id", client.userID), zap.Error(err))
	}

	h.logger.Info("Client disconnected",
		zap.String("user_id", client.userID), zap.Int("emptied_channels", len(emptied)))
}

// ChannelUsers 实现 out.ClientRegistry
func (h *Hub) ChannelUsers(channelID string) []string {
	return h.index.ChannelUsers(channelID)
}

// IsConnected 实现 out.ClientRegistry
func (h *Hub) IsConnected(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[userID]
	return ok
}

// Push 实现 out.ClientRegistry，把一帧推给本地用户连接
func (h *Hub) Push(_ context.Context, userID string, payload []byte) error {
	h.mu.RLock()
	client, ok := h.clients[userID]
	h.mu.RUnlock()
	if !ok {
		return fmt.Errorf("client %s not connected", userID)
	}

	if err := client.enqueue(payload); err != nil {
		if errors.Is(err, errSendBufferFull) {
			// 发送缓冲打满说明连接已经不健康
			go client.Close()
		}
		return fmt.Errorf("push to client %s: %w", userID, err)
	}
	return nil
}

// OnlineCount 当前在线连接数
func (h *Hub) OnlineCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stop 关闭全部客户端连接
func (h *Hub) Stop(ctx context.Context) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.Close()
		h.removeClient(ctx, c)
	}
}
