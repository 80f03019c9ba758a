package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/aurora-im/eventfabric/internal/domain/entity"
)

// Client WebSocket客户端连接
// 入站帧是一帧一个 JSON 事件，sender_id 以认证身份为准
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID string
	name   string
	send   chan []byte
	closed bool
	mu     sync.Mutex
}

var errSendBufferFull = errors.New("send buffer full")

// Close 关闭客户端连接
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
	if c.conn != nil {
		c.conn.Close()
	}
}

// enqueue 把一帧放进发送缓冲
// 与 Close 共用一把锁，保证不会写已关闭的通道
func (c *Client) enqueue(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- payload:
		return nil
	default:
		return errSendBufferFull
	}
}

// readPump 读取客户端事件并交给攒批调度
func (c *Client) readPump() {
	defer func() {
		c.hub.removeClient(context.Background(), c)
		c.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("WebSocket read error",
					zap.String("user_id", c.userID), zap.Error(err))
			}
			break
		}
		c.handleFrame(message)
	}
}

// handleFrame 解析一帧事件，补全服务端字段后提交
func (c *Client) handleFrame(data []byte) {
	var event entity.Event
	if err := json.Unmarshal(data, &event); err != nil {
		c.hub.logger.Warn("Invalid event frame",
			zap.String("user_id", c.userID), zap.Error(err))
		return
	}

	// sender 永远取认证身份，客户端给的值不可信
	event.SenderID = c.userID
	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}
	if event.Timestamp == "" {
		event.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}

	if err := c.hub.ingest.Submit(context.Background(), &event); err != nil {
		c.hub.logger.Warn("Rejected inbound event",
			zap.String("user_id", c.userID), zap.Error(err))
	}
}

// writePump 把出站帧写到连接，周期性发 Ping
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
