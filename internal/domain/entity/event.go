package entity

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType 事件类型
type EventType string

const (
	EventTypeMessage       EventType = "message"
	EventTypeCall          EventType = "call"
	EventTypeNotification  EventType = "notification"
	EventTypeFriendRequest EventType = "friend_request"
)

// Valid 是否为已知事件类型
func (t EventType) Valid() bool {
	switch t {
	case EventTypeMessage, EventTypeCall, EventTypeNotification, EventTypeFriendRequest:
		return true
	}
	return false
}

// UserTargeted 事件的接收方是否为单个用户
// notification 直达用户，其余类型广播到频道
func (t EventType) UserTargeted() bool {
	return t == EventTypeNotification
}

// Event 贯穿采集、日志分片、RPC 转发的统一事件
// 创建后不可变
type Event struct {
	EventID    string            `json:"event_id"`
	EventType  EventType         `json:"event_type"`
	SenderID   string            `json:"sender_id"`
	ReceiverID string            `json:"receiver_id"`
	Text       string            `json:"text"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Timestamp  string            `json:"timestamp"`
}

// NewEvent 创建事件并补全 ID 与时间戳
func NewEvent(eventType EventType, senderID, receiverID, text string, metadata map[string]string) *Event {
	return &Event{
		EventID:    uuid.NewString(),
		EventType:  eventType,
		SenderID:   senderID,
		ReceiverID: receiverID,
		Text:       text,
		Metadata:   metadata,
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
	}
}

// Validate 校验事件字段
func (e *Event) Validate() error {
	if !e.EventType.Valid() {
		return fmt.Errorf("unknown event type: %q", e.EventType)
	}
	if _, err := uuid.Parse(e.SenderID); err != nil {
		return fmt.Errorf("invalid sender_id %q: %w", e.SenderID, err)
	}
	if _, err := uuid.Parse(e.ReceiverID); err != nil {
		return fmt.Errorf("invalid receiver_id %q: %w", e.ReceiverID, err)
	}
	if e.Timestamp != "" {
		if _, err := time.Parse(time.RFC3339Nano, e.Timestamp); err != nil {
			return fmt.Errorf("invalid timestamp %q: %w", e.Timestamp, err)
		}
	}
	return nil
}

// ShardID 根据接收方计算事件所属分片
func ShardID(receiverID string, numShards int) int {
	sum := sha256.Sum256([]byte(receiverID))
	return int(binary.BigEndian.Uint64(sum[:8]) % uint64(numShards))
}
