package entity

import (
	"encoding/json"
	"fmt"

	"github.com/aurora-im/eventfabric/api/eventpb"
)

// 同一个逻辑事件存在三种表示：
// 日志分片里的扁平字段、RPC 报文、进程内 Event。
// 这里集中三个纯转换函数，互相独立可测。

// 日志记录的字段名
const (
	fieldEventID    = "event_id"
	fieldEventType  = "event_type"
	fieldSenderID   = "sender_id"
	fieldReceiverID = "receiver_id"
	fieldText       = "text"
	fieldMetadata   = "metadata"
	fieldTimestamp  = "timestamp"
)

// ToStreamFields 事件编码为日志分片的扁平字段
// metadata 序列化为 JSON 字符串
func (e *Event) ToStreamFields() map[string]interface{} {
	meta := "{}"
	if len(e.Metadata) > 0 {
		if data, err := json.Marshal(e.Metadata); err == nil {
			meta = string(data)
		}
	}
	return map[string]interface{}{
		fieldEventID:    e.EventID,
		fieldEventType:  string(e.EventType),
		fieldSenderID:   e.SenderID,
		fieldReceiverID: e.ReceiverID,
		fieldText:       e.Text,
		fieldMetadata:   meta,
		fieldTimestamp:  e.Timestamp,
	}
}

// EventFromStreamFields 从日志记录还原事件
func EventFromStreamFields(fields map[string]string) (*Event, error) {
	e := &Event{
		EventID:    fields[fieldEventID],
		EventType:  EventType(fields[fieldEventType]),
		SenderID:   fields[fieldSenderID],
		ReceiverID: fields[fieldReceiverID],
		Text:       fields[fieldText],
		Timestamp:  fields[fieldTimestamp],
	}
	if raw := fields[fieldMetadata]; raw != "" && raw != "{}" {
		meta := make(map[string]string)
		if err := json.Unmarshal([]byte(raw), &meta); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
		e.Metadata = meta
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return e, nil
}

// ToProto 事件编码为 RPC 报文
func (e *Event) ToProto() *eventpb.Event {
	meta := "{}"
	if len(e.Metadata) > 0 {
		if data, err := json.Marshal(e.Metadata); err == nil {
			meta = string(data)
		}
	}
	return &eventpb.Event{
		EventID:    e.EventID,
		EventType:  string(e.EventType),
		SenderID:   e.SenderID,
		ReceiverID: e.ReceiverID,
		Text:       e.Text,
		Metadata:   meta,
		Timestamp:  e.Timestamp,
	}
}

// EventFromProto 从 RPC 报文还原事件
func EventFromProto(pb *eventpb.Event) (*Event, error) {
	e := &Event{
		EventID:    pb.EventID,
		EventType:  EventType(pb.EventType),
		SenderID:   pb.SenderID,
		ReceiverID: pb.ReceiverID,
		Text:       pb.Text,
		Timestamp:  pb.Timestamp,
	}
	if pb.Metadata != "" && pb.Metadata != "{}" {
		meta := make(map[string]string)
		if err := json.Unmarshal([]byte(pb.Metadata), &meta); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
		e.Metadata = meta
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return e, nil
}
