// Package eventpb 定义事件转发 RPC 的线上报文与服务描述。
// 报文用注册到 gRPC 的 JSON codec 编解码，不依赖 protoc 生成代码。
package eventpb

// Event 跨网关转发的事件报文
// metadata 以 JSON 字符串承载，与日志分片中的扁平字段保持一致
type Event struct {
	EventID    string `json:"event_id"`
	EventType  string `json:"event_type"`
	SenderID   string `json:"sender_id"`
	ReceiverID string `json:"receiver_id"`
	Text       string `json:"text"`
	Metadata   string `json:"metadata"`
	Timestamp  string `json:"timestamp"`
}

// EventBatch 按目标网关聚合后的一批事件
type EventBatch struct {
	Events []*Event `json:"events"`
}

// Ack RPC 应答
type Ack struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
