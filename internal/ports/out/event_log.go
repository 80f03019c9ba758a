package out

import "context"

// LogMessage 日志分片中的一条未确认记录
type LogMessage struct {
	ID     string
	Fields map[string]string
}

// EventLog 分片日志接口
// 每个分片是一条独立寻址的追加日志，消费组内按条确认，至少一次语义
type EventLog interface {
	// EnsureGroup 在指定分片上幂等创建消费组
	EnsureGroup(ctx context.Context, shard int) error
	// Append 追加单条事件到分片
	Append(ctx context.Context, shard int, fields map[string]interface{}) error
	// AppendBatch 按分片批量追加（单次流水线往返）
	AppendBatch(ctx context.Context, batches map[int][]map[string]interface{}) error
	// ReadGroup 以消费组身份读取一批未确认记录，带读超时
	ReadGroup(ctx context.Context, stream, consumerID string) ([]LogMessage, error)
	// Ack 批量确认
	Ack(ctx context.Context, stream string, ids []string) error
}
