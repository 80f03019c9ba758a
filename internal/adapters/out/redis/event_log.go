package redis

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aurora-im/eventfabric/internal/ports/out"
)

// EventLogRedis 基于 Redis Streams 的分片日志实现
// 每个分片一条流，全部消费进程共享同一个消费组
type EventLogRedis struct {
	client    *redis.Client
	group     string
	readCount int64
	readBlock time.Duration
}

func NewEventLogRedis(client *redis.Client, group string, readCount int64, readBlock time.Duration) out.EventLog {
	return &EventLogRedis{
		client:    client,
		group:     group,
		readCount: readCount,
		readBlock: readBlock,
	}
}

// EnsureGroup 幂等创建消费组，起始偏移 0，流不存在则一并创建
func (l *EventLogRedis) EnsureGroup(ctx context.Context, shard int) error {
	err := l.client.XGroupCreateMkStream(ctx, StreamName(shard), l.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

func (l *EventLogRedis) Append(ctx context.Context, shard int, fields map[string]interface{}) error {
	return l.client.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamName(shard),
		Values: fields,
	}).Err()
}

// AppendBatch 单次流水线往返写入多个分片
func (l *EventLogRedis) AppendBatch(ctx context.Context, batches map[int][]map[string]interface{}) error {
	pipe := l.client.Pipeline()
	for shard, batch := range batches {
		stream := StreamName(shard)
		for _, fields := range batch {
			pipe.XAdd(ctx, &redis.XAddArgs{Stream: stream, Values: fields})
		}
	}
	_, err := pipe.Exec(ctx)
	return err
}

// ReadGroup 以消费组身份阻塞读取一批未确认记录
// 阻塞时长受 readBlock 限制，保证工作循环的活性
func (l *EventLogRedis) ReadGroup(ctx context.Context, stream, consumerID string) ([]out.LogMessage, error) {
	streams, err := l.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    l.group,
		Consumer: consumerID,
		Streams:  []string{stream, ">"},
		Count:    l.readCount,
		Block:    l.readBlock,
	}).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	var messages []out.LogMessage
	for _, s := range streams {
		for _, m := range s.Messages {
			fields := make(map[string]string, len(m.Values))
			for k, v := range m.Values {
				if str, ok := v.(string); ok {
					fields[k] = str
				}
			}
			messages = append(messages, out.LogMessage{ID: m.ID, Fields: fields})
		}
	}
	return messages, nil
}

func (l *EventLogRedis) Ack(ctx context.Context, stream string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	pipe := l.client.Pipeline()
	for _, id := range ids {
		pipe.XAck(ctx, stream, l.group, id)
	}
	_, err := pipe.Exec(ctx)
	return err
}
