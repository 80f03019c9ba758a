package grpc

import (
	"context"
	"fmt"
	"time"

	"github.com/aurora-im/eventfabric/api/eventpb"
	"github.com/aurora-im/eventfabric/internal/ports/out"
)

// EventForwarderGrpc 通过连接池把聚合批次发往目标网关
// 转发超时独立于日志读取超时
type EventForwarderGrpc struct {
	pool    *ConnectionPool
	timeout time.Duration
}

func NewEventForwarderGrpc(pool *ConnectionPool, timeout time.Duration) out.EventForwarder {
	return &EventForwarderGrpc{pool: pool, timeout: timeout}
}

func (f *EventForwarderGrpc) SendBatch(ctx context.Context, endpoint string, events []*eventpb.Event) error {
	conn, err := f.pool.Get(endpoint)
	if err != nil {
		return fmt.Errorf("get connection for %s: %w", endpoint, err)
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	client := eventpb.NewEventServiceClient(conn)
	ack, err := client.SendEvents(ctx, &eventpb.EventBatch{Events: events})
	if err != nil {
		return fmt.Errorf("send events to %s: %w", endpoint, err)
	}
	if !ack.Success {
		return fmt.Errorf("endpoint %s rejected batch: %s", endpoint, ack.Message)
	}
	return nil
}
