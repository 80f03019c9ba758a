package out

import (
	"context"

	"github.com/aurora-im/eventfabric/api/eventpb"
	"github.com/aurora-im/eventfabric/internal/domain/entity"
)

// EndpointResolver 解析事件接收方当前的服务端点
// notification 类型按用户解析，其余类型按频道解析
type EndpointResolver interface {
	Endpoints(ctx context.Context, receiverID string, eventType entity.EventType) ([]string, error)
}

// EventForwarder 把聚合后的事件批量转发到目标网关
type EventForwarder interface {
	SendBatch(ctx context.Context, endpoint string, events []*eventpb.Event) error
}
