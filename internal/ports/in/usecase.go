package in

import (
	"context"

	"github.com/aurora-im/eventfabric/internal/domain/entity"
)

// IngestUseCase 网关入站事件用例
type IngestUseCase interface {
	// Submit 接收一条客户端事件，进入批量调度
	Submit(ctx context.Context, event *entity.Event) error
}

// DeliveryUseCase 网关本地投递用例
type DeliveryUseCase interface {
	// DeliverLocal 把转发来的事件投递给本实例持有的客户端连接
	// 返回成功送达的连接数
	DeliverLocal(ctx context.Context, events []*entity.Event) (int, error)
}
