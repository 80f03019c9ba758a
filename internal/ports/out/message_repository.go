package out

import (
	"context"

	"github.com/aurora-im/eventfabric/internal/domain/entity"
)

// MessageRepository 消息持久化接收器
// message 类型事件落库，单事务批量写入
type MessageRepository interface {
	SaveMessages(ctx context.Context, events []*entity.Event) error
}
