package application

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/aurora-im/eventfabric/internal/domain/entity"
	"github.com/aurora-im/eventfabric/internal/ports/out"
	"github.com/aurora-im/eventfabric/pkg/zlog"
)

// DeliveryUseCase 把转发来的事件投递到本实例的客户端连接
// notification 直达接收用户，其余类型经本地索引扇出到频道成员
// 日志取自请求上下文，入口适配器负责带上每次 RPC 的标注
type DeliveryUseCase struct {
	registry out.ClientRegistry
}

func NewDeliveryUseCase(registry out.ClientRegistry) *DeliveryUseCase {
	return &DeliveryUseCase{registry: registry}
}

// DeliverLocal 组内全部推送并发独立进行，单个连接失败不影响其他
// 返回成功送达的连接数
func (d *DeliveryUseCase) DeliverLocal(ctx context.Context, events []*entity.Event) (int, error) {
	logger := zlog.C(ctx)

	type push struct {
		userID  string
		payload []byte
	}
	var pushes []push

	for _, event := range events {
		var userIDs []string
		if event.EventType.UserTargeted() {
			if d.registry.IsConnected(event.ReceiverID) {
				userIDs = []string{event.ReceiverID}
			}
		} else {
			userIDs = d.registry.ChannelUsers(event.ReceiverID)
		}
		if len(userIDs) == 0 {
			logger.Debug("No local receivers for event",
				zap.String("event_id", event.EventID),
				zap.String("receiver_id", event.ReceiverID))
			continue
		}

		payload, err := json.Marshal(event)
		if err != nil {
			logger.Error("Failed to encode event", zap.String("event_id", event.EventID), zap.Error(err))
			continue
		}
		for _, userID := range userIDs {
			pushes = append(pushes, push{userID: userID, payload: payload})
		}
	}

	var success atomic.Int64
	var wg sync.WaitGroup
	for _, p := range pushes {
		wg.Add(1)
		go func(p push) {
			defer wg.Done()
			if err := d.registry.Push(ctx, p.userID, p.payload); err != nil {
				logger.Warn("Failed to push to client",
					zap.String("user_id", p.userID), zap.Error(err))
				return
			}
			success.Add(1)
		}(p)
	}
	wg.Wait()

	logger.Debug("Local delivery finished",
		zap.Int("attempted", len(pushes)), zap.Int64("succeeded", success.Load()))
	return int(success.Load()), nil
}
