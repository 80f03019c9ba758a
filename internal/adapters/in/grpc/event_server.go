package grpc

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/aurora-im/eventfabric/api/eventpb"
	"github.com/aurora-im/eventfabric/internal/domain/entity"
	"github.com/aurora-im/eventfabric/internal/ports/in"
	"github.com/aurora-im/eventfabric/pkg/zlog"
)

// EventServer 接收其他实例分片工作器转发来的事件
type EventServer struct {
	delivery in.DeliveryUseCase
	logger   *zap.Logger
}

func NewEventServer(delivery in.DeliveryUseCase, logger *zap.Logger) *EventServer {
	return &EventServer{delivery: delivery, logger: logger}
}

// RegisterEventServer 注册服务
func RegisterEventServer(s grpc.ServiceRegistrar, srv *EventServer) {
	eventpb.RegisterEventServiceServer(s, srv)
}

// SendEvent 单条转发入口
func (s *EventServer) SendEvent(ctx context.Context, req *eventpb.Event) (*eventpb.Ack, error) {
	event, err := entity.EventFromProto(req)
	if err != nil {
		s.logger.Error("Failed to decode forwarded event", zap.Error(err))
		return &eventpb.Ack{Success: false, Message: err.Error()}, nil
	}

	ctx = zlog.WithContext(ctx, s.logger.With(
		zap.String("rpc", "SendEvent"),
		zap.String("event_id", event.EventID)))
	delivered, err := s.delivery.DeliverLocal(ctx, []*entity.Event{event})
	if err != nil {
		return &eventpb.Ack{Success: false, Message: err.Error()}, nil
	}
	return &eventpb.Ack{Success: true, Message: fmt.Sprintf("delivered to %d clients", delivered)}, nil
}

// SendEvents 批量转发入口，坏事件跳过不影响其余
func (s *EventServer) SendEvents(ctx context.Context, req *eventpb.EventBatch) (*eventpb.Ack, error) {
	events := make([]*entity.Event, 0, len(req.Events))
	for _, pb := range req.Events {
		event, err := entity.EventFromProto(pb)
		if err != nil {
			s.logger.Error("Failed to decode forwarded event, skipping", zap.Error(err))
			continue
		}
		events = append(events, event)
	}

	ctx = zlog.WithContext(ctx, s.logger.With(
		zap.String("rpc", "SendEvents"),
		zap.Int("events", len(events))))
	delivered, err := s.delivery.DeliverLocal(ctx, events)
	if err != nil {
		return &eventpb.Ack{Success: false, Message: err.Error()}, nil
	}
	return &eventpb.Ack{Success: true, Message: fmt.Sprintf("delivered to %d clients", delivered)}, nil
}
