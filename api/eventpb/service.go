package eventpb

import (
	"context"

	"google.golang.org/grpc"
)

const (
	serviceName      = "fabric.EventService"
	methodSendEvent  = "/fabric.EventService/SendEvent"
	methodSendEvents = "/fabric.EventService/SendEvents"
)

// EventServiceClient 事件转发客户端
type EventServiceClient interface {
	SendEvent(ctx context.Context, in *Event, opts ...grpc.CallOption) (*Ack, error)
	SendEvents(ctx context.Context, in *EventBatch, opts ...grpc.CallOption) (*Ack, error)
}

type eventServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewEventServiceClient(cc grpc.ClientConnInterface) EventServiceClient {
	return &eventServiceClient{cc: cc}
}

func (c *eventServiceClient) SendEvent(ctx context.Context, in *Event, opts ...grpc.CallOption) (*Ack, error) {
	out := new(Ack)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, methodSendEvent, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *eventServiceClient) SendEvents(ctx context.Context, in *EventBatch, opts ...grpc.CallOption) (*Ack, error) {
	out := new(Ack)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, methodSendEvents, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// EventServiceServer 事件转发服务端
type EventServiceServer interface {
	SendEvent(ctx context.Context, in *Event) (*Ack, error)
	SendEvents(ctx context.Context, in *EventBatch) (*Ack, error)
}

// RegisterEventServiceServer 注册服务
func RegisterEventServiceServer(s grpc.ServiceRegistrar, srv EventServiceServer) {
	s.RegisterService(&eventServiceDesc, srv)
}

func _EventService_SendEvent_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(Event)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(EventServiceServer).SendEvent(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodSendEvent}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(EventServiceServer).SendEvent(ctx, req.(*Event))
	}
	return interceptor(ctx, in, info, handler)
}

func _EventService_SendEvents_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(EventBatch)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(EventServiceServer).SendEvents(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodSendEvents}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(EventServiceServer).SendEvents(ctx, req.(*EventBatch))
	}
	return interceptor(ctx, in, info, handler)
}

var eventServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*EventServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "SendEvent", Handler: _EventService_SendEvent_Handler},
		{MethodName: "SendEvents", Handler: _EventService_SendEvents_Handler},
	},
	Streams: []grpc.StreamDesc{},
}
