package grpc

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aurora-im/eventfabric/api/eventpb"
	"github.com/aurora-im/eventfabric/internal/domain/entity"
)

type fakeDelivery struct {
	received []*entity.Event
}

func (f *fakeDelivery) DeliverLocal(_ context.Context, events []*entity.Event) (int, error) {
	f.received = append(f.received, events...)
	return len(events), nil
}

func TestSendEventDeliversAndAcks(t *testing.T) {
	delivery := &fakeDelivery{}
	s := NewEventServer(delivery, zap.NewNop())

	e := entity.NewEvent(entity.EventTypeMessage, uuid.NewString(), uuid.NewString(), "hi", nil)
	ack, err := s.SendEvent(context.Background(), e.ToProto())
	require.NoError(t, err)
	assert.True(t, ack.Success)
	require.Len(t, delivery.received, 1)
	assert.Equal(t, e.EventID, delivery.received[0].EventID)
}

func TestSendEventRejectsMalformedEvent(t *testing.T) {
	s := NewEventServer(&fakeDelivery{}, zap.NewNop())

	ack, err := s.SendEvent(context.Background(), &eventpb.Event{EventType: "garbage"})
	require.NoError(t, err)
	assert.False(t, ack.Success)
}

func TestSendEventsSkipsBadEntries(t *testing.T) {
	delivery := &fakeDelivery{}
	s := NewEventServer(delivery, zap.NewNop())

	good := entity.NewEvent(entity.EventTypeCall, uuid.NewString(), uuid.NewString(), "ring", nil)
	batch := &eventpb.EventBatch{Events: []*eventpb.Event{
		good.ToProto(),
		{EventType: "garbage"},
	}}

	ack, err := s.SendEvents(context.Background(), batch)
	require.NoError(t, err)
	assert.True(t, ack.Success)
	assert.Len(t, delivery.received, 1)
}
