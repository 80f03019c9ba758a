package application

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aurora-im/eventfabric/internal/domain/entity"
)

type fakeRegistry struct {
	mu           sync.Mutex
	channelUsers map[string][]string
	connected    map[string]bool
	pushed       map[string][][]byte
	failUsers    map[string]bool
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{
		channelUsers: make(map[string][]string),
		connected:    make(map[string]bool),
		pushed:       make(map[string][][]byte),
		failUsers:    make(map[string]bool),
	}
}

func (f *fakeRegistry) ChannelUsers(channelID string) []string {
	return f.channelUsers[channelID]
}

func (f *fakeRegistry) IsConnected(userID string) bool {
	return f.connected[userID]
}

func (f *fakeRegistry) Push(_ context.Context, userID string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUsers[userID] {
		return errors.New("send buffer full")
	}
	f.pushed[userID] = append(f.pushed[userID], payload)
	return nil
}

func TestDeliverLocalFansOutToChannelMembers(t *testing.T) {
	channel := uuid.NewString()
	registry := newFakeRegistry()
	registry.channelUsers[channel] = []string{"u-1", "u-2", "u-3"}
	d := NewDeliveryUseCase(registry)

	e := entity.NewEvent(entity.EventTypeMessage, uuid.NewString(), channel, "hi", nil)
	count, err := d.DeliverLocal(context.Background(), []*entity.Event{e})
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	var decoded entity.Event
	require.NoError(t, json.Unmarshal(registry.pushed["u-2"][0], &decoded))
	assert.Equal(t, e.EventID, decoded.EventID)
}

func TestDeliverLocalNotificationGoesDirectToUser(t *testing.T) {
	receiver := uuid.NewString()
	registry := newFakeRegistry()
	registry.connected[receiver] = true
	d := NewDeliveryUseCase(registry)

	e := entity.NewEvent(entity.EventTypeNotification, uuid.NewString(), receiver, "ping", nil)
	count, err := d.DeliverLocal(context.Background(), []*entity.Event{e})
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Len(t, registry.pushed[receiver], 1)
}

func TestDeliverLocalSkipsDisconnectedNotificationTarget(t *testing.T) {
	registry := newFakeRegistry()
	d := NewDeliveryUseCase(registry)

	e := entity.NewEvent(entity.EventTypeNotification, uuid.NewString(), uuid.NewString(), "ping", nil)
	count, err := d.DeliverLocal(context.Background(), []*entity.Event{e})
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestDeliverLocalCountsOnlySuccessfulPushes(t *testing.T) {
	channel := uuid.NewString()
	registry := newFakeRegistry()
	registry.channelUsers[channel] = []string{"u-1", "u-2"}
	registry.failUsers["u-2"] = true
	d := NewDeliveryUseCase(registry)

	e := entity.NewEvent(entity.EventTypeMessage, uuid.NewString(), channel, "hi", nil)
	count, err := d.DeliverLocal(context.Background(), []*entity.Event{e})
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
