package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aurora-im/eventfabric/internal/domain/entity"
)

type fakePresence struct {
	userCalls    int
	channelCalls int
	endpoints    []string
	err          error
}

func (f *fakePresence) SetUserEndpoint(context.Context, string, string, time.Duration) error {
	return nil
}
func (f *fakePresence) DeleteUserEndpoint(context.Context, string) error { return nil }

func (f *fakePresence) UserEndpoint(context.Context, string) ([]string, error) {
	f.userCalls++
	return f.endpoints, f.err
}

func (f *fakePresence) AddChannelEndpoint(context.Context, string, string) error    { return nil }
func (f *fakePresence) RemoveChannelEndpoint(context.Context, string, string) error { return nil }

func (f *fakePresence) ChannelEndpoints(context.Context, string) ([]string, error) {
	f.channelCalls++
	return f.endpoints, f.err
}

func (f *fakePresence) UserChannels(context.Context, string) ([]string, error) { return nil, nil }

func TestEndpointsServedFromCacheWithinTTL(t *testing.T) {
	presence := &fakePresence{endpoints: []string{"gw-1:9090"}}
	c := NewEndpointCache(presence, time.Minute, time.Minute)

	for i := 0; i < 5; i++ {
		endpoints, err := c.Endpoints(context.Background(), "chan-1", entity.EventTypeMessage)
		require.NoError(t, err)
		assert.Equal(t, []string{"gw-1:9090"}, endpoints)
	}
	assert.Equal(t, 1, presence.channelCalls)
}

func TestEndpointsRefetchedAfterExpiry(t *testing.T) {
	presence := &fakePresence{endpoints: []string{"gw-1:9090"}}
	c := NewEndpointCache(presence, 10*time.Millisecond, time.Minute)

	_, err := c.Endpoints(context.Background(), "chan-1", entity.EventTypeMessage)
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)

	_, err = c.Endpoints(context.Background(), "chan-1", entity.EventTypeMessage)
	require.NoError(t, err)
	assert.Equal(t, 2, presence.channelCalls)
}

func TestNotificationResolvesUserEndpoint(t *testing.T) {
	presence := &fakePresence{endpoints: []string{"gw-2:9090"}}
	c := NewEndpointCache(presence, time.Minute, time.Minute)

	_, err := c.Endpoints(context.Background(), "user-1", entity.EventTypeNotification)
	require.NoError(t, err)
	assert.Equal(t, 1, presence.userCalls)
	assert.Zero(t, presence.channelCalls)
}

func TestUserAndChannelEntriesDoNotCollide(t *testing.T) {
	presence := &fakePresence{endpoints: []string{"gw-1:9090"}}
	c := NewEndpointCache(presence, time.Minute, time.Minute)

	_, err := c.Endpoints(context.Background(), "id-1", entity.EventTypeNotification)
	require.NoError(t, err)
	_, err = c.Endpoints(context.Background(), "id-1", entity.EventTypeMessage)
	require.NoError(t, err)

	assert.Equal(t, 1, presence.userCalls)
	assert.Equal(t, 1, presence.channelCalls)
}

func TestStoreErrorNotCached(t *testing.T) {
	presence := &fakePresence{err: errors.New("redis down")}
	c := NewEndpointCache(presence, time.Minute, time.Minute)

	_, err := c.Endpoints(context.Background(), "chan-1", entity.EventTypeMessage)
	require.Error(t, err)

	presence.err = nil
	presence.endpoints = []string{"gw-1:9090"}
	endpoints, err := c.Endpoints(context.Background(), "chan-1", entity.EventTypeMessage)
	require.NoError(t, err)
	assert.Equal(t, []string{"gw-1:9090"}, endpoints)
	assert.Equal(t, 2, presence.channelCalls)
}

func TestSweepRemovesExpiredEntries(t *testing.T) {
	presence := &fakePresence{endpoints: []string{"gw-1:9090"}}
	c := NewEndpointCache(presence, 5*time.Millisecond, time.Minute)

	_, err := c.Endpoints(context.Background(), "chan-1", entity.EventTypeMessage)
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	c.sweep()

	c.mu.Lock()
	defer c.mu.Unlock()
	assert.Empty(t, c.entries)
}
