package lease

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aurora-im/eventfabric/internal/ports/out"
)

type fakeCoordination struct {
	consumers    []string
	ttls         map[string]time.Duration
	unregistered []string
	leases       map[int]string
	assignCalls  int
}

func (f *fakeCoordination) RegisterConsumer(_ context.Context, id string) error {
	f.consumers = append(f.consumers, id)
	return nil
}

func (f *fakeCoordination) UnregisterConsumer(_ context.Context, id string) error {
	f.unregistered = append(f.unregistered, id)
	remaining := f.consumers[:0]
	for _, c := range f.consumers {
		if c != id {
			remaining = append(remaining, c)
		}
	}
	f.consumers = remaining
	return nil
}

func (f *fakeCoordination) Consumers(_ context.Context) ([]string, error) {
	return append([]string(nil), f.consumers...), nil
}

func (f *fakeCoordination) SendHeartbeat(_ context.Context, id string, ttl time.Duration) error {
	f.ttls[id] = ttl
	return nil
}

func (f *fakeCoordination) HeartbeatTTL(_ context.Context, id string) (time.Duration, error) {
	return f.ttls[id], nil
}

func (f *fakeCoordination) AssignLeases(_ context.Context, leases map[int]string) error {
	f.leases = leases
	f.assignCalls++
	return nil
}

func (f *fakeCoordination) LeasedStreams(_ context.Context, _ string) ([]string, error) {
	return nil, nil
}

type fakeEventLog struct {
	ensured []int
}

func (f *fakeEventLog) EnsureGroup(_ context.Context, shard int) error {
	f.ensured = append(f.ensured, shard)
	return nil
}

func (f *fakeEventLog) Append(context.Context, int, map[string]interface{}) error { return nil }

func (f *fakeEventLog) AppendBatch(context.Context, map[int][]map[string]interface{}) error {
	return nil
}

func (f *fakeEventLog) ReadGroup(context.Context, string, string) ([]out.LogMessage, error) {
	return nil, nil
}

func (f *fakeEventLog) Ack(context.Context, string, []string) error { return nil }

func newTestManager(coord *fakeCoordination, log *fakeEventLog, numShards int) *Manager {
	return NewManager(coord, log, numShards, zap.NewNop())
}

func countByConsumer(leases map[int]string) map[string]int {
	counts := make(map[string]int)
	for _, c := range leases {
		counts[c]++
	}
	return counts
}

func TestEnsurePartitionsCoversAllShards(t *testing.T) {
	log := &fakeEventLog{}
	m := newTestManager(&fakeCoordination{ttls: map[string]time.Duration{}}, log, 4)

	require.NoError(t, m.EnsurePartitions(context.Background()))
	assert.Equal(t, []int{0, 1, 2, 3}, log.ensured)
}

func TestAssignLeasesEvenSplit(t *testing.T) {
	coord := &fakeCoordination{
		consumers: []string{"c-b", "c-a", "c-c"},
		ttls: map[string]time.Duration{
			"c-a": 10 * time.Second,
			"c-b": 10 * time.Second,
			"c-c": 10 * time.Second,
		},
	}
	m := newTestManager(coord, &fakeEventLog{}, 6)

	require.NoError(t, m.AssignLeases(context.Background()))
	require.Len(t, coord.leases, 6)
	counts := countByConsumer(coord.leases)
	assert.Equal(t, map[string]int{"c-a": 2, "c-b": 2, "c-c": 2}, counts)
}

func TestAssignLeasesRemainderGoesToLexicallyFirst(t *testing.T) {
	coord := &fakeCoordination{
		consumers: []string{"c-b", "c-a", "c-c"},
		ttls: map[string]time.Duration{
			"c-a": 10 * time.Second,
			"c-b": 10 * time.Second,
			"c-c": 10 * time.Second,
		},
	}
	m := newTestManager(coord, &fakeEventLog{}, 8)

	require.NoError(t, m.AssignLeases(context.Background()))
	counts := countByConsumer(coord.leases)
	assert.Equal(t, map[string]int{"c-a": 3, "c-b": 3, "c-c": 2}, counts)
}

func TestAssignLeasesKeepsPreviousTableWithoutConsumers(t *testing.T) {
	coord := &fakeCoordination{ttls: map[string]time.Duration{}}
	m := newTestManager(coord, &fakeEventLog{}, 4)

	require.NoError(t, m.AssignLeases(context.Background()))
	assert.Zero(t, coord.assignCalls)
}

func TestExpiredHeartbeatStaysActiveDuringGrace(t *testing.T) {
	coord := &fakeCoordination{
		consumers: []string{"c-a", "c-b"},
		ttls: map[string]time.Duration{
			"c-a": 10 * time.Second,
			"c-b": 0, // 心跳刚丢
		},
	}
	m := newTestManager(coord, &fakeEventLog{}, 4)

	active, err := m.ActiveConsumers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"c-a", "c-b"}, active)
	assert.Empty(t, coord.unregistered)
}

func TestSuspectDeregisteredAfterGraceWindow(t *testing.T) {
	coord := &fakeCoordination{
		consumers: []string{"c-a", "c-b"},
		ttls: map[string]time.Duration{
			"c-a": 10 * time.Second,
			"c-b": 0,
		},
	}
	m := newTestManager(coord, &fakeEventLog{}, 4)

	// 第一轮进入嫌疑名单
	_, err := m.ActiveConsumers(context.Background())
	require.NoError(t, err)

	// 回拨嫌疑时间模拟宽限期结束
	m.suspects["c-b"] = time.Now().Add(-graceWindow - time.Second)

	active, err := m.ActiveConsumers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"c-a"}, active)
	assert.Equal(t, []string{"c-b"}, coord.unregistered)
}

func TestRecoveredHeartbeatClearsSuspect(t *testing.T) {
	coord := &fakeCoordination{
		consumers: []string{"c-a"},
		ttls:      map[string]time.Duration{"c-a": 0},
	}
	m := newTestManager(coord, &fakeEventLog{}, 4)

	_, err := m.ActiveConsumers(context.Background())
	require.NoError(t, err)
	require.Contains(t, m.suspects, "c-a")

	coord.ttls["c-a"] = 10 * time.Second
	active, err := m.ActiveConsumers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"c-a"}, active)
	assert.NotContains(t, m.suspects, "c-a")
}
