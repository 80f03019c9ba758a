package consumer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aurora-im/eventfabric/api/eventpb"
	"github.com/aurora-im/eventfabric/internal/domain/entity"
	"github.com/aurora-im/eventfabric/internal/ports/out"
)

type fakeLog struct {
	mu     sync.Mutex
	acked  map[string][]string
	ackErr error
}

func newFakeLog() *fakeLog {
	return &fakeLog{acked: make(map[string][]string)}
}

func (f *fakeLog) EnsureGroup(context.Context, int) error                       { return nil }
func (f *fakeLog) Append(context.Context, int, map[string]interface{}) error    { return nil }
func (f *fakeLog) AppendBatch(context.Context, map[int][]map[string]interface{}) error {
	return nil
}
// 模拟阻塞读，避免工作循环在测试里空转
func (f *fakeLog) ReadGroup(ctx context.Context, _, _ string) ([]out.LogMessage, error) {
	select {
	case <-ctx.Done():
	case <-time.After(10 * time.Millisecond):
	}
	return nil, nil
}

func (f *fakeLog) Ack(_ context.Context, stream string, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ackErr != nil {
		return f.ackErr
	}
	f.acked[stream] = append(f.acked[stream], ids...)
	return nil
}

type fakeResolver struct {
	endpoints map[string][]string
	err       error
}

func (f *fakeResolver) Endpoints(_ context.Context, receiverID string, _ entity.EventType) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.endpoints[receiverID], nil
}

type fakeForwarder struct {
	mu      sync.Mutex
	sent    map[string][]*eventpb.Event
	failing map[string]bool
}

func newFakeForwarder() *fakeForwarder {
	return &fakeForwarder{sent: make(map[string][]*eventpb.Event), failing: make(map[string]bool)}
}

func (f *fakeForwarder) SendBatch(_ context.Context, endpoint string, events []*eventpb.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing[endpoint] {
		return errors.New("endpoint unreachable")
	}
	f.sent[endpoint] = append(f.sent[endpoint], events...)
	return nil
}

func logMessageFor(t *testing.T, id string, e *entity.Event) out.LogMessage {
	t.Helper()
	fields := make(map[string]string)
	for k, v := range e.ToStreamFields() {
		fields[k] = v.(string)
	}
	return out.LogMessage{ID: id, Fields: fields}
}

func newTestWorker(log out.EventLog, resolver out.EndpointResolver, forwarder out.EventForwarder) *ShardWorker {
	return newShardWorker("stream_shard:0", "c-test", log, resolver, forwarder, zap.NewNop())
}

func TestProcessBatchGroupsByEndpoint(t *testing.T) {
	receiverA := uuid.NewString()
	receiverB := uuid.NewString()
	log := newFakeLog()
	resolver := &fakeResolver{endpoints: map[string][]string{
		receiverA: {"gw-1:9090"},
		receiverB: {"gw-1:9090", "gw-2:9090"},
	}}
	forwarder := newFakeForwarder()
	w := newTestWorker(log, resolver, forwarder)

	e1 := entity.NewEvent(entity.EventTypeMessage, uuid.NewString(), receiverA, "a", nil)
	e2 := entity.NewEvent(entity.EventTypeMessage, uuid.NewString(), receiverB, "b", nil)
	w.processBatch(context.Background(), []out.LogMessage{
		logMessageFor(t, "1-0", e1),
		logMessageFor(t, "1-1", e2),
	})

	assert.Len(t, forwarder.sent["gw-1:9090"], 2)
	assert.Len(t, forwarder.sent["gw-2:9090"], 1)
	assert.Equal(t, []string{"1-0", "1-1"}, log.acked["stream_shard:0"])
}

func TestProcessBatchAcksDespiteForwardFailure(t *testing.T) {
	receiver := uuid.NewString()
	log := newFakeLog()
	resolver := &fakeResolver{endpoints: map[string][]string{receiver: {"gw-1:9090"}}}
	forwarder := newFakeForwarder()
	forwarder.failing["gw-1:9090"] = true
	w := newTestWorker(log, resolver, forwarder)

	e := entity.NewEvent(entity.EventTypeMessage, uuid.NewString(), receiver, "a", nil)
	w.processBatch(context.Background(), []out.LogMessage{logMessageFor(t, "1-0", e)})

	assert.Equal(t, []string{"1-0"}, log.acked["stream_shard:0"])
}

func TestProcessBatchDropsOfflineReceivers(t *testing.T) {
	receiver := uuid.NewString()
	log := newFakeLog()
	resolver := &fakeResolver{endpoints: map[string][]string{}}
	forwarder := newFakeForwarder()
	w := newTestWorker(log, resolver, forwarder)

	e := entity.NewEvent(entity.EventTypeMessage, uuid.NewString(), receiver, "a", nil)
	w.processBatch(context.Background(), []out.LogMessage{logMessageFor(t, "1-0", e)})

	assert.Empty(t, forwarder.sent)
	assert.Equal(t, []string{"1-0"}, log.acked["stream_shard:0"])
}

func TestProcessBatchSkipsMalformedRecords(t *testing.T) {
	receiver := uuid.NewString()
	log := newFakeLog()
	resolver := &fakeResolver{endpoints: map[string][]string{receiver: {"gw-1:9090"}}}
	forwarder := newFakeForwarder()
	w := newTestWorker(log, resolver, forwarder)

	good := entity.NewEvent(entity.EventTypeMessage, uuid.NewString(), receiver, "ok", nil)
	w.processBatch(context.Background(), []out.LogMessage{
		{ID: "1-0", Fields: map[string]string{"event_type": "garbage"}},
		logMessageFor(t, "1-1", good),
	})

	assert.Len(t, forwarder.sent["gw-1:9090"], 1)
	assert.Equal(t, []string{"1-0", "1-1"}, log.acked["stream_shard:0"])
}

func TestProcessBatchSkipsAckWhenResolutionUnavailable(t *testing.T) {
	log := newFakeLog()
	resolver := &fakeResolver{err: errors.New("redis down")}
	forwarder := newFakeForwarder()
	w := newTestWorker(log, resolver, forwarder)

	e := entity.NewEvent(entity.EventTypeMessage, uuid.NewString(), uuid.NewString(), "a", nil)
	w.processBatch(context.Background(), []out.LogMessage{logMessageFor(t, "1-0", e)})

	require.Empty(t, log.acked)
	assert.Empty(t, forwarder.sent)
}
