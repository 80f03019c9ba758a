package consumer

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aurora-im/eventfabric/api/eventpb"
	"github.com/aurora-im/eventfabric/internal/domain/entity"
	"github.com/aurora-im/eventfabric/internal/ports/out"
)

// 读取失败后的退避
const readRetryDelay = time.Second

// ShardWorker 独立消费一个租到的分片
// 读批次、解析目标端点、按端点聚合转发、确认
type ShardWorker struct {
	stream     string
	consumerID string
	log        out.EventLog
	resolver   out.EndpointResolver
	forwarder  out.EventForwarder
	logger     *zap.Logger

	cancel context.CancelFunc
}

func newShardWorker(
	stream, consumerID string,
	log out.EventLog,
	resolver out.EndpointResolver,
	forwarder out.EventForwarder,
	logger *zap.Logger,
) *ShardWorker {
	return &ShardWorker{
		stream:     stream,
		consumerID: consumerID,
		log:        log,
		resolver:   resolver,
		forwarder:  forwarder,
		logger:     logger.With(zap.String("stream", stream)),
	}
}

func (w *ShardWorker) start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	go w.run(ctx)
}

// stop 立即取消在途读取，不等待转发完成，也不确认处理了一半的批次
func (w *ShardWorker) stop() {
	if w.cancel != nil {
		w.cancel()
	}
}

func (w *ShardWorker) run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		messages, err := w.log.ReadGroup(ctx, w.stream, w.consumerID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("Error reading from stream", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(readRetryDelay):
			}
			continue
		}
		if len(messages) == 0 {
			continue
		}
		w.processBatch(ctx, messages)
	}
}

// ProcessBatch 处理一批未确认记录
//
// 确认策略：转发尝试结束后整批确认，个别端点失败只记日志；
// 解析不到任何端点的事件直接丢弃并照常确认（接收方当前不在线，
// 重投无济于事）。只有解析端点时存储整体不可用才放弃本批不确认，
// 走上游未确认重试路径。
func (w *ShardWorker) processBatch(ctx context.Context, messages []out.LogMessage) {
	ackIDs := make([]string, 0, len(messages))
	batches := make(map[string][]*eventpb.Event)

	for _, msg := range messages {
		ackIDs = append(ackIDs, msg.ID)

		event, err := entity.EventFromStreamFields(msg.Fields)
		if err != nil {
			// 坏记录跳过并确认，不能卡住分片
			w.logger.Error("Malformed stream record, skipping",
				zap.String("message_id", msg.ID), zap.Error(err))
			continue
		}

		endpoints, err := w.resolver.Endpoints(ctx, event.ReceiverID, event.EventType)
		if err != nil {
			w.logger.Error("Endpoint resolution unavailable, batch not acked", zap.Error(err))
			return
		}
		if len(endpoints) == 0 {
			w.logger.Debug("No endpoints found for receiver, dropping",
				zap.String("receiver_id", event.ReceiverID))
			continue
		}

		pb := event.ToProto()
		for _, endpoint := range endpoints {
			batches[endpoint] = append(batches[endpoint], pb)
		}
	}

	var wg sync.WaitGroup
	for endpoint, events := range batches {
		wg.Add(1)
		go func(endpoint string, events []*eventpb.Event) {
			defer wg.Done()
			if err := w.forwarder.SendBatch(ctx, endpoint, events); err != nil {
				w.logger.Error("Failed to forward batch",
					zap.String("endpoint", endpoint),
					zap.Int("events", len(events)),
					zap.Error(err))
			}
		}(endpoint, events)
	}
	wg.Wait()

	if err := w.log.Ack(ctx, w.stream, ackIDs); err != nil {
		w.logger.Error("Failed to ack batch", zap.Error(err))
	}
}
