package application

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aurora-im/eventfabric/internal/domain/entity"
	"github.com/aurora-im/eventfabric/internal/ports/out"
)

const (
	// 攒批大小阈值
	batchSize = 100
	// 攒批时间阈值
	batchInterval = 100 * time.Millisecond
)

// DispatchUseCase 入站事件的攒批与调度
// 达到大小阈值或时间阈值即冲刷（大小优先），原子换入空批次后处理
type DispatchUseCase struct {
	messages  out.MessageRepository
	log       out.EventLog
	numShards int
	logger    *zap.Logger

	mu    sync.Mutex
	batch map[entity.EventType][]*entity.Event
	size  int

	kick chan struct{}
}

func NewDispatchUseCase(messages out.MessageRepository, log out.EventLog, numShards int, logger *zap.Logger) *DispatchUseCase {
	return &DispatchUseCase{
		messages:  messages,
		log:       log,
		numShards: numShards,
		logger:    logger,
		batch:     make(map[entity.EventType][]*entity.Event),
		kick:      make(chan struct{}, 1),
	}
}

// Submit 把一条客户端事件加入按类型分组的批次
// 大小阈值先于时间阈值触发冲刷
func (d *DispatchUseCase) Submit(ctx context.Context, event *entity.Event) error {
	if err := event.Validate(); err != nil {
		return err
	}

	d.mu.Lock()
	d.batch[event.EventType] = append(d.batch[event.EventType], event)
	d.size++
	full := d.size >= batchSize
	d.mu.Unlock()

	if full {
		select {
		case d.kick <- struct{}{}:
		default:
		}
	}
	return nil
}

// Start 启动冲刷循环，ctx 取消后退出
func (d *DispatchUseCase) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(batchInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-d.kick:
				d.flush(ctx)
			case <-ticker.C:
				d.flush(ctx)
			}
		}
	}()
}

// flush 原子换入空批次，处理摘下的那一批
func (d *DispatchUseCase) flush(ctx context.Context) {
	d.mu.Lock()
	if d.size == 0 {
		d.mu.Unlock()
		return
	}
	drained := d.batch
	d.batch = make(map[entity.EventType][]*entity.Event)
	d.size = 0
	d.mu.Unlock()

	d.dispatch(ctx, drained)
}

// dispatch 先持久化需要落库的类型（当前只有 message），
// 提交成功后才把全部事件发布进分片日志。
// 持久化失败时整批丢弃且不发布，避免"可见但未存储"的半状态。
func (d *DispatchUseCase) dispatch(ctx context.Context, groups map[entity.EventType][]*entity.Event) {
	if msgs := groups[entity.EventTypeMessage]; len(msgs) > 0 {
		if err := d.messages.SaveMessages(ctx, msgs); err != nil {
			d.logger.Error("Failed to persist message events, dropping batch",
				zap.Int("messages", len(msgs)), zap.Error(err))
			return
		}
	}

	batches := make(map[int][]map[string]interface{})
	total := 0
	for _, events := range groups {
		for _, e := range events {
			shard := entity.ShardID(e.ReceiverID, d.numShards)
			batches[shard] = append(batches[shard], e.ToStreamFields())
			total++
		}
	}

	if err := d.log.AppendBatch(ctx, batches); err != nil {
		d.logger.Error("Failed to publish events to shards",
			zap.Int("events", total), zap.Error(err))
		return
	}
	d.logger.Debug("Dispatched batch", zap.Int("events", total), zap.Int("shards", len(batches)))
}
