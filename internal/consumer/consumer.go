// Package consumer 实现消费进程：注册自身、维持心跳、轮询租约，
// 为每个租到的分片起一个独立的工作器。
package consumer

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/aurora-im/eventfabric/internal/ports/out"
)

const (
	// 心跳周期，必须远小于租约管理器的宽限期
	heartbeatInterval = 5 * time.Second
	// 心跳 TTL
	heartbeatTTL = 15 * time.Second
	// 租约拉取的超时上限，避免控制循环被无限阻塞
	leaseFetchTimeout = 5 * time.Second
	// 租约对账周期
	reconcileInterval = 1 * time.Second
)

// Consumer 消费者进程的顶层控制器，持有一个消费者身份
type Consumer struct {
	id        string
	coord     out.CoordinationRepository
	log       out.EventLog
	resolver  out.EndpointResolver
	forwarder out.EventForwarder
	logger    *zap.Logger

	workers map[string]*ShardWorker // 流名 -> 工作器
}

func NewConsumer(
	id string,
	coord out.CoordinationRepository,
	log out.EventLog,
	resolver out.EndpointResolver,
	forwarder out.EventForwarder,
	logger *zap.Logger,
) *Consumer {
	return &Consumer{
		id:        id,
		coord:     coord,
		log:       log,
		resolver:  resolver,
		forwarder: forwarder,
		logger:    logger.With(zap.String("consumer_id", id)),
	}
}

// Run 注册并驱动心跳与租约对账，ctx 取消后注销退出
func (c *Consumer) Run(ctx context.Context) error {
	if err := c.coord.RegisterConsumer(ctx, c.id); err != nil {
		return err
	}
	if err := c.coord.SendHeartbeat(ctx, c.id, heartbeatTTL); err != nil {
		return err
	}
	c.logger.Info("Consumer registered")

	go c.heartbeatLoop(ctx)

	c.workers = make(map[string]*ShardWorker)
	ticker := time.NewTicker(reconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return ctx.Err()
		case <-ticker.C:
			if err := c.reconcile(ctx); err != nil {
				c.logger.Error("Error in lease reconcile", zap.Error(err))
			}
		}
	}
}

func (c *Consumer) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.coord.SendHeartbeat(ctx, c.id, heartbeatTTL); err != nil {
				c.logger.Error("Failed to send heartbeat", zap.Error(err))
			}
		}
	}
}

// reconcile 对账当前租约与运行中的工作器
// 新租到的分片起工作器，失去租约的停掉丢弃
// 幂等，容忍租约列表的最终一致（旧工作器一次在途读取无害）
func (c *Consumer) reconcile(ctx context.Context) error {
	fetchCtx, cancel := context.WithTimeout(ctx, leaseFetchTimeout)
	streams, err := c.coord.LeasedStreams(fetchCtx, c.id)
	cancel()
	if err != nil {
		return err
	}

	leased := make(map[string]bool, len(streams))
	for _, stream := range streams {
		leased[stream] = true
		if _, running := c.workers[stream]; running {
			continue
		}
		w := newShardWorker(stream, c.id, c.log, c.resolver, c.forwarder, c.logger)
		w.start(ctx)
		c.workers[stream] = w
		c.logger.Info("Launched worker for shard", zap.String("stream", stream))
	}

	for stream, w := range c.workers {
		if !leased[stream] {
			w.stop()
			delete(c.workers, stream)
			c.logger.Info("Stopped worker for shard", zap.String("stream", stream))
		}
	}
	return nil
}

// shutdown 停掉全部工作器并注销自身
// 调用方的 ctx 已取消，注销用独立的短超时上下文
func (c *Consumer) shutdown() {
	for stream, w := range c.workers {
		w.stop()
		delete(c.workers, stream)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.coord.UnregisterConsumer(ctx, c.id); err != nil {
		c.logger.Error("Failed to unregister consumer", zap.Error(err))
		return
	}
	c.logger.Info("Consumer unregistered")
}
