// Package lease 维护分片租约：观察消费者存活，把分片尽量均匀地
// 分给活跃消费者并整体持久化。单实例控制循环。
package lease

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/aurora-im/eventfabric/internal/ports/out"
)

const (
	// 租约重算周期
	leaseInterval = 5 * time.Second
	// 心跳丢失后的宽限期，期满才把消费者移出注册集合
	graceWindow = 15 * time.Second
	// 启动时创建消费组的重试次数
	ensureRetries = 5
)

// Manager 租约管理器
type Manager struct {
	coord     out.CoordinationRepository
	log       out.EventLog
	numShards int
	logger    *zap.Logger

	// 心跳已过期但仍在宽限期内的消费者，值为首次发现时间
	suspects map[string]time.Time
}

func NewManager(coord out.CoordinationRepository, log out.EventLog, numShards int, logger *zap.Logger) *Manager {
	return &Manager{
		coord:     coord,
		log:       log,
		numShards: numShards,
		logger:    logger,
		suspects:  make(map[string]time.Time),
	}
}

// EnsurePartitions 在全部分片上幂等创建消费组
func (m *Manager) EnsurePartitions(ctx context.Context) error {
	for shard := 0; shard < m.numShards; shard++ {
		if err := m.log.EnsureGroup(ctx, shard); err != nil {
			return fmt.Errorf("ensure group on shard %d: %w", shard, err)
		}
	}
	return nil
}

// ActiveConsumers 按心跳 TTL 判定活跃集合
// 刚丢心跳的消费者本轮仍算活跃（不立即夺走它的分片），
// 宽限期满才从注册集合删除
func (m *Manager) ActiveConsumers(ctx context.Context) ([]string, error) {
	consumers, err := m.coord.Consumers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list consumers: %w", err)
	}

	var active []string
	for _, cid := range consumers {
		ttl, err := m.coord.HeartbeatTTL(ctx, cid)
		if err != nil {
			return nil, fmt.Errorf("heartbeat ttl for %s: %w", cid, err)
		}
		if ttl > 0 {
			active = append(active, cid)
			delete(m.suspects, cid)
			continue
		}
		if _, ok := m.suspects[cid]; !ok {
			m.logger.Warn("Consumer heartbeat expired, adding to suspect list",
				zap.String("consumer_id", cid))
			m.suspects[cid] = time.Now()
			active = append(active, cid)
		}
	}

	for cid, since := range m.suspects {
		if time.Since(since) > graceWindow {
			m.logger.Warn("Consumer grace period expired, deregistering",
				zap.String("consumer_id", cid))
			if err := m.coord.UnregisterConsumer(ctx, cid); err != nil {
				return nil, fmt.Errorf("unregister %s: %w", cid, err)
			}
			delete(m.suspects, cid)
		}
	}

	sort.Strings(active)
	return active, nil
}

// AssignLeases 把 numShards 个分片尽量均匀地分给活跃消费者
// 前 remainder 个消费者（字典序）各多拿一个分片
// 无活跃消费者时跳过，保留上一轮的旧表
func (m *Manager) AssignLeases(ctx context.Context) error {
	consumers, err := m.ActiveConsumers(ctx)
	if err != nil {
		return err
	}
	if len(consumers) == 0 {
		m.logger.Info("No active consumers, keeping previous leases")
		return nil
	}

	base := m.numShards / len(consumers)
	remainder := m.numShards % len(consumers)

	leases := make(map[int]string, m.numShards)
	shard := 0
	for i, consumer := range consumers {
		count := base
		if i < remainder {
			count++
		}
		for j := 0; j < count; j++ {
			leases[shard] = consumer
			shard++
		}
	}

	if err := m.coord.AssignLeases(ctx, leases); err != nil {
		return fmt.Errorf("persist leases: %w", err)
	}
	m.logger.Info("Assigned leases", zap.Int("num_consumers", len(consumers)))
	return nil
}

// Run 固定周期重算租约直到 ctx 取消
// 单轮失败只记日志，下一个周期就是重试
func (m *Manager) Run(ctx context.Context) error {
	var err error
	for i := 0; i < ensureRetries; i++ {
		if err = m.EnsurePartitions(ctx); err == nil {
			break
		}
		m.logger.Error("Failed to ensure partitions", zap.Int("attempt", i+1), zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
	if err != nil {
		return fmt.Errorf("ensure partitions after %d attempts: %w", ensureRetries, err)
	}

	m.logger.Info("Lease manager running", zap.Int("num_shards", m.numShards))
	ticker := time.NewTicker(leaseInterval)
	defer ticker.Stop()

	for {
		if err := m.AssignLeases(ctx); err != nil {
			m.logger.Error("Lease cycle failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
