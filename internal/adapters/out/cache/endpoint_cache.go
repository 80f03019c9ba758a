package cache

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aurora-im/eventfabric/internal/domain/entity"
	"github.com/aurora-im/eventfabric/internal/ports/out"
)

type cacheEntry struct {
	endpoints []string
	cachedAt  time.Time
}

// EndpointCache 在线端点的进程内短 TTL 缓存
// 命中期内避免每条转发都打一次存储
// 读路径自身保证不会返回过期条目，后台清扫只是内存卫生
type EndpointCache struct {
	presence   out.PresenceRepository
	ttl        time.Duration
	sweepEvery time.Duration

	mu      sync.Mutex
	entries map[string]cacheEntry
}

func NewEndpointCache(presence out.PresenceRepository, ttl, sweepEvery time.Duration) *EndpointCache {
	return &EndpointCache{
		presence:   presence,
		ttl:        ttl,
		sweepEvery: sweepEvery,
		entries:    make(map[string]cacheEntry),
	}
}

// Endpoints 命中且未过期直接返回，否则回源并缓存
// notification 事件按用户解析，其余按频道解析
func (c *EndpointCache) Endpoints(ctx context.Context, receiverID string, eventType entity.EventType) ([]string, error) {
	key := receiverID + ":" + string(eventType)

	c.mu.Lock()
	if entry, ok := c.entries[key]; ok && time.Since(entry.cachedAt) < c.ttl {
		c.mu.Unlock()
		return entry.endpoints, nil
	}
	c.mu.Unlock()

	var endpoints []string
	var err error
	if eventType.UserTargeted() {
		endpoints, err = c.presence.UserEndpoint(ctx, receiverID)
	} else {
		endpoints, err = c.presence.ChannelEndpoints(ctx, receiverID)
	}
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[key] = cacheEntry{endpoints: endpoints, cachedAt: time.Now()}
	c.mu.Unlock()
	return endpoints, nil
}

// Start 启动后台清扫，ctx 取消后退出
func (c *EndpointCache) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(c.sweepEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.sweep()
			}
		}
	}()
}

func (c *EndpointCache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, entry := range c.entries {
		if time.Since(entry.cachedAt) > c.ttl {
			delete(c.entries, key)
			removed++
		}
	}
	if removed > 0 {
		zap.L().Debug("Cleaned up expired cache entries", zap.Int("count", removed))
	}
}
