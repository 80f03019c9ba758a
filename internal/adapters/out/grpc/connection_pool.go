package grpc

import (
	"container/list"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
)

const maxMessageSize = 4 * 1024 * 1024 // 4MB

// DialFunc 建立到目标网关的连接，测试中可替换
type DialFunc func(endpoint string) (*grpc.ClientConn, error)

func defaultDial(endpoint string) (*grpc.ClientConn, error) {
	return grpc.NewClient(endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		// 长连接保活，实时转发不能等重建连接
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                30 * time.Second,
			Timeout:             5 * time.Second,
			PermitWithoutStream: true,
		}),
		grpc.WithDefaultCallOptions(
			grpc.MaxCallRecvMsgSize(maxMessageSize),
			grpc.MaxCallSendMsgSize(maxMessageSize),
		),
	)
}

type poolEntry struct {
	endpoint string
	conn     *grpc.ClientConn
}

// ConnectionPool 容量受限的 LRU 连接池
// 只在容量满时淘汰最久未用的连接，不做空闲超时淘汰
// 进程内所有分片工作器共享一个池，全部变更在同一把锁内完成
type ConnectionPool struct {
	mu       sync.Mutex
	maxConns int
	dial     DialFunc
	entries  map[string]*list.Element
	order    *list.List // 队尾为最近使用
}

func NewConnectionPool(maxConns int, dial DialFunc) *ConnectionPool {
	if dial == nil {
		dial = defaultDial
	}
	return &ConnectionPool{
		maxConns: maxConns,
		dial:     dial,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
	}
}

// Get 返回端点的连接：已有则标记最近使用，没有则新建，容量满先淘汰队首
func (p *ConnectionPool) Get(endpoint string) (*grpc.ClientConn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if elem, ok := p.entries[endpoint]; ok {
		p.order.MoveToBack(elem)
		return elem.Value.(*poolEntry).conn, nil
	}

	if p.order.Len() >= p.maxConns {
		oldest := p.order.Front()
		entry := oldest.Value.(*poolEntry)
		if err := entry.conn.Close(); err != nil {
			zap.L().Warn("Error closing evicted connection",
				zap.String("endpoint", entry.endpoint), zap.Error(err))
		}
		p.order.Remove(oldest)
		delete(p.entries, entry.endpoint)
		zap.L().Debug("Evicted connection", zap.String("endpoint", entry.endpoint))
	}

	conn, err := p.dial(endpoint)
	if err != nil {
		return nil, err
	}
	p.entries[endpoint] = p.order.PushBack(&poolEntry{endpoint: endpoint, conn: conn})
	zap.L().Debug("Created new connection", zap.String("endpoint", endpoint))
	return conn, nil
}

// Close 手动关闭指定端点的连接，运维用
func (p *ConnectionPool) Close(endpoint string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	elem, ok := p.entries[endpoint]
	if !ok {
		return nil
	}
	err := elem.Value.(*poolEntry).conn.Close()
	p.order.Remove(elem)
	delete(p.entries, endpoint)
	return err
}

// IsConnected 端点是否已有连接
func (p *ConnectionPool) IsConnected(endpoint string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.entries[endpoint]
	return ok
}

// Len 当前连接数
func (p *ConnectionPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.order.Len()
}

// Stop 关闭全部连接
func (p *ConnectionPool) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for endpoint, elem := range p.entries {
		if err := elem.Value.(*poolEntry).conn.Close(); err != nil {
			zap.L().Warn("Error closing connection",
				zap.String("endpoint", endpoint), zap.Error(err))
		}
	}
	p.entries = make(map[string]*list.Element)
	p.order.Init()
	zap.L().Info("Connection pool stopped")
}
