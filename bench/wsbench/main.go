// wsbench 对事件网关做 WebSocket 压测。
// 本地用共享密钥签发令牌连上 /ws，按事件帧协议发 message 事件，
// 通过 metadata 里的发送时间戳测端到端延迟。
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/schollz/progressbar/v3"

	"github.com/aurora-im/eventfabric/pkg/jwt"
)

// Config 压测配置
type Config struct {
	Mode        string        // connect-only, messaging
	Target      string        // WebSocket URL
	Conns       int           // 总连接数
	Duration    time.Duration // 压测持续时间
	Ramp        time.Duration // 爬坡时间
	MsgRate     int           // 每连接每分钟事件数（messaging 模式）
	PayloadSize int           // 事件文本大小
	Channel     string        // 事件接收频道，空则随机
	JWTSecret   string        // 网关共享密钥，用于本地签发令牌
	TokenTTL    time.Duration // 令牌有效期
	Output      string        // 输出格式：text, json
	Verbose     bool          // 详细输出
}

// Stats 统计数据
type Stats struct {
	mu sync.Mutex

	TotalAttempts int64
	SuccessConns  int64
	FailedConns   int64
	CurrentConns  int64
	Disconnects   int64

	ConnLatencies  []int64 // 纳秒
	EventLatencies []int64

	EventsSent     int64
	EventsReceived int64
	EventsFailed   int64

	Errors map[string]int64

	StartTime time.Time
	EndTime   time.Time
}

// LatencyStats 延迟统计（毫秒）
type LatencyStats struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Avg    float64 `json:"avg"`
	P50    float64 `json:"p50"`
	P90    float64 `json:"p90"`
	P95    float64 `json:"p95"`
	P99    float64 `json:"p99"`
	StdDev float64 `json:"std_dev"`
}

// Result 压测结果
type Result struct {
	TotalAttempts  int64            `json:"total_attempts"`
	SuccessConns   int64            `json:"success_conns"`
	FailedConns    int64            `json:"failed_conns"`
	SuccessRate    float64          `json:"success_rate_percent"`
	Disconnects    int64            `json:"disconnects"`
	ConnLatency    LatencyStats     `json:"conn_latency_ms"`
	EventsSent     int64            `json:"events_sent"`
	EventsReceived int64            `json:"events_received"`
	EventsFailed   int64            `json:"events_failed"`
	EventLatency   LatencyStats     `json:"event_latency_ms,omitempty"`
	Errors         map[string]int64 `json:"errors,omitempty"`
	ActualTime     float64          `json:"actual_time_seconds"`
}

// eventFrame 网关的事件帧，字段与服务端保持一致
type eventFrame struct {
	EventID    string            `json:"event_id,omitempty"`
	EventType  string            `json:"event_type"`
	SenderID   string            `json:"sender_id,omitempty"`
	ReceiverID string            `json:"receiver_id"`
	Text       string            `json:"text"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Timestamp  string            `json:"timestamp,omitempty"`
}

// benchConn 单个压测连接
type benchConn struct {
	id      int
	conn    *websocket.Conn
	userID  string
	channel string
	mu      sync.Mutex
}

func main() {
	cfg := parseFlags()

	fmt.Println("=== wsbench - 事件网关压测工具 ===")
	fmt.Printf("模式: %s\n", cfg.Mode)
	fmt.Printf("目标: %s\n", cfg.Target)
	fmt.Printf("连接数: %d\n", cfg.Conns)
	fmt.Printf("持续时间: %s\n", cfg.Duration)
	fmt.Printf("爬坡时间: %s\n", cfg.Ramp)
	fmt.Println()

	stats := &Stats{
		Errors:    make(map[string]int64),
		StartTime: time.Now(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\n收到中断信号，正在关闭...")
		cancel()
	}()

	runBench(ctx, cfg, stats)
	stats.EndTime = time.Now()

	result := buildResult(stats)
	if cfg.Output == "json" {
		data, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(data))
	} else {
		printResult(result)
	}
}

func parseFlags() Config {
	cfg := Config{}

	flag.StringVar(&cfg.Mode, "mode", "connect-only", "压测模式: connect-only, messaging")
	flag.StringVar(&cfg.Target, "target", "ws://localhost:8080/ws", "WebSocket URL")
	flag.IntVar(&cfg.Conns, "conns", 1000, "总连接数")
	flag.DurationVar(&cfg.Duration, "duration", 5*time.Minute, "压测持续时间")
	flag.DurationVar(&cfg.Ramp, "ramp", 1*time.Minute, "爬坡时间")
	flag.IntVar(&cfg.MsgRate, "msg-rate", 10, "每连接每分钟事件数（messaging 模式）")
	flag.IntVar(&cfg.PayloadSize, "payload-size", 128, "事件文本大小（字节）")
	flag.StringVar(&cfg.Channel, "channel", "", "事件接收频道 ID，空则每个连接随机")
	flag.StringVar(&cfg.JWTSecret, "jwt-secret", "dev-secret-change-me", "网关 JWT 密钥")
	flag.DurationVar(&cfg.TokenTTL, "token-ttl", time.Hour, "令牌有效期")
	flag.StringVar(&cfg.Output, "output", "text", "输出格式: text, json")
	flag.BoolVar(&cfg.Verbose, "verbose", false, "详细输出")

	flag.Parse()
	return cfg
}

func runBench(ctx context.Context, cfg Config, stats *Stats) {
	tokens := jwt.NewManager(cfg.JWTSecret)

	connsPerSecond := float64(cfg.Conns) / cfg.Ramp.Seconds()
	if connsPerSecond < 1 {
		connsPerSecond = 1
	}
	fmt.Printf("爬坡速率: %.1f 连接/秒\n\n", connsPerSecond)

	bar := progressbar.NewOptions(cfg.Conns,
		progressbar.OptionSetDescription("建立连接"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("conn"),
	)

	var wg sync.WaitGroup
	connCh := make(chan *benchConn, cfg.Conns)

	ticker := time.NewTicker(time.Duration(float64(time.Second) / connsPerSecond))
	defer ticker.Stop()

	connID := 0
	for connID < cfg.Conns {
		select {
		case <-ctx.Done():
			connID = cfg.Conns
		case <-ticker.C:
			wg.Add(1)
			go func(id int) {
				defer wg.Done()
				c := dialOne(ctx, id, cfg, tokens, stats)
				if c != nil {
					select {
					case connCh <- c:
					case <-ctx.Done():
						c.conn.Close()
					}
				}
				bar.Add(1)
			}(connID)
			connID++
		}
	}

	wg.Wait()
	bar.Finish()
	fmt.Println()

	close(connCh)
	var conns []*benchConn
	for c := range connCh {
		conns = append(conns, c)
	}
	fmt.Printf("成功建立 %d 个连接\n", len(conns))
	if len(conns) == 0 {
		return
	}

	remaining := cfg.Duration - time.Since(stats.StartTime)
	if remaining <= 0 {
		remaining = time.Minute
	}
	fmt.Printf("维持连接 %s...\n\n", remaining)

	runCtx, cancel := context.WithTimeout(ctx, remaining)
	defer cancel()

	var connWg sync.WaitGroup
	for _, c := range conns {
		connWg.Add(1)
		go func(c *benchConn) {
			defer connWg.Done()
			driveConn(runCtx, c, cfg, stats)
		}(c)
	}

	reportTicker := time.NewTicker(10 * time.Second)
	defer reportTicker.Stop()

	done := make(chan struct{})
	go func() {
		connWg.Wait()
		close(done)
	}()

	for {
		select {
		case <-done:
			return
		case <-runCtx.Done():
			for _, c := range conns {
				c.mu.Lock()
				c.conn.Close()
				c.mu.Unlock()
			}
			connWg.Wait()
			return
		case <-reportTicker.C:
			printProgress(stats)
		}
	}
}

func dialOne(ctx context.Context, id int, cfg Config, tokens jwt.Manager, stats *Stats) *benchConn {
	atomic.AddInt64(&stats.TotalAttempts, 1)

	userID := uuid.NewString()
	token, err := tokens.Generate(uuid.NewString(), userID, "bench-"+strconv.Itoa(id), cfg.TokenTTL)
	if err != nil {
		atomic.AddInt64(&stats.FailedConns, 1)
		return nil
	}

	channel := cfg.Channel
	if channel == "" {
		channel = uuid.NewString()
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
		ReadBufferSize:   4096,
		WriteBufferSize:  4096,
	}

	start := time.Now()
	ws, _, err := dialer.DialContext(ctx, cfg.Target+"?token="+token, nil)
	if err != nil {
		atomic.AddInt64(&stats.FailedConns, 1)
		stats.mu.Lock()
		errStr := err.Error()
		if len(errStr) > 50 {
			errStr = errStr[:50]
		}
		stats.Errors[errStr]++
		stats.mu.Unlock()
		if cfg.Verbose {
			fmt.Printf("连接 %d 失败: %v\n", id, err)
		}
		return nil
	}

	latency := time.Since(start).Nanoseconds()
	stats.mu.Lock()
	stats.ConnLatencies = append(stats.ConnLatencies, latency)
	stats.mu.Unlock()

	atomic.AddInt64(&stats.SuccessConns, 1)
	atomic.AddInt64(&stats.CurrentConns, 1)

	return &benchConn{id: id, conn: ws, userID: userID, channel: channel}
}

func driveConn(ctx context.Context, c *benchConn, cfg Config, stats *Stats) {
	defer func() {
		c.mu.Lock()
		c.conn.Close()
		c.mu.Unlock()
		atomic.AddInt64(&stats.CurrentConns, -1)
	}()

	// 网关做服务端 Ping，gorilla 默认 Pong 处理器已够用
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		for {
			c.conn.SetReadDeadline(time.Now().Add(90 * time.Second))
			_, msg, err := c.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					atomic.AddInt64(&stats.Disconnects, 1)
				}
				return
			}
			atomic.AddInt64(&stats.EventsReceived, 1)

			var frame eventFrame
			if json.Unmarshal(msg, &frame) != nil {
				continue
			}
			if sentAt, ok := frame.Metadata["bench_sent_ns"]; ok {
				if ns, err := strconv.ParseInt(sentAt, 10, 64); err == nil {
					stats.mu.Lock()
					stats.EventLatencies = append(stats.EventLatencies, time.Now().UnixNano()-ns)
					stats.mu.Unlock()
				}
			}
		}
	}()

	var msgTicker *time.Ticker
	if cfg.Mode == "messaging" && cfg.MsgRate > 0 {
		msgTicker = time.NewTicker(time.Minute / time.Duration(cfg.MsgRate))
		defer msgTicker.Stop()
	}

	for {
		if msgTicker == nil {
			select {
			case <-ctx.Done():
				return
			case <-readDone:
				return
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-readDone:
			return
		case <-msgTicker.C:
			sendEvent(c, cfg, stats)
		}
	}
}

func sendEvent(c *benchConn, cfg Config, stats *Stats) {
	text := make([]byte, cfg.PayloadSize)
	for i := range text {
		text[i] = 'x'
	}

	frame := eventFrame{
		EventType:  "message",
		ReceiverID: c.channel,
		Text:       string(text),
		Metadata: map[string]string{
			"bench_sent_ns": strconv.FormatInt(time.Now().UnixNano(), 10),
		},
	}
	data, _ := json.Marshal(frame)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		atomic.AddInt64(&stats.EventsFailed, 1)
		return
	}
	atomic.AddInt64(&stats.EventsSent, 1)
}

func printProgress(stats *Stats) {
	elapsed := time.Since(stats.StartTime)
	fmt.Printf("[%s] 当前连接: %d | 成功: %d | 失败: %d | 断开: %d | 发送/接收: %d/%d\n",
		elapsed.Round(time.Second),
		atomic.LoadInt64(&stats.CurrentConns),
		atomic.LoadInt64(&stats.SuccessConns),
		atomic.LoadInt64(&stats.FailedConns),
		atomic.LoadInt64(&stats.Disconnects),
		atomic.LoadInt64(&stats.EventsSent),
		atomic.LoadInt64(&stats.EventsReceived))
}

func buildResult(stats *Stats) Result {
	result := Result{
		TotalAttempts:  stats.TotalAttempts,
		SuccessConns:   stats.SuccessConns,
		FailedConns:    stats.FailedConns,
		Disconnects:    stats.Disconnects,
		EventsSent:     stats.EventsSent,
		EventsReceived: stats.EventsReceived,
		EventsFailed:   stats.EventsFailed,
		Errors:         stats.Errors,
		ActualTime:     stats.EndTime.Sub(stats.StartTime).Seconds(),
	}
	if stats.TotalAttempts > 0 {
		result.SuccessRate = float64(stats.SuccessConns) / float64(stats.TotalAttempts) * 100
	}
	result.ConnLatency = latencyStats(stats.ConnLatencies)
	result.EventLatency = latencyStats(stats.EventLatencies)
	return result
}

func latencyStats(latencies []int64) LatencyStats {
	if len(latencies) == 0 {
		return LatencyStats{}
	}

	sorted := make([]int64, len(latencies))
	copy(sorted, latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	toMs := func(ns int64) float64 { return float64(ns) / 1e6 }

	var sum int64
	for _, v := range sorted {
		sum += v
	}
	avg := float64(sum) / float64(len(sorted))

	var variance float64
	for _, v := range sorted {
		diff := float64(v) - avg
		variance += diff * diff
	}
	variance /= float64(len(sorted))

	return LatencyStats{
		Min:    toMs(sorted[0]),
		Max:    toMs(sorted[len(sorted)-1]),
		Avg:    toMs(int64(avg)),
		P50:    toMs(sorted[len(sorted)*50/100]),
		P90:    toMs(sorted[len(sorted)*90/100]),
		P95:    toMs(sorted[len(sorted)*95/100]),
		P99:    toMs(sorted[len(sorted)*99/100]),
		StdDev: toMs(int64(math.Sqrt(variance))),
	}
}

func printResult(result Result) {
	fmt.Println()
	fmt.Println("==================== 压测结果 ====================")
	fmt.Println()
	fmt.Println("--- 连接统计 ---")
	fmt.Printf("尝试连接数:     %d\n", result.TotalAttempts)
	fmt.Printf("成功连接数:     %d\n", result.SuccessConns)
	fmt.Printf("失败连接数:     %d\n", result.FailedConns)
	fmt.Printf("连接成功率:     %.2f%%\n", result.SuccessRate)
	fmt.Printf("断开连接数:     %d\n", result.Disconnects)
	fmt.Println()

	fmt.Println("--- 连接延迟 (ms) ---")
	printLatency(result.ConnLatency)

	if result.EventsSent > 0 {
		fmt.Println("--- 事件统计 ---")
		fmt.Printf("发送事件数:     %d\n", result.EventsSent)
		fmt.Printf("接收事件数:     %d\n", result.EventsReceived)
		fmt.Printf("发送失败数:     %d\n", result.EventsFailed)
		fmt.Println()
		fmt.Println("--- 端到端延迟 (ms) ---")
		printLatency(result.EventLatency)
	}

	if len(result.Errors) > 0 {
		fmt.Println("--- 错误统计 ---")
		for err, count := range result.Errors {
			fmt.Printf("%s: %d\n", err, count)
		}
		fmt.Println()
	}

	fmt.Printf("--- 运行时间: %.2f 秒 ---\n", result.ActualTime)
	fmt.Println("=================================================")
}

func printLatency(l LatencyStats) {
	fmt.Printf("Min:    %.2f\n", l.Min)
	fmt.Printf("Max:    %.2f\n", l.Max)
	fmt.Printf("Avg:    %.2f\n", l.Avg)
	fmt.Printf("P50:    %.2f\n", l.P50)
	fmt.Printf("P90:    %.2f\n", l.P90)
	fmt.Printf("P95:    %.2f\n", l.P95)
	fmt.Printf("P99:    %.2f\n", l.P99)
	fmt.Printf("StdDev: %.2f\n", l.StdDev)
	fmt.Println()
}
