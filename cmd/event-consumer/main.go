package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/aurora-im/eventfabric/internal/adapters/out/cache"
	grpcOut "github.com/aurora-im/eventfabric/internal/adapters/out/grpc"
	redisAdapter "github.com/aurora-im/eventfabric/internal/adapters/out/redis"
	"github.com/aurora-im/eventfabric/internal/consumer"
	"github.com/aurora-im/eventfabric/pkg/zlog"
)

func main() {
	// 加载配置
	if err := loadConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	logCfg, err := zlog.LoadConfig(viper.GetViper())
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载日志配置失败: %v\n", err)
		os.Exit(1)
	}
	logCfg.Service = "event-consumer"
	zlog.MustInitGlobal(*logCfg)
	defer zap.L().Sync()
	zlog.RegisterMetrics(prometheus.DefaultRegisterer)

	logger := zap.L()

	consumerID := viper.GetString("consumer.id")
	if consumerID == "" {
		host, _ := os.Hostname()
		consumerID = fmt.Sprintf("%s-%s", host, uuid.NewString()[:8])
	}
	logger.Info("event-consumer starting", zap.String("consumer_id", consumerID))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 初始化Redis
	redisClient, err := redisAdapter.Connect(ctx, &goredis.Options{
		Addr:     viper.GetString("redis.addr"),
		Password: viper.GetString("redis.password"),
		DB:       viper.GetInt("redis.db"),
		PoolSize: viper.GetInt("redis.pool_size"),
	}, 5)
	if err != nil {
		logger.Fatal("Failed to connect redis", zap.Error(err))
	}
	defer redisClient.Close()

	group := viper.GetString("fabric.group")
	if group == "" {
		group = "grpc_group"
	}
	readCount := viper.GetInt64("fabric.read_count")
	if readCount <= 0 {
		readCount = 10
	}
	readBlock := viper.GetDuration("fabric.read_block")
	if readBlock <= 0 {
		readBlock = 5 * time.Second
	}

	coord := redisAdapter.NewCoordinationRepositoryRedis(redisClient)
	eventLog := redisAdapter.NewEventLogRedis(redisClient, group, readCount, readBlock)

	// 端点解析：在线仓储 + 进程内 TTL 缓存
	presenceRepo := redisAdapter.NewPresenceRepositoryRedis(redisClient, nil)
	cacheTTL := viper.GetDuration("cache.endpoint_ttl")
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Second
	}
	sweepEvery := viper.GetDuration("cache.sweep_interval")
	if sweepEvery <= 0 {
		sweepEvery = 60 * time.Second
	}
	endpointCache := cache.NewEndpointCache(presenceRepo, cacheTTL, sweepEvery)
	endpointCache.Start(ctx)

	// gRPC 连接池 + 批量转发器
	maxConns := viper.GetInt("grpc.pool_max_conns")
	if maxConns <= 0 {
		maxConns = 64
	}
	pool := grpcOut.NewConnectionPool(maxConns, nil)
	defer pool.Stop()

	rpcTimeout := viper.GetDuration("grpc.timeout")
	if rpcTimeout <= 0 {
		rpcTimeout = 3 * time.Second
	}
	forwarder := grpcOut.NewEventForwarderGrpc(pool, rpcTimeout)

	c := consumer.NewConsumer(consumerID, coord, eventLog, endpointCache, forwarder, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- c.Run(ctx)
	}()

	// 管理端HTTP服务器
	httpServer := startAdminServer(logger)

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logger.Info("Shutting down event consumer...")
		cancel()
		select {
		case <-errCh:
		case <-time.After(15 * time.Second):
			logger.Warn("Consumer did not stop in time")
		}
	case err := <-errCh:
		if err != nil {
			logger.Error("Consumer failed", zap.Error(err))
		}
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown error", zap.Error(err))
	}

	logger.Info("Event consumer exited properly")
}

func startAdminServer(logger *zap.Logger) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.Any("/log/level", gin.WrapF(zlog.LevelHTTPHandler()))

	httpPort := viper.GetInt("server.http_port")
	if httpPort == 0 {
		httpPort = 8081
	}
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", httpPort),
		Handler: router,
	}
	go func() {
		logger.Info("HTTP server starting", zap.Int("port", httpPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()
	return srv
}

func loadConfig() error {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "dev"
	}

	viper.SetConfigName(fmt.Sprintf("config.%s", env))
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("../configs")
	viper.AddConfigPath("../../configs")

	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	return nil
}
