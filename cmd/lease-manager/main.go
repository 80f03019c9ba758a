package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	redisAdapter "github.com/aurora-im/eventfabric/internal/adapters/out/redis"
	"github.com/aurora-im/eventfabric/internal/lease"
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
	logCfg.Service = "lease-manager"
	zlog.MustInitGlobal(*logCfg)
	defer zap.L().Sync()

	logger := zap.L()
	logger.Info("lease-manager starting")

	// 初始化Redis
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

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

	numShards := viper.GetInt("fabric.num_shards")
	if numShards <= 0 {
		numShards = 16
	}
	group := viper.GetString("fabric.group")
	if group == "" {
		group = "grpc_group"
	}

	coord := redisAdapter.NewCoordinationRepositoryRedis(redisClient)
	eventLog := redisAdapter.NewEventLogRedis(redisClient, group,
		viper.GetInt64("fabric.read_count"), viper.GetDuration("fabric.read_block"))

	manager := lease.NewManager(coord, eventLog, numShards, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- manager.Run(ctx)
	}()

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logger.Info("Shutting down lease manager...")
		cancel()
		select {
		case <-errCh:
		case <-time.After(10 * time.Second):
			logger.Warn("Lease loop did not stop in time")
		}
	case err := <-errCh:
		if err != nil {
			logger.Fatal("Lease manager failed", zap.Error(err))
		}
	}

	logger.Info("Lease manager exited properly")
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
