package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	grpcIn "github.com/aurora-im/eventfabric/internal/adapters/in/grpc"
	"github.com/aurora-im/eventfabric/internal/adapters/in/ws"
	"github.com/aurora-im/eventfabric/internal/adapters/out/db"
	redisAdapter "github.com/aurora-im/eventfabric/internal/adapters/out/redis"
	"github.com/aurora-im/eventfabric/internal/application"
	"github.com/aurora-im/eventfabric/pkg/jwt"
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
	logCfg.Service = "ws-gateway"
	zlog.MustInitGlobal(*logCfg)
	defer zap.L().Sync()
	zlog.RegisterMetrics(prometheus.DefaultRegisterer)

	logger := zap.L()
	logger.Info("ws-gateway starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 初始化数据库
	database, err := initDB()
	if err != nil {
		logger.Fatal("Failed to init database", zap.Error(err))
	}

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

	// 本实例对外的 RPC 端点，投递回流时使用
	advertise := viper.GetString("server.advertise_endpoint")
	if advertise == "" {
		logger.Fatal("server.advertise_endpoint is required")
	}

	numShards := viper.GetInt("fabric.num_shards")
	if numShards <= 0 {
		numShards = 16
	}
	group := viper.GetString("fabric.group")
	if group == "" {
		group = "grpc_group"
	}

	// 初始化仓储层
	messageRepo := db.NewMessageRepositoryMySQL(database)
	memberRepo := db.NewMemberRepositoryMySQL(database)
	presenceRepo := redisAdapter.NewPresenceRepositoryRedis(redisClient, memberRepo)
	eventLog := redisAdapter.NewEventLogRedis(redisClient, group,
		viper.GetInt64("fabric.read_count"), viper.GetDuration("fabric.read_block"))

	// 初始化应用层
	dispatchUseCase := application.NewDispatchUseCase(messageRepo, eventLog, numShards, logger)
	dispatchUseCase.Start(ctx)

	// WebSocket Hub
	hub := ws.NewHub(advertise, presenceRepo, dispatchUseCase, logger)
	deliveryUseCase := application.NewDeliveryUseCase(hub)

	// JWT
	tokenManager := jwt.NewManager(viper.GetString("jwt.secret"))

	// HTTP服务器
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "online": hub.OnlineCount()})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.Any("/log/level", gin.WrapF(zlog.LevelHTTPHandler()))

	// WebSocket路由
	router.GET("/ws", func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}
		claims, err := tokenManager.Parse(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		hub.ServeWs(c.Writer, c.Request, ws.CurrentUser{
			UserID:    claims.Subject,
			Name:      claims.Name,
			ExpiresAt: claims.ExpiresAt.Time,
		})
	})

	httpPort := viper.GetInt("server.http_port")
	if httpPort == 0 {
		httpPort = 8080
	}
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", httpPort),
		Handler: router,
	}
	go func() {
		logger.Info("HTTP server starting", zap.Int("port", httpPort))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// gRPC服务器：接收消费侧回流的事件批
	grpcPort := viper.GetInt("server.grpc_port")
	if grpcPort == 0 {
		grpcPort = 9090
	}
	grpcListener, err := net.Listen("tcp", fmt.Sprintf(":%d", grpcPort))
	if err != nil {
		logger.Fatal("Failed to listen on gRPC port", zap.Error(err))
	}

	grpcServer := grpc.NewServer()
	eventServer := grpcIn.NewEventServer(deliveryUseCase, logger)
	grpcIn.RegisterEventServer(grpcServer, eventServer)

	go func() {
		logger.Info("gRPC server starting", zap.Int("port", grpcPort))
		if err := grpcServer.Serve(grpcListener); err != nil {
			logger.Fatal("gRPC server failed", zap.Error(err))
		}
	}()

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down servers...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown error", zap.Error(err))
	}
	grpcServer.GracefulStop()
	hub.Stop(shutdownCtx)

	logger.Info("Servers exited properly")
}

// extractToken 优先取 Authorization 头，握手场景允许 query 传 token
func extractToken(c *gin.Context) string {
	if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return c.Query("token")
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

func initDB() (*gorm.DB, error) {
	dsn := viper.GetString("mysql.dsn")

	database, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	sqlDB, err := database.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxIdleConns(viper.GetInt("mysql.max_idle_conns"))
	sqlDB.SetMaxOpenConns(viper.GetInt("mysql.max_open_conns"))
	sqlDB.SetConnMaxLifetime(time.Hour)

	return database, nil
}
