// Package main runs the live-stream platform HTTP server with WebSocket and
// graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/andyyong11/streamdj/config"
	"github.com/andyyong11/streamdj/internal/auth"
	"github.com/andyyong11/streamdj/internal/ingest"
	"github.com/andyyong11/streamdj/internal/middleware"
	"github.com/andyyong11/streamdj/internal/presence"
	"github.com/andyyong11/streamdj/internal/realtime"
	"github.com/andyyong11/streamdj/internal/streams"
	"github.com/andyyong11/streamdj/pkg/database"
	"github.com/andyyong11/streamdj/pkg/metrics"
	"github.com/andyyong11/streamdj/pkg/queue"
	"github.com/andyyong11/streamdj/pkg/redis"
	"github.com/andyyong11/streamdj/pkg/response"
	"github.com/andyyong11/streamdj/pkg/retry"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	mtr := metrics.New()

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	redisPubSub := realtime.NewRedisPubSub(rdb.Client, logger)
	hub := realtime.NewHub(logger, redisPubSub, redisPubSub)
	hub.SetStats(mtr)

	// Stream sessions
	streamStore := streams.NewPostgresStore(pool)
	streamService := streams.NewService(streamStore, hub, cfg.Ingest.KeyTTL, logger)
	streamService.SetStats(mtr)

	// Viewer presence. Count changes fan out over the hub, are persisted as
	// the advisory listener count, and update the presence gauge.
	registry := presence.NewRegistry(cfg.Presence.GraceWindow, nil, logger)
	registry.SetCountBroadcast(func(sessionID uuid.UUID, count int) {
		hub.BroadcastToStream(sessionID, realtime.EventViewerCountUpdate, map[string]int{"count": count})
		streamService.RecordListenerCount(context.Background(), sessionID, count)
		mtr.SetViewersPresent(registry.Total())
	})

	streamHandler := streams.NewHandler(streamService, registry, logger)

	// Ingest callbacks from the media server; ended broadcasts are queued for
	// archive upload.
	jobQueue := queue.NewQueue(rdb.Client, logger)
	gateway := ingest.NewGateway(streamService, jobQueue, logger)
	webhook := ingest.NewWebhookHandler(gateway, logger)

	// Auth
	authRepo := auth.NewRepository(pool)
	authHandler := auth.NewHandler(authRepo, jwtService, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })
	router.GET("/metrics", gin.WrapH(mtr.Handler()))

	// Auth (public)
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/register", authHandler.Register)
	}

	// Public stream discovery
	router.GET("/streams/active", streamHandler.ListActive)
	router.GET("/streams/:id", streamHandler.GetByID)
	router.GET("/streams/:id/viewers", streamHandler.Viewers)

	// Protected API (JWT required)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		api.POST("/streams/key", streamHandler.IssueKey)
		api.PUT("/streams/:id", streamHandler.Update)
		api.POST("/streams/:id/end", streamHandler.End)
		api.POST("/admin/streams/sweep", middleware.RequireRole("admin"), streamHandler.Sweep)
	}

	// Ingest callbacks (media server only; keep off the public network)
	hooks := router.Group("/hooks")
	{
		hooks.POST("/publish", webhook.Publish)
		hooks.POST("/publish_done", webhook.PublishDone)
	}

	// WebSocket (token or viewer_id in query; no Authorization header)
	router.GET("/ws", realtime.ServeWs(hub, registry, logger, jwtService.ViewerValidator()))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()
	go streamService.RunSweeper(bgCtx, retry.Policy{MaxAttempts: 3, BaseDelay: cfg.Ingest.SweepInterval})
	go registry.RunReaper(bgCtx, cfg.Presence.ReapInterval)

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	bgCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
