package main

import (
	"context"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"classroll/internal/attendance"
	"classroll/internal/config"
	"classroll/internal/logging"
	"classroll/internal/queue"
	"classroll/internal/store"
)

// Worker consumes submission events from Redis and rebuilds the cached class
// report. With QUEUE_BACKEND=memory the API handles events itself.
func main() {
	cfg := config.Load()
	log := logging.Must(cfg.Env).Named("worker")
	defer func() { _ = log.Sync() }()

	if cfg.QueueBackend == "memory" {
		log.Fatal("QUEUE_BACKEND=memory: events are handled inside the API process")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("db connect failed", zap.Error(err))
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()

	q := queue.NewRedisQueue(redisClient.Client, cfg.QueueKey)
	repo := attendance.NewRepository(db.Client)
	cache := attendance.NewRedisReportCache(redisClient.Client, cfg.ReportCacheTTL)
	svc := attendance.NewService(repo, nil, cache, log)

	log.Info("worker started, waiting for messages")
	if err := svc.Consume(ctx, q); err != nil {
		log.Fatal("queue consume init failed", zap.Error(err))
	}
	log.Info("worker stopped")
}
