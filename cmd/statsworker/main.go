package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/gunner6603/shopping-mall/internal/catalog"
	"github.com/gunner6603/shopping-mall/internal/config"
	kafkax "github.com/gunner6603/shopping-mall/internal/kafka"
	"github.com/gunner6603/shopping-mall/internal/orders"
	"github.com/gunner6603/shopping-mall/internal/postgres"
	"github.com/gunner6603/shopping-mall/internal/redisx"
	"github.com/gunner6603/shopping-mall/internal/stats"
)

func main() {
	_ = godotenv.Load()

	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN, cfg.PostgresMaxConns)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	svc := &stats.Service{
		DB:    db,
		Dedup: &stats.RedisDedup{Client: rdb, Service: cfg.ServiceName + "-stats"},
		Log:   logger,
	}

	cons := kafkax.NewConsumer(logger, cfg.Brokers(), cfg.StatsGroup, orders.TopicOrderCompleted, cfg.StatsWorkers)
	go func() {
		logger.Info("stats consumer started",
			zap.String("group", cfg.StatsGroup),
			zap.String("topic", orders.TopicOrderCompleted),
			zap.Int("workers", cfg.StatsWorkers))
		if err := cons.Start(ctx, svc.HandleOrderCompleted); err != nil {
			logger.Error("consumer exit", zap.Error(err))
			cancel()
		}
	}()

	// periodic recommendation cache eviction; a full rewarm right after
	// is intentionally not scheduled (misses repopulate lazily)
	cache := &catalog.Cache{DB: db, Redis: rdb, Log: logger}

	// optional one-shot warm, off by default
	if cfg.WarmCacheOnStart {
		warmer := &catalog.Warmer{Cache: cache, Log: logger}
		go func() {
			if err := warmer.WarmRecommendationCache(ctx); err != nil {
				logger.Warn("cache warm failed", zap.Error(err))
			}
		}()
	}
	go func() {
		ticker := time.NewTicker(cfg.CacheEvictEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := cache.ClearAll(ctx); err != nil {
					logger.Warn("cache eviction failed", zap.Error(err))
				} else {
					logger.Info("recommendation cache evicted")
				}
			}
		}
	}()

	// graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down stats worker")
	cancel()
	time.Sleep(500 * time.Millisecond)
}
