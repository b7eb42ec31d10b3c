package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/gunner6603/shopping-mall/internal/catalog"
	"github.com/gunner6603/shopping-mall/internal/config"
	"github.com/gunner6603/shopping-mall/internal/httpx"
	kafkax "github.com/gunner6603/shopping-mall/internal/kafka"
	"github.com/gunner6603/shopping-mall/internal/orders"
	"github.com/gunner6603/shopping-mall/internal/postgres"
	"github.com/gunner6603/shopping-mall/internal/redisx"
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

	// Kafka producer (order.completed)
	prod := kafkax.NewProducer(logger, cfg.Brokers(), orders.TopicOrderCompleted, 1024)
	prod.Start(ctx)

	// Repo & handler
	repo := &orders.Repo{DB: db}
	router := httpx.NewRouter()
	oh := &httpx.OrdersHandler{
		Repo:     repo,
		Cache:    &catalog.Cache{DB: db, Redis: rdb, Log: logger},
		Producer: prod,
		Redis:    rdb,
		Service:  cfg.ServiceName + "-api",
	}
	oh.Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		logger.Info("HTTP listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	// wait signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	prod.Close() // close inbox -> flush & close writer
	prod.WaitClosed()
}
