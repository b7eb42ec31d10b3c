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

	"github.com/gunner6603/shopping-mall/internal/config"
	"github.com/gunner6603/shopping-mall/internal/httpx"
	kafkax "github.com/gunner6603/shopping-mall/internal/kafka"
	"github.com/gunner6603/shopping-mall/internal/orders"
	"github.com/gunner6603/shopping-mall/internal/postgres"
	"github.com/gunner6603/shopping-mall/internal/reconcile"
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

	// Producer: order.canceled notifications
	prod := kafkax.NewProducer(logger, cfg.Brokers(), orders.TopicOrderCanceled, 1024)
	prod.Start(ctx)

	repo := &orders.Repo{DB: db}
	scanner := &reconcile.Scanner{
		Orders:     repo,
		Canceller:  repo,
		Watermarks: &reconcile.Watermarks{DB: db},
		Log:        logger,
		StaleAfter: cfg.StaleAfter,
		Producer:   prod,
		Service:    cfg.ServiceName + "-reconciler",
	}

	// health endpoint only; no API surface on this binary
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: httpx.NewRouter()}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	// Single periodic flow. Runs must not overlap or run on two
	// instances at once: both could read the same watermark and
	// double-advance it. The ticker serializes runs in-process; keeping
	// the deployment to one replica is an ops invariant.
	scanCtx, stopScan := context.WithCancel(ctx)
	defer stopScan()
	scanDone := make(chan struct{})
	go func() {
		defer close(scanDone)
		ticker := time.NewTicker(cfg.ScanInterval)
		defer ticker.Stop()
		logger.Info("reconciler started",
			zap.Duration("scan_interval", cfg.ScanInterval),
			zap.Duration("stale_after", cfg.StaleAfter))
		for {
			if _, err := scanner.Run(scanCtx); err != nil {
				logger.Error("scan run failed", zap.Error(err))
			}
			select {
			case <-scanCtx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	// graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down reconciler")

	// stop the scan loop before closing the producer: no publishes can
	// happen once it has exited
	stopScan()
	<-scanDone

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	prod.Close()
	prod.WaitClosed()
}
