package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/ricirt/plinko-sync/internal/api"
	"github.com/ricirt/plinko-sync/internal/bootstrap"
	"github.com/ricirt/plinko-sync/internal/config"
	"github.com/ricirt/plinko-sync/internal/metrics"
	"github.com/ricirt/plinko-sync/internal/service"
	"github.com/ricirt/plinko-sync/internal/worker"
)

func main() {
	// ---- configuration ----
	cfg, err := config.Load()
	if err != nil {
		fallback, _ := zap.NewProduction()
		fallback.Fatal("failed to load config", zap.Error(err))
	}

	logger, err := bootstrap.NewLogger(cfg.LogLevel)
	if err != nil {
		fallback, _ := zap.NewProduction()
		fallback.Fatal("failed to build logger", zap.Error(err))
	}
	defer logger.Sync() //nolint:errcheck

	// ---- single driver per queue ----
	lock, err := bootstrap.AcquireLock(cfg.SlotDir)
	if err != nil {
		logger.Fatal("failed to acquire queue lock", zap.String("dir", cfg.SlotDir), zap.Error(err))
	}
	defer lock.Unlock() //nolint:errcheck

	// ---- local queue ----
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	q, s, err := bootstrap.OpenQueue(cfg, logger, m)
	if err != nil {
		logger.Fatal("failed to open queue", zap.Error(err))
	}
	defer s.Close()
	m.QueueDepth.Set(float64(q.Len()))
	logger.Info("queue opened",
		zap.String("backend", cfg.SlotBackend),
		zap.String("key", cfg.QueueKey),
		zap.Int("pending", q.Len()))

	// ---- remote store ----
	ctx := context.Background()
	remote, err := bootstrap.OpenRemote(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to set up remote store", zap.Error(err))
	}
	defer remote.Close()

	// ---- producer ----
	svc := service.NewPeriodService(q, logger.Named("periods"))
	if periods, err := remote.Lister.ListPeriods(ctx); err != nil {
		logger.Warn("could not load periods from remote store, starting with pending changes only", zap.Error(err))
	} else {
		svc.Load(periods)
	}
	svc.Replay(q.PeekAll())

	// ---- sync workers ----
	// Context for all background goroutines; cancelled on shutdown signal.
	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()

	driver := worker.NewSyncDriver(q, remote.Gateway, cfg.SyncMaxAttempts, logger.Named("sync"),
		m.SyncHooks(func(l worker.LostMutation) {
			logger.Error("mutation lost",
				zap.String("item_id", l.Item.ID),
				zap.String("table", string(l.Item.Table)),
				zap.String("op", string(l.Item.Op)),
				zap.String("reason", l.Reason),
				zap.Any("payload", l.Item.Payload),
				zap.Error(l.Err))
		}))
	syncW := worker.NewSyncWorker(driver, cfg.SyncInterval, cfg.SyncMaxBackoff, logger.Named("sync"))
	reachW := worker.NewReachabilityWorker(remote.Pinger, cfg.ReachabilityInterval, syncW.Trigger, logger.Named("reachability"))

	pool := worker.NewPool(syncW, reachW)
	pool.Start(workerCtx)

	// ---- HTTP server ----
	router := api.NewRouter(svc, q, driver, reachW.Online, reg, logger)
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// ---- graceful shutdown ----
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutdown signal received")

	// 1. Stop accepting new producer requests.
	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	// 2. Stop the workers; an in-flight cycle settles what it already applied.
	cancelWorkers()
	pool.Wait()

	// 3. One last best-effort flush within the shutdown budget.
	if res, err := driver.Cycle(shutdownCtx); err != nil {
		logger.Warn("final sync cycle interrupted", zap.Error(err))
	} else if res.Drained > 0 {
		logger.Info("final sync cycle",
			zap.Int("applied", res.Applied),
			zap.Int("requeued", res.Requeued))
	}

	logger.Info("server stopped cleanly", zap.Int("pending", q.Len()))
}
