// cmd/worker-manager/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sqpr-engine/internal/common/camunda"
	"sqpr-engine/internal/common/config"
	"sqpr-engine/internal/common/logger"
	"sqpr-engine/internal/common/observability"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	log.Info("starting worker manager", map[string]interface{}{
		"version":     cfg.App.Version,
		"environment": cfg.App.Environment,
		"backend":     cfg.Storage.Backend,
	})

	obs := observability.New("sqpr-worker-manager", log)
	defer obs.Shutdown()

	ctx := context.Background()

	zeebeClient, err := camunda.Connect(ctx, camunda.ClientConfig{
		GatewayAddress:         cfg.Camunda.BrokerAddress,
		UsePlaintextConnection: true,
		ConnectionTimeout:      config.GetDuration(cfg.Camunda.RequestTimeout),
		Retry:                  camunda.DefaultRetryConfig,
	}, log)
	if err != nil {
		zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
	}
	log.Info("zeebe client connected", nil)

	b, err := connectBackends(ctx, cfg, log)
	if err != nil {
		zapLog.Fatal("backend connection failed", zap.Error(err))
	}
	defer b.Close(log)

	deps, err := buildDependencies(ctx, cfg, b, obs, log)
	if err != nil {
		zapLog.Fatal("failed to build engine", zap.Error(err))
	}

	workers := registerWorkers(zeebeClient, cfg, deps, obs, log)
	log.Info("workers registered", map[string]interface{}{"count": len(workers)})

	srv := newServer(cfg.App.HTTPAddress, zeebeClient.HealthCheck)
	go func() {
		log.Info("health/metrics server listening", map[string]interface{}{"address": cfg.App.HTTPAddress})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("health/metrics server failed", map[string]interface{}{"error": err})
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, stopping workers", nil)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, w := range workers {
		w.Close()
		w.AwaitClose()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("health/metrics server shutdown failed", map[string]interface{}{"error": err})
	}
	if err := zeebeClient.Close(); err != nil {
		log.Error("error closing zeebe client", map[string]interface{}{"error": err})
	}

	log.Info("worker manager stopped", nil)
}
