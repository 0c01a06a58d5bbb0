package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"avl-gateway/internal/api"
	"avl-gateway/internal/config"
	"avl-gateway/internal/dispatcher"
	"avl-gateway/internal/link"
	"avl-gateway/internal/model"
	"avl-gateway/internal/observability"
	"avl-gateway/internal/server"
	"avl-gateway/internal/store"
)

func main() {
	cfg := config.Load()
	logger := observability.NewLogger()
	defer logger.Sync()

	logger.Info("starting avl-gateway",
		zap.String("tcp_port", cfg.TCPPort),
		zap.String("api_port", cfg.APIPort))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The TCP core keeps running without a healthy store (accept-and-log
	// only); the HTTP API is useless without one and is skipped.
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	st, err := store.Connect(connectCtx, cfg.MongoURI, cfg.DatabaseName, logger)
	cancel()
	if err != nil {
		logger.Warn("store unavailable, running degraded", zap.Error(err))
		st = nil
	} else {
		if err := st.EnsureIndexes(ctx, model.DefaultModemType); err != nil {
			logger.Error("index creation failed", zap.Error(err))
		}
	}

	live, err := store.NewLive(cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, live cache disabled", zap.Error(err))
	}

	pub, err := link.Connect(cfg.NatsURL, logger)
	if err != nil {
		logger.Warn("nats unavailable, fan-out disabled", zap.Error(err))
	}
	defer pub.Close()

	go observability.StartMetricsServer(cfg.MetricsPort)

	if st != nil {
		handler := api.NewHandler(st, live, cfg.APIKey, logger)
		router := api.NewRouter(handler)
		go func() {
			if err := http.ListenAndServe(":"+cfg.APIPort, router); err != nil {
				logger.Error("http api failed", zap.Error(err))
			}
		}()
	}

	d := dispatcher.New(st, live, pub, cfg.LogsDir, logger)
	srv := server.New(st, d, cfg.PollInterval, logger)
	if err := srv.Start(ctx, ":"+cfg.TCPPort); err != nil {
		logger.Error("tcp server failed", zap.Error(err))
		os.Exit(1)
	}
}
