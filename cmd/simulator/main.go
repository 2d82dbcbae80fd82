package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ats-dashboard-feed/internal/config"
	"ats-dashboard-feed/internal/datafeed"
	"ats-dashboard-feed/internal/logging"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	feed := datafeed.NewMockDataFeed(cfg.Simulator.Symbols, cfg.Simulator.Interval)
	server := datafeed.NewServer(logger)

	mux := http.NewServeMux()
	mux.Handle("/data", server)

	httpServer := &http.Server{
		Addr:              cfg.Simulator.Port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	if err := feed.Start(ctx); err != nil {
		logger.Fatal("Failed to start mock data feed", zap.Error(err))
	}

	runDone := make(chan struct{})
	go func() {
		server.Run(ctx, feed.Frames())
		close(runDone)
	}()

	go func() {
		logger.Info("Simulator listening",
			zap.String("addr", cfg.Simulator.Port),
			zap.String("path", "/data"),
			zap.Strings("symbols", cfg.Simulator.Symbols),
			zap.Duration("interval", cfg.Simulator.Interval))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to serve", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down simulator...")

	feed.Stop()
	cancel()
	<-runDone

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown", zap.Error(err))
	}

	logger.Info("Simulator stopped")
}
