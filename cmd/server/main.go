package main

import (
	"context"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ats-dashboard-feed/internal/alerts"
	"ats-dashboard-feed/internal/config"
	"ats-dashboard-feed/internal/feedbuffer"
	grpchandlers "ats-dashboard-feed/internal/grpc"
	"ats-dashboard-feed/internal/logging"
	"ats-dashboard-feed/internal/mirror"
	"ats-dashboard-feed/internal/pubsub"
	"ats-dashboard-feed/pkg/models"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"
)

const (
	brokerQueueSize = 1000
	cleanupInterval = 5 * time.Minute
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

	logger.Info("Starting ATS dashboard feed...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	snapshotBroker := pubsub.NewBroker(models.SnapshotTopic, brokerQueueSize)
	triggerBroker := pubsub.NewBroker(alerts.TriggerTopic, brokerQueueSize)
	alertStore := alerts.NewStore()
	alertEngine := alerts.NewEngine(alertStore, triggerBroker, logger, cfg.Alerts.Cooldown)

	sinks := []feedbuffer.Sink{
		feedbuffer.SinkFunc(func(batch []*models.Snapshot) {
			for _, snap := range batch {
				snapshotBroker.Publish(snap)
			}
		}),
		alertEngine,
	}

	var (
		redisMirror *mirror.Redis
		kafkaMirror *mirror.Kafka
	)

	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()

		pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
		if err := client.Ping(pingCtx).Err(); err != nil {
			logger.Warn("Redis not reachable yet, mirror writes will be retried per batch",
				zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
		pingCancel()

		redisMirror = mirror.NewRedis(client, logger, cfg.Redis.TTL)
		sinks = append(sinks, redisMirror)
	}

	if cfg.Kafka.Enabled {
		kafkaMirror = mirror.NewKafka(mirror.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic), logger)
		sinks = append(sinks, kafkaMirror)
	}

	buffer := feedbuffer.New(logger, cfg.FeedOptions(), sinks...)

	logger.Info("Starting services...")

	if err := snapshotBroker.Start(ctx); err != nil {
		logger.Fatal("Failed to start snapshot broker", zap.Error(err))
	}
	if err := triggerBroker.Start(ctx); err != nil {
		logger.Fatal("Failed to start trigger broker", zap.Error(err))
	}
	if err := alertEngine.Start(ctx); err != nil {
		logger.Fatal("Failed to start alert engine", zap.Error(err))
	}
	if redisMirror != nil {
		if err := redisMirror.Start(ctx); err != nil {
			logger.Fatal("Failed to start redis mirror", zap.Error(err))
		}
	}
	if kafkaMirror != nil {
		if err := kafkaMirror.Start(ctx); err != nil {
			logger.Fatal("Failed to start kafka mirror", zap.Error(err))
		}
	}
	if err := buffer.Connect(ctx, cfg.Feed.Address); err != nil {
		logger.Fatal("Failed to start feed buffer", zap.Error(err))
	}

	lis, err := net.Listen("tcp", cfg.GRPC.Port)
	if err != nil {
		logger.Fatal("Failed to listen", zap.String("port", cfg.GRPC.Port), zap.Error(err))
	}

	grpcServer := grpc.NewServer()

	feedServer := grpchandlers.NewDashboardFeedServer(buffer, snapshotBroker, alertStore, triggerBroker, logger)
	feedServer.AddStats("alert_engine", func() interface{} { return alertEngine.GetStats() })
	if redisMirror != nil {
		feedServer.AddStats("redis_mirror", func() interface{} { return redisMirror.Stats() })
		feedServer.SetFallback(redisMirror)
	}
	if kafkaMirror != nil {
		feedServer.AddStats("kafka_mirror", func() interface{} { return kafkaMirror.Stats() })
	}

	grpchandlers.RegisterDashboardFeedServer(grpcServer, feedServer)
	reflection.Register(grpcServer)

	go func() {
		logger.Info("gRPC server starting", zap.String("addr", lis.Addr().String()))
		if err := grpcServer.Serve(lis); err != nil {
			logger.Fatal("Failed to serve", zap.Error(err))
		}
	}()

	go func() {
		ticker := time.NewTicker(cleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				alertEngine.CleanupCooldowns()
			}
		}
	}()

	logger.Info("Server started successfully",
		zap.String("feed", cfg.Feed.Address),
		zap.Duration("refresh_interval", cfg.Feed.RefreshInterval),
		zap.Duration("reconnect_delay", cfg.Feed.ReconnectDelay),
		zap.Duration("alert_cooldown", cfg.Alerts.Cooldown),
		zap.Bool("redis_mirror", redisMirror != nil),
		zap.Bool("kafka_mirror", kafkaMirror != nil))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down server...")

	buffer.Shutdown()
	alertEngine.Stop()
	if redisMirror != nil {
		redisMirror.Stop()
	}
	if kafkaMirror != nil {
		kafkaMirror.Stop()
		if err := kafkaMirror.Close(); err != nil {
			logger.Warn("Error closing kafka writer", zap.Error(err))
		}
	}

	// Stopping the brokers ends the watch streams so GracefulStop can return.
	triggerBroker.Stop()
	snapshotBroker.Stop()
	grpcServer.GracefulStop()

	logger.Info("Server stopped")
}
