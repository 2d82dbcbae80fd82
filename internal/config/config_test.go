package config

import (
	"testing"
	"time"

	"ats-dashboard-feed/internal/feedbuffer"

	"github.com/spf13/viper"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := load(viper.New())
	if err != nil {
		t.Fatalf("load() error: %v", err)
	}

	if cfg.Feed.Address != feedbuffer.DefaultAddress {
		t.Errorf("Feed.Address = %s, expected %s", cfg.Feed.Address, feedbuffer.DefaultAddress)
	}
	if cfg.Feed.RefreshInterval != time.Second {
		t.Errorf("Feed.RefreshInterval = %v, expected 1s", cfg.Feed.RefreshInterval)
	}
	if cfg.Feed.ReconnectDelay != 2*time.Second {
		t.Errorf("Feed.ReconnectDelay = %v, expected 2s", cfg.Feed.ReconnectDelay)
	}
	if cfg.GRPC.Port != ":9090" {
		t.Errorf("GRPC.Port = %s, expected :9090", cfg.GRPC.Port)
	}
	if cfg.Redis.Enabled || cfg.Kafka.Enabled {
		t.Error("mirrors should be disabled by default")
	}
	if len(cfg.Simulator.Symbols) != 3 {
		t.Errorf("Simulator.Symbols = %v, expected 3 symbols", cfg.Simulator.Symbols)
	}
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("FEED_ADDRESS", "wss://feed.example.com/data")
	t.Setenv("FEED_REFRESH_INTERVAL", "500ms")
	t.Setenv("FEED_RECONNECT_DELAY", "3s")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("REDIS_ENABLED", "true")
	t.Setenv("REDIS_TTL", "1m")
	t.Setenv("KAFKA_BROKERS", "kafka1:9092, kafka2:9092")
	t.Setenv("SIMULATOR_SYMBOLS", "NSE_INDEX|Nifty 50,NSE_INDEX|Nifty Bank")

	cfg, err := load(viper.New())
	if err != nil {
		t.Fatalf("load() error: %v", err)
	}

	if cfg.Feed.Address != "wss://feed.example.com/data" {
		t.Errorf("Feed.Address = %s", cfg.Feed.Address)
	}
	if cfg.Feed.RefreshInterval != 500*time.Millisecond {
		t.Errorf("Feed.RefreshInterval = %v, expected 500ms", cfg.Feed.RefreshInterval)
	}
	if cfg.Feed.ReconnectDelay != 3*time.Second {
		t.Errorf("Feed.ReconnectDelay = %v, expected 3s", cfg.Feed.ReconnectDelay)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %s, expected debug", cfg.Log.Level)
	}
	if !cfg.Redis.Enabled || cfg.Redis.TTL != time.Minute {
		t.Errorf("Redis = %+v", cfg.Redis)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "kafka2:9092" {
		t.Errorf("Kafka.Brokers = %v", cfg.Kafka.Brokers)
	}
	if len(cfg.Simulator.Symbols) != 2 || cfg.Simulator.Symbols[1] != "NSE_INDEX|Nifty Bank" {
		t.Errorf("Simulator.Symbols = %v", cfg.Simulator.Symbols)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"http address", "FEED_ADDRESS", "http://localhost:7070/data"},
		{"zero refresh", "FEED_REFRESH_INTERVAL", "0s"},
		{"negative reconnect", "FEED_RECONNECT_DELAY", "-1s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			if _, err := load(viper.New()); err == nil {
				t.Errorf("load() with %s=%s should fail", tt.key, tt.val)
			}
		})
	}
}

func TestConfig_FeedOptions(t *testing.T) {
	cfg, err := load(viper.New())
	if err != nil {
		t.Fatalf("load() error: %v", err)
	}

	opts := cfg.FeedOptions()
	if opts != feedbuffer.DefaultOptions() {
		t.Errorf("FeedOptions() = %v, expected %v", opts, feedbuffer.DefaultOptions())
	}
}
