package config

import (
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"ats-dashboard-feed/internal/feedbuffer"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the feed daemon, the simulator and the CLI.
type Config struct {
	Feed      FeedConfig      `mapstructure:"feed"`
	GRPC      GRPCConfig      `mapstructure:"grpc"`
	Log       LogConfig       `mapstructure:"log"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Alerts    AlertsConfig    `mapstructure:"alerts"`
	Simulator SimulatorConfig `mapstructure:"simulator"`
}

type FeedConfig struct {
	Address          string        `mapstructure:"address"`
	RefreshInterval  time.Duration `mapstructure:"refresh_interval"`
	ReconnectDelay   time.Duration `mapstructure:"reconnect_delay"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
	ReadLimit        int64         `mapstructure:"read_limit"`
}

type GRPCConfig struct {
	Port string `mapstructure:"port"`
	Addr string `mapstructure:"addr"` // address the CLI dials
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type AlertsConfig struct {
	Cooldown time.Duration `mapstructure:"cooldown"`
}

type SimulatorConfig struct {
	Port     string        `mapstructure:"port"`
	Interval time.Duration `mapstructure:"interval"`
	Symbols  []string      `mapstructure:"symbols"`
}

var keys = []string{
	"feed.address", "feed.refresh_interval", "feed.reconnect_delay", "feed.handshake_timeout", "feed.read_limit",
	"grpc.port", "grpc.addr",
	"log.level", "log.development",
	"redis.enabled", "redis.addr", "redis.password", "redis.db", "redis.ttl",
	"kafka.enabled", "kafka.brokers", "kafka.topic",
	"alerts.cooldown",
	"simulator.port", "simulator.interval", "simulator.symbols",
}

// Load reads configuration from an optional .env file, environment variables and defaults.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: No .env file found, relying on System Env Vars")
	}
	return load(viper.New())
}

func load(v *viper.Viper) (*Config, error) {
	v.SetDefault("feed.address", feedbuffer.DefaultAddress)
	v.SetDefault("feed.refresh_interval", feedbuffer.DefaultRefreshInterval)
	v.SetDefault("feed.reconnect_delay", feedbuffer.DefaultReconnectDelay)
	v.SetDefault("feed.handshake_timeout", feedbuffer.DefaultHandshakeTimeout)
	v.SetDefault("feed.read_limit", feedbuffer.DefaultReadLimit)

	v.SetDefault("grpc.port", ":9090")
	v.SetDefault("grpc.addr", "127.0.0.1:9090")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", 10*time.Minute)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "ats_dashboard_snapshots")

	v.SetDefault("alerts.cooldown", 30*time.Second)

	v.SetDefault("simulator.port", ":7070")
	v.SetDefault("simulator.interval", 200*time.Millisecond)
	v.SetDefault("simulator.symbols", []string{"NSE_INDEX|Nifty 50", "NSE_INDEX|Nifty Bank", "NSE_EQ|INE002A01018"})

	// feed.address -> FEED_ADDRESS
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			log.Printf("Could not bind env var for key %s: %v", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	// Lists arrive from the environment as one comma separated string.
	cfg.Kafka.Brokers = splitList(cfg.Kafka.Brokers)
	cfg.Simulator.Symbols = splitList(cfg.Simulator.Symbols)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	u, err := url.Parse(c.Feed.Address)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		return fmt.Errorf("feed address %q must be a ws:// or wss:// URL", c.Feed.Address)
	}
	if c.Feed.RefreshInterval <= 0 {
		return fmt.Errorf("feed refresh interval must be positive, got %v", c.Feed.RefreshInterval)
	}
	if c.Feed.ReconnectDelay <= 0 {
		return fmt.Errorf("feed reconnect delay must be positive, got %v", c.Feed.ReconnectDelay)
	}
	if c.Kafka.Enabled && (len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "") {
		return fmt.Errorf("kafka brokers and topic are required when kafka is enabled")
	}
	if c.Simulator.Interval <= 0 {
		return fmt.Errorf("simulator interval must be positive, got %v", c.Simulator.Interval)
	}
	return nil
}

func (c *Config) FeedOptions() feedbuffer.Options {
	return feedbuffer.Options{
		RefreshInterval:  c.Feed.RefreshInterval,
		ReconnectDelay:   c.Feed.ReconnectDelay,
		HandshakeTimeout: c.Feed.HandshakeTimeout,
		ReadLimit:        c.Feed.ReadLimit,
	}
}

func splitList(values []string) []string {
	var out []string
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
