package mirror

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ats-dashboard-feed/internal/feedbuffer"
	"ats-dashboard-feed/pkg/models"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	KeyPrefix     = "ats:snapshot:"
	ChannelPrefix = "ats.snapshots."
)

var ErrNotMirrored = errors.New("symbol not mirrored")

// Redis keeps the latest payload per symbol under KeyPrefix+symbol and
// publishes each one on ChannelPrefix+symbol.
type Redis struct {
	*pump
	client *redis.Client
	ttl    time.Duration
}

var _ feedbuffer.Sink = (*Redis)(nil)

// NewRedis creates a new Redis mirror. Keys expire after ttl.
func NewRedis(client *redis.Client, logger *zap.Logger, ttl time.Duration) *Redis {
	r := &Redis{client: client, ttl: ttl}
	r.pump = newPump(logger.Named("mirror.redis"), r.write)
	return r
}

func (r *Redis) write(ctx context.Context, batch []*models.Snapshot) error {
	pipe := r.client.Pipeline()
	for _, snap := range batch {
		payload := []byte(snap.Payload)
		pipe.Set(ctx, KeyPrefix+snap.Symbol, payload, r.ttl)
		pipe.Publish(ctx, ChannelPrefix+snap.Symbol, payload)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline: %w", err)
	}
	return nil
}

// Get reads a mirrored snapshot back.
func (r *Redis) Get(ctx context.Context, symbol string) (*models.Snapshot, error) {
	payload, err := r.client.Get(ctx, KeyPrefix+symbol).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotMirrored
	}
	if err != nil {
		return nil, err
	}
	return models.ParseSnapshot(payload, time.Now())
}

// GetMany reads several mirrored payloads with one MGET, skipping missing symbols.
func (r *Redis) GetMany(ctx context.Context, symbols []string) (models.SnapshotMap, error) {
	if len(symbols) == 0 {
		return models.SnapshotMap{}, nil
	}

	keys := make([]string, len(symbols))
	for i, symbol := range symbols {
		keys[i] = KeyPrefix + symbol
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	snapshots := make(models.SnapshotMap, len(values))
	for _, value := range values {
		payload, ok := value.(string)
		if !ok || payload == "" {
			continue
		}
		snap, err := models.ParseSnapshot([]byte(payload), time.Now())
		if err != nil {
			r.logger.Warn("Skipping unreadable mirrored snapshot", zap.Error(err))
			continue
		}
		snapshots[snap.Symbol] = snap
	}
	return snapshots, nil
}
