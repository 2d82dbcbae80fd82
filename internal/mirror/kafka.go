package mirror

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"ats-dashboard-feed/internal/feedbuffer"
	"ats-dashboard-feed/pkg/models"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// MessageWriter is the part of *kafka.Writer the mirror uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewKafkaWriter creates a Kafka writer that hashes messages by key across the
// topic partitions
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
	}
}

// Kafka writes one message per published snapshot, keyed by symbol so a
// symbol's history stays on one partition.
type Kafka struct {
	*pump
	writer MessageWriter
}

var _ feedbuffer.Sink = (*Kafka)(nil)

// NewKafka creates a new Kafka mirror around writer
func NewKafka(writer MessageWriter, logger *zap.Logger) *Kafka {
	k := &Kafka{writer: writer}
	k.pump = newPump(logger.Named("mirror.kafka"), k.write)
	return k
}

func (k *Kafka) write(ctx context.Context, batch []*models.Snapshot) error {
	msgs := make([]kafka.Message, len(batch))
	for i, snap := range batch {
		msgs[i] = kafka.Message{
			Key:   []byte(snap.Symbol),
			Value: snap.Payload,
			Time:  snap.ReceivedAt,
			Headers: []kafka.Header{
				{Key: "timestamp", Value: []byte(strconv.FormatInt(snap.Timestamp, 10))},
				{Key: "sequence", Value: []byte(strconv.FormatUint(snap.Sequence, 10))},
			},
		}
	}
	if err := k.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("kafka write: %w", err)
	}
	return nil
}

// Close stops the pump and closes the writer.
func (k *Kafka) Close() error {
	k.Stop()
	return k.writer.Close()
}
