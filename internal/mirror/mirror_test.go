package mirror

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ats-dashboard-feed/pkg/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

func snapshot(t *testing.T, frame string, seq uint64) *models.Snapshot {
	t.Helper()
	snap, err := models.ParseSnapshot([]byte(frame), time.Now())
	if err != nil {
		t.Fatalf("ParseSnapshot() error: %v", err)
	}
	snap.Sequence = seq
	return snap
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func startRedis(t *testing.T) (*Redis, *miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	m := NewRedis(rdb, zap.NewNop(), time.Minute)
	m.Start(context.Background())
	t.Cleanup(m.Stop)
	return m, mr, rdb
}

func TestRedis_MirrorsLatestPayload(t *testing.T) {
	m, mr, rdb := startRedis(t)
	ctx := context.Background()

	ps := rdb.Subscribe(ctx, ChannelPrefix+"NSE_INDEX|Nifty 50")
	defer ps.Close()
	if _, err := ps.Receive(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	frame := `{"symbol":"NSE_INDEX|Nifty 50","timestamp":1001,"spot":24510}`
	m.Publish([]*models.Snapshot{snapshot(t, frame, 1)})

	select {
	case msg := <-ps.Channel():
		if msg.Payload != frame {
			t.Errorf("published payload = %s, expected %s", msg.Payload, frame)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no pub/sub message")
	}

	waitFor(t, func() bool { return m.Stats().Written == 1 })

	stored, err := mr.Get(KeyPrefix + "NSE_INDEX|Nifty 50")
	if err != nil || stored != frame {
		t.Errorf("stored = %q, %v", stored, err)
	}
	if ttl := mr.TTL(KeyPrefix + "NSE_INDEX|Nifty 50"); ttl != time.Minute {
		t.Errorf("TTL = %v, expected 1m", ttl)
	}

	snap, err := m.Get(ctx, "NSE_INDEX|Nifty 50")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if snap.Timestamp != 1001 {
		t.Errorf("Get() timestamp = %d, expected 1001", snap.Timestamp)
	}
}

func TestRedis_GetMissing(t *testing.T) {
	m, _, _ := startRedis(t)

	if _, err := m.Get(context.Background(), "nope"); !errors.Is(err, ErrNotMirrored) {
		t.Errorf("Get() = %v, expected ErrNotMirrored", err)
	}
}

func TestRedis_GetMany(t *testing.T) {
	m, mr, _ := startRedis(t)

	mr.Set(KeyPrefix+"A", `{"symbol":"A","timestamp":1}`)
	mr.Set(KeyPrefix+"B", `{"symbol":"B","timestamp":2}`)
	mr.Set(KeyPrefix+"bad", `not json`)

	snaps, err := m.GetMany(context.Background(), []string{"A", "B", "C", "bad"})
	if err != nil {
		t.Fatalf("GetMany() error: %v", err)
	}
	if len(snaps) != 2 || snaps["B"].Timestamp != 2 {
		t.Errorf("GetMany() = %v, expected A and B", snaps.Symbols())
	}
}

func TestRedis_FailedWritesAreCounted(t *testing.T) {
	m, mr, _ := startRedis(t)
	mr.Close()

	m.Publish([]*models.Snapshot{snapshot(t, `{"symbol":"A"}`, 1)})
	waitFor(t, func() bool { return m.Stats().Failed == 1 })
}

type recordingWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *recordingWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func (w *recordingWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.msgs)
}

func TestKafka_WritesOneMessagePerSnapshot(t *testing.T) {
	w := &recordingWriter{}
	k := NewKafka(w, zap.NewNop())
	k.Start(context.Background())

	k.Publish([]*models.Snapshot{
		snapshot(t, `{"symbol":"A","timestamp":10}`, 1),
		snapshot(t, `{"symbol":"B","timestamp":11}`, 2),
	})
	k.Publish(nil)

	waitFor(t, func() bool { return w.count() == 2 })

	if err := k.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.closed {
		t.Error("writer should be closed")
	}
	msg := w.msgs[1]
	if string(msg.Key) != "B" || string(msg.Value) != `{"symbol":"B","timestamp":11}` {
		t.Errorf("message = %s/%s", msg.Key, msg.Value)
	}
	if len(msg.Headers) != 2 || string(msg.Headers[0].Value) != "11" || string(msg.Headers[1].Value) != "2" {
		t.Errorf("headers = %+v", msg.Headers)
	}
}

func TestKafka_StopFlushesQueue(t *testing.T) {
	w := &recordingWriter{}
	k := NewKafka(w, zap.NewNop())

	k.Publish([]*models.Snapshot{snapshot(t, `{"symbol":"A"}`, 1)})
	k.Start(context.Background())
	k.Stop()
	k.Stop()

	if w.count() != 1 {
		t.Errorf("written = %d, expected queued batch flushed on Stop", w.count())
	}
}

func TestKafka_WriteErrorIsCounted(t *testing.T) {
	w := &recordingWriter{err: errors.New("broker down")}
	k := NewKafka(w, zap.NewNop())
	k.Start(context.Background())
	defer k.Stop()

	k.Publish([]*models.Snapshot{snapshot(t, `{"symbol":"A"}`, 1)})
	waitFor(t, func() bool { return k.Stats().Failed == 1 })
	if k.Stats().Written != 0 {
		t.Errorf("Written = %d, expected 0", k.Stats().Written)
	}
}
