package benchmarks

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"ats-dashboard-feed/internal/alerts"
	"ats-dashboard-feed/internal/datafeed"
	"ats-dashboard-feed/internal/pubsub"
	"ats-dashboard-feed/pkg/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const niftySymbol = "NSE_INDEX|Nifty 50"

func dashboardFrame(b testing.TB, symbol string) []byte {
	b.Helper()
	frame, err := datafeed.NewMockDataFeed([]string{symbol}, time.Millisecond).NextFrame()
	if err != nil {
		b.Fatalf("NextFrame() error: %v", err)
	}
	return frame
}

func mustSnapshot(b testing.TB, frame []byte) *models.Snapshot {
	b.Helper()
	snap, err := models.ParseSnapshot(frame, time.Now())
	if err != nil {
		b.Fatalf("ParseSnapshot() error: %v", err)
	}
	return snap
}

func BenchmarkParseSnapshot(b *testing.B) {
	frame := dashboardFrame(b, niftySymbol)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		if _, err := models.ParseSnapshot(frame, time.Now()); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkDashboardDecode(b *testing.B) {
	snap := mustSnapshot(b, dashboardFrame(b, niftySymbol))

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		if _, err := snap.Dashboard(); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkSnapshotMapLatest(b *testing.B) {
	m := make(models.SnapshotMap)
	for i := 0; i < 200; i++ {
		symbol := fmt.Sprintf("NSE_EQ|SYM%03d", i)
		m[symbol] = &models.Snapshot{Symbol: symbol, Timestamp: int64(i % 50), Sequence: uint64(i)}
	}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		if m.Latest() == nil {
			b.Fatal("Latest() = nil")
		}
	}
}

func BenchmarkAlertEngine(b *testing.B) {
	store := alerts.NewStore()
	triggers := pubsub.NewBroker(alerts.TriggerTopic, 1000)
	engine := alerts.NewEngine(store, triggers, zap.NewNop(), time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	triggers.Start(ctx)
	engine.Start(ctx)

	for i := 0; i < 1000; i++ {
		store.Create(models.NewAlert(niftySymbol, models.FieldSpot, models.ComparatorGT, 1000, ""))
	}
	snap := mustSnapshot(b, dashboardFrame(b, niftySymbol))

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		engine.Evaluate(snap)
	}
}

func BenchmarkPubSubBroker(b *testing.B) {
	broker := pubsub.NewBroker(models.SnapshotTopic, 10000)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	broker.Start(ctx)
	defer broker.Stop()

	for i := 0; i < 100; i++ {
		broker.Subscribe(uuid.New().String(), []string{niftySymbol, "NSE_INDEX|Nifty Bank"}, 1000)
	}
	snap := &models.Snapshot{Symbol: niftySymbol}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		broker.Publish(snap)
	}
}

func BenchmarkConcurrentAlertProcessing(b *testing.B) {
	store := alerts.NewStore()
	triggers := pubsub.NewBroker(alerts.TriggerTopic, 1000)
	engine := alerts.NewEngine(store, triggers, zap.NewNop(), 100*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	triggers.Start(ctx)
	engine.Start(ctx)

	snaps := make([]*models.Snapshot, 0, len(datafeed.DefaultSymbols))
	for _, symbol := range datafeed.DefaultSymbols {
		for i := 0; i < 100; i++ {
			store.Create(models.NewAlert(symbol, models.FieldSpot, models.ComparatorGT, 1000, ""))
		}
		snaps = append(snaps, mustSnapshot(b, dashboardFrame(b, symbol)))
	}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		var wg sync.WaitGroup
		for _, snap := range snaps {
			wg.Add(1)
			go func(snap *models.Snapshot) {
				defer wg.Done()
				engine.Evaluate(snap)
			}(snap)
		}
		wg.Wait()
	}
}

func BenchmarkLatency(b *testing.B) {
	store := alerts.NewStore()
	triggers := pubsub.NewBroker(alerts.TriggerTopic, 1000)
	engine := alerts.NewEngine(store, triggers, zap.NewNop(), 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	triggers.Start(ctx)
	engine.Start(ctx)

	store.Create(models.NewAlert(niftySymbol, models.FieldSpot, models.ComparatorGT, 1000, ""))
	subscriber := triggers.Subscribe(uuid.New().String(), nil, 100)
	snap := mustSnapshot(b, dashboardFrame(b, niftySymbol))

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		engine.Publish([]*models.Snapshot{snap})

		select {
		case <-subscriber.C:
		case <-time.After(100 * time.Millisecond):
			b.Fatal("Timeout waiting for alert trigger")
		}
	}
}
