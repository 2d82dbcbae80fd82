package datafeed

import (
	"context"
	"math/rand"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ats-dashboard-feed/pkg/models"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

func TestMockDataFeed_NextView(t *testing.T) {
	feed := NewMockDataFeed([]string{"NSE_INDEX|Nifty 50"}, time.Millisecond)

	for i := 0; i < 500; i++ {
		view := feed.NextView()
		if view.Symbol != "NSE_INDEX|Nifty 50" {
			t.Fatalf("Symbol = %s", view.Symbol)
		}
		if view.OHLC.Low > view.Spot || view.OHLC.High < view.Spot {
			t.Fatalf("spot %v outside range %+v", view.Spot, view.OHLC)
		}
		if view.AuctionProfile.VAL > view.AuctionProfile.POC || view.AuctionProfile.POC > view.AuctionProfile.VAH {
			t.Fatalf("auction profile out of order: %+v", view.AuctionProfile)
		}
		if len(view.OptionChain) != 10 || len(view.ScalpSignals) != 1 || len(view.ActiveTrades) != 1 {
			t.Fatalf("unexpected sections: %d options, %d signals, %d trades",
				len(view.OptionChain), len(view.ScalpSignals), len(view.ActiveTrades))
		}
	}

	price, ok := feed.GetCurrentPrice("NSE_INDEX|Nifty 50")
	if !ok || price <= 0 {
		t.Errorf("GetCurrentPrice() = %v, %v", price, ok)
	}
	if _, ok := feed.GetCurrentPrice("UNKNOWN"); ok {
		t.Error("GetCurrentPrice(UNKNOWN) should be absent")
	}
}

func TestMockDataFeed_ClosedTradesAreCapped(t *testing.T) {
	feed := NewMockDataFeed([]string{"NSE_INDEX|Nifty 50"}, time.Millisecond)
	feed.rng = rand.New(rand.NewSource(1))
	clock := time.Date(2024, 1, 2, 9, 15, 0, 0, time.UTC)
	feed.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	most := 0
	for i := 0; i < 20000; i++ {
		view := feed.NextView()
		trades := view.ClosedTrades
		if len(trades) > maxClosedTrades {
			t.Fatalf("iteration %d: %d closed trades, expected at most %d", i, len(trades), maxClosedTrades)
		}
		for j := 1; j < len(trades); j++ {
			if trades[j].ExitTime < trades[j-1].ExitTime {
				t.Fatalf("iteration %d: closed trades out of order at %d", i, j)
			}
		}
		most = max(most, len(trades))
	}

	if most != maxClosedTrades {
		t.Errorf("closed trade history peaked at %d, expected it to reach %d", most, maxClosedTrades)
	}
}

func TestMockDataFeed_FramesParseAsSnapshots(t *testing.T) {
	feed := NewMockDataFeed(DefaultSymbols, time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	feed.Start(ctx)
	defer feed.Stop()

	select {
	case frame := <-feed.Frames():
		snap, err := models.ParseSnapshot(frame, time.Now())
		if err != nil {
			t.Fatalf("ParseSnapshot() error: %v", err)
		}
		view, err := snap.Dashboard()
		if err != nil {
			t.Fatalf("Dashboard() error: %v", err)
		}
		if view.Spot <= 0 || snap.Timestamp == 0 {
			t.Errorf("unexpected frame %s", frame)
		}
	case <-time.After(time.Second):
		t.Fatal("no frame generated")
	}
}

func TestMockDataFeed_NoSymbols(t *testing.T) {
	feed := NewMockDataFeed(nil, time.Millisecond)
	if view := feed.NextView(); view != nil {
		t.Errorf("NextView() = %+v, expected nil", view)
	}
}

func dialServer(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForClients(t *testing.T, s *Server, n int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for s.ClientCount() != n && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if s.ClientCount() != n {
		t.Fatalf("ClientCount() = %d, expected %d", s.ClientCount(), n)
	}
}

func TestServer_BroadcastsToAllClients(t *testing.T) {
	s := NewServer(zap.NewNop())
	srv := httptest.NewServer(s)
	defer srv.Close()

	a := dialServer(t, srv)
	b := dialServer(t, srv)
	waitForClients(t, s, 2)

	frame := []byte(`{"symbol":"X","timestamp":1}`)
	s.Broadcast(frame)

	for _, conn := range []*websocket.Conn{a, b} {
		conn.SetReadDeadline(time.Now().Add(time.Second))
		_, got, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if string(got) != string(frame) {
			t.Errorf("got %s, expected %s", got, frame)
		}
	}
}

func TestServer_ForgetsDisconnectedClients(t *testing.T) {
	s := NewServer(zap.NewNop())
	srv := httptest.NewServer(s)
	defer srv.Close()

	conn := dialServer(t, srv)
	waitForClients(t, s, 1)

	conn.Close()
	waitForClients(t, s, 0)
}

func TestServer_RunClosesClientsOnCancel(t *testing.T) {
	s := NewServer(zap.NewNop())
	srv := httptest.NewServer(s)
	defer srv.Close()

	conn := dialServer(t, srv)
	waitForClients(t, s, 1)

	frames := make(chan []byte, 1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx, frames)
		close(done)
	}()

	frames <- []byte(`{"symbol":"X"}`)
	conn.SetReadDeadline(time.Now().Add(time.Second))
	if _, _, err := conn.ReadMessage(); err != nil {
		t.Fatalf("read: %v", err)
	}

	cancel()
	<-done

	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Errorf("ReadMessage() after Run exit = %v, expected going-away close", err)
	}
}
