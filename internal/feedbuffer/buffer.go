// Package feedbuffer keeps a reconnecting WebSocket subscription to the dashboard
// data server and publishes the latest snapshot per symbol on a fixed cadence.
package feedbuffer

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"ats-dashboard-feed/pkg/models"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var (
	ErrShutDown       = errors.New("feed buffer is shut down")
	ErrEmptyAddress   = errors.New("feed address is empty")
	ErrInvalidAddress = errors.New("feed address must be a ws:// or wss:// URL")
)

// Sink receives every published batch: the last snapshot per symbol drained in
// one refresh tick, in drain order. Publish runs on the buffer's loop and must not block.
type Sink interface {
	Publish(batch []*models.Snapshot)
}

// SinkFunc adapts a plain function to Sink.
type SinkFunc func(batch []*models.Snapshot)

func (f SinkFunc) Publish(batch []*models.Snapshot) { f(batch) }

// view is one published version of the snapshot map.
type view struct {
	snapshots models.SnapshotMap
	latest    *models.Snapshot
}

// Buffer owns the connection, the pending queue and the snapshot map. All of them
// are touched only by the loop goroutine; readers go through the published view.
type Buffer struct {
	opts   Options
	logger *zap.Logger
	dialer *websocket.Dialer
	sinks  []Sink

	view  atomic.Pointer[view]
	state atomic.Int32

	connects   atomic.Uint64
	reconnects atomic.Uint64
	received   atomic.Uint64
	malformed  atomic.Uint64
	publishes  atomic.Uint64
	pending    atomic.Int64

	mu       sync.Mutex
	started  bool
	shutDown bool
	address  string
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// New creates a buffer that publishes to sinks. It does nothing until Connect.
func New(logger *zap.Logger, opts Options, sinks ...Sink) *Buffer {
	opts = opts.withDefaults()

	b := &Buffer{
		opts:   opts,
		logger: logger.Named("feedbuffer"),
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: opts.HandshakeTimeout,
		},
		sinks: sinks,
	}
	b.view.Store(&view{snapshots: models.SnapshotMap{}})
	return b
}

// Connect starts managing a connection to address. Calling it again while the
// buffer runs is a no-op. Only values are taken from ctx: cancelling it does not
// stop the buffer, Shutdown does.
func (b *Buffer) Connect(ctx context.Context, address string) error {
	if address == "" {
		return ErrEmptyAddress
	}
	u, err := url.Parse(address)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		return fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.shutDown {
		return ErrShutDown
	}
	if b.started {
		return nil
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	b.started = true
	b.address = address
	b.cancel = cancel

	b.logger.Info("Starting feed buffer", zap.String("address", address), zap.Stringer("options", b.opts))

	b.wg.Add(1)
	go b.run(runCtx, address)
	return nil
}

// Shutdown stops the refresh ticker and any pending reconnect, closes the socket
// without triggering a reconnect, and waits for every goroutine of the buffer.
func (b *Buffer) Shutdown() {
	b.mu.Lock()
	if b.shutDown {
		b.mu.Unlock()
		return
	}
	b.shutDown = true
	cancel := b.cancel
	b.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	b.wg.Wait()
	b.setState(StateShutDown)

	b.logger.Info("Feed buffer shut down")
}

// GetSnapshot returns the latest published snapshot for symbol.
func (b *Buffer) GetSnapshot(symbol string) (*models.Snapshot, bool) {
	snap, ok := b.view.Load().snapshots[symbol]
	return snap, ok
}

// Latest returns the published snapshot with the greatest timestamp. Equal
// timestamps go to the symbol drained last.
func (b *Buffer) Latest() (*models.Snapshot, bool) {
	latest := b.view.Load().latest
	return latest, latest != nil
}

// All returns the current published map. It must not be modified.
func (b *Buffer) All() models.SnapshotMap {
	return b.view.Load().snapshots
}

// State reports the connection state as last seen by the loop.
func (b *Buffer) State() State {
	return State(b.state.Load())
}

func (b *Buffer) setState(s State) {
	b.state.Store(int32(s))
}

// Stats is a point-in-time view of the buffer's counters.
type Stats struct {
	State      string `json:"state"`
	Address    string `json:"address"`
	Connects   uint64 `json:"connects"`
	Reconnects uint64 `json:"reconnects"`
	Received   uint64 `json:"received"`
	Malformed  uint64 `json:"malformed"`
	Publishes  uint64 `json:"publishes"`
	Symbols    int    `json:"symbols"`
	Pending    int64  `json:"pending"`
}

// Stats collects the counters without blocking the loop.
func (b *Buffer) Stats() Stats {
	b.mu.Lock()
	address := b.address
	b.mu.Unlock()

	return Stats{
		State:      b.State().String(),
		Address:    address,
		Connects:   b.connects.Load(),
		Reconnects: b.reconnects.Load(),
		Received:   b.received.Load(),
		Malformed:  b.malformed.Load(),
		Publishes:  b.publishes.Load(),
		Symbols:    len(b.All()),
		Pending:    b.pending.Load(),
	}
}

// run is the single owner of the queue, the map, both timers and the socket.
func (b *Buffer) run(ctx context.Context, address string) {
	defer b.wg.Done()

	events := make(chan event)
	refresh := time.NewTicker(b.opts.RefreshInterval)
	defer refresh.Stop()

	var (
		conn    *websocket.Conn
		gen     uint64
		seq     uint64
		pending []*models.Snapshot
		retry   *time.Timer
		retryC  <-chan time.Time
	)
	current := b.All()

	defer func() {
		if retry != nil {
			retry.Stop()
		}
		if conn != nil {
			conn.Close()
		}
		b.setState(StateShutDown)
	}()

	dial := func() {
		gen++
		b.setState(StateConnecting)
		b.logger.Info("Attempting connection", zap.String("address", address))
		b.wg.Add(1)
		go b.dial(ctx, address, gen, events)
	}

	scheduleRetry := func() {
		b.logger.Warn("Retrying connection", zap.Duration("delay", b.opts.ReconnectDelay))
		retry = time.NewTimer(b.opts.ReconnectDelay)
		retryC = retry.C
	}

	dial()

	for {
		select {
		case <-ctx.Done():
			return

		case <-retryC:
			retry, retryC = nil, nil
			b.reconnects.Add(1)
			dial()

		case <-refresh.C:
			if len(pending) == 0 {
				continue
			}
			current, seq = b.drain(current, pending, seq)
			pending = nil
			b.pending.Store(0)

		case ev := <-events:
			if ev.gen != gen {
				if ev.conn != nil {
					ev.conn.Close()
				}
				continue
			}

			switch ev.kind {
			case eventDialed:
				if ev.err != nil {
					b.setState(StateClosed)
					b.logger.Warn("Connection failed", zap.String("address", address), zap.Error(ev.err))
					scheduleRetry()
					continue
				}
				conn = ev.conn
				b.connects.Add(1)
				b.setState(StateOpen)
				b.logger.Info("WebSocket connected", zap.String("address", address))
				b.wg.Add(1)
				go b.read(ctx, conn, gen, events)

			case eventFrame:
				pending = append(pending, ev.snap)
				b.pending.Store(int64(len(pending)))

			case eventClosed:
				conn.Close()
				conn = nil
				var closeErr *websocket.CloseError
				if errors.As(ev.err, &closeErr) {
					b.setState(StateClosed)
					b.logger.Warn("WebSocket closed",
						zap.Int("code", closeErr.Code), zap.String("reason", closeErr.Text))
				} else {
					b.setState(StateErrored)
					b.logger.Error("WebSocket error", zap.Error(ev.err))
				}
				scheduleRetry()
			}
		}
	}
}

// drain applies pending to a copy of current in arrival order, publishes the copy
// and hands the surviving snapshots to the sinks.
func (b *Buffer) drain(current models.SnapshotMap, pending []*models.Snapshot, seq uint64) (models.SnapshotMap, uint64) {
	next := maps.Clone(current)
	if next == nil {
		next = make(models.SnapshotMap, len(pending))
	}
	for _, snap := range pending {
		seq++
		snap.Sequence = seq
		next[snap.Symbol] = snap
	}

	batch := make([]*models.Snapshot, 0, len(pending))
	for _, snap := range pending {
		if next[snap.Symbol] == snap {
			batch = append(batch, snap)
		}
	}

	b.view.Store(&view{snapshots: next, latest: next.Latest()})
	b.publishes.Add(1)

	b.logger.Debug("Published snapshots",
		zap.Int("drained", len(pending)), zap.Int("symbols", len(next)))

	for _, sink := range b.sinks {
		sink.Publish(batch)
	}
	return next, seq
}
