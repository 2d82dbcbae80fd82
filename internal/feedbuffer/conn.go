package feedbuffer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"ats-dashboard-feed/pkg/models"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ErrFrameTooLarge marks a frame longer than Options.ReadLimit. It is dropped
// like any other malformed frame; the connection stays open.
var ErrFrameTooLarge = errors.New("frame exceeds read limit")

type eventKind int

const (
	eventDialed eventKind = iota
	eventFrame
	eventClosed
)

// event is posted to the loop by the dial and read goroutines. gen ties it to
// the connection attempt that produced it.
type event struct {
	kind eventKind
	gen  uint64
	conn *websocket.Conn
	snap *models.Snapshot
	err  error
}

// post hands ev to the loop unless the buffer is stopping.
func post(ctx context.Context, events chan<- event, ev event) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func (b *Buffer) dial(ctx context.Context, address string, gen uint64, events chan<- event) {
	defer b.wg.Done()

	conn, _, err := b.dialer.DialContext(ctx, address, nil)

	if !post(ctx, events, event{kind: eventDialed, gen: gen, conn: conn, err: err}) && conn != nil {
		conn.Close()
	}
}

// read enqueues every parseable frame until the socket fails. The buffer never
// writes to the socket; gorilla answers control frames on its own.
func (b *Buffer) read(ctx context.Context, conn *websocket.Conn, gen uint64, events chan<- event) {
	defer b.wg.Done()

	for {
		frame, err := b.readFrame(conn)
		if err != nil && !errors.Is(err, ErrFrameTooLarge) {
			post(ctx, events, event{kind: eventClosed, gen: gen, err: err})
			return
		}

		b.received.Add(1)

		var snap *models.Snapshot
		if err == nil {
			snap, err = models.ParseSnapshot(frame, time.Now())
		}
		if err != nil {
			b.malformed.Add(1)
			b.logger.Warn("Dropping malformed frame", zap.Error(err), zap.Int("bytes", len(frame)))
			continue
		}

		if !post(ctx, events, event{kind: eventFrame, gen: gen, snap: snap}) {
			return
		}
	}
}

// readFrame reads one message of at most ReadLimit bytes. A longer message is
// discarded to its end and reported as ErrFrameTooLarge.
func (b *Buffer) readFrame(conn *websocket.Conn) ([]byte, error) {
	_, r, err := conn.NextReader()
	if err != nil {
		return nil, err
	}

	frame, err := io.ReadAll(io.LimitReader(r, b.opts.ReadLimit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(frame)) <= b.opts.ReadLimit {
		return frame, nil
	}

	rest, err := io.Copy(io.Discard, r)
	if err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrFrameTooLarge, int64(len(frame))+rest, b.opts.ReadLimit)
}
