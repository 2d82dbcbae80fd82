// Package mirror copies published snapshots to external stores so processes other
// than the dashboard can read the feed.
package mirror

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"ats-dashboard-feed/pkg/models"

	"go.uber.org/zap"
)

const (
	defaultQueueSize    = 256
	defaultWriteTimeout = 5 * time.Second
)

// pump moves batches from the feed buffer's loop to a store on its own goroutine.
type pump struct {
	logger  *zap.Logger
	writeFn func(ctx context.Context, batch []*models.Snapshot) error
	queue   chan []*models.Snapshot
	timeout time.Duration

	mu       sync.Mutex
	running  bool
	stopped  bool
	stopChan chan struct{}
	done     chan struct{}

	written atomic.Uint64
	dropped atomic.Uint64
	failed  atomic.Uint64
}

func newPump(logger *zap.Logger, write func(context.Context, []*models.Snapshot) error) *pump {
	return &pump{
		logger:   logger,
		writeFn:  write,
		queue:    make(chan []*models.Snapshot, defaultQueueSize),
		timeout:  defaultWriteTimeout,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (p *pump) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running || p.stopped {
		return nil
	}
	p.running = true

	go p.run(ctx)
	return nil
}

// Stop flushes what is already queued and waits for the writer goroutine.
func (p *pump) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	running := p.running
	close(p.stopChan)
	p.mu.Unlock()

	if running {
		<-p.done
	}
}

// Publish queues batch; it drops the batch when the store falls behind.
func (p *pump) Publish(batch []*models.Snapshot) {
	if len(batch) == 0 {
		return
	}
	select {
	case p.queue <- batch:
	default:
		p.dropped.Add(1)
		p.logger.Warn("Mirror queue full, dropping batch", zap.Int("snapshots", len(batch)))
	}
}

type Stats struct {
	Written uint64 `json:"written"`
	Dropped uint64 `json:"dropped"`
	Failed  uint64 `json:"failed"`
}

func (p *pump) Stats() Stats {
	return Stats{
		Written: p.written.Load(),
		Dropped: p.dropped.Load(),
		Failed:  p.failed.Load(),
	}
}

func (p *pump) run(ctx context.Context) {
	defer close(p.done)

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopChan:
			p.flush()
			return
		case batch := <-p.queue:
			p.writeBatch(ctx, batch)
		}
	}
}

func (p *pump) flush() {
	for {
		select {
		case batch := <-p.queue:
			p.writeBatch(context.Background(), batch)
		default:
			return
		}
	}
}

func (p *pump) writeBatch(ctx context.Context, batch []*models.Snapshot) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.writeFn(ctx, batch); err != nil {
		p.failed.Add(1)
		p.logger.Error("Mirror write failed", zap.Int("snapshots", len(batch)), zap.Error(err))
		return
	}
	p.written.Add(uint64(len(batch)))
}
