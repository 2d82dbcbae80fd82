package alerts

import (
	"context"
	"sync"
	"time"

	"ats-dashboard-feed/internal/pubsub"
	"ats-dashboard-feed/pkg/models"

	"go.uber.org/zap"
)

// TriggerTopic routes triggers by the symbol of the alert that fired.
func TriggerTopic(trigger *models.AlertTrigger) string {
	return trigger.Alert.Symbol
}

// Engine evaluates alerts against every snapshot the feed buffer publishes.
type Engine struct {
	store       *Store
	triggers    *pubsub.Broker[*models.AlertTrigger]
	logger      *zap.Logger
	snapChan    chan *models.Snapshot
	stopChan    chan struct{}
	running     bool
	stopped     bool
	mu          sync.RWMutex
	cooldownMap map[string]time.Time
	cooldown    time.Duration
	now         func() time.Time
}

// NewEngine creates a new alert engine that publishes triggers on the given broker
func NewEngine(store *Store, triggers *pubsub.Broker[*models.AlertTrigger], logger *zap.Logger, cooldown time.Duration) *Engine {
	return &Engine{
		store:       store,
		triggers:    triggers,
		logger:      logger.Named("alerts"),
		snapChan:    make(chan *models.Snapshot, 1000),
		stopChan:    make(chan struct{}),
		cooldownMap: make(map[string]time.Time),
		cooldown:    cooldown,
		now:         time.Now,
	}
}

func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil
	}
	e.running = true
	e.mu.Unlock()

	go e.processSnapshots(ctx)
	return nil
}

func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopped {
		return
	}

	e.stopped = true
	e.running = false
	close(e.stopChan)
}

// Publish queues a drained batch for evaluation without blocking the caller.
func (e *Engine) Publish(batch []*models.Snapshot) {
	for _, snap := range batch {
		select {
		case e.snapChan <- snap:
		default:
			e.logger.Warn("Dropping snapshot due to full channel", zap.String("symbol", snap.Symbol))
		}
	}
}

func (e *Engine) processSnapshots(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopChan:
			return
		case snap := <-e.snapChan:
			e.Evaluate(snap)
		}
	}
}

// Evaluate checks the enabled alerts of snap's symbol and fires those whose
// condition holds and whose cooldown has passed.
func (e *Engine) Evaluate(snap *models.Snapshot) {
	alerts := e.store.EnabledBySymbol(snap.Symbol)
	if len(alerts) == 0 {
		return
	}

	view, err := snap.Dashboard()
	if err != nil {
		e.logger.Warn("Cannot evaluate alerts on snapshot", zap.String("symbol", snap.Symbol), zap.Error(err))
		return
	}

	for _, alert := range alerts {
		value, fire := alert.Evaluate(view)
		if !fire || e.coolingDown(alert.ID) {
			continue
		}
		e.trigger(alert, value, snap.Timestamp)
	}
}

func (e *Engine) coolingDown(alertID string) bool {
	e.mu.RLock()
	lastTrigger, exists := e.cooldownMap[alertID]
	e.mu.RUnlock()

	return exists && e.now().Sub(lastTrigger) < e.cooldown
}

func (e *Engine) trigger(alert *models.Alert, value float64, snapshotTime int64) {
	at := e.now()

	e.mu.Lock()
	e.cooldownMap[alert.ID] = at
	e.mu.Unlock()

	if err := e.store.MarkTriggered(alert.ID, at); err != nil {
		e.logger.Warn("Error marking alert as triggered", zap.String("id", alert.ID), zap.Error(err))
	}
	alert.MarkTriggered(at)

	trigger := models.NewAlertTrigger(alert, value, snapshotTime)
	trigger.Timestamp = at
	e.triggers.Publish(trigger)

	e.logger.Info("Alert triggered",
		zap.String("symbol", alert.Symbol),
		zap.String("condition", alert.Field+" "+alert.Comparator.String()),
		zap.Float64("threshold", alert.Threshold),
		zap.Float64("value", value))
}

// CleanupCooldowns forgets cooldown entries older than twice the cooldown. The
// server calls it once a minute so the map stays bounded by the active alerts.
func (e *Engine) CleanupCooldowns() {
	e.mu.Lock()
	defer e.mu.Unlock()

	cutoff := e.now().Add(-e.cooldown * 2)

	for alertID, lastTrigger := range e.cooldownMap {
		if lastTrigger.Before(cutoff) {
			delete(e.cooldownMap, alertID)
		}
	}
}

type EngineStats struct {
	Running         bool `json:"running"`
	CooldownEntries int  `json:"cooldown_entries"`
	QueuedSnapshots int  `json:"queued_snapshots"`
}

func (e *Engine) GetStats() EngineStats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return EngineStats{
		Running:         e.running,
		CooldownEntries: len(e.cooldownMap),
		QueuedSnapshots: len(e.snapChan),
	}
}
