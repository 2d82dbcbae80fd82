package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Numeric dashboard fields an alert can watch.
const (
	FieldSpot          = "spot"
	FieldFuture        = "future"
	FieldBasis         = "basis"
	FieldPCR           = "pcr"
	FieldWeightedDelta = "weighted_delta"
)

func IsAlertField(name string) bool {
	_, ok := (&DashboardView{}).Field(name)
	return ok
}

type Comparator int

const (
	ComparatorUnspecified Comparator = iota
	ComparatorGT
	ComparatorGTE
	ComparatorLT
	ComparatorLTE
	ComparatorEQ
)

func (c Comparator) String() string {
	switch c {
	case ComparatorGT:
		return ">"
	case ComparatorGTE:
		return ">="
	case ComparatorLT:
		return "<"
	case ComparatorLTE:
		return "<="
	case ComparatorEQ:
		return "=="
	default:
		return "unknown"
	}
}

// ParseComparator accepts both the operator form (">=") and the short name ("gte").
func ParseComparator(s string) Comparator {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case ">", "gt":
		return ComparatorGT
	case ">=", "gte":
		return ComparatorGTE
	case "<", "lt":
		return ComparatorLT
	case "<=", "lte":
		return ComparatorLTE
	case "==", "=", "eq":
		return ComparatorEQ
	default:
		return ComparatorUnspecified
	}
}

// Alert fires when Field of a symbol's dashboard frame crosses Threshold.
type Alert struct {
	ID          string     `json:"id"`
	Symbol      string     `json:"symbol"`
	Field       string     `json:"field"`
	Comparator  Comparator `json:"comparator"`
	Threshold   float64    `json:"threshold"`
	Note        string     `json:"note"`
	Enabled     bool       `json:"enabled"`
	LastTrigger *time.Time `json:"last_trigger,omitempty"`
}

func NewAlert(symbol, field string, comparator Comparator, threshold float64, note string) *Alert {
	if field == "" {
		field = FieldSpot
	}
	return &Alert{
		ID:         uuid.New().String(),
		Symbol:     symbol,
		Field:      field,
		Comparator: comparator,
		Threshold:  threshold,
		Note:       note,
		Enabled:    true,
	}
}

func (a *Alert) ShouldTrigger(value float64) bool {
	if !a.Enabled {
		return false
	}

	switch a.Comparator {
	case ComparatorGT:
		return value > a.Threshold
	case ComparatorGTE:
		return value >= a.Threshold
	case ComparatorLT:
		return value < a.Threshold
	case ComparatorLTE:
		return value <= a.Threshold
	case ComparatorEQ:
		const epsilon = 0.001
		return abs(value-a.Threshold) < epsilon
	default:
		return false
	}
}

// Evaluate reads the alert's field from view and reports the value and whether it fires.
func (a *Alert) Evaluate(view *DashboardView) (float64, bool) {
	value, ok := view.Field(a.Field)
	if !ok {
		return 0, false
	}
	return value, a.ShouldTrigger(value)
}

func (a *Alert) MarkTriggered(at time.Time) {
	a.LastTrigger = &at
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

type AlertTrigger struct {
	Alert        *Alert    `json:"alert"`
	Value        float64   `json:"value"`
	SnapshotTime int64     `json:"snapshot_timestamp"`
	Timestamp    time.Time `json:"timestamp"`
}

func NewAlertTrigger(alert *Alert, value float64, snapshotTime int64) *AlertTrigger {
	return &AlertTrigger{
		Alert:        alert,
		Value:        value,
		SnapshotTime: snapshotTime,
		Timestamp:    time.Now(),
	}
}
