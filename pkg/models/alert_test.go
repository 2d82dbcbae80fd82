package models

import (
	"testing"
)

func TestAlert_ShouldTrigger(t *testing.T) {
	tests := []struct {
		name       string
		alert      *Alert
		value      float64
		expected   bool
	}{
		{
			name: "GT fires above threshold",
			alert: &Alert{
				Comparator: ComparatorGT,
				Threshold:  24500.0,
				Enabled:    true,
			},
			value:    24501.0,
			expected: true,
		},
		{
			name: "GT quiet at threshold",
			alert: &Alert{
				Comparator: ComparatorGT,
				Threshold:  24500.0,
				Enabled:    true,
			},
			value:    24500.0,
			expected: false,
		},
		{
			name: "GTE fires at threshold",
			alert: &Alert{
				Comparator: ComparatorGTE,
				Threshold:  24500.0,
				Enabled:    true,
			},
			value:    24500.0,
			expected: true,
		},
		{
			name: "LT fires below threshold",
			alert: &Alert{
				Comparator: ComparatorLT,
				Threshold:  24500.0,
				Enabled:    true,
			},
			value:    24499.0,
			expected: true,
		},
		{
			name: "LTE fires at threshold",
			alert: &Alert{
				Comparator: ComparatorLTE,
				Threshold:  24500.0,
				Enabled:    true,
			},
			value:    24500.0,
			expected: true,
		},
		{
			name: "EQ fires within epsilon",
			alert: &Alert{
				Comparator: ComparatorEQ,
				Threshold:  24500.0,
				Enabled:    true,
			},
			value:    24500.0,
			expected: true,
		},
		{
			name: "disabled alert never fires",
			alert: &Alert{
				Comparator: ComparatorGT,
				Threshold:  24500.0,
				Enabled:    false,
			},
			value:    24501.0,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.alert.ShouldTrigger(tt.value)
			if result != tt.expected {
				t.Errorf("ShouldTrigger() = %v, expected %v", result, tt.expected)
			}
		})
	}
}

func TestNewAlert(t *testing.T) {
	alert := NewAlert("NSE_INDEX|Nifty 50", FieldSpot, ComparatorGT, 24500.0, "breakout")

	if alert.ID == "" {
		t.Error("Expected non-empty ID")
	}

	if alert.Symbol != "NSE_INDEX|Nifty 50" {
		t.Errorf("Expected symbol NSE_INDEX|Nifty 50, got %s", alert.Symbol)
	}

	if alert.Field != FieldSpot {
		t.Errorf("Expected field spot, got %s", alert.Field)
	}

	if alert.Comparator != ComparatorGT {
		t.Errorf("Expected ComparatorGT, got %v", alert.Comparator)
	}

	if alert.Threshold != 24500.0 {
		t.Errorf("Expected threshold 24500.0, got %f", alert.Threshold)
	}

	if !alert.Enabled {
		t.Error("Expected alert to be enabled by default")
	}

	if alert.LastTrigger != nil {
		t.Error("Expected LastTrigger to be nil initially")
	}
}

func TestNewAlert_DefaultsToSpot(t *testing.T) {
	alert := NewAlert("X", "", ComparatorLT, 1, "")
	if alert.Field != FieldSpot {
		t.Errorf("Expected default field spot, got %q", alert.Field)
	}
}

func TestAlert_Evaluate(t *testing.T) {
	view := &DashboardView{Spot: 24510, PCR: 0.8, WeightedDelta: -12}

	tests := []struct {
		name      string
		alert     *Alert
		wantValue float64
		wantFire  bool
	}{
		{"spot above", NewAlert("X", FieldSpot, ComparatorGT, 24500, ""), 24510, true},
		{"pcr below", NewAlert("X", FieldPCR, ComparatorLT, 1, ""), 0.8, true},
		{"delta not below", NewAlert("X", FieldWeightedDelta, ComparatorLT, -20, ""), -12, false},
		{"unknown field", NewAlert("X", "vix", ComparatorGT, 0, ""), 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			value, fire := tt.alert.Evaluate(view)
			if value != tt.wantValue || fire != tt.wantFire {
				t.Errorf("Evaluate() = (%v, %v), expected (%v, %v)", value, fire, tt.wantValue, tt.wantFire)
			}
		})
	}
}

func TestParseComparator(t *testing.T) {
	tests := map[string]Comparator{
		">":    ComparatorGT,
		"gte":  ComparatorGTE,
		" LT ": ComparatorLT,
		"<=":   ComparatorLTE,
		"=":    ComparatorEQ,
		"~":    ComparatorUnspecified,
	}

	for in, expected := range tests {
		if got := ParseComparator(in); got != expected {
			t.Errorf("ParseComparator(%q) = %v, expected %v", in, got, expected)
		}
	}
}

func TestComparator_String(t *testing.T) {
	tests := []struct {
		comparator Comparator
		expected   string
	}{
		{ComparatorGT, ">"},
		{ComparatorGTE, ">="},
		{ComparatorLT, "<"},
		{ComparatorLTE, "<="},
		{ComparatorEQ, "=="},
		{ComparatorUnspecified, "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			result := tt.comparator.String()
			if result != tt.expected {
				t.Errorf("String() = %s, expected %s", result, tt.expected)
			}
		})
	}
}
