package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	tests := []struct {
		level       string
		development bool
		enabled     zapcore.Level
		disabled    zapcore.Level
	}{
		{"info", false, zapcore.InfoLevel, zapcore.DebugLevel},
		{"debug", true, zapcore.DebugLevel, zapcore.DebugLevel - 1},
		{"WARN", false, zapcore.WarnLevel, zapcore.InfoLevel},
	}

	for _, tt := range tests {
		logger, err := New(tt.level, tt.development)
		if err != nil {
			t.Fatalf("New(%s) error: %v", tt.level, err)
		}
		if !logger.Core().Enabled(tt.enabled) {
			t.Errorf("New(%s) should enable %v", tt.level, tt.enabled)
		}
		if logger.Core().Enabled(tt.disabled) {
			t.Errorf("New(%s) should not enable %v", tt.level, tt.disabled)
		}
	}
}

func TestNew_InvalidLevel(t *testing.T) {
	if _, err := New("loud", false); err == nil {
		t.Error("New(loud) should fail")
	}
}
