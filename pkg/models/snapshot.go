package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotObject     = errors.New("frame is not a JSON object")
	ErrMissingSymbol = errors.New("frame has no symbol")
)

// Snapshot is the most recent frame received for one symbol.
// Snapshots handed out by the feed buffer are shared and must be treated as read-only.
type Snapshot struct {
	Symbol     string          `json:"symbol"`
	Timestamp  int64           `json:"timestamp"`
	Payload    json.RawMessage `json:"payload"`
	ReceivedAt time.Time       `json:"received_at"`
	// Sequence is the drain order assigned by the buffer that published this snapshot.
	Sequence uint64 `json:"sequence"`
}

// SnapshotMap maps symbol to its latest snapshot. A published map is never mutated.
type SnapshotMap map[string]*Snapshot

type snapshotHeader struct {
	Symbol    string      `json:"symbol"`
	Timestamp json.Number `json:"timestamp"`
}

// ParseSnapshot decodes the symbol and timestamp of a raw frame and keeps the
// frame itself as the payload.
func ParseSnapshot(frame []byte, receivedAt time.Time) (*Snapshot, error) {
	trimmed := bytes.TrimSpace(frame)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, ErrNotObject
	}

	var header snapshotHeader
	if err := json.Unmarshal(trimmed, &header); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	if header.Symbol == "" {
		return nil, ErrMissingSymbol
	}

	ts, err := parseTimestamp(header.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("decode timestamp %q: %w", header.Timestamp, err)
	}

	return &Snapshot{
		Symbol:     header.Symbol,
		Timestamp:  ts,
		Payload:    append(json.RawMessage(nil), trimmed...),
		ReceivedAt: receivedAt,
	}, nil
}

// parseTimestamp accepts integer and fractional epoch values; fractions are truncated.
func parseTimestamp(n json.Number) (int64, error) {
	if n == "" {
		return 0, nil
	}
	if v, err := n.Int64(); err == nil {
		return v, nil
	}
	f, err := n.Float64()
	if err != nil {
		return 0, err
	}
	return int64(f), nil
}

// Decode unmarshals the payload into v.
func (s *Snapshot) Decode(v interface{}) error {
	return json.Unmarshal(s.Payload, v)
}

// Dashboard decodes the payload as a dashboard view. Missing fields stay zero.
func (s *Snapshot) Dashboard() (*DashboardView, error) {
	var view DashboardView
	if err := s.Decode(&view); err != nil {
		return nil, err
	}
	return &view, nil
}

// Newer reports whether s should win over other when picking the latest
// snapshot: higher timestamp first, then the later drain.
func (s *Snapshot) Newer(other *Snapshot) bool {
	if other == nil {
		return true
	}
	if s.Timestamp != other.Timestamp {
		return s.Timestamp > other.Timestamp
	}
	return s.Sequence > other.Sequence
}

// Latest returns the newest snapshot in the map, or nil when it is empty.
func (m SnapshotMap) Latest() *Snapshot {
	var latest *Snapshot
	for _, snap := range m {
		if snap.Newer(latest) {
			latest = snap
		}
	}
	return latest
}

// Symbols returns the keys of the map in no particular order.
func (m SnapshotMap) Symbols() []string {
	symbols := make([]string, 0, len(m))
	for symbol := range m {
		symbols = append(symbols, symbol)
	}
	return symbols
}

// SnapshotTopic routes snapshots by symbol.
func SnapshotTopic(snap *Snapshot) string {
	return snap.Symbol
}
