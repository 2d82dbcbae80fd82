package feedbuffer

import (
	"fmt"
	"time"
)

const (
	DefaultAddress          = "ws://localhost:7070/data"
	DefaultRefreshInterval  = 1000 * time.Millisecond
	DefaultReconnectDelay   = 2000 * time.Millisecond
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultReadLimit        = 1 << 20
)

// Options controls the buffer's timing. Zero fields fall back to the defaults.
type Options struct {
	// RefreshInterval is the publish cadence.
	RefreshInterval time.Duration
	// ReconnectDelay is the fixed wait between a close or error and the next dial.
	ReconnectDelay time.Duration
	// HandshakeTimeout bounds a single dial.
	HandshakeTimeout time.Duration
	// ReadLimit is the largest frame accepted, in bytes. Longer frames are
	// dropped as malformed without closing the connection.
	ReadLimit int64
}

// DefaultOptions returns the 1 s refresh cadence and 2 s reconnect delay.
func DefaultOptions() Options {
	return Options{
		RefreshInterval:  DefaultRefreshInterval,
		ReconnectDelay:   DefaultReconnectDelay,
		HandshakeTimeout: DefaultHandshakeTimeout,
		ReadLimit:        DefaultReadLimit,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.RefreshInterval <= 0 {
		o.RefreshInterval = d.RefreshInterval
	}
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = d.ReconnectDelay
	}
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = d.HandshakeTimeout
	}
	if o.ReadLimit <= 0 {
		o.ReadLimit = d.ReadLimit
	}
	return o
}

func (o Options) String() string {
	return fmt.Sprintf("refresh=%v reconnect=%v handshake=%v readLimit=%d",
		o.RefreshInterval, o.ReconnectDelay, o.HandshakeTimeout, o.ReadLimit)
}
