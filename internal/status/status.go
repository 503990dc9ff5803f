// Package status provides a thread-safe status tracker for the programmer
// daemon. It is read by the HTTP handlers and the MQTT lifecycle events.
package status

import (
	"sync"
	"time"
)

// Config contains daemon configuration for display.
type Config struct {
	Backend    string
	Pins       map[string]string // role name to pin string, e.g. "clock": "11"
	Command    string
	IntervalMs int64
	Broker     string
	HTTPAddr   string
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type and safe to use after the lock is released.
// Config.Pins is shared and must not be modified.
type Snapshot struct {
	Session       string
	Open          bool
	Exchanges     uint64
	Errors        uint64
	LastAt        time.Time
	LastCommand   [4]byte
	LastResponse  [4]byte
	LastError     string
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker for session with the given start time and config.
func NewTracker(session string, startTime time.Time, cfg Config) *Tracker {
	pins := make(map[string]string, len(cfg.Pins))
	for k, v := range cfg.Pins {
		pins[k] = v
	}
	cfg.Pins = pins
	return &Tracker{
		snap: Snapshot{
			Session:   session,
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// SetOpen records whether the transport is open.
func (t *Tracker) SetOpen(open bool) {
	t.mu.Lock()
	t.snap.Open = open
	t.mu.Unlock()
}

// RecordExchange counts one command exchange and keeps it as the latest.
// A non-nil err counts as a failed exchange.
func (t *Tracker) RecordExchange(at time.Time, cmd, res [4]byte, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap.Exchanges++
	t.snap.LastAt = at
	t.snap.LastCommand = cmd
	t.snap.LastResponse = res
	t.snap.LastError = ""
	if err != nil {
		t.snap.Errors++
		t.snap.LastError = err.Error()
	}
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
