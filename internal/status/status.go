// Package status provides a thread-safe status tracker for the thermostat
// controller. It is written by the control loop and read by HTTP handlers.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/thermostat/internal/logic"
	"github.com/sweeney/thermostat/internal/processed"
)

// Config contains controller configuration for display.
type Config struct {
	InstanceID  string
	IntervalMs  int64
	HeartbeatMs int64
	Broker      string
	HTTPAddr    string
	DataDir     string
	Window      int
}

// Snapshot is a point-in-time view of controller state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Heater        logic.State
	LastRecord    *processed.Record
	Counts        logic.EventCounts
	LastError     string
	LastErrorAt   time.Time
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the controller started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable controller state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// Update sets the heater state and counters. Called from runLoop on every
// tick.
func (t *Tracker) Update(heater logic.State, counts logic.EventCounts) {
	t.mu.Lock()
	t.snap.Heater = heater
	t.snap.Counts = counts
	t.mu.Unlock()
}

// SetLastRecord stores the most recently processed record.
func (t *Tracker) SetLastRecord(rec processed.Record) {
	t.mu.Lock()
	t.snap.LastRecord = &rec
	t.mu.Unlock()
}

// SetError records the outcome of the latest cycle. A nil err clears any
// previous error.
func (t *Tracker) SetError(err error, at time.Time) {
	t.mu.Lock()
	if err == nil {
		t.snap.LastError = ""
		t.snap.LastErrorAt = time.Time{}
	} else {
		t.snap.LastError = err.Error()
		t.snap.LastErrorAt = at
	}
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the controller state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	if s.LastRecord != nil {
		rec := *s.LastRecord
		s.LastRecord = &rec
	}
	s.Now = time.Now()
	return s
}
