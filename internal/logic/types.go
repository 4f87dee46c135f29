// Package logic contains the pure thermostat decision policy.
// This package has NO external dependencies (no files, MQTT, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import (
	"strings"
	"time"
)

// State represents the logical state of the heater actuator.
type State string

const (
	StateOn  State = "ON"
	StateOff State = "OFF"
)

// ParseState normalizes s to a defined State. Anything other than ON
// (case-insensitive) resolves to OFF, the fail-safe state.
func ParseState(s string) (State, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case string(StateOn):
		return StateOn, true
	case string(StateOff):
		return StateOff, true
	}
	return StateOff, false
}

// Deadband is the margin above target required before heating stops.
const Deadband = 1.0

// Default settings applied when no settings document is available.
const (
	DefaultTargetTemp    = 20.0
	DefaultPeakStartHour = 16
	DefaultPeakEndHour   = 20
)

// Settings is the operator-controlled policy input.
type Settings struct {
	TargetTemp    float64 `json:"target_temp"`
	PeakStartHour int     `json:"peak_start_hour"`
	PeakEndHour   int     `json:"peak_end_hour"`
}

// DefaultSettings returns the documented defaults.
func DefaultSettings() Settings {
	return Settings{
		TargetTemp:    DefaultTargetTemp,
		PeakStartHour: DefaultPeakStartHour,
		PeakEndHour:   DefaultPeakEndHour,
	}
}

// Reading is a single temperature sample from a device.
type Reading struct {
	DeviceID    string
	Temperature float64
	Timestamp   time.Time

	// Epoch is the timestamp exactly as received, in Unix seconds. Zero
	// when the reading did not come off the wire.
	Epoch float64
}

// Reason explains why the policy produced its decision.
type Reason string

const (
	ReasonColdOffPeak Reason = "below target, off-peak"
	ReasonColdPeak    Reason = "below target, peak hours"
	ReasonWarm        Reason = "above deadband"
	ReasonHold        Reason = "no change"
)

// Decision is the outcome of applying the policy to one reading.
type Decision struct {
	State   State
	Changed bool
	Reason  Reason
}

// EventType represents a heater state transition.
type EventType string

const (
	EventHeaterOn  EventType = "HEATER_ON"
	EventHeaterOff EventType = "HEATER_OFF"
)

// Transition describes a heater state change to be published.
type Transition struct {
	Timestamp   time.Time
	Type        EventType
	DeviceID    string
	From        State
	To          State
	Temperature float64
	TargetTemp  float64
	IsPeak      bool
	Reason      Reason
}

// EventCounts tracks controller activity since startup.
type EventCounts struct {
	Processed   int
	Skipped     int
	HeaterOn    int
	HeaterOff   int
	CycleErrors int
}

// HeartbeatData contains information for a heartbeat event.
type HeartbeatData struct {
	Timestamp time.Time
	Uptime    time.Duration
	Counts    EventCounts
}
