// Package processed holds the append-only log of controller decisions.
// Each line is the consumed reading enriched with the heater state, target
// and peak flag in effect when it was processed.
package processed

import (
	"encoding/json"
	"fmt"

	"github.com/sweeney/thermostat/internal/logic"
	"github.com/sweeney/thermostat/internal/telemetry"
)

// DefaultWindow is the number of records a dashboard shows.
const DefaultWindow = 50

// Record is one processed reading.
type Record struct {
	DeviceID    string      `json:"device_id"`
	Temperature float64     `json:"temperature"`
	Timestamp   float64     `json:"timestamp"`
	HeaterState logic.State `json:"heater_state"`
	TargetTemp  float64     `json:"target_temp"`
	IsPeak      bool        `json:"is_peak"`
}

// NewRecord builds the record for a processed reading. The wire timestamp
// is copied unchanged when the reading carries one.
func NewRecord(r logic.Reading, heater logic.State, target float64, isPeak bool) Record {
	ts := r.Epoch
	if ts == 0 {
		ts = telemetry.Epoch(r.Timestamp)
	}
	return Record{
		DeviceID:    r.DeviceID,
		Temperature: r.Temperature,
		Timestamp:   ts,
		HeaterState: heater,
		TargetTemp:  target,
		IsPeak:      isPeak,
	}
}

// HeaterActive returns 1 when the heater was ON, else 0.
func (r Record) HeaterActive() int {
	if r.HeaterState == logic.StateOn {
		return 1
	}
	return 0
}

// Appender appends records.
type Appender interface {
	Append(rec Record) error
}

// Reader returns the most recent records.
type Reader interface {
	// Tail returns up to n of the newest records, oldest first.
	Tail(n int) ([]Record, error)
}

// Log is a processed-record log.
type Log interface {
	Appender
	Reader
	Close() error
}

// FormatRecord encodes rec as a single line without a newline.
func FormatRecord(rec Record) ([]byte, error) {
	b, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("format record: %w", err)
	}
	return b, nil
}
