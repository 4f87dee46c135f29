// Package telemetry provides the temperature reading log consumed by the
// controller, with an abstraction for testing.
// The file implementation is an append-only newline-delimited JSON log read
// through a persisted byte-offset cursor, so producers never race a
// destructive drain.
package telemetry

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/sweeney/thermostat/internal/logic"
)

var (
	// ErrMalformed is returned for a line that is not a telemetry object.
	ErrMalformed = errors.New("malformed telemetry")

	// ErrMissingTemperature is returned for an object without a temperature.
	ErrMissingTemperature = errors.New("telemetry missing temperature")
)

// Entry is one raw line drained from the log.
type Entry struct {
	Line []byte
	// Offset is the byte position just past this entry's newline.
	// Committing it marks the entry as consumed.
	Offset int64
}

// Source yields pending telemetry entries.
type Source interface {
	// Drain returns every complete entry after the committed offset,
	// in arrival order. An empty batch is not an error.
	Drain() ([]Entry, error)

	// Commit records that all entries up to offset have been consumed.
	Commit(offset int64) error
}

// Message is the wire form of a reading.
type Message struct {
	DeviceID    string   `json:"device_id"`
	Temperature *float64 `json:"temperature"`
	Timestamp   *float64 `json:"timestamp,omitempty"`
}

// Parse decodes a telemetry line. A missing timestamp is stamped with now.
func Parse(line []byte, now time.Time) (logic.Reading, error) {
	var msg Message
	if err := json.Unmarshal(line, &msg); err != nil {
		return logic.Reading{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if msg.Temperature == nil {
		return logic.Reading{}, ErrMissingTemperature
	}
	if math.IsNaN(*msg.Temperature) || math.IsInf(*msg.Temperature, 0) {
		return logic.Reading{}, fmt.Errorf("%w: non-finite temperature", ErrMalformed)
	}

	r := logic.Reading{
		DeviceID:    msg.DeviceID,
		Temperature: *msg.Temperature,
		Timestamp:   now,
		Epoch:       Epoch(now),
	}
	if msg.Timestamp != nil {
		r.Timestamp = FromEpoch(*msg.Timestamp)
		r.Epoch = *msg.Timestamp
	}
	return r, nil
}

// Format encodes a reading as a single telemetry line without a newline.
func Format(r logic.Reading) ([]byte, error) {
	temp := r.Temperature
	ts := r.Epoch
	if ts == 0 {
		ts = Epoch(r.Timestamp)
	}
	return json.Marshal(Message{
		DeviceID:    r.DeviceID,
		Temperature: &temp,
		Timestamp:   &ts,
	})
}

// Epoch converts t to fractional Unix seconds.
func Epoch(t time.Time) float64 {
	return float64(t.Unix()) + float64(t.Nanosecond())/float64(time.Second)
}

// FromEpoch converts fractional Unix seconds to a time.
func FromEpoch(sec float64) time.Time {
	whole, frac := math.Modf(sec)
	return time.Unix(int64(whole), int64(math.Round(frac*float64(time.Second))))
}
