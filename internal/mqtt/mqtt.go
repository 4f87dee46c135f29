// Package mqtt publishes heater transitions and controller lifecycle events.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/thermostat/internal/logic"
)

// Topic is the MQTT topic for heater transitions.
const Topic = "home/thermostat/heater/events"

// TopicSystem is the MQTT topic for controller lifecycle events.
const TopicSystem = "home/thermostat/system"

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a heater transition. Errors are reported, never fatal.
	Publish(t logic.Transition) error

	// PublishSystem sends a lifecycle event.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent is a lifecycle event such as STARTUP, SHUTDOWN or HEARTBEAT.
type SystemEvent struct {
	Timestamp  time.Time
	Event      string
	Reason     string // shutdown signal, if any
	RawPayload []byte // pre-formatted payload, sent as is when set
	Retained   bool
}

// Payload is the message body for a heater transition.
type Payload struct {
	Heater HeaterPayload `json:"heater"`
}

// HeaterPayload describes one transition.
type HeaterPayload struct {
	Timestamp   string  `json:"timestamp"`
	Event       string  `json:"event"`
	DeviceID    string  `json:"device_id"`
	From        string  `json:"from"`
	To          string  `json:"to"`
	Temperature float64 `json:"temperature"`
	TargetTemp  float64 `json:"target_temp"`
	IsPeak      bool    `json:"is_peak"`
	Reason      string  `json:"reason"`
}

// FormatPayload creates the JSON payload for a transition.
func FormatPayload(t logic.Transition) ([]byte, error) {
	return json.Marshal(Payload{
		Heater: HeaterPayload{
			Timestamp:   t.Timestamp.UTC().Format(time.RFC3339),
			Event:       string(t.Type),
			DeviceID:    t.DeviceID,
			From:        string(t.From),
			To:          string(t.To),
			Temperature: t.Temperature,
			TargetTemp:  t.TargetTemp,
			IsPeak:      t.IsPeak,
			Reason:      string(t.Reason),
		},
	})
}

// SystemPayload is the body for simple lifecycle events (LWT, RECONNECTED)
// that carry no status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// RawPayload wins when set.
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}
	return json.Marshal(SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	})
}

// NopPublisher discards everything. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(logic.Transition) error  { return nil }
func (NopPublisher) PublishSystem(SystemEvent) error { return nil }
func (NopPublisher) Close() error                    { return nil }
func (NopPublisher) IsConnected() bool               { return false }
