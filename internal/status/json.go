package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/thermostat/internal/processed"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string            `json:"event,omitempty"`
	Reason        string            `json:"reason,omitempty"`
	InstanceID    string            `json:"instance_id"`
	Heater        string            `json:"heater"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	StartTime     string            `json:"start_time"`
	Timestamp     string            `json:"timestamp"`
	LastRecord    *processed.Record `json:"last_record,omitempty"`
	LastError     *ErrorJSON        `json:"last_error,omitempty"`
	MQTT          MQTTStatus        `json:"mqtt"`
	Counts        CountsJSON        `json:"event_counts"`
	Config        ConfigJSON        `json:"config"`
}

// ErrorJSON describes the most recent failed cycle.
type ErrorJSON struct {
	Message string `json:"message"`
	At      string `json:"at"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of event counts.
type CountsJSON struct {
	Processed   int `json:"processed"`
	Skipped     int `json:"skipped"`
	HeaterOn    int `json:"heater_on"`
	HeaterOff   int `json:"heater_off"`
	CycleErrors int `json:"cycle_errors"`
}

// ConfigJSON is the JSON representation of controller config.
type ConfigJSON struct {
	IntervalMs  int64  `json:"interval_ms"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
	Broker      string `json:"broker,omitempty"`
	HTTPAddr    string `json:"http_addr"`
	DataDir     string `json:"data_dir"`
	Window      int    `json:"window"`
}

func buildInner(snap Snapshot) StatusInner {
	heater := string(snap.Heater)
	if heater == "" {
		heater = "UNKNOWN"
	}

	inner := StatusInner{
		InstanceID:    snap.Config.InstanceID,
		Heater:        heater,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		LastRecord:    snap.LastRecord,
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Processed:   snap.Counts.Processed,
			Skipped:     snap.Counts.Skipped,
			HeaterOn:    snap.Counts.HeaterOn,
			HeaterOff:   snap.Counts.HeaterOff,
			CycleErrors: snap.Counts.CycleErrors,
		},
		Config: ConfigJSON{
			IntervalMs:  snap.Config.IntervalMs,
			HeartbeatMs: snap.Config.HeartbeatMs,
			Broker:      snap.Config.Broker,
			HTTPAddr:    snap.Config.HTTPAddr,
			DataDir:     snap.Config.DataDir,
			Window:      snap.Config.Window,
		},
	}
	if snap.LastError != "" {
		inner.LastError = &ErrorJSON{
			Message: snap.LastError,
			At:      snap.LastErrorAt.UTC().Format(time.RFC3339),
		}
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
