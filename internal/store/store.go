// Package store provides the actuator state and settings documents shared
// between the controller and its collaborators.
// Reads never fail: an absent or corrupt document resolves to the
// documented default so the controller always has a defined input.
package store

import (
	"github.com/sweeney/thermostat/internal/logic"
)

// Actuator holds the heater state. The controller is its only writer.
type Actuator interface {
	// Read returns the current heater state, or OFF if it cannot be determined.
	Read() logic.State

	// Write overwrites the heater state.
	Write(state logic.State) error
}

// Settings is a read-only view of operator settings.
type Settings interface {
	// Read returns the current settings, or defaults if unavailable.
	Read() logic.Settings
}

// ActuatorDocument is the on-disk form of the actuator state.
type ActuatorDocument struct {
	Heater string `json:"heater"`
}
