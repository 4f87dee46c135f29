package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/sweeney/thermostat/internal/fsutil"
	"github.com/sweeney/thermostat/internal/logic"
)

// FileActuator stores the heater state as a small JSON document.
type FileActuator struct {
	path string
	log  *slog.Logger
}

// NewFileActuator creates an actuator store backed by path.
func NewFileActuator(path string, logger *slog.Logger) *FileActuator {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileActuator{path: path, log: logger}
}

// Read returns the stored heater state. Absent, unreadable, or corrupt
// documents and unknown values all resolve to OFF.
func (a *FileActuator) Read() logic.State {
	b, err := os.ReadFile(a.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			a.log.Warn("actuator state unreadable, assuming OFF", "path", a.path, "error", err)
		}
		return logic.StateOff
	}

	var doc ActuatorDocument
	if err := json.Unmarshal(b, &doc); err != nil {
		a.log.Warn("actuator state corrupt, assuming OFF", "path", a.path, "error", err)
		return logic.StateOff
	}

	state, ok := logic.ParseState(doc.Heater)
	if !ok {
		a.log.Warn("actuator state unknown, assuming OFF", "path", a.path, "heater", doc.Heater)
	}
	return state
}

// Write replaces the stored heater state.
func (a *FileActuator) Write(state logic.State) error {
	if state != logic.StateOn && state != logic.StateOff {
		return fmt.Errorf("invalid heater state %q", state)
	}
	b, err := json.Marshal(ActuatorDocument{Heater: string(state)})
	if err != nil {
		return err
	}
	if err := fsutil.WriteAtomic(a.path, b, 0o644); err != nil {
		return fmt.Errorf("write actuator state: %w", err)
	}
	return nil
}
