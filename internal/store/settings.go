package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"

	"github.com/tidwall/jsonc"

	"github.com/sweeney/thermostat/internal/logic"
)

// ErrInvalidSettings is returned for a settings document that cannot be used.
var ErrInvalidSettings = errors.New("invalid settings")

// ValidateSettings checks that s is usable by the policy.
func ValidateSettings(s logic.Settings) error {
	if math.IsNaN(s.TargetTemp) || math.IsInf(s.TargetTemp, 0) {
		return fmt.Errorf("%w: target_temp %v", ErrInvalidSettings, s.TargetTemp)
	}
	if s.PeakStartHour < 0 || s.PeakStartHour > 23 {
		return fmt.Errorf("%w: peak_start_hour %d outside 0..23", ErrInvalidSettings, s.PeakStartHour)
	}
	if s.PeakEndHour < 0 || s.PeakEndHour > 23 {
		return fmt.Errorf("%w: peak_end_hour %d outside 0..23", ErrInvalidSettings, s.PeakEndHour)
	}
	return nil
}

// ParseSettings decodes a settings document. Comments and trailing commas
// are accepted. Fields absent from the document keep their defaults.
func ParseSettings(data []byte) (logic.Settings, error) {
	s := logic.DefaultSettings()
	if err := json.Unmarshal(jsonc.ToJSON(data), &s); err != nil {
		return logic.DefaultSettings(), fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	if err := ValidateSettings(s); err != nil {
		return logic.DefaultSettings(), err
	}
	return s, nil
}

// FileSettings reads settings from a JSON document on every call.
// Nothing is cached so operators can change policy while running.
type FileSettings struct {
	path string
	log  *slog.Logger
}

// NewFileSettings creates a settings store backed by path.
func NewFileSettings(path string, logger *slog.Logger) *FileSettings {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileSettings{path: path, log: logger}
}

// Read returns the current settings, falling back to defaults.
func (s *FileSettings) Read() logic.Settings {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.log.Warn("settings unreadable, using defaults", "path", s.path, "error", err)
		}
		return logic.DefaultSettings()
	}

	settings, err := ParseSettings(b)
	if err != nil {
		s.log.Warn("settings corrupt, using defaults", "path", s.path, "error", err)
	}
	return settings
}
