package telemetry

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/sweeney/thermostat/internal/fsutil"
)

// cursor is the persisted read position of a FileLog.
type cursor struct {
	Path   string `json:"path"`
	Offset int64  `json:"offset"`
}

// loadCursor reads the cursor at path. ok is false when no usable cursor
// exists (missing, corrupt, or written for a different log).
func loadCursor(path, logPath string) (int64, bool) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	var c cursor
	if err := json.Unmarshal(b, &c); err != nil {
		return 0, false
	}
	if c.Path != logPath || c.Offset < 0 {
		return 0, false
	}
	return c.Offset, true
}

// saveCursor writes the cursor via a temp file and rename.
func saveCursor(path, logPath string, offset int64) error {
	b, err := json.Marshal(cursor{Path: logPath, Offset: offset})
	if err != nil {
		return err
	}
	if err := fsutil.WriteAtomic(path, b, 0o644); err != nil {
		return fmt.Errorf("save cursor: %w", err)
	}
	return nil
}
