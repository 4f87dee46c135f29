package telemetry

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"sync"

	"github.com/sweeney/thermostat/internal/logic"
)

// Drain batch limits.
const (
	maxBatchLines = 500
	maxBatchBytes = 1 << 20
)

// StartPosition selects where a FileLog begins when no cursor is persisted.
type StartPosition string

const (
	// StartAtEnd skips readings written before the controller first started.
	StartAtEnd StartPosition = "end"
	// StartAtBeginning replays every retained reading.
	StartAtBeginning StartPosition = "beginning"
)

// FileLog reads an append-only telemetry file through a persisted cursor.
type FileLog struct {
	path       string
	cursorPath string
	log        *slog.Logger

	mu     sync.Mutex
	offset int64
}

// OpenFileLog opens the log at path, restoring the cursor stored at
// cursorPath or positioning it according to start.
func OpenFileLog(path, cursorPath string, start StartPosition, logger *slog.Logger) (*FileLog, error) {
	if logger == nil {
		logger = slog.Default()
	}
	l := &FileLog{path: path, cursorPath: cursorPath, log: logger}

	if offset, ok := loadCursor(cursorPath, path); ok {
		l.offset = offset
		logger.Info("telemetry cursor restored", "path", path, "offset", offset)
		return l, nil
	}

	if start == StartAtEnd {
		info, err := os.Stat(path)
		switch {
		case err == nil:
			l.offset = info.Size()
		case !errors.Is(err, fs.ErrNotExist):
			return nil, fmt.Errorf("stat telemetry log: %w", err)
		}
	}

	if err := saveCursor(cursorPath, path, l.offset); err != nil {
		return nil, err
	}
	logger.Info("telemetry cursor initialized", "path", path, "offset", l.offset, "start", string(start))
	return l, nil
}

// Offset returns the committed read position.
func (l *FileLog) Offset() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.offset
}

// Drain returns the complete lines after the committed offset, at most
// maxBatchLines of them and stopping once maxBatchBytes have been read; the
// rest is left for the next call. A trailing line without a newline is
// still being written and is left for later.
//
// Blank lines are skipped. Those following an entry are folded into its
// offset; a batch of nothing but blank lines is committed here.
func (l *FileLog) Drain() ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open telemetry log: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat telemetry log: %w", err)
	}
	size := info.Size()
	if size < l.offset {
		l.log.Warn("telemetry log shrank, reading from start", "path", l.path, "size", size, "offset", l.offset)
		l.offset = 0
	}
	if size == l.offset {
		return nil, nil
	}

	if _, err := f.Seek(l.offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek telemetry log: %w", err)
	}
	r := bufio.NewReader(io.LimitReader(f, size-l.offset))

	var entries []Entry
	pos := l.offset
	for len(entries) < maxBatchLines && pos-l.offset < maxBatchBytes {
		line, err := r.ReadBytes('\n')
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read telemetry log: %w", err)
		}
		pos += int64(len(line))

		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			if n := len(entries); n > 0 {
				entries[n-1].Offset = pos
			}
			continue
		}
		entries = append(entries, Entry{Line: line, Offset: pos})
	}

	if len(entries) == 0 && pos > l.offset {
		if err := saveCursor(l.cursorPath, l.path, pos); err != nil {
			return nil, err
		}
		l.offset = pos
	}
	return entries, nil
}

// Commit persists offset as the new read position.
func (l *FileLog) Commit(offset int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := saveCursor(l.cursorPath, l.path, offset); err != nil {
		return err
	}
	l.offset = offset
	return nil
}

// Writer appends readings to a telemetry file. Each reading is written
// with a single write call so a concurrent reader never sees a torn line
// followed by a newline.
type Writer struct {
	path string
}

// NewWriter creates a Writer for path.
func NewWriter(path string) *Writer {
	return &Writer{path: path}
}

// Write appends r as one line.
func (w *Writer) Write(r logic.Reading) error {
	line, err := Format(r)
	if err != nil {
		return fmt.Errorf("format reading: %w", err)
	}
	f, err := os.OpenFile(w.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open telemetry log: %w", err)
	}
	_, werr := f.Write(append(line, '\n'))
	cerr := f.Close()
	if err := errors.Join(werr, cerr); err != nil {
		return fmt.Errorf("append telemetry: %w", err)
	}
	return nil
}
