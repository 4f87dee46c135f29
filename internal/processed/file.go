package processed

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// FileLog appends records to a newline-delimited JSON file.
type FileLog struct {
	mu   sync.Mutex
	path string
	file *os.File
	log  *slog.Logger
}

// OpenFileLog opens (creating if needed) the log at path for appending.
func OpenFileLog(path string, logger *slog.Logger) (*FileLog, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create processed log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open processed log: %w", err)
	}
	return &FileLog{path: path, file: f, log: logger}, nil
}

// Append writes rec as one line.
func (l *FileLog) Append(rec Record) error {
	line, err := FormatRecord(rec)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append processed record: %w", err)
	}
	return nil
}

// Tail reads the newest n records. Lines that fail to decode are skipped.
// A missing file yields no records.
func (l *FileLog) Tail(n int) ([]Record, error) {
	return TailFile(l.path, n, l.log)
}

// Close closes the underlying file.
func (l *FileLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

// TailFile reads the newest n records from the log at path without
// holding it open, for readers in other processes.
func TailFile(path string, n int, logger *slog.Logger) ([]Record, error) {
	if n <= 0 {
		return nil, nil
	}
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open processed log: %w", err)
	}
	defer f.Close()

	w := newWindow(n)
	skipped := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			skipped++
			continue
		}
		w.push(rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan processed log: %w", err)
	}
	if skipped > 0 && logger != nil {
		logger.Debug("skipped undecodable processed lines", "path", path, "count", skipped)
	}
	return w.records(), nil
}
