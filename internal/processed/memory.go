package processed

import (
	"sync"
)

// window is a fixed-capacity FIFO keeping the newest records.
// Not safe for concurrent use; caller must synchronize.
type window struct {
	buf      []Record
	capacity int
	head     int // next write position
	count    int
}

func newWindow(capacity int) *window {
	return &window{
		buf:      make([]Record, capacity),
		capacity: capacity,
	}
}

func (w *window) push(rec Record) {
	w.buf[w.head] = rec
	w.head = (w.head + 1) % w.capacity
	if w.count < w.capacity {
		w.count++
	}
}

// records returns the held records, oldest first.
func (w *window) records() []Record {
	if w.count == 0 {
		return nil
	}
	out := make([]Record, w.count)
	start := (w.head - w.count + w.capacity) % w.capacity
	for i := 0; i < w.count; i++ {
		out[i] = w.buf[(start+i)%w.capacity]
	}
	return out
}

// MemoryLog keeps the newest records in memory. Used by tests and by
// consumers that only need a rolling window.
type MemoryLog struct {
	mu sync.RWMutex
	w  *window

	// AppendError, if set, will be returned by Append.
	AppendError error
}

// NewMemoryLog creates a MemoryLog holding at most capacity records.
func NewMemoryLog(capacity int) *MemoryLog {
	if capacity <= 0 {
		capacity = DefaultWindow
	}
	return &MemoryLog{w: newWindow(capacity)}
}

// Append stores rec, evicting the oldest record when full.
func (m *MemoryLog) Append(rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.AppendError != nil {
		return m.AppendError
	}
	m.w.push(rec)
	return nil
}

// Tail returns up to n of the newest records, oldest first.
func (m *MemoryLog) Tail(n int) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := m.w.records()
	if n < len(all) {
		if n <= 0 {
			return nil, nil
		}
		all = all[len(all)-n:]
	}
	return all, nil
}

// Len returns the number of records held.
func (m *MemoryLog) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.w.count
}

// Close is a no-op.
func (m *MemoryLog) Close() error {
	return nil
}
