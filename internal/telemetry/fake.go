package telemetry

// FakeSource is a test double that returns scripted batches.
type FakeSource struct {
	// Batches contains scripted lines. Each call to Drain consumes the next
	// batch; once exhausted, Drain returns empty batches.
	Batches [][]string

	// index tracks the next batch to return
	index int

	// base is the synthetic offset of the first line of the next batch
	base int64

	// pending holds entries returned by the last Drain that are not yet committed
	pending []Entry

	// Committed holds every offset passed to Commit.
	Committed []int64

	// DrainError, if set, will be returned by Drain.
	DrainError error

	// CommitError, if set, will be returned by Commit.
	CommitError error
}

// NewFakeSource creates a FakeSource with the given batches.
func NewFakeSource(batches ...[]string) *FakeSource {
	return &FakeSource{Batches: batches}
}

// Drain returns uncommitted entries from the previous batch followed by
// the next scripted batch. Offsets are 1-based line counters.
func (f *FakeSource) Drain() ([]Entry, error) {
	if f.DrainError != nil {
		return nil, f.DrainError
	}

	entries := append([]Entry(nil), f.pending...)
	if f.index < len(f.Batches) {
		for _, line := range f.Batches[f.index] {
			f.base++
			entries = append(entries, Entry{Line: []byte(line), Offset: f.base})
		}
		f.index++
	}
	f.pending = entries
	return entries, nil
}

// Commit records offset and drops pending entries up to it.
func (f *FakeSource) Commit(offset int64) error {
	if f.CommitError != nil {
		return f.CommitError
	}
	f.Committed = append(f.Committed, offset)

	var kept []Entry
	for _, e := range f.pending {
		if e.Offset > offset {
			kept = append(kept, e)
		}
	}
	f.pending = kept
	return nil
}

// LastCommitted returns the most recent committed offset, or 0.
func (f *FakeSource) LastCommitted() int64 {
	if len(f.Committed) == 0 {
		return 0
	}
	return f.Committed[len(f.Committed)-1]
}
