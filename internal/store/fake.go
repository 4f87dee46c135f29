package store

import (
	"github.com/sweeney/thermostat/internal/logic"
)

// FakeActuator is an in-memory actuator store for tests.
type FakeActuator struct {
	// State is the stored value. Empty or unknown values read as OFF.
	State logic.State

	// Writes records every state passed to Write.
	Writes []logic.State

	// Reads counts calls to Read.
	Reads int

	// WriteError, if set, will be returned by Write.
	WriteError error
}

// NewFakeActuator creates a FakeActuator holding state.
func NewFakeActuator(state logic.State) *FakeActuator {
	return &FakeActuator{State: state}
}

// Read returns the stored state, or OFF.
func (f *FakeActuator) Read() logic.State {
	f.Reads++
	state, _ := logic.ParseState(string(f.State))
	return state
}

// Write records and stores state.
func (f *FakeActuator) Write(state logic.State) error {
	if f.WriteError != nil {
		return f.WriteError
	}
	f.Writes = append(f.Writes, state)
	f.State = state
	return nil
}

// FakeSettings returns scripted settings.
type FakeSettings struct {
	// Sequence contains settings returned by successive reads. Once
	// exhausted the last entry repeats. Empty means defaults.
	Sequence []logic.Settings

	// index tracks current position in Sequence
	index int

	// Reads counts calls to Read.
	Reads int
}

// NewFakeSettings creates a FakeSettings with the given sequence.
func NewFakeSettings(seq ...logic.Settings) *FakeSettings {
	return &FakeSettings{Sequence: seq}
}

// Read returns the next scripted settings.
func (f *FakeSettings) Read() logic.Settings {
	f.Reads++
	if len(f.Sequence) == 0 {
		return logic.DefaultSettings()
	}
	s := f.Sequence[f.index]
	if f.index < len(f.Sequence)-1 {
		f.index++
	}
	return s
}
