package internal

import (
	"io"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sweeney/thermostat/internal/controller"
	"github.com/sweeney/thermostat/internal/logic"
	"github.com/sweeney/thermostat/internal/mqtt"
	"github.com/sweeney/thermostat/internal/processed"
	"github.com/sweeney/thermostat/internal/store"
	"github.com/sweeney/thermostat/internal/telemetry"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

// rig wires the simulator and the controller through real files in a
// temporary directory.
type rig struct {
	dir       string
	telemetry string
	cursor    string
	actuator  *store.FileActuator
	records   *processed.FileLog
	writer    *telemetry.Writer
	sim       *telemetry.Simulator
	ctl       *controller.Controller
	clock     time.Time
}

func newRig(t *testing.T, hour int) *rig {
	t.Helper()
	dir := t.TempDir()
	r := &rig{
		dir:       dir,
		telemetry: filepath.Join(dir, "iot_messages.json"),
		cursor:    filepath.Join(dir, "iot_messages.offset"),
		actuator:  store.NewFileActuator(filepath.Join(dir, "actuator_state.json"), quiet),
		clock:     time.Date(2026, 1, 15, hour, 0, 0, 0, time.Local),
	}
	r.writer = telemetry.NewWriter(r.telemetry)
	r.sim = telemetry.NewSimulator("thermostat01", 18, rand.New(rand.NewSource(7)))

	records, err := processed.OpenFileLog(filepath.Join(dir, "processed_data.json"), quiet)
	if err != nil {
		t.Fatalf("open processed log: %v", err)
	}
	t.Cleanup(func() { records.Close() })
	r.records = records
	r.start(t)
	return r
}

// start opens the telemetry log and builds a controller, as a process
// start would.
func (r *rig) start(t *testing.T) {
	t.Helper()
	source, err := telemetry.OpenFileLog(r.telemetry, r.cursor, telemetry.StartAtEnd, quiet)
	if err != nil {
		t.Fatalf("open telemetry: %v", err)
	}
	r.ctl = controller.New(controller.Config{
		Source:   source,
		Settings: store.NewFileSettings(filepath.Join(r.dir, "system_settings.json"), quiet),
		Actuator: r.actuator,
		Records:  r.records,
		Now:      func() time.Time { return r.clock },
		Logger:   quiet,
	})
}

func (r *rig) writeSettings(t *testing.T, doc string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(r.dir, "system_settings.json"), []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
}

// step runs one simulator reading followed by one controller cycle.
func (r *rig) step(t *testing.T) controller.Result {
	t.Helper()
	r.clock = r.clock.Add(3 * time.Second)
	if err := r.writer.Write(r.sim.Step(r.actuator.Read(), r.clock)); err != nil {
		t.Fatalf("write telemetry: %v", err)
	}
	res, err := r.ctl.Cycle()
	if err != nil {
		t.Fatalf("cycle: %v", err)
	}
	return res
}

func TestIntegrationFeedbackLoopHoldsBand(t *testing.T) {
	r := newRig(t, 3)
	pub := mqtt.NewFakePublisher()

	reachedTarget := false
	for i := 0; i < 200; i++ {
		res := r.step(t)
		for _, tr := range res.Transitions {
			if err := pub.Publish(tr); err != nil {
				t.Fatal(err)
			}
		}
		if len(res.Records) != 1 {
			t.Fatalf("step %d: records %d, want 1", i, len(res.Records))
		}

		temp := r.sim.Temperature()
		if temp >= logic.DefaultTargetTemp {
			reachedTarget = true
		}
		if reachedTarget && (temp < 19.7 || temp > 21.8) {
			t.Fatalf("step %d: temperature %v left the hysteresis band", i, temp)
		}
	}

	if !reachedTarget {
		t.Fatal("room never reached target")
	}
	if len(pub.Transitions) < 3 {
		t.Errorf("expected the heater to cycle, got %d transitions", len(pub.Transitions))
	}
	for i := 1; i < len(pub.Transitions); i++ {
		if pub.Transitions[i].Type == pub.Transitions[i-1].Type {
			t.Errorf("transition %d repeats %s", i, pub.Transitions[i].Type)
		}
	}

	recs, err := r.records.Tail(1000)
	if err != nil {
		t.Fatalf("tail: %v", err)
	}
	if len(recs) != 200 {
		t.Errorf("processed records: got %d, want 200", len(recs))
	}
	last := recs[len(recs)-1]
	if last.HeaterState != r.actuator.Read() {
		t.Errorf("last record heater %s, actuator %s", last.HeaterState, r.actuator.Read())
	}
}

func TestIntegrationPeakHoursSuppressHeating(t *testing.T) {
	r := newRig(t, 17)

	for i := 0; i < 20; i++ {
		res := r.step(t)
		if len(res.Transitions) != 0 {
			t.Fatalf("step %d: heater switched during peak hours", i)
		}
		if !res.Records[0].IsPeak || res.Records[0].HeaterState != logic.StateOff {
			t.Fatalf("step %d: record %+v", i, res.Records[0])
		}
	}
	if r.sim.Temperature() >= 18 {
		t.Errorf("room should cool during peak hours, at %v", r.sim.Temperature())
	}
}

func TestIntegrationSettingsChangeTakesEffect(t *testing.T) {
	r := newRig(t, 17)

	r.step(t)
	if r.actuator.Read() != logic.StateOff {
		t.Fatal("heater should stay off during default peak hours")
	}

	// Move the peak window away from the current hour.
	r.writeSettings(t, `{
		// evening peak moved to the morning
		"target_temp": 22.5,
		"peak_start_hour": 6,
		"peak_end_hour": 9,
	}`)
	res := r.step(t)

	if len(res.Transitions) != 1 || res.Transitions[0].Type != logic.EventHeaterOn {
		t.Fatalf("expected HEATER_ON after settings change, got %+v", res.Transitions)
	}
	if res.Records[0].TargetTemp != 22.5 || res.Records[0].IsPeak {
		t.Errorf("record: got %+v", res.Records[0])
	}
}

func TestIntegrationRestartResumesFromCursor(t *testing.T) {
	r := newRig(t, 3)
	for i := 0; i < 3; i++ {
		r.step(t)
	}

	// Readings written while the controller is down are picked up on restart.
	for i := 0; i < 2; i++ {
		r.clock = r.clock.Add(3 * time.Second)
		if err := r.writer.Write(r.sim.Step(r.actuator.Read(), r.clock)); err != nil {
			t.Fatal(err)
		}
	}
	r.start(t)
	res, err := r.ctl.Cycle()
	if err != nil {
		t.Fatalf("cycle after restart: %v", err)
	}
	if len(res.Records) != 2 {
		t.Errorf("records after restart: got %d, want 2", len(res.Records))
	}

	recs, err := r.records.Tail(100)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 5 {
		t.Errorf("processed records: got %d, want 5 with no duplicates", len(recs))
	}
}

func TestIntegrationMalformedTelemetrySkipped(t *testing.T) {
	r := newRig(t, 3)

	f, err := os.OpenFile(r.telemetry, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	f.WriteString("not json\n{\"device_id\":\"thermostat01\"}\n")
	f.Close()

	res := r.step(t)
	if res.Skipped != 2 || len(res.Records) != 1 {
		t.Errorf("skipped=%d records=%d, want 2 and 1", res.Skipped, len(res.Records))
	}

	res, err = r.ctl.Cycle()
	if err != nil {
		t.Fatal(err)
	}
	if res.Skipped != 0 || len(res.Records) != 0 {
		t.Errorf("malformed lines should not be seen again: %+v", res)
	}
}

func TestIntegrationCorruptActuatorFailsSafe(t *testing.T) {
	r := newRig(t, 17)
	if err := os.WriteFile(filepath.Join(r.dir, "actuator_state.json"), []byte("{garbage"), 0o644); err != nil {
		t.Fatal(err)
	}

	res := r.step(t)
	// Unreadable state counts as OFF, and peak hours keep it there.
	if res.Records[0].HeaterState != logic.StateOff {
		t.Errorf("heater: got %s, want OFF", res.Records[0].HeaterState)
	}
}
