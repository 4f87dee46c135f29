// Package controller runs the thermostat decision cycle: it drains pending
// telemetry, applies the heating policy to each reading, updates the
// actuator state and appends a processed record per reading.
package controller

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/sweeney/thermostat/internal/logic"
	"github.com/sweeney/thermostat/internal/processed"
	"github.com/sweeney/thermostat/internal/store"
	"github.com/sweeney/thermostat/internal/telemetry"
)

// maxLoggedLine bounds how much of a malformed line is logged.
const maxLoggedLine = 200

// Config wires a Controller to its collaborators.
type Config struct {
	Source   telemetry.Source
	Settings store.Settings
	Actuator store.Actuator
	Records  processed.Appender

	// Now returns wall-clock time; the peak window uses its hour.
	// Defaults to time.Now.
	Now func() time.Time

	Logger *slog.Logger
}

// Result describes one cycle.
type Result struct {
	Records     []processed.Record
	Transitions []logic.Transition
	Skipped     int
}

// Controller is the single writer of the actuator state.
// Not safe for concurrent use; Cycle is driven by one loop.
type Controller struct {
	source   telemetry.Source
	settings store.Settings
	actuator store.Actuator
	records  processed.Appender
	now      func() time.Time
	log      *slog.Logger

	startTime     time.Time
	lastHeartbeat time.Time
	counts        logic.EventCounts
}

// New creates a Controller. The start time for uptime reporting is taken
// from cfg.Now.
func New(cfg Config) *Controller {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	start := now()
	return &Controller{
		source:        cfg.Source,
		settings:      cfg.Settings,
		actuator:      cfg.Actuator,
		records:       cfg.Records,
		now:           now,
		log:           logger,
		startTime:     start,
		lastHeartbeat: start,
	}
}

// Cycle processes every pending reading in arrival order.
//
// Malformed entries are skipped and committed so they are never seen
// again. An error from the stores stops the batch before the failing entry
// is committed; it is retried on the next cycle. The returned Result covers
// the work done before any error, including a record whose offset failed
// to commit.
func (c *Controller) Cycle() (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cycle panic: %v", r)
		}
		if err != nil {
			c.counts.CycleErrors++
		}
	}()

	entries, err := c.source.Drain()
	if err != nil {
		return res, fmt.Errorf("drain telemetry: %w", err)
	}

	for _, entry := range entries {
		reading, perr := telemetry.Parse(entry.Line, c.now())
		if perr != nil {
			c.log.Warn("skipping malformed telemetry", "error", perr, "line", clip(entry.Line))
			if err := c.source.Commit(entry.Offset); err != nil {
				return res, fmt.Errorf("commit telemetry offset: %w", err)
			}
			res.Skipped++
			c.counts.Skipped++
			continue
		}

		rec, tr, err := c.process(reading)
		if tr != nil {
			res.Transitions = append(res.Transitions, *tr)
		}
		if err != nil {
			return res, err
		}
		// The record is on disk from here on; report it even if the
		// offset cannot be saved. The entry is then delivered again
		// next cycle and appended a second time.
		res.Records = append(res.Records, rec)
		c.counts.Processed++
		if err := c.source.Commit(entry.Offset); err != nil {
			return res, fmt.Errorf("commit telemetry offset: %w", err)
		}
	}
	return res, nil
}

// process applies the policy to one reading. Settings and actuator state
// are read fresh for every reading.
func (c *Controller) process(r logic.Reading) (processed.Record, *logic.Transition, error) {
	settings := c.settings.Read()
	isPeak := logic.IsPeak(settings, c.now().Hour())
	current := c.actuator.Read()

	d := logic.Decide(r.Temperature, settings.TargetTemp, isPeak, current)

	var tr *logic.Transition
	if d.Changed {
		if err := c.actuator.Write(d.State); err != nil {
			return processed.Record{}, nil, fmt.Errorf("write actuator state: %w", err)
		}
		t := logic.NewTransition(r, current, d, settings.TargetTemp, isPeak)
		tr = &t
		if d.State == logic.StateOn {
			c.counts.HeaterOn++
			c.log.Info("heater on", "temperature", r.Temperature, "target", settings.TargetTemp, "reason", string(d.Reason))
		} else {
			c.counts.HeaterOff++
			c.log.Info("heater off", "temperature", r.Temperature, "target", settings.TargetTemp, "reason", string(d.Reason))
		}
	} else if d.Reason == logic.ReasonColdPeak {
		c.log.Info("below target during peak hours, staying off", "temperature", r.Temperature, "target", settings.TargetTemp)
	}

	rec := processed.NewRecord(r, d.State, settings.TargetTemp, isPeak)
	if err := c.records.Append(rec); err != nil {
		return processed.Record{}, tr, fmt.Errorf("append processed record: %w", err)
	}
	c.log.Debug("processed reading", "device", r.DeviceID, "temperature", r.Temperature, "heater", string(d.State), "peak", isPeak)
	return rec, tr, nil
}

// HeaterState returns the actuator state as currently stored.
func (c *Controller) HeaterState() logic.State {
	return c.actuator.Read()
}

// Counts returns activity counters since startup.
func (c *Controller) Counts() logic.EventCounts {
	return c.counts
}

// StartTime returns when the controller was created.
func (c *Controller) StartTime() time.Time {
	return c.startTime
}

// CheckHeartbeat returns heartbeat data if the interval has elapsed since
// the last heartbeat (or startup). Returns nil if the interval has not
// elapsed or is <= 0 (disabled).
func (c *Controller) CheckHeartbeat(now time.Time, interval time.Duration) *logic.HeartbeatData {
	if interval <= 0 {
		return nil
	}
	if now.Sub(c.lastHeartbeat) < interval {
		return nil
	}
	c.lastHeartbeat = now
	return &logic.HeartbeatData{
		Timestamp: now,
		Uptime:    now.Sub(c.startTime),
		Counts:    c.counts,
	}
}

func clip(line []byte) string {
	if len(line) > maxLoggedLine {
		return string(line[:maxLoggedLine]) + "..."
	}
	return string(line)
}
