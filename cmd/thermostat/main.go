// Command thermostat runs the heating controller: it consumes telemetry,
// drives the actuator state, records every decision and serves a dashboard.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"

	"github.com/sweeney/thermostat/internal/config"
	"github.com/sweeney/thermostat/internal/controller"
	"github.com/sweeney/thermostat/internal/mqtt"
	"github.com/sweeney/thermostat/internal/processed"
	"github.com/sweeney/thermostat/internal/status"
	"github.com/sweeney/thermostat/internal/store"
	"github.com/sweeney/thermostat/internal/telemetry"
	"github.com/sweeney/thermostat/internal/web"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("could not load .env file", "error", err)
	}

	cfg, err := config.Load("thermostat", os.Args[1:], os.Getenv)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}

	level, _ := cfg.Level()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancelCause(context.Background())
	defer cancel(nil)
	go cancelOnSignal(ctx, cancel)

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

// shutdownSignal is the cancellation cause recorded when a signal arrives.
type shutdownSignal struct {
	sig os.Signal
}

func (s shutdownSignal) Error() string {
	return "received " + s.sig.String()
}

func cancelOnSignal(ctx context.Context, cancel context.CancelCauseFunc) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case s := <-sigCh:
		cancel(shutdownSignal{sig: s})
	case <-ctx.Done():
	}
}

// shutdownReason names the signal that cancelled ctx.
func shutdownReason(ctx context.Context) string {
	var s shutdownSignal
	if errors.As(context.Cause(ctx), &s) {
		switch s.sig {
		case syscall.SIGINT:
			return "SIGINT"
		case syscall.SIGTERM:
			return "SIGTERM"
		}
	}
	return "UNKNOWN"
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	instanceID := uuid.NewString()

	for _, p := range []string{cfg.Paths.Telemetry, cfg.Paths.Cursor, cfg.Paths.Processed, cfg.Paths.Actuator, cfg.Paths.Settings, cfg.Paths.Lock} {
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return fmt.Errorf("create data directory: %w", err)
		}
	}

	lock, err := store.AcquireLock(cfg.Paths.Lock, instanceID)
	if err != nil {
		return fmt.Errorf("acquire controller lock: %w", err)
	}
	defer lock.Release()

	source, err := telemetry.OpenFileLog(cfg.Paths.Telemetry, cfg.Paths.Cursor,
		telemetry.StartPosition(cfg.StartAt), logger.With("component", "telemetry"))
	if err != nil {
		return fmt.Errorf("open telemetry: %w", err)
	}

	records, err := processed.OpenFileLog(cfg.Paths.Processed, logger.With("component", "processed"))
	if err != nil {
		return err
	}
	defer records.Close()

	storeLog := logger.With("component", "store")
	ctl := controller.New(controller.Config{
		Source:   source,
		Settings: store.NewFileSettings(cfg.Paths.Settings, storeLog),
		Actuator: store.NewFileActuator(cfg.Paths.Actuator, storeLog),
		Records:  records,
		Now:      time.Now,
		Logger:   logger.With("component", "controller"),
	})

	var publisher mqtt.Publisher = mqtt.NopPublisher{}
	var mqttStatus mqtt.ConnectionStatus = mqtt.NopPublisher{}
	if cfg.Broker != "" {
		rp, err := mqtt.NewRealPublisher(mqtt.Options{
			Broker:   cfg.Broker,
			ClientID: "thermostat-" + instanceID[:8],
			Logger:   logger.With("component", "mqtt"),
		})
		if err != nil {
			logger.Warn("mqtt disabled", "error", err)
		} else {
			publisher, mqttStatus = rp, rp
		}
	}
	defer publisher.Close()

	tracker := status.NewTracker(ctl.StartTime(), status.Config{
		InstanceID:  instanceID,
		IntervalMs:  cfg.Interval.Milliseconds(),
		HeartbeatMs: cfg.Heartbeat.Milliseconds(),
		Broker:      cfg.Broker,
		HTTPAddr:    cfg.HTTPAddr,
		DataDir:     cfg.DataDir,
		Window:      cfg.Window,
	})
	tracker.Update(ctl.HeaterState(), ctl.Counts())
	if last, err := records.Tail(1); err == nil && len(last) == 1 {
		tracker.SetLastRecord(last[0])
	}

	// Publish startup event with full status snapshot
	tracker.SetMQTTConnected(mqttStatus.IsConnected())
	snap := tracker.Snapshot()
	if err := publisher.PublishSystem(mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}); err != nil {
		logger.Warn("failed to publish startup event", "error", err)
	}

	hub := web.NewHub()
	if cfg.HTTPAddr != "" {
		srv := web.New(web.Options{
			Addr:           cfg.HTTPAddr,
			Tracker:        tracker,
			Records:        records,
			Hub:            hub,
			Window:         cfg.Window,
			OriginPatterns: cfg.OriginPatterns,
			Logger:         logger.With("component", "web"),
		})
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
		logger.Info("dashboard listening", "addr", cfg.HTTPAddr)
	}

	logger.Info("started",
		"instance", instanceID,
		"interval", cfg.Interval,
		"heartbeat", cfg.Heartbeat,
		"data_dir", cfg.DataDir,
		"broker", cfg.Broker)

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	return runLoop(ctx, ctl, publisher, mqttStatus, tracker, hub, cfg.Heartbeat, time.Now, ticker.C)
}

// runLoop runs one controller cycle per tick until ctx is cancelled, then
// publishes a SHUTDOWN event. A failed cycle is reported and the loop
// carries on.
func runLoop(ctx context.Context, ctl *controller.Controller, publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, hub *web.Hub, heartbeat time.Duration, now func() time.Time, tick <-chan time.Time) error {
	for {
		select {
		case <-ctx.Done():
			reason := shutdownReason(ctx)
			slog.Info("shutting down", "reason", reason)
			event := mqtt.SystemEvent{
				Timestamp: now(),
				Event:     "SHUTDOWN",
				Reason:    reason,
				Retained:  true,
			}
			if tracker != nil {
				if mqttStatus != nil {
					tracker.SetMQTTConnected(mqttStatus.IsConnected())
				}
				event.RawPayload = status.FormatStatusEvent(tracker.Snapshot(), "SHUTDOWN", reason)
			}
			if err := publisher.PublishSystem(event); err != nil {
				slog.Warn("failed to publish shutdown event", "error", err)
			}
			return nil

		case <-tick:
			t := now()
			res, err := ctl.Cycle()
			if err != nil {
				slog.Error("cycle failed", "error", err)
			}

			for _, tr := range res.Transitions {
				if err := publisher.Publish(tr); err != nil {
					// Don't fail the cycle on publish failure
					slog.Warn("publish error", "event", string(tr.Type), "error", err)
				}
			}
			if hub != nil {
				hub.Broadcast(res.Records...)
			}

			if tracker != nil {
				if n := len(res.Records); n > 0 {
					tracker.SetLastRecord(res.Records[n-1])
				}
				tracker.SetError(err, t)
				tracker.Update(ctl.HeaterState(), ctl.Counts())
				if mqttStatus != nil {
					tracker.SetMQTTConnected(mqttStatus.IsConnected())
				}
			}

			if hb := ctl.CheckHeartbeat(t, heartbeat); hb != nil {
				c := hb.Counts
				slog.Info("heartbeat",
					"uptime", hb.Uptime,
					"processed", c.Processed,
					"skipped", c.Skipped,
					"heater_on", c.HeaterOn,
					"heater_off", c.HeaterOff,
					"cycle_errors", c.CycleErrors)

				hbEvent := mqtt.SystemEvent{Timestamp: hb.Timestamp, Event: "HEARTBEAT"}
				if tracker != nil {
					hbEvent.RawPayload = status.FormatStatusEvent(tracker.Snapshot(), "HEARTBEAT", "")
				}
				if err := publisher.PublishSystem(hbEvent); err != nil {
					slog.Warn("heartbeat publish error", "error", err)
				}
			}
		}
	}
}
