// Command thermostat-sim appends simulated room temperature readings to the
// telemetry log, warming while the actuator is ON and cooling while OFF.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"

	"github.com/sweeney/thermostat/internal/config"
	"github.com/sweeney/thermostat/internal/logic"
	"github.com/sweeney/thermostat/internal/store"
	"github.com/sweeney/thermostat/internal/telemetry"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("could not load .env file", "error", err)
	}

	cfg, err := config.Load("thermostat-sim", os.Args[1:], os.Getenv)
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	if err := os.MkdirAll(filepath.Dir(cfg.Paths.Telemetry), 0o755); err != nil {
		return fmt.Errorf("create telemetry directory: %w", err)
	}

	sim := telemetry.NewSimulator(cfg.Simulator.DeviceID, cfg.Simulator.InitialTemp,
		rand.New(rand.NewSource(time.Now().UnixNano())))
	actuator := store.NewFileActuator(cfg.Paths.Actuator, logger.With("component", "store"))
	sink := telemetry.NewWriter(cfg.Paths.Telemetry)

	logger.Info("simulating",
		"device", cfg.Simulator.DeviceID,
		"initial_temp", cfg.Simulator.InitialTemp,
		"interval", cfg.Simulator.Interval,
		"telemetry", cfg.Paths.Telemetry,
		"actuator", cfg.Paths.Actuator)

	ticker := time.NewTicker(cfg.Simulator.Interval)
	defer ticker.Stop()

	return simulate(ctx, sim, actuator, sink, time.Now, ticker.C)
}

type heaterReader interface {
	Read() logic.State
}

type readingWriter interface {
	Write(r logic.Reading) error
}

// simulate writes one reading per tick until ctx is done. A failed write is
// logged and the room keeps evolving.
func simulate(ctx context.Context, sim *telemetry.Simulator, actuator heaterReader, sink readingWriter, now func() time.Time, tick <-chan time.Time) error {
	for {
		select {
		case <-ctx.Done():
			slog.Info("simulator stopped", "temperature", sim.Temperature())
			return nil
		case <-tick:
			heater := actuator.Read()
			r := sim.Step(heater, now())
			if err := sink.Write(r); err != nil {
				slog.Warn("write telemetry failed", "error", err)
				continue
			}
			slog.Debug("reading", "temperature", r.Temperature, "heater", string(heater))
		}
	}
}
