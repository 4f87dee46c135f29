package telemetry

import (
	"math"
	"math/rand"
	"time"

	"github.com/sweeney/thermostat/internal/logic"
)

// Simulated room physics.
const (
	DefaultDeviceID    = "thermostat01"
	DefaultInitialTemp = 18.0

	Ceiling = 25.0
	Floor   = 15.0

	heatRiseMin = 0.4
	heatRiseMax = 0.8
	coolDropMin = 0.1
	coolDropMax = 0.3
)

// Simulator models a room whose temperature follows the heater state.
// Not safe for concurrent use.
type Simulator struct {
	deviceID string
	temp     float64
	rnd      *rand.Rand
}

// NewSimulator creates a room at the given starting temperature.
func NewSimulator(deviceID string, initial float64, rnd *rand.Rand) *Simulator {
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Simulator{deviceID: deviceID, temp: initial, rnd: rnd}
}

// Temperature returns the current room temperature.
func (s *Simulator) Temperature() float64 {
	return s.temp
}

// Step advances the room one interval and returns the resulting reading.
// ON warms towards Ceiling, OFF cools towards Floor.
func (s *Simulator) Step(heater logic.State, now time.Time) logic.Reading {
	if heater == logic.StateOn {
		s.temp = math.Min(Ceiling, s.temp+s.uniform(heatRiseMin, heatRiseMax))
	} else {
		s.temp = math.Max(Floor, s.temp-s.uniform(coolDropMin, coolDropMax))
	}
	s.temp = math.Round(s.temp*100) / 100

	return logic.Reading{
		DeviceID:    s.deviceID,
		Temperature: s.temp,
		Timestamp:   now,
	}
}

func (s *Simulator) uniform(lo, hi float64) float64 {
	return lo + s.rnd.Float64()*(hi-lo)
}
