package logic

// IsPeak reports whether hour falls inside the half-open peak window
// [PeakStartHour, PeakEndHour). A window whose start is after its end is
// never peak; overnight windows are not wrapped.
func IsPeak(s Settings, hour int) bool {
	return s.PeakStartHour <= hour && hour < s.PeakEndHour
}

// Decide applies the hysteresis policy with the peak-hour override.
// It is a pure function of its arguments.
func Decide(temp, target float64, isPeak bool, current State) Decision {
	if current != StateOn {
		current = StateOff
	}

	switch {
	case temp < target && current == StateOff:
		if isPeak {
			// Peak hours only ever suppress turning the heater on.
			return Decision{State: StateOff, Reason: ReasonColdPeak}
		}
		return Decision{State: StateOn, Changed: true, Reason: ReasonColdOffPeak}

	case temp > target+Deadband && current == StateOn:
		return Decision{State: StateOff, Changed: true, Reason: ReasonWarm}
	}

	return Decision{State: current, Reason: ReasonHold}
}

// NewTransition builds the event for a changed decision.
func NewTransition(r Reading, from State, d Decision, target float64, isPeak bool) Transition {
	typ := EventHeaterOff
	if d.State == StateOn {
		typ = EventHeaterOn
	}
	return Transition{
		Timestamp:   r.Timestamp,
		Type:        typ,
		DeviceID:    r.DeviceID,
		From:        from,
		To:          d.State,
		Temperature: r.Temperature,
		TargetTemp:  target,
		IsPeak:      isPeak,
		Reason:      d.Reason,
	}
}
