// Interval stepping for recurring materialization. Each interval has its own
// stepper so new cadences can be added without touching the coordinator.
package services

import (
	"fmt"

	"moneta/internal/core"
)

// Stepper advances a date by n interval units, calendar-aware: monthly and
// yearly steps follow calendar rollover (time.AddDate normalization), not
// fixed day counts.
type Stepper interface {
	Step(d core.Date, n int) core.Date
}

type dailyStepper struct{}

func (dailyStepper) Step(d core.Date, n int) core.Date {
	return core.Date{Time: d.AddDate(0, 0, n)}
}

type weeklyStepper struct{}

func (weeklyStepper) Step(d core.Date, n int) core.Date {
	return core.Date{Time: d.AddDate(0, 0, 7*n)}
}

type monthlyStepper struct{}

func (monthlyStepper) Step(d core.Date, n int) core.Date {
	return core.Date{Time: d.AddDate(0, n, 0)}
}

type yearlyStepper struct{}

func (yearlyStepper) Step(d core.Date, n int) core.Date {
	return core.Date{Time: d.AddDate(n, 0, 0)}
}

var steppers = map[core.Interval]Stepper{
	core.Daily:   dailyStepper{},
	core.Weekly:  weeklyStepper{},
	core.Monthly: monthlyStepper{},
	core.Yearly:  yearlyStepper{},
}

// StepperFor returns the stepper for an interval.
func StepperFor(interval core.Interval) (Stepper, error) {
	s, ok := steppers[interval]
	if !ok {
		return nil, fmt.Errorf("%w: unknown interval %q", core.ErrInvalidArgument, interval)
	}
	return s, nil
}

// RegisterStepper registers a stepper for a custom interval.
func RegisterStepper(interval core.Interval, s Stepper) {
	steppers[interval] = s
}
