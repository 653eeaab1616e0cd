package wakeup

import (
	"errors"
	"time"

	"github.com/dokzlo13/sunrise/internal/curve"
)

var (
	ErrNoSteps          = errors.New("wakeup: step count must be at least 1")
	ErrNegativeDuration = errors.New("wakeup: duration must not be negative")
	ErrNoDevices        = errors.New("wakeup: no devices configured")
)

// Schedule describes one wake-up run.
type Schedule struct {
	Duration time.Duration
	Steps    int
	Curve    curve.Curve // nil means curve.Linear
}

// Validate checks the schedule parameters.
func (s Schedule) Validate() error {
	if s.Steps < 1 {
		return ErrNoSteps
	}
	if s.Duration < 0 {
		return ErrNegativeDuration
	}
	return nil
}

// Wait is the pause after every step.
func (s Schedule) Wait() time.Duration {
	return s.Duration / time.Duration(s.Steps)
}

// Levels returns the brightness for each of the Steps+1 steps.
func (s Schedule) Levels() ([]int, error) {
	c := s.Curve
	if c == nil {
		c = curve.Linear{}
	}
	return curve.Plan(c, s.Steps)
}
