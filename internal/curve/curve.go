// Package curve computes the brightness level for every step of a wake-up run.
package curve

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
)

// ErrInvalidSteps is returned when a plan is requested for fewer than one step.
var ErrInvalidSteps = errors.New("steps must be at least 1")

const (
	MinLevel = 0
	MaxLevel = 100
)

// Curve maps a step in [0, steps] to a brightness percentage.
type Curve interface {
	Level(step, steps int) (int, error)
}

// Linear raises brightness evenly: floor(step * 100 / steps).
// Integer arithmetic keeps the last step at exactly 100.
type Linear struct{}

// Level implements Curve.
func (Linear) Level(step, steps int) (int, error) {
	return step * MaxLevel / steps, nil
}

// Plan evaluates c for steps 0..steps inclusive. Levels are clamped to
// [0, 100] and never decrease from one step to the next.
func Plan(c Curve, steps int) ([]int, error) {
	if steps < 1 {
		return nil, ErrInvalidSteps
	}

	levels := make([]int, steps+1)
	prev := MinLevel
	for step := 0; step <= steps; step++ {
		level, err := c.Level(step, steps)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", step, err)
		}

		adjusted := clamp(level)
		if adjusted < prev {
			adjusted = prev
		}
		if adjusted != level {
			log.Warn().
				Int("step", step).
				Int("raw_level", level).
				Int("adjusted", adjusted).
				Msg("Curve level out of range or decreasing, adjusted")
		}

		levels[step] = adjusted
		prev = adjusted
	}
	return levels, nil
}

func clamp(level int) int {
	if level < MinLevel {
		return MinLevel
	}
	if level > MaxLevel {
		return MaxLevel
	}
	return level
}
