// Package wakeup runs the sunrise schedule: power every bulb on, then step
// brightness from 0% to 100% at fixed intervals.
//
// Execution is strictly sequential. Devices are handled one after another in
// configuration order within each step, and each step blocks for the full
// step wait, including the final one.
package wakeup

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/sunrise/internal/bulb"
)

// Primitives are the per-device operations a run is built from.
type Primitives interface {
	EnsureOn(ctx context.Context, device bulb.Device) bulb.Result
	SetBrightness(ctx context.Context, device bulb.Device, level int) bulb.Result
}

// Summary describes a finished (or aborted) run.
type Summary struct {
	RunID          string
	Devices        int
	Steps          int
	StepsCompleted int
	FinalLevel     int
	Calls          int
	Failed         int
	Rejected       int
	Elapsed        time.Duration
}

// Runner executes schedules.
type Runner struct {
	prims    Primitives
	sleeper  Sleeper
	recorder Recorder
	progress *Progress
	newRunID func() string
}

// Option configures a Runner.
type Option func(*Runner)

// WithSleeper replaces the real timer, mainly for tests.
func WithSleeper(s Sleeper) Option {
	return func(r *Runner) { r.sleeper = s }
}

// WithRecorder attaches a run history recorder.
func WithRecorder(rec Recorder) Option {
	return func(r *Runner) { r.recorder = rec }
}

// WithProgress attaches a progress tracker.
func WithProgress(p *Progress) Option {
	return func(r *Runner) { r.progress = p }
}

// WithRunIDs overrides run id generation.
func WithRunIDs(fn func() string) Option {
	return func(r *Runner) { r.newRunID = fn }
}

// NewRunner creates a runner on top of the given primitives.
func NewRunner(prims Primitives, opts ...Option) *Runner {
	r := &Runner{
		prims:    prims,
		sleeper:  TimerSleeper{},
		newRunID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes one wake-up schedule over devices.
//
// Device failures are logged and counted but never returned. The only errors
// are invalid parameters (before anything is sent) and context cancellation,
// in which case the partial summary is returned alongside ctx.Err().
func (r *Runner) Run(ctx context.Context, devices []bulb.Device, sched Schedule) (*Summary, error) {
	if len(devices) == 0 {
		return nil, ErrNoDevices
	}
	if err := sched.Validate(); err != nil {
		return nil, err
	}
	levels, err := sched.Levels()
	if err != nil {
		return nil, err
	}

	wait := sched.Wait()
	start := time.Now()
	summary := &Summary{
		RunID:   r.newRunID(),
		Devices: len(devices),
		Steps:   sched.Steps,
	}

	log.Info().
		Str("run_id", summary.RunID).
		Int("devices", len(devices)).
		Int("steps", sched.Steps).
		Dur("duration", sched.Duration).
		Dur("step_wait", wait).
		Msg("Starting wake-up light")

	r.record(Event{
		RunID: summary.RunID,
		Type:  EventRunStarted,
		Detail: map[string]any{
			"devices":  len(devices),
			"steps":    sched.Steps,
			"duration": sched.Duration.String(),
		},
	})
	r.progress.update(func(s *Snapshot) {
		*s = Snapshot{
			RunID:     summary.RunID,
			Phase:     PhasePoweringOn,
			Steps:     sched.Steps,
			Devices:   len(devices),
			StartedAt: start,
		}
	})

	for _, device := range devices {
		if err := ctx.Err(); err != nil {
			return r.abort(summary, start, err)
		}
		r.handle(summary, 0, r.prims.EnsureOn(ctx, device))
	}

	r.progress.update(func(s *Snapshot) { s.Phase = PhaseRamping })

	for step := 0; step <= sched.Steps; step++ {
		level := levels[step]

		log.Info().
			Int("brightness", level).
			Int("step", step).
			Int("steps", sched.Steps).
			Msg("Setting brightness")

		for _, device := range devices {
			if err := ctx.Err(); err != nil {
				return r.abort(summary, start, err)
			}
			r.handle(summary, step, r.prims.SetBrightness(ctx, device, level))
		}

		summary.StepsCompleted = step + 1
		summary.FinalLevel = level
		r.record(Event{RunID: summary.RunID, Type: EventStepApplied, Step: step, Level: level})
		r.progress.update(func(s *Snapshot) {
			s.Step = step
			s.Brightness = level
		})

		if err := r.sleeper.Sleep(ctx, wait); err != nil {
			return r.abort(summary, start, err)
		}
	}

	summary.Elapsed = time.Since(start)

	log.Info().
		Str("run_id", summary.RunID).
		Int("brightness", summary.FinalLevel).
		Int("failed", summary.Failed).
		Int("rejected", summary.Rejected).
		Dur("elapsed", summary.Elapsed).
		Msg("Wake-up light completed")

	r.record(Event{
		RunID: summary.RunID,
		Type:  EventRunCompleted,
		Step:  sched.Steps,
		Level: summary.FinalLevel,
		Detail: map[string]any{
			"calls":    summary.Calls,
			"failed":   summary.Failed,
			"rejected": summary.Rejected,
			"elapsed":  summary.Elapsed.String(),
		},
	})
	r.progress.update(func(s *Snapshot) { s.Phase = PhaseCompleted })

	return summary, nil
}

func (r *Runner) handle(summary *Summary, step int, res bulb.Result) {
	res.Log()
	summary.Calls++

	ev := Event{
		RunID:  summary.RunID,
		Step:   step,
		Level:  res.Level,
		Device: res.Device.Address,
		Detail: map[string]any{"action": string(res.Action)},
	}

	switch res.Outcome {
	case bulb.OutcomeFailed:
		summary.Failed++
		ev.Type = EventCommandFailed
		if res.Err != nil {
			ev.Detail["error"] = res.Err.Error()
		}
	case bulb.OutcomeRejected:
		summary.Rejected++
		ev.Type = EventCommandRejected
		ev.Detail["ack"] = res.Ack
	case bulb.OutcomeOK:
		if res.Action != bulb.ActionEnsureOn {
			return
		}
		ev.Type = EventDevicePowered
	default:
		return
	}

	r.record(ev)
	r.progress.update(func(s *Snapshot) {
		s.Failed = summary.Failed
		s.Rejected = summary.Rejected
	})
}

func (r *Runner) abort(summary *Summary, start time.Time, cause error) (*Summary, error) {
	summary.Elapsed = time.Since(start)

	log.Warn().
		Err(cause).
		Str("run_id", summary.RunID).
		Int("steps_completed", summary.StepsCompleted).
		Int("brightness", summary.FinalLevel).
		Msg("Wake-up light aborted")

	r.record(Event{
		RunID:  summary.RunID,
		Type:   EventRunAborted,
		Step:   summary.StepsCompleted,
		Level:  summary.FinalLevel,
		Detail: map[string]any{"reason": cause.Error()},
	})
	r.progress.update(func(s *Snapshot) { s.Phase = PhaseAborted })

	return summary, cause
}

func (r *Runner) record(ev Event) {
	if r.recorder == nil {
		return
	}
	if err := r.recorder.Record(ev); err != nil {
		log.Warn().Err(err).Str("event", string(ev.Type)).Msg("Failed to record run event")
	}
}
