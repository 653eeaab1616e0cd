package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/sunrise/internal/bulb"
	"github.com/dokzlo13/sunrise/internal/config"
	"github.com/dokzlo13/sunrise/internal/curve"
	"github.com/dokzlo13/sunrise/internal/db"
	"github.com/dokzlo13/sunrise/internal/ledger"
	"github.com/dokzlo13/sunrise/internal/wakeup"
)

// Option overrides a service dependency, mainly for tests.
type Option func(*options)

type options struct {
	dialer  bulb.Dialer
	sleeper wakeup.Sleeper
}

// WithDialer replaces the miIO dialer.
func WithDialer(d bulb.Dialer) Option {
	return func(o *options) { o.dialer = d }
}

// WithSleeper replaces the real step timer.
func WithSleeper(s wakeup.Sleeper) Option {
	return func(o *options) { o.sleeper = s }
}

// Services is a container for all application services.
// It manages service initialization order and dependencies.
type Services struct {
	cfg *config.Config

	// Core infrastructure (nil when the ledger is disabled)
	DB     *db.DB
	Ledger *ledger.Ledger

	// Wake-up pipeline
	Controller *bulb.Controller
	Schedule   wakeup.Schedule
	Progress   *wakeup.Progress
	Runner     *wakeup.Runner

	Status *StatusService

	luaCurve *curve.Lua
}

// NewServices creates all services with proper dependency injection.
func NewServices(cfg *config.Config, opts ...Option) (*Services, error) {
	o := options{
		dialer:  bulb.MiioDialer{Timeout: cfg.Device.Timeout.Duration()},
		sleeper: wakeup.TimerSleeper{},
	}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Services{cfg: cfg}

	// Initialize database and ledger
	if cfg.Database.Path != "" {
		database, err := db.Open(cfg.Database.Path)
		if err != nil {
			return nil, err
		}
		s.DB = database
		s.Ledger = ledger.New(database.DB)
	} else {
		log.Info().Msg("No database path configured, run ledger disabled")
	}

	// Initialize brightness curve
	s.Schedule = wakeup.Schedule{
		Duration: cfg.Schedule.Duration.Duration(),
		Steps:    cfg.Schedule.Steps,
		Curve:    curve.Linear{},
	}
	if cfg.Schedule.CurveScript != "" {
		luaCurve, err := curve.LoadLua(cfg.Schedule.CurveScript)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.luaCurve = luaCurve
		s.Schedule.Curve = luaCurve
		log.Info().Str("script", cfg.Schedule.CurveScript).Msg("Using scripted brightness curve")
	}

	// Fail fast on a broken curve, before any bulb is touched
	if _, err := s.Schedule.Levels(); err != nil {
		s.Close()
		return nil, fmt.Errorf("invalid brightness curve: %w", err)
	}

	s.Controller = bulb.NewController(o.dialer, cfg.Device.RateLimitRPS)
	s.Progress = wakeup.NewProgress()

	runnerOpts := []wakeup.Option{
		wakeup.WithSleeper(o.sleeper),
		wakeup.WithProgress(s.Progress),
	}
	if s.Ledger != nil {
		runnerOpts = append(runnerOpts, wakeup.WithRecorder(NewLedgerRecorder(s.Ledger)))
	}
	s.Runner = wakeup.NewRunner(s.Controller, runnerOpts...)

	s.Status = NewStatusService(cfg, s.Progress)

	return s, nil
}

// Start runs housekeeping and starts background services.
func (s *Services) Start(ctx context.Context) {
	if s.Ledger != nil {
		retention := s.cfg.Ledger.GetRetention()
		deleted, err := s.Ledger.DeleteOlderThan(retention)
		if err != nil {
			log.Error().Err(err).Msg("Failed to cleanup old ledger entries")
		} else if deleted > 0 {
			log.Info().Int64("deleted", deleted).Dur("retention", retention).Msg("Cleaned up old ledger entries")
		}

		prev, err := lastRunRecord(s.Ledger)
		if err != nil {
			log.Error().Err(err).Msg("Failed to read previous run from ledger")
		} else if prev != nil {
			log.Info().
				Str("run_id", prev.RunID).
				Time("started_at", prev.StartedAt).
				Str("outcome", prev.Outcome).
				Int("brightness", prev.FinalLevel).
				Int("failed", prev.Failed).
				Msg("Previous run")
			s.Status.SetPreviousRun(prev)
		}
	}

	s.Status.Start(ctx)
}

// Wait blocks until background services have stopped.
func (s *Services) Wait() {
	s.Status.Wait()
}

// Close releases all resources.
func (s *Services) Close() error {
	if s.luaCurve != nil {
		s.luaCurve.Close()
		s.luaCurve = nil
	}
	if s.DB != nil {
		err := s.DB.Close()
		s.DB = nil
		return err
	}
	return nil
}
