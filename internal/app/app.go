package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/sunrise/internal/config"
	"github.com/dokzlo13/sunrise/internal/wakeup"
)

// App is the main application container: it wires services from the
// configuration and runs one wake-up schedule.
type App struct {
	cfg      *config.Config
	services *Services
}

// New creates a new App instance with all services initialized but not started.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	services, err := NewServices(cfg, opts...)
	if err != nil {
		return nil, err
	}

	return &App{
		cfg:      cfg,
		services: services,
	}, nil
}

// Run executes the wake-up schedule and returns when it has finished or the
// context is cancelled. Device failures never make Run fail.
func (a *App) Run(ctx context.Context) (*wakeup.Summary, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.services.Start(runCtx)

	summary, err := a.services.Runner.Run(runCtx, a.cfg.BulbDevices(), a.services.Schedule)

	// Stop background services before returning
	cancel()
	a.services.Wait()

	return summary, err
}

// Close releases all resources.
func (a *App) Close() error {
	log.Info().Msg("Shutting down...")

	if a.services != nil {
		return a.services.Close()
	}
	return nil
}

// SignalContext creates a context that is cancelled when SIGINT or SIGTERM is received.
func SignalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Warn().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	return ctx
}
