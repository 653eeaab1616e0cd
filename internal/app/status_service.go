package app

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/sunrise/internal/config"
	"github.com/dokzlo13/sunrise/internal/wakeup"
)

// StatusService provides HTTP health and progress endpoints while a run is active.
type StatusService struct {
	cfg      *config.Config
	progress *wakeup.Progress
	server   *http.Server
	wg       sync.WaitGroup

	mu      sync.RWMutex
	prevRun *RunRecord
}

type statusResponse struct {
	wakeup.Snapshot
	PreviousRun *RunRecord `json:"previous_run,omitempty"`
}

// NewStatusService creates a new StatusService.
func NewStatusService(cfg *config.Config, progress *wakeup.Progress) *StatusService {
	return &StatusService{
		cfg:      cfg,
		progress: progress,
	}
}

// SetPreviousRun publishes the last recorded run on /status.
func (s *StatusService) SetPreviousRun(rec *RunRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prevRun = rec
}

func (s *StatusService) status() statusResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return statusResponse{Snapshot: s.progress.Snapshot(), PreviousRun: s.prevRun}
}

// Handler returns the HTTP handler serving /health and /status.
func (s *StatusService) Handler() http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	// Current run progress
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(s.status()); err != nil {
			log.Error().Err(err).Msg("Failed to encode status")
		}
	})

	return mux
}

// Start begins the status server if enabled.
func (s *StatusService) Start(ctx context.Context) {
	if !s.cfg.Status.Enabled {
		return
	}

	addr := s.cfg.Status.Addr()
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}

	log.Info().Str("addr", addr).Msg("Starting status server")

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout.Duration())
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Status server shutdown error")
		}
	}()

	go func() {
		defer s.wg.Done()
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("Status server error")
		}
	}()
}

// Wait blocks until the server has shut down.
func (s *StatusService) Wait() {
	s.wg.Wait()
}
