package wakeup

import (
	"sync"
	"time"
)

// Phase is the stage a run is in.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhasePoweringOn Phase = "powering_on"
	PhaseRamping    Phase = "ramping"
	PhaseCompleted  Phase = "completed"
	PhaseAborted    Phase = "aborted"
)

// Snapshot is a point-in-time copy of run progress.
type Snapshot struct {
	RunID      string    `json:"run_id,omitempty"`
	Phase      Phase     `json:"phase"`
	Step       int       `json:"step"`
	Steps      int       `json:"steps"`
	Brightness int       `json:"brightness"`
	Devices    int       `json:"devices"`
	Failed     int       `json:"failed"`
	Rejected   int       `json:"rejected"`
	StartedAt  time.Time `json:"started_at,omitempty"`
	UpdatedAt  time.Time `json:"updated_at,omitempty"`
}

// Progress tracks the current run for readers on other goroutines.
type Progress struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewProgress creates an idle tracker.
func NewProgress() *Progress {
	return &Progress{snap: Snapshot{Phase: PhaseIdle}}
}

// Snapshot returns the current progress.
func (p *Progress) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snap
}

func (p *Progress) update(fn func(s *Snapshot)) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(&p.snap)
	p.snap.UpdatedAt = time.Now()
}
