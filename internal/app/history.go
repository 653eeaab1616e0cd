package app

import (
	"time"

	"github.com/dokzlo13/sunrise/internal/ledger"
)

// Run outcomes as reconstructed from the ledger.
const (
	RunCompleted  = "completed"
	RunAborted    = "aborted"
	RunUnfinished = "unfinished" // process died without a terminal event
)

// RunRecord summarizes one past run.
type RunRecord struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	Outcome    string    `json:"outcome"`
	Steps      int       `json:"steps_completed"`
	FinalLevel int       `json:"final_level"`
	Failed     int       `json:"failed"`
	Rejected   int       `json:"rejected"`
}

// lastRunRecord rebuilds the most recent run from the ledger.
// Returns nil if no run was recorded.
func lastRunRecord(l *ledger.Ledger) (*RunRecord, error) {
	start, err := l.LastRun()
	if err != nil || start == nil {
		return nil, err
	}

	entries, err := l.ByRun(start.RunID)
	if err != nil {
		return nil, err
	}

	rec := &RunRecord{
		RunID:     start.RunID,
		StartedAt: start.Timestamp,
		Outcome:   RunUnfinished,
	}
	for _, e := range entries {
		switch e.EventType {
		case ledger.EventStepApplied:
			rec.Steps++
			rec.FinalLevel = e.Level
		case ledger.EventCommandFailed:
			rec.Failed++
		case ledger.EventCommandRejected:
			rec.Rejected++
		case ledger.EventRunCompleted:
			rec.Outcome = RunCompleted
		case ledger.EventRunAborted:
			rec.Outcome = RunAborted
		}
	}
	return rec, nil
}
