package app

import (
	"github.com/dokzlo13/sunrise/internal/ledger"
	"github.com/dokzlo13/sunrise/internal/wakeup"
)

// LedgerRecorder stores wake-up run events in the ledger.
type LedgerRecorder struct {
	ledger *ledger.Ledger
}

// NewLedgerRecorder creates a recorder backed by l.
func NewLedgerRecorder(l *ledger.Ledger) *LedgerRecorder {
	return &LedgerRecorder{ledger: l}
}

// Record implements wakeup.Recorder.
func (r *LedgerRecorder) Record(ev wakeup.Event) error {
	return r.ledger.Append(ledger.Entry{
		RunID:     ev.RunID,
		EventType: ledger.EventType(ev.Type),
		Step:      ev.Step,
		Level:     ev.Level,
		Device:    ev.Device,
		Payload:   ev.Detail,
	})
}
