// Package ledger provides an append-only history of wake-up runs.
package ledger

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// EventType represents the type of event in the ledger
type EventType string

const (
	EventRunStarted      EventType = "run_started"
	EventDevicePowered   EventType = "device_powered"
	EventStepApplied     EventType = "step_applied"
	EventCommandFailed   EventType = "command_failed"
	EventCommandRejected EventType = "command_rejected"
	EventRunCompleted    EventType = "run_completed"
	EventRunAborted      EventType = "run_aborted"
)

// Entry represents a single event in the ledger
type Entry struct {
	ID        int64
	RunID     string
	EventType EventType
	Timestamp time.Time
	Step      int
	Level     int
	Device    string // Empty for run and step events
	Payload   map[string]any
}

// Ledger provides append-only event logging for runs
type Ledger struct {
	db  *sql.DB
	now func() time.Time
}

// New creates a new Ledger using the provided database connection
func New(db *sql.DB) *Ledger {
	return &Ledger{db: db, now: time.Now}
}

// Append adds a new event to the ledger
func (l *Ledger) Append(entry Entry) error {
	var payloadJSON []byte
	var err error

	if entry.Payload != nil {
		payloadJSON, err = json.Marshal(entry.Payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
	}

	ts := entry.Timestamp
	if ts.IsZero() {
		ts = l.now()
	}

	_, err = l.db.Exec(
		`INSERT INTO run_ledger (run_id, event_type, timestamp, step, level, device, payload) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.RunID, string(entry.EventType), ts.UTC().Unix(), entry.Step, entry.Level, entry.Device, string(payloadJSON),
	)
	return err
}

// ByRun returns all entries of a run in insertion order
func (l *Ledger) ByRun(runID string) ([]*Entry, error) {
	rows, err := l.db.Query(`
		SELECT id, run_id, event_type, timestamp, step, level, device, payload
		FROM run_ledger
		WHERE run_id = ?
		ORDER BY id ASC
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return l.scanEntries(rows)
}

// getByType returns entries filtered by event type, newest first
func (l *Ledger) getByType(eventType EventType, limit int) ([]*Entry, error) {
	rows, err := l.db.Query(`
		SELECT id, run_id, event_type, timestamp, step, level, device, payload
		FROM run_ledger
		WHERE event_type = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, string(eventType), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return l.scanEntries(rows)
}

// LastRun returns the run_started entry of the most recent run, or nil if the
// ledger is empty
func (l *Ledger) LastRun() (*Entry, error) {
	entries, err := l.getByType(EventRunStarted, 1)
	if err != nil || len(entries) == 0 {
		return nil, err
	}
	return entries[0], nil
}

// DeleteOlderThan removes entries older than the specified duration (retention policy)
func (l *Ledger) DeleteOlderThan(retention time.Duration) (int64, error) {
	cutoff := l.now().Add(-retention).Unix()
	result, err := l.db.Exec(`
		DELETE FROM run_ledger WHERE timestamp < ?
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (l *Ledger) scanEntries(rows *sql.Rows) ([]*Entry, error) {
	var entries []*Entry
	for rows.Next() {
		var entry Entry
		var payloadStr, device sql.NullString
		var timestamp int64

		err := rows.Scan(
			&entry.ID, &entry.RunID, &entry.EventType, &timestamp, &entry.Step, &entry.Level, &device, &payloadStr,
		)
		if err != nil {
			return nil, err
		}

		entry.Timestamp = time.Unix(timestamp, 0).UTC()
		if device.Valid {
			entry.Device = device.String
		}

		if payloadStr.Valid && payloadStr.String != "" {
			entry.Payload = make(map[string]any)
			if err := json.Unmarshal([]byte(payloadStr.String), &entry.Payload); err != nil {
				return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
			}
		}

		entries = append(entries, &entry)
	}

	return entries, rows.Err()
}
