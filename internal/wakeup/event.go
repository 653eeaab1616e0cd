package wakeup

// EventType names a run history event.
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

// Event is one entry of run history.
type Event struct {
	RunID  string
	Type   EventType
	Step   int
	Level  int
	Device string // empty for run and step events
	Detail map[string]any
}

// Recorder persists run history. Recording errors are logged by the runner
// and never stop a run.
type Recorder interface {
	Record(ev Event) error
}
