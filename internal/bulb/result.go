package bulb

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Action names a primitive.
type Action string

const (
	ActionEnsureOn      Action = "ensure_on"
	ActionSetBrightness Action = "set_brightness"
)

// Outcome classifies how a primitive call ended.
type Outcome int

const (
	// OutcomeOK means the device acknowledged the command with "ok".
	OutcomeOK Outcome = iota
	// OutcomeNoop means no command was needed (bulb already on).
	OutcomeNoop
	// OutcomeRejected means the device answered with something other than "ok".
	OutcomeRejected
	// OutcomeFailed means the exchange itself failed (unreachable, auth, malformed reply).
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeNoop:
		return "noop"
	case OutcomeRejected:
		return "rejected"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result is what a primitive returns instead of an error.
type Result struct {
	Device  Device
	Action  Action
	Outcome Outcome
	Level   int   // requested brightness, set_brightness only
	Ack     []any // raw device acknowledgement, if any
	Err     error // set when Outcome is OutcomeFailed
}

// Log writes one line describing the result at a level matching its outcome.
func (r Result) Log() {
	var event *zerolog.Event
	switch r.Outcome {
	case OutcomeRejected:
		event = log.Warn()
	case OutcomeFailed:
		event = log.Error().Err(r.Err)
	default:
		event = log.Info()
	}

	event = event.
		Str("device", r.Device.Address).
		Str("action", string(r.Action))
	if r.Device.Name != "" {
		event = event.Str("name", r.Device.Name)
	}
	if r.Action == ActionSetBrightness {
		event = event.Int("brightness", r.Level)
	}
	if r.Outcome == OutcomeRejected {
		event = event.Interface("ack", r.Ack)
	}

	event.Msg(r.message())
}

func (r Result) message() string {
	switch r.Action {
	case ActionEnsureOn:
		switch r.Outcome {
		case OutcomeOK:
			return "Bulb turned on"
		case OutcomeNoop:
			return "Bulb already on"
		case OutcomeRejected:
			return "Bulb did not acknowledge power on"
		default:
			return "Error turning on bulb"
		}
	case ActionSetBrightness:
		switch r.Outcome {
		case OutcomeOK, OutcomeNoop:
			return "Brightness set"
		case OutcomeRejected:
			return "Failed to set brightness"
		default:
			return "Connection error while setting brightness"
		}
	}
	return "Bulb command finished"
}

// isOK reports whether ack is the ["ok"] acknowledgement.
func isOK(ack []any) bool {
	if len(ack) != 1 {
		return false
	}
	s, ok := ack[0].(string)
	return ok && s == "ok"
}
