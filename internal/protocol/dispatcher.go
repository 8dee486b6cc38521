package protocol

import (
	"github.com/cihanayindi/touchswipe-identifier-AIoT/internal/logger"
)

// State is the session state driven by control tokens.
type State int

const (
	StateIdle State = iota
	StateArmed
	StateCollecting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateArmed:
		return "armed"
	case StateCollecting:
		return "collecting"
	default:
		return "unknown"
	}
}

// EventKind tells the loop what a dispatched line amounted to.
type EventKind int

const (
	EventIgnored EventKind = iota
	EventSessionStarted
	EventFeatureFrame
	EventSessionEnded
	EventProtocolError
)

func (k EventKind) String() string {
	switch k {
	case EventSessionStarted:
		return "session_started"
	case EventFeatureFrame:
		return "feature_frame"
	case EventSessionEnded:
		return "session_ended"
	case EventProtocolError:
		return "protocol_error"
	default:
		return "ignored"
	}
}

// Event is the result of dispatching one line. Features is set only for
// EventFeatureFrame, Err only for EventProtocolError. From is the state the
// line arrived in; State is the state after it.
type Event struct {
	Kind     EventKind
	Token    Token
	Features []float64
	From     State
	State    State
	Err      error
}

// Dispatcher runs the session state machine:
//
//	Idle       --CMD:START_SWIPE--> Armed
//	Armed      --DATA:...-------->  Collecting (emits FeatureFrame)
//	Collecting --CMD:DATA_SENT--->  Idle
//
// Every other token, including a valid token in the wrong state, leaves the
// state unchanged. A malformed payload is a protocol error and also leaves the
// state unchanged.
type Dispatcher struct {
	state State
	log   logger.Logger
}

func NewDispatcher(log logger.Logger) *Dispatcher {
	return &Dispatcher{state: StateIdle, log: log}
}

// State returns the current session state.
func (d *Dispatcher) State() State {
	return d.state
}

// Dispatch feeds one line through the state machine.
func (d *Dispatcher) Dispatch(line string) Event {
	tok := Tokenize(line)
	ev := Event{Token: tok, From: d.state}

	switch {
	case tok.Kind == KindStartSwipe && d.state == StateIdle:
		d.state = StateArmed
		ev.Kind = EventSessionStarted

	case tok.Kind == KindData && d.state == StateArmed:
		features, err := ParsePayload(tok.Payload)
		if err != nil {
			ev.Kind = EventProtocolError
			ev.Err = err
			break
		}
		d.state = StateCollecting
		ev.Kind = EventFeatureFrame
		ev.Features = features

	case tok.Kind == KindDataSent && d.state == StateCollecting:
		d.state = StateIdle
		ev.Kind = EventSessionEnded

	default:
		ev.Kind = EventIgnored
	}

	ev.State = d.state
	d.logEvent(ev)

	return ev
}

func (d *Dispatcher) logEvent(ev Event) {
	switch ev.Kind {
	case EventIgnored:
		if ev.Token.Kind == KindUnknown {
			d.log.Info().
				Str("state", ev.From.String()).
				Str("line", ev.Token.Raw).
				Msg("Device line ignored")
			return
		}
		d.log.Warn().
			Str("token", ev.Token.Kind.String()).
			Str("state", ev.From.String()).
			Str("line", ev.Token.Raw).
			Msg("Token ignored")
	case EventProtocolError:
		d.log.Warn().
			Err(ev.Err).
			Str("state", ev.From.String()).
			Str("line", ev.Token.Raw).
			Msg("Malformed data payload")
	default:
		d.log.Debug().
			Str("event", ev.Kind.String()).
			Str("from", ev.From.String()).
			Str("to", ev.State.String()).
			Msg("Session transition")
	}
}
