// Package fsm defines the pipeline status machine shown to the user.
package fsm

import "fmt"

type State string

type Event string

const (
	StateIdle       State = "idle"
	StateCapturing  State = "capturing"
	StateProcessing State = "processing"
	StateDone       State = "done"
	StateError      State = "error"
)

const (
	EventCapture    Event = "capture"
	EventCaptured   Event = "captured"
	EventDispatched Event = "dispatched"
	EventCancel     Event = "cancel"
	EventFail       Event = "fail"
	EventReset      Event = "reset"
)

// Transition returns the state reached from current on event.
//
// A capture is accepted from every state: from done or error it acknowledges
// the previous run, from capturing or processing it supersedes it.
func Transition(current State, event Event) (State, error) {
	if !known(current) {
		return current, fmt.Errorf("unknown state %q", current)
	}

	switch event {
	case EventFail:
		return StateError, nil
	case EventReset:
		return StateIdle, nil
	case EventCapture:
		return StateCapturing, nil
	}

	switch current {
	case StateCapturing:
		switch event {
		case EventCaptured:
			return StateProcessing, nil
		case EventCancel:
			return StateIdle, nil
		}
	case StateProcessing:
		switch event {
		case EventDispatched:
			return StateDone, nil
		case EventCancel:
			return StateIdle, nil
		}
	}
	return current, invalidTransition(current, event)
}

// Active reports whether a run is in flight in state s.
func Active(s State) bool {
	return s == StateCapturing || s == StateProcessing
}

func known(s State) bool {
	switch s {
	case StateIdle, StateCapturing, StateProcessing, StateDone, StateError:
		return true
	default:
		return false
	}
}

func invalidTransition(state State, event Event) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", state, event)
}
