// Package fsm defines the conversation status machine as a pure transition table.
package fsm

import "fmt"

type State string

type Event string

const (
	StateIdle       State = "idle"
	StateRecording  State = "recording"
	StateProcessing State = "processing"
	StateFailed     State = "failed"
)

const (
	EventStart       Event = "start"
	EventStop        Event = "stop"
	EventSubmit      Event = "submit"
	EventCancel      Event = "cancel"
	EventComplete    Event = "complete"
	EventFail        Event = "fail"
	EventAcknowledge Event = "acknowledge"
)

// Transition returns the state reached by applying event to current.
// Failed is not sticky: a new turn may start from it directly.
func Transition(current State, event Event) (State, error) {
	if event == EventFail {
		switch current {
		case StateIdle, StateRecording, StateProcessing, StateFailed:
			return StateFailed, nil
		default:
			return current, fmt.Errorf("unknown state %q", current)
		}
	}

	switch current {
	case StateIdle:
		switch event {
		case EventStart:
			return StateRecording, nil
		case EventSubmit:
			return StateProcessing, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateRecording:
		switch event {
		case EventStop:
			return StateProcessing, nil
		case EventCancel:
			return StateIdle, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateProcessing:
		switch event {
		case EventComplete, EventCancel:
			return StateIdle, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateFailed:
		switch event {
		case EventStart:
			return StateRecording, nil
		case EventSubmit:
			return StateProcessing, nil
		case EventAcknowledge:
			return StateIdle, nil
		default:
			return current, invalidTransition(current, event)
		}
	default:
		return current, fmt.Errorf("unknown state %q", current)
	}
}

// CanStartTurn reports whether a new voice or text turn may begin from state.
func CanStartTurn(state State) bool {
	return state == StateIdle || state == StateFailed
}

func invalidTransition(state State, event Event) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", state, event)
}
