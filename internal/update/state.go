package update

import "fmt"

// State is a step of an update run.
type State string

const (
	StateIdle                 State = "idle"
	StatePlanReady            State = "plan-ready"
	StateAwaitingConfirmation State = "awaiting-confirmation"
	StateCancelled            State = "cancelled"
	StateUpdating             State = "updating"
	StateCompleted            State = "completed"
	StateAborted              State = "aborted"
	StateUpToDate             State = "up-to-date"
)

// transitions lists the states reachable from each state.
var transitions = map[State][]State{
	StateIdle:                 {StatePlanReady, StateUpToDate},
	StatePlanReady:            {StateAwaitingConfirmation},
	StateAwaitingConfirmation: {StateCancelled, StateUpdating},
	StateUpdating:             {StateCompleted, StateAborted},
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return len(transitions[s]) == 0
}

func (s State) String() string {
	return string(s)
}

// machine tracks the current state and every state visited.
type machine struct {
	current State
	history []State
}

func newMachine() *machine {
	return &machine{current: StateIdle, history: []State{StateIdle}}
}

func (m *machine) to(next State) error {
	for _, allowed := range transitions[m.current] {
		if allowed == next {
			m.current = next
			m.history = append(m.history, next)
			return nil
		}
	}
	return fmt.Errorf("illegal state transition %s -> %s", m.current, next)
}
