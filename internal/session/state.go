package session

// State is a step in the upload state machine.
type State string

const (
	StateIdle               State = "Idle"
	StateAuthenticating     State = "Authenticating"
	StateSubmitting         State = "Submitting"
	StateAwaitingInitiation State = "AwaitingInitiation"
	StateAwaitingCompletion State = "AwaitingCompletion"
	StateTerminal           State = "Terminal"
)

var stateOrder = map[State]int{
	StateIdle:               0,
	StateAuthenticating:     1,
	StateSubmitting:         2,
	StateAwaitingInitiation: 3,
	StateAwaitingCompletion: 4,
	StateTerminal:           5,
}

// canAdvance reports whether next is a forward step from s. Terminal may be
// reached from any state; other states only advance one at a time.
func (s State) canAdvance(next State) bool {
	if s == StateTerminal {
		return false
	}
	if next == StateTerminal {
		return true
	}
	return stateOrder[next] == stateOrder[s]+1
}
