package workflow

import "errors"

// InterruptError is returned by a node that needs human input before it
// can continue. The engine suspends the execution and surfaces Value to
// the client; on resume the node runs again with the resume value in
// state.
type InterruptError struct {
	Value any
}

func (e *InterruptError) Error() string {
	return "workflow interrupted awaiting input"
}

// Interrupt builds the suspension error a node returns to pause the
// workflow.
func Interrupt(value any) error {
	return &InterruptError{Value: value}
}

// AsInterrupt unwraps an InterruptError from err.
func AsInterrupt(err error) (*InterruptError, bool) {
	var ie *InterruptError
	if errors.As(err, &ie) {
		return ie, true
	}
	return nil, false
}

// matchesGate reports whether node is named by the gate set. The wildcard
// "*" matches every node.
func matchesGate(gates []string, node string) bool {
	for _, g := range gates {
		if g == "*" || g == node {
			return true
		}
	}
	return false
}
