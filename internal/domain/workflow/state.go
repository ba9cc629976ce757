package workflow

import "github.com/garyjia/invoice-scheduler/internal/domain/entity"

// State is a node of the invoice lifecycle
type State string

const (
	StateScheduled State = State(entity.StatusScheduled)
	StatePending   State = State(entity.StatusPending)
	StatePaid      State = State(entity.StatusPaid)
	StateCancelled State = State(entity.StatusCancelled)
	StateDeleted   State = "deleted"
)

// StateOf maps a stored invoice status onto the lifecycle. Overdue is a
// presentation of pending and maps to StatePending.
func StateOf(status entity.InvoiceStatus) State {
	if status == entity.StatusOverdue {
		return StatePending
	}
	return State(status)
}

// Status returns the invoice status stored for this state
func (s State) Status() entity.InvoiceStatus {
	return entity.InvoiceStatus(s)
}

// IsTerminal returns true if no further transitions leave the state.
// Paid is terminal for deletion and edits; MarkUnpaid is the one exit.
func (s State) IsTerminal() bool {
	switch s {
	case StatePaid, StateCancelled, StateDeleted:
		return true
	default:
		return false
	}
}

func (s State) String() string {
	return string(s)
}

// IsValid returns true if the state is part of the lifecycle
func (s State) IsValid() bool {
	switch s {
	case StateScheduled, StatePending, StatePaid, StateCancelled, StateDeleted:
		return true
	default:
		return false
	}
}
