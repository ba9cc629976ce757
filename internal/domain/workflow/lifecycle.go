package workflow

import (
	"context"
	"sync"

	"github.com/garyjia/invoice-scheduler/internal/domain/entity"
)

var (
	lifecycleOnce    sync.Once
	invoiceLifecycle StateMachineBuilder
)

// newInvoiceLifecycle wires the invoice status transitions:
//
//	scheduled -> pending    (PROMOTE by the daemon, SEND_NOW by a user)
//	pending   -> paid       (MARK_PAID), paid -> pending (MARK_UNPAID)
//	pending   -> cancelled  (VOID)
//	scheduled|pending -> deleted (DELETE)
func newInvoiceLifecycle() StateMachineBuilder {
	b := NewBuilder()
	b.Configure(StateScheduled).
		Permit(TriggerPromote, StatePending).
		Permit(TriggerSendNow, StatePending).
		Permit(TriggerEdit, StateScheduled).
		Permit(TriggerDelete, StateDeleted)
	b.Configure(StatePending).
		Permit(TriggerMarkPaid, StatePaid).
		Permit(TriggerVoid, StateCancelled).
		Permit(TriggerEdit, StatePending).
		Permit(TriggerDelete, StateDeleted)
	b.Configure(StatePaid).
		Permit(TriggerMarkUnpaid, StatePending)
	return b
}

// ForInvoice builds a lifecycle machine positioned at the invoice's stored status
func ForInvoice(inv *entity.Invoice) StateMachine {
	lifecycleOnce.Do(func() {
		invoiceLifecycle = newInvoiceLifecycle()
	})
	return invoiceLifecycle.Build(StateOf(inv.Status))
}

// Transition fires trigger for inv and, when the target is a stored status,
// writes it back onto the invoice.
func Transition(ctx context.Context, inv *entity.Invoice, trigger Trigger) error {
	m := ForInvoice(inv)
	if err := m.Fire(ctx, trigger); err != nil {
		return err
	}
	if next := m.State(); next != StateDeleted {
		inv.Status = next.Status()
	}
	return nil
}
