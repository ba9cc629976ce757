package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/invoice-scheduler/internal/domain/entity"
)

func TestState_IsTerminal(t *testing.T) {
	tests := []struct {
		state    State
		expected bool
	}{
		{StateScheduled, false},
		{StatePending, false},
		{StatePaid, true},
		{StateCancelled, true},
		{StateDeleted, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.state.IsTerminal())
		})
	}
}

func TestStateOf_OverdueIsPending(t *testing.T) {
	assert.Equal(t, StatePending, StateOf(entity.StatusOverdue))
	assert.Equal(t, StateScheduled, StateOf(entity.StatusScheduled))
	assert.False(t, State("INVALID").IsValid())
}

func TestBuilder_ConfigurePanicsOnInvalidState(t *testing.T) {
	assert.Panics(t, func() { NewBuilder().Configure(State("INVALID")) })
	assert.Panics(t, func() { NewBuilder().Build(State("")) })
}

func TestBuild_IsolatedFromLaterConfiguration(t *testing.T) {
	b := NewBuilder()
	b.Configure(StateScheduled).Permit(TriggerPromote, StatePending)
	m := b.Build(StateScheduled)

	b.Configure(StateScheduled).Permit(TriggerVoid, StateCancelled)

	assert.ErrorIs(t, m.Fire(context.Background(), TriggerVoid), ErrInvalidTransition)
	require.NoError(t, m.Fire(context.Background(), TriggerPromote))
	assert.Equal(t, StatePending, m.State())
}

func TestInvoiceLifecycle(t *testing.T) {
	tests := []struct {
		name    string
		from    entity.InvoiceStatus
		trigger Trigger
		want    entity.InvoiceStatus
		wantErr bool
	}{
		{"daemon promotes scheduled", entity.StatusScheduled, TriggerPromote, entity.StatusPending, false},
		{"send now", entity.StatusScheduled, TriggerSendNow, entity.StatusPending, false},
		{"mark paid", entity.StatusPending, TriggerMarkPaid, entity.StatusPaid, false},
		{"mark overdue paid", entity.StatusOverdue, TriggerMarkPaid, entity.StatusPaid, false},
		{"mark unpaid", entity.StatusPaid, TriggerMarkUnpaid, entity.StatusPending, false},
		{"void pending", entity.StatusPending, TriggerVoid, entity.StatusCancelled, false},
		{"delete scheduled keeps status", entity.StatusScheduled, TriggerDelete, entity.StatusScheduled, false},
		{"cannot pay scheduled", entity.StatusScheduled, TriggerMarkPaid, entity.StatusScheduled, true},
		{"cannot delete paid", entity.StatusPaid, TriggerDelete, entity.StatusPaid, true},
		{"cannot edit paid", entity.StatusPaid, TriggerEdit, entity.StatusPaid, true},
		{"cannot promote pending", entity.StatusPending, TriggerPromote, entity.StatusPending, true},
		{"cancelled is final", entity.StatusCancelled, TriggerMarkUnpaid, entity.StatusCancelled, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := &entity.Invoice{Status: tt.from}
			err := Transition(context.Background(), inv, tt.trigger)
			if tt.wantErr {
				assert.ErrorIs(t, err, entity.ErrInvalidTransition)
				assert.Equal(t, tt.from, inv.Status)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, inv.Status)
		})
	}
}

func TestForInvoice_EveryStoredStatus(t *testing.T) {
	for _, status := range []entity.InvoiceStatus{
		entity.StatusScheduled, entity.StatusPending, entity.StatusOverdue,
		entity.StatusPaid, entity.StatusCancelled,
	} {
		t.Run(string(status), func(t *testing.T) {
			var m StateMachine
			require.NotPanics(t, func() {
				m = ForInvoice(&entity.Invoice{Status: status})
			})
			assert.Equal(t, StateOf(status), m.State())
		})
	}
}

func TestForInvoice_ScheduledCanBePromoted(t *testing.T) {
	m := ForInvoice(&entity.Invoice{Status: entity.StatusScheduled})
	require.NoError(t, m.Fire(context.Background(), TriggerPromote))
	assert.Equal(t, StatePending, m.State())
}

func TestState_IsValid(t *testing.T) {
	for _, s := range []State{StateScheduled, StatePending, StatePaid, StateCancelled, StateDeleted} {
		assert.True(t, s.IsValid(), s)
	}
	assert.False(t, State("overdue").IsValid())
	assert.False(t, State("").IsValid())
}
