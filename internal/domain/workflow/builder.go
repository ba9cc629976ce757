package workflow

import (
	"context"
	"fmt"
)

// StateMachine tracks one invoice's current state and validates transitions
type StateMachine interface {
	State() State
	Fire(ctx context.Context, trigger Trigger) error
}

// StateMachineBuilder collects transitions and builds machines from them
type StateMachineBuilder interface {
	Configure(state State) StateConfiguration
	Build(initialState State) StateMachine
}

// StateConfiguration configures the transitions leaving one state
type StateConfiguration interface {
	Permit(trigger Trigger, toState State) StateConfiguration
}

type stateMachineBuilder struct {
	transitions map[State]map[Trigger]State
}

type stateMachine struct {
	currentState State
	transitions  map[State]map[Trigger]State
}

type stateConfig struct {
	transitions map[Trigger]State
}

// NewBuilder creates an empty builder
func NewBuilder() StateMachineBuilder {
	return &stateMachineBuilder{transitions: make(map[State]map[Trigger]State)}
}

// Configure returns the configuration for state, creating it on first use
func (b *stateMachineBuilder) Configure(state State) StateConfiguration {
	if !state.IsValid() {
		panic(fmt.Sprintf("invalid state: %s", state))
	}
	ts, ok := b.transitions[state]
	if !ok {
		ts = make(map[Trigger]State)
		b.transitions[state] = ts
	}
	return &stateConfig{transitions: ts}
}

// Build returns a machine positioned at initialState. The transition table is
// copied so later Configure calls do not affect built machines.
func (b *stateMachineBuilder) Build(initialState State) StateMachine {
	if !initialState.IsValid() {
		panic(fmt.Sprintf("invalid initial state: %s", initialState))
	}
	table := make(map[State]map[Trigger]State, len(b.transitions))
	for state, ts := range b.transitions {
		cp := make(map[Trigger]State, len(ts))
		for trigger, to := range ts {
			cp[trigger] = to
		}
		table[state] = cp
	}
	return &stateMachine{currentState: initialState, transitions: table}
}

// Permit adds a transition; a second Permit for the same trigger replaces the first
func (c *stateConfig) Permit(trigger Trigger, toState State) StateConfiguration {
	if !toState.IsValid() {
		panic(fmt.Sprintf("invalid target state: %s", toState))
	}
	c.transitions[trigger] = toState
	return c
}

func (m *stateMachine) State() State {
	return m.currentState
}

// Fire moves along the transition for trigger or reports ErrInvalidTransition
func (m *stateMachine) Fire(ctx context.Context, trigger Trigger) error {
	to, ok := m.transitions[m.currentState][trigger]
	if !ok {
		return fmt.Errorf("%w: cannot %s a %s invoice", ErrInvalidTransition, trigger, m.currentState)
	}
	m.currentState = to
	return nil
}
