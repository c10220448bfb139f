// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package decision

import (
	"fmt"
	"sync"
)

// State represents a phase in the validation pipeline state machine.
type State string

const (
	// StatePending is the initial state before any tier has run.
	StatePending State = "PENDING"

	// StateSchema is structural validation of the action record.
	StateSchema State = "SCHEMA"

	// StatePolicy is rule enforcement.
	StatePolicy State = "POLICY"

	// StateLinter is content analysis.
	StateLinter State = "LINTER"

	// StateAudit is trail recording. Audit runs even after a block.
	StateAudit State = "AUDIT"

	// StateApproved is the terminal pass state.
	StateApproved State = "APPROVED"

	// StateBlocked is the terminal fail state.
	StateBlocked State = "BLOCKED"
)

// String returns the state name.
func (s State) String() string { return string(s) }

// IsTerminal reports whether the state ends the attempt.
func (s State) IsTerminal() bool {
	return s == StateApproved || s == StateBlocked
}

// AllStates returns every pipeline state.
func AllStates() []State {
	return []State{
		StatePending,
		StateSchema,
		StatePolicy,
		StateLinter,
		StateAudit,
		StateApproved,
		StateBlocked,
	}
}

// StateMachine enforces valid transitions for one validation attempt.
//
// The machine enforces the following transition graph:
//
//	PENDING → SCHEMA            : Attempt started
//	SCHEMA → POLICY             : Structural checks passed
//	SCHEMA → AUDIT              : Hard block, skip to trail recording
//	SCHEMA → BLOCKED            : Hard block on a dry run (no audit)
//	POLICY → LINTER             : Policy checks passed
//	POLICY → AUDIT              : Hard block, skip to trail recording
//	POLICY → BLOCKED            : Hard block on a dry run (no audit)
//	LINTER → AUDIT              : Content checks done
//	LINTER → APPROVED           : Dry run passed (no audit)
//	LINTER → BLOCKED            : Dry run blocked (no audit)
//	AUDIT → APPROVED            : Trail written, no blocking findings
//	AUDIT → BLOCKED             : Trail written, blocking findings exist
//
// APPROVED and BLOCKED are terminal.
//
// Thread Safety:
//
//	StateMachine is safe for concurrent use.
type StateMachine struct {
	mu sync.RWMutex

	// transitions maps (from, to) pairs that are valid.
	transitions map[State]map[State]bool
}

// NewStateMachine creates a state machine with all valid transitions.
func NewStateMachine() *StateMachine {
	sm := &StateMachine{
		transitions: make(map[State]map[State]bool),
	}

	for _, state := range AllStates() {
		sm.transitions[state] = make(map[State]bool)
	}

	sm.addTransition(StatePending, StateSchema)

	sm.addTransition(StateSchema, StatePolicy)
	sm.addTransition(StateSchema, StateAudit)
	sm.addTransition(StateSchema, StateBlocked)

	sm.addTransition(StatePolicy, StateLinter)
	sm.addTransition(StatePolicy, StateAudit)
	sm.addTransition(StatePolicy, StateBlocked)

	sm.addTransition(StateLinter, StateAudit)
	sm.addTransition(StateLinter, StateApproved)
	sm.addTransition(StateLinter, StateBlocked)

	sm.addTransition(StateAudit, StateApproved)
	sm.addTransition(StateAudit, StateBlocked)

	return sm
}

// addTransition registers a valid transition.
func (sm *StateMachine) addTransition(from, to State) {
	sm.transitions[from][to] = true
}

// CanTransition checks if a transition from one state to another is valid.
//
// Thread Safety: This method is safe for concurrent use.
func (sm *StateMachine) CanTransition(from, to State) bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if toMap, ok := sm.transitions[from]; ok {
		return toMap[to]
	}
	return false
}

// Transition validates a transition and returns the new state.
//
// Outputs:
//
//	State - The target state when the transition is valid
//	error - ErrInvalidTransition otherwise
//
// Thread Safety: This method is safe for concurrent use.
func (sm *StateMachine) Transition(from, to State) (State, error) {
	if !sm.CanTransition(from, to) {
		return from, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return to, nil
}

// ValidTransitionsFrom returns all valid target states for a source state.
//
// Thread Safety: This method is safe for concurrent use.
func (sm *StateMachine) ValidTransitionsFrom(from State) []State {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	var result []State
	if toMap, ok := sm.transitions[from]; ok {
		for state, valid := range toMap {
			if valid {
				result = append(result, state)
			}
		}
	}
	return result
}

// DefaultStateMachine is the shared state machine instance. Transitions
// are static so one instance serves every attempt.
var DefaultStateMachine = NewStateMachine()
