// Copyright (C) 2026 Driftline (dev@driftline.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package pipeline runs one turn of generation: decide grounded or direct,
// assemble the prompt, stream the answer through the stop-token filter.
package pipeline

import "fmt"

// State tracks where a turn is in its lifecycle.
type State string

const (
	StateIdle      State = "idle"
	StateDeciding  State = "deciding"
	StateGrounded  State = "grounded"
	StateDirect    State = "direct"
	StateStreaming State = "streaming"
	StateComplete  State = "complete"
	StateFailed    State = "failed"
)

// validTransitions is the full transition relation. StateFailed is
// reachable from every non-terminal state.
var validTransitions = map[State][]State{
	StateIdle:      {StateDeciding, StateFailed},
	StateDeciding:  {StateGrounded, StateDirect, StateFailed},
	StateGrounded:  {StateStreaming, StateFailed},
	StateDirect:    {StateStreaming, StateFailed},
	StateStreaming: {StateComplete, StateFailed},
	StateComplete:  {},
	StateFailed:    {},
}

// InvalidTransitionError reports a transition outside the relation. Always
// a programming error, never a runtime condition.
type InvalidTransitionError struct {
	From State
	To   State
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid pipeline transition %s -> %s", e.From, e.To)
}

// machine enforces the transition relation for one turn.
type machine struct {
	state State
}

func newMachine() *machine {
	return &machine{state: StateIdle}
}

func (m *machine) transition(to State) error {
	for _, allowed := range validTransitions[m.state] {
		if allowed == to {
			m.state = to
			return nil
		}
	}
	return &InvalidTransitionError{From: m.state, To: to}
}

// Terminal reports whether the machine reached a final state.
func (m *machine) terminal() bool {
	return m.state == StateComplete || m.state == StateFailed
}
