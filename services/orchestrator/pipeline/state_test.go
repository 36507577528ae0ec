// Copyright (C) 2026 Driftline (dev@driftline.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"errors"
	"testing"
)

func TestMachine_HappyPathGrounded(t *testing.T) {
	t.Parallel()

	m := newMachine()
	for _, next := range []State{StateDeciding, StateGrounded, StateStreaming, StateComplete} {
		if err := m.transition(next); err != nil {
			t.Fatalf("transition to %s failed: %v", next, err)
		}
	}
	if !m.terminal() {
		t.Error("expected terminal state after complete")
	}
}

func TestMachine_HappyPathDirect(t *testing.T) {
	t.Parallel()

	m := newMachine()
	for _, next := range []State{StateDeciding, StateDirect, StateStreaming, StateComplete} {
		if err := m.transition(next); err != nil {
			t.Fatalf("transition to %s failed: %v", next, err)
		}
	}
}

func TestMachine_RejectsSkippingDeciding(t *testing.T) {
	t.Parallel()

	m := newMachine()
	err := m.transition(StateGrounded)
	if err == nil {
		t.Fatal("expected error for idle -> grounded")
	}
	var invalid *InvalidTransitionError
	if !errors.As(err, &invalid) {
		t.Errorf("expected InvalidTransitionError, got %v", err)
	}
}

func TestMachine_FailureReachableFromAnyNonTerminal(t *testing.T) {
	t.Parallel()

	paths := [][]State{
		{},
		{StateDeciding},
		{StateDeciding, StateGrounded},
		{StateDeciding, StateDirect},
		{StateDeciding, StateDirect, StateStreaming},
	}
	for _, path := range paths {
		m := newMachine()
		for _, s := range path {
			if err := m.transition(s); err != nil {
				t.Fatalf("setup transition to %s failed: %v", s, err)
			}
		}
		if err := m.transition(StateFailed); err != nil {
			t.Errorf("expected failure reachable after %v, got %v", path, err)
		}
	}
}

func TestMachine_TerminalStatesAreFinal(t *testing.T) {
	t.Parallel()

	m := newMachine()
	for _, s := range []State{StateDeciding, StateDirect, StateStreaming, StateComplete} {
		if err := m.transition(s); err != nil {
			t.Fatalf("setup: %v", err)
		}
	}
	if err := m.transition(StateFailed); err == nil {
		t.Error("expected complete -> failed to be rejected")
	}
	if err := m.transition(StateDeciding); err == nil {
		t.Error("expected complete -> deciding to be rejected")
	}
}
