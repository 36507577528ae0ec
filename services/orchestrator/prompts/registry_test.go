// Copyright (C) 2026 Driftline (dev@driftline.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package prompts

import (
	"strings"
	"testing"
)

func TestRegistry_Render_Contextualize(t *testing.T) {
	r := NewRegistry()

	rendered, err := r.Render(KindContextualize, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rendered, "standalone question") {
		t.Errorf("expected rewrite instruction, got: %s", rendered)
	}
	if strings.Contains(rendered, "{{") {
		t.Errorf("unexecuted template action in output: %s", rendered)
	}
}

func TestRegistry_Render_QA(t *testing.T) {
	r := NewRegistry()

	rendered, err := r.Render(KindQA, QAData{Context: "Juneau is the capital of Alaska."})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rendered, "Juneau is the capital of Alaska.") {
		t.Errorf("expected context inlined, got: %s", rendered)
	}
}

func TestRegistry_Render_DirectChat_DefaultPersona(t *testing.T) {
	r := NewRegistry()

	rendered, err := r.Render(KindDirectChat, DirectChatData{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rendered, "helpful assistant") {
		t.Errorf("expected default persona, got: %s", rendered)
	}
}

func TestRegistry_Render_DirectChat_CustomPersona(t *testing.T) {
	r := NewRegistry()

	rendered, err := r.Render(KindDirectChat, DirectChatData{Persona: "You are a pirate."})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rendered != "You are a pirate." {
		t.Errorf("expected custom persona verbatim, got: %s", rendered)
	}
}

func TestRegistry_Render_Summarize(t *testing.T) {
	r := NewRegistry()

	rendered, err := r.Render(KindSummarize, SummarizeData{Answer: "The capital is Juneau."})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rendered, "The capital is Juneau.") {
		t.Errorf("expected answer inlined, got: %s", rendered)
	}
}

func TestRegistry_Render_UnknownKind(t *testing.T) {
	r := NewRegistry()

	_, err := r.Render(Kind("nonexistent"), nil)
	if err == nil {
		t.Fatal("expected error for unknown kind, got nil")
	}
	if !IsUnknownKind(err) {
		t.Errorf("expected UnknownKindError, got: %v", err)
	}
}

func TestRegistry_Kinds_CoversAllBuiltins(t *testing.T) {
	r := NewRegistry()

	kinds := r.Kinds()
	if len(kinds) != 4 {
		t.Errorf("expected 4 built-in kinds, got %d", len(kinds))
	}
	for _, want := range []Kind{KindContextualize, KindQA, KindDirectChat, KindSummarize} {
		found := false
		for _, k := range kinds {
			if k == want {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("expected kind %s in registry", want)
		}
	}
}
