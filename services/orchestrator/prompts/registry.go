// Copyright (C) 2026 Driftline (dev@driftline.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package prompts holds the fixed prompt registry used by the generation
// pipeline. Templates are parsed once at init; rendering is read-only and
// safe for concurrent use.
package prompts

import (
	"errors"
	"fmt"
	"strings"
	"text/template"
)

// =============================================================================
// Template Kinds
// =============================================================================

// Kind identifies one of the registry's fixed templates.
type Kind string

const (
	// KindContextualize rewrites the latest question into a standalone one
	// using the conversation history.
	KindContextualize Kind = "contextualize"

	// KindQA is the grounded system prompt with retrieved context inlined.
	KindQA Kind = "qa"

	// KindDirectChat is the ungrounded system prompt for direct turns.
	KindDirectChat Kind = "direct_chat"

	// KindSummarize condenses an assistant answer into a session summary.
	KindSummarize Kind = "summarize"
)

// =============================================================================
// Errors
// =============================================================================

// UnknownKindError reports a lookup for a template kind the registry does
// not hold. This is a caller bug, never retryable.
type UnknownKindError struct {
	Kind Kind
}

func (e *UnknownKindError) Error() string {
	return fmt.Sprintf("unknown prompt template kind: %q", e.Kind)
}

// IsUnknownKind reports whether err wraps an UnknownKindError.
func IsUnknownKind(err error) bool {
	var target *UnknownKindError
	return errors.As(err, &target)
}

// =============================================================================
// Template Data
// =============================================================================

// QAData feeds KindQA.
type QAData struct {
	Context string
}

// DirectChatData feeds KindDirectChat.
type DirectChatData struct {
	Persona string
}

// SummarizeData feeds KindSummarize.
type SummarizeData struct {
	Answer string
}

// =============================================================================
// Template Bodies
// =============================================================================

// KindContextualize is a system instruction; the conversation history and
// the question reach the model as role-structured chat messages.
const contextualizeTemplate = `Given the conversation history and the latest user question, rewrite the question as a single standalone question that can be understood without the history. Do NOT answer the question. If the question is already standalone, return it unchanged. Reply with the standalone question only.`

const qaTemplate = `You are a helpful assistant. Use the following context to answer the user's question.
If the context doesn't contain relevant information, say so and provide what help you can.

Context:
{{.Context}}`

const directChatTemplate = `{{if .Persona}}{{.Persona}}{{else}}You are a helpful assistant. Answer the user's question directly and concisely.{{end}}`

const summarizeTemplate = `Summarize the following assistant answer in one short sentence. The summary will be shown as the title of the conversation, so keep it under fifteen words and do not use quotation marks.

Answer:
{{.Answer}}

Summary:`

// =============================================================================
// Registry
// =============================================================================

// Registry maps template kinds to parsed templates.
type Registry struct {
	templates map[Kind]*template.Template
}

// NewRegistry builds the registry with all built-in templates.
func NewRegistry() *Registry {
	return &Registry{
		templates: map[Kind]*template.Template{
			KindContextualize: template.Must(template.New(string(KindContextualize)).Parse(contextualizeTemplate)),
			KindQA:            template.Must(template.New(string(KindQA)).Parse(qaTemplate)),
			KindDirectChat:    template.Must(template.New(string(KindDirectChat)).Parse(directChatTemplate)),
			KindSummarize:     template.Must(template.New(string(KindSummarize)).Parse(summarizeTemplate)),
		},
	}
}

// Render executes the template for the given kind against data.
//
// # Outputs
//
//   - string: Rendered prompt text.
//   - error: UnknownKindError for a kind the registry does not hold, or a
//     template execution error.
func (r *Registry) Render(kind Kind, data any) (string, error) {
	tmpl, ok := r.templates[kind]
	if !ok {
		return "", &UnknownKindError{Kind: kind}
	}

	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("failed to render template %q: %w", kind, err)
	}
	return sb.String(), nil
}

// Kinds lists the kinds the registry holds.
func (r *Registry) Kinds() []Kind {
	kinds := make([]Kind, 0, len(r.templates))
	for k := range r.templates {
		kinds = append(kinds, k)
	}
	return kinds
}
