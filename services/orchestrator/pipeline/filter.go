// Copyright (C) 2026 Driftline (dev@driftline.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import "strings"

// StopToken is the end-of-turn marker some chat templates leak into the
// visible output. It is stripped from every fragment before delivery and
// also passed to the backend as a stop sequence.
const StopToken = "<|eot_id|>"

// StopTokenFilter removes StopToken occurrences from streamed fragments.
//
// The filter is stateless per fragment: the marker is assumed to arrive
// within a single fragment, which holds for the backends we stream from
// since they tokenize the marker atomically. Fragments that become empty
// after stripping are dropped rather than delivered.
type StopTokenFilter struct{}

// Apply strips the stop token from one fragment.
//
// # Outputs
//
//   - string: The cleaned fragment.
//   - bool: False when the fragment became empty and should be dropped.
func (StopTokenFilter) Apply(fragment string) (string, bool) {
	if fragment == "" {
		return "", false
	}
	cleaned := strings.ReplaceAll(fragment, StopToken, "")
	if cleaned == "" {
		return "", false
	}
	return cleaned, true
}
