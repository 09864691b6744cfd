// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package guardrail

import (
	"errors"
	"strings"
)

// ErrNoJSON is returned when no balanced JSON object exists in the text.
var ErrNoJSON = errors.New("no JSON object found in text")

// ExtractJSON returns the first balanced {...} block in a possibly noisy
// model response. Braces inside string literals are ignored, so feedback
// text containing "{" does not break extraction. Markdown code fences
// around the object are tolerated because scanning starts at the first
// real brace.
func ExtractJSON(text string) (string, error) {
	start := strings.IndexByte(text, '{')
	if start == -1 {
		return "", ErrNoJSON
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]

		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}

		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], nil
			}
		}
	}

	return "", errors.New("unbalanced braces, JSON object not closed")
}
