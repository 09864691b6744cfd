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
	"encoding/json"
	"testing"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantErr   bool
		wantField string
		wantValue any
	}{
		{
			name:      "clean JSON",
			input:     `{"status":"OK","feedback":"fine"}`,
			wantErr:   false,
			wantField: "status",
			wantValue: "OK",
		},
		{
			name:      "JSON with whitespace",
			input:     `   {"status":"REFINE"}   `,
			wantErr:   false,
			wantField: "status",
			wantValue: "REFINE",
		},
		{
			name:      "markdown JSON block",
			input:     "```json\n{\"status\":\"OK\"}\n```",
			wantErr:   false,
			wantField: "status",
			wantValue: "OK",
		},
		{
			name:      "JSON with preamble",
			input:     "Here is my verdict:\n{\"status\":\"OK\"}",
			wantErr:   false,
			wantField: "status",
			wantValue: "OK",
		},
		{
			name:      "JSON with postamble",
			input:     "{\"status\":\"OK\"}\nHope this helps!",
			wantErr:   false,
			wantField: "status",
			wantValue: "OK",
		},
		{
			name:      "braces inside string",
			input:     `{"feedback":"avoid {templated} phrasing","status":"REFINE"}`,
			wantErr:   false,
			wantField: "status",
			wantValue: "REFINE",
		},
		{
			name:      "escaped quotes in string",
			input:     `{"feedback":"said \"cheer up\" which minimizes","status":"REFINE"}`,
			wantErr:   false,
			wantField: "status",
			wantValue: "REFINE",
		},
		{
			name:    "empty string",
			input:   "",
			wantErr: true,
		},
		{
			name:    "no JSON",
			input:   "This is just plain text without any JSON",
			wantErr: true,
		},
		{
			name:    "incomplete JSON",
			input:   `{"status":"OK"`,
			wantErr: true,
		},
		{
			name:      "multiple objects takes the first",
			input:     `{"status":"OK"} {"status":"REFINE"}`,
			wantErr:   false,
			wantField: "status",
			wantValue: "OK",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ExtractJSON(tc.input)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			var parsed map[string]any
			if err := json.Unmarshal([]byte(got), &parsed); err != nil {
				t.Fatalf("extracted text is not valid JSON: %v", err)
			}
			if parsed[tc.wantField] != tc.wantValue {
				t.Errorf("field %s = %v, want %v", tc.wantField, parsed[tc.wantField], tc.wantValue)
			}
		})
	}
}
