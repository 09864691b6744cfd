// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package privacy removes personal identifiers from user text before it
// reaches models or storage.
//
// Recognizers are ordered: identifier formats that embed digits (medical
// record numbers, SSNs) run before the generic phone matcher so the more
// specific placeholder wins. Redaction is fail-open; a recognizer that
// matches nothing leaves the text alone, and the caller never has to
// treat redaction as fatal.
package privacy

import (
	"regexp"
)

// Placeholder values substituted for recognized entities.
const (
	PlaceholderName    = "<NAME>"
	PlaceholderPhone   = "<PHONE>"
	PlaceholderEmail   = "<EMAIL>"
	PlaceholderMRN     = "<MRN_ID>"
	PlaceholderDefault = "<PRIVATE_DATA>"
)

// recognizer is one entity pattern and its replacement.
type recognizer struct {
	entity      string
	pattern     *regexp.Regexp
	placeholder string
	// group selects a capture group to replace instead of the whole
	// match; zero replaces everything the pattern matched.
	group int
}

// Order matters: specific digit formats before the phone matcher.
var recognizers = []recognizer{
	{
		entity:      "EMAIL_ADDRESS",
		pattern:     regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`),
		placeholder: PlaceholderEmail,
	},
	{
		entity:      "MEDICAL_RECORD_NUM",
		pattern:     regexp.MustCompile(`(?i)\b(MRN|ID|Num|#)\b\s*(?:is|number|:|#)?\s*\d{4,9}\b`),
		placeholder: PlaceholderMRN,
	},
	{
		entity:      "US_SSN",
		pattern:     regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
		placeholder: PlaceholderDefault,
	},
	{
		entity:      "PHONE_NUMBER",
		pattern:     regexp.MustCompile(`(\+?\d{1,3}[\s\-.]?)?\(?\d{3}\)?[\s\-.]\d{3}[\s\-.]\d{4}\b|\b\d{10}\b`),
		placeholder: PlaceholderPhone,
	},
	{
		entity:      "PERSON",
		pattern:     regexp.MustCompile(`\b(?i:my name is|my name's|i am called|call me|this is)\s+([A-Z][a-z]+(?:\s[A-Z][a-z]+)?)`),
		placeholder: PlaceholderName,
		group:       1,
	},
	{
		entity:      "LOCATION",
		pattern:     regexp.MustCompile(`\b(?i:i live in|i live at|i'm from|i am from)\s+([A-Z][A-Za-z]+(?:\s[A-Z][A-Za-z]+)?)`),
		placeholder: PlaceholderDefault,
		group:       1,
	},
}

// Redactor removes personal identifiers from text.
type Redactor struct{}

// NewRedactor creates a redactor with the built-in recognizer set.
func NewRedactor() *Redactor {
	return &Redactor{}
}

// Redact replaces every recognized entity with its placeholder and
// reports how many substitutions were made.
func (r *Redactor) Redact(text string) (string, int) {
	total := 0
	for _, rec := range recognizers {
		if rec.group == 0 {
			text = rec.pattern.ReplaceAllStringFunc(text, func(string) string {
				total++
				return rec.placeholder
			})
			continue
		}

		// Replace only the capture group, keeping the cue words so the
		// sentence still reads naturally.
		text = rec.pattern.ReplaceAllStringFunc(text, func(match string) string {
			idx := rec.pattern.FindStringSubmatchIndex(match)
			if idx == nil || len(idx) <= rec.group*2+1 || idx[rec.group*2] < 0 {
				return match
			}
			total++
			return match[:idx[rec.group*2]] + rec.placeholder + match[idx[rec.group*2+1]:]
		})
	}
	return text, total
}
