// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package guardrail reviews drafted replies against a fixed rule set
// before anything reaches the user.
package guardrail

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// DefaultRules is the built-in review rule set, used when no rules file
// is configured.
var DefaultRules = []string{
	"You are a companion, NOT a therapist",
	"Do not dismiss the user's lived experience",
	"Do not normalize what the user is going through without acknowledging the pain",
	"NEVER minimize or invalidate distress in a user",
	"Do not increase shame or guilt in a user via your response",
	"Always position yourself as a companion, and NEVER an authority",
	"Do not make the user feel misunderstood or lectured, you are an AI companion",
	"Do not rush into advice or solutions before validating the user and exploring the situation",
	"Do not force optimism in a response",
	"Do not respond with toxic positivity",
	"Do not overstep your boundary of a companion and act like a therapist",
	"Do not promise outcomes or claim to heal, treat, cure, or diagnose a problem",
	"Do not use moralizing or judging language that could make the user feel shameful, increase avoidance, or view struggle as a character flaw",
	"Do not compare users to others, their lived experience is unique and should not be compared or minimized",
	"Never discourage therapy, counseling, or support systems",
	"Immediately acknowledge distress",
	"Encourage reaching out for help to professional therapists, friends, family, or hotlines",
	"Do not use exercises or reframes when a high-risk situation is detected",
	"Do not overintellectualize emotions, for example, by explaining their biological origins, because you will come off as cold and not a warm companion",
	"Identify and explore the emotions they expressed first, and then only after make an explanation later, only if helpful",
	"Do not take sides or validate harmful beliefs",
	"Never make somebody feel dismissed, judged, or alone",
}

// rulesFile is the YAML shape of an external rules file.
type rulesFile struct {
	Rules []string `yaml:"rules"`
}

// RuleSet holds the active review rules, optionally backed by a YAML
// file that is hot-reloaded on write. Safe for concurrent use.
type RuleSet struct {
	mu      sync.RWMutex
	rules   []string
	path    string
	watcher *fsnotify.Watcher
	logger  *slog.Logger
}

// NewRuleSet returns a rule set holding DefaultRules.
func NewRuleSet(logger *slog.Logger) *RuleSet {
	if logger == nil {
		logger = slog.Default()
	}
	return &RuleSet{rules: DefaultRules, logger: logger}
}

// LoadFile replaces the active rules with the YAML file at path and
// starts watching it for writes. A later unreadable or empty file keeps
// the previous rules.
func (rs *RuleSet) LoadFile(path string) error {
	if err := rs.reload(path); err != nil {
		return err
	}
	rs.path = path

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating rules watcher: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return fmt.Errorf("watching rules file: %w", err)
	}
	rs.watcher = watcher
	go rs.watchLoop()
	return nil
}

// Rules returns a snapshot of the active rules.
func (rs *RuleSet) Rules() []string {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	out := make([]string, len(rs.rules))
	copy(out, rs.rules)
	return out
}

// Close stops the file watcher if one is running.
func (rs *RuleSet) Close() error {
	if rs.watcher != nil {
		return rs.watcher.Close()
	}
	return nil
}

func (rs *RuleSet) reload(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading rules file: %w", err)
	}
	var parsed rulesFile
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return fmt.Errorf("parsing rules file: %w", err)
	}
	if len(parsed.Rules) == 0 {
		return fmt.Errorf("rules file %s contains no rules", path)
	}

	rs.mu.Lock()
	rs.rules = parsed.Rules
	rs.mu.Unlock()
	return nil
}

// watchLoop handles fsnotify events for the rules file.
func (rs *RuleSet) watchLoop() {
	for {
		select {
		case event, ok := <-rs.watcher.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Write == 0 {
				continue
			}
			if err := rs.reload(rs.path); err != nil {
				rs.logger.Warn("rules reload failed, keeping previous rules",
					"path", rs.path, "error", err)
				continue
			}
			rs.logger.Info("review rules reloaded", "path", rs.path)

		case err, ok := <-rs.watcher.Errors:
			if !ok {
				return
			}
			rs.logger.Warn("rules watcher error", "error", err)
		}
	}
}
