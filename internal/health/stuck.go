/*
Copyright (c) 2026 hortator-ai
SPDX-License-Identifier: MIT
*/

// Package health implements the supplemented stuck-episode detector
// described in SPEC_FULL.md §12, adapted from the teacher's behavioral
// stuck-detection heuristic (internal/controller/health.go) onto an
// episode's own action stream instead of pod logs.
package health

import (
	"fmt"
	"strings"
)

// Score holds the results of one stuck-detection pass.
type Score struct {
	ToolDiversity   float64
	RepeatedPrompts int
	StaleSeconds    float64
	Aggregate       float64
	IsStuck         bool
	Reason          string
}

// Config mirrors task.HealthConfig with defaulted fields, so the detector
// never has to special-case an unset threshold.
type Config struct {
	ToolDiversityMin   float64
	MaxRepeatedPrompts int
	StatusStaleSeconds int
	Action             string // warn|fail
}

// DefaultConfig matches the teacher's defaults for the same three signals.
var DefaultConfig = Config{
	ToolDiversityMin:   0.3,
	MaxRepeatedPrompts: 3,
	StatusStaleSeconds: 300,
	Action:             "warn",
}

// Resolve merges a per-task override onto the default config, the way the
// teacher merges cluster defaults with a per-task HealthSpec override.
func Resolve(defaults Config, toolDiversityMin float64, maxRepeated, staleSeconds int, action string) Config {
	cfg := defaults
	if toolDiversityMin > 0 {
		cfg.ToolDiversityMin = toolDiversityMin
	}
	if maxRepeated > 0 {
		cfg.MaxRepeatedPrompts = maxRepeated
	}
	if staleSeconds > 0 {
		cfg.StatusStaleSeconds = staleSeconds
	}
	if action != "" {
		cfg.Action = action
	}
	return cfg
}

// Check analyses the episode's recent action tags and prompt hashes for the
// same three weighted signals the teacher uses: tool diversity (40%),
// prompt repetition (35%), and staleness (25%). actionTags is the ordered
// list of action-type tags taken so far in the episode; promptHashes is a
// parallel list of hashes of the instruction text sent to the agent on each
// prediction (identical hashes indicate the agent is being re-prompted with
// no progress).
func Check(cfg Config, actionTags []string, promptHashes []string, secondsSinceProgress float64) Score {
	score := Score{}

	if len(actionTags) > 2 {
		seen := make(map[string]bool)
		for _, t := range actionTags {
			seen[t] = true
		}
		score.ToolDiversity = float64(len(seen)) / float64(len(actionTags))
	} else {
		score.ToolDiversity = 1.0
	}

	if len(promptHashes) > 1 {
		counts := make(map[string]int)
		for _, h := range promptHashes {
			counts[h]++
		}
		max := 0
		for _, c := range counts {
			if c > max {
				max = c
			}
		}
		score.RepeatedPrompts = max
	}

	score.StaleSeconds = secondsSinceProgress

	diversityPenalty := 0.0
	if cfg.ToolDiversityMin > 0 && score.ToolDiversity < cfg.ToolDiversityMin {
		diversityPenalty = (cfg.ToolDiversityMin - score.ToolDiversity) / cfg.ToolDiversityMin
	}

	repetitionPenalty := 0.0
	if cfg.MaxRepeatedPrompts > 0 && score.RepeatedPrompts > cfg.MaxRepeatedPrompts {
		repetitionPenalty = float64(score.RepeatedPrompts-cfg.MaxRepeatedPrompts) / float64(cfg.MaxRepeatedPrompts)
		if repetitionPenalty > 1.0 {
			repetitionPenalty = 1.0
		}
	}

	stalenessPenalty := 0.0
	if cfg.StatusStaleSeconds > 0 && score.StaleSeconds > float64(cfg.StatusStaleSeconds) {
		stalenessPenalty = (score.StaleSeconds - float64(cfg.StatusStaleSeconds)) / float64(cfg.StatusStaleSeconds)
		if stalenessPenalty > 1.0 {
			stalenessPenalty = 1.0
		}
	}

	score.Aggregate = 0.40*diversityPenalty + 0.35*repetitionPenalty + 0.25*stalenessPenalty

	if score.Aggregate >= 0.5 {
		score.IsStuck = true
		var reasons []string
		if diversityPenalty > 0 {
			reasons = append(reasons, fmt.Sprintf("low tool diversity (%.2f < %.2f)", score.ToolDiversity, cfg.ToolDiversityMin))
		}
		if repetitionPenalty > 0 {
			reasons = append(reasons, fmt.Sprintf("repeated prompts (%d > %d)", score.RepeatedPrompts, cfg.MaxRepeatedPrompts))
		}
		if stalenessPenalty > 0 {
			reasons = append(reasons, fmt.Sprintf("stale progress (%.0fs > %ds)", score.StaleSeconds, cfg.StatusStaleSeconds))
		}
		score.Reason = strings.Join(reasons, "; ")
	}

	return score
}
