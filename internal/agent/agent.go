/*
Copyright (c) 2026 hortator-ai
SPDX-License-Identifier: MIT
*/

// Package agent defines the black-box Predictor boundary the episode
// engine drives: reset, predict, and nothing else (§3, §4.4 PREDICT).
// Concrete agents (an LLM-backed policy, a scripted fixture for tests) are
// plugged in behind this interface; the episode engine never knows which.
package agent

import (
	"context"

	"github.com/legatus-arena/legatus/internal/action"
	"github.com/legatus-arena/legatus/internal/guestclient"
	"github.com/legatus-arena/legatus/internal/observation"
)

// Prediction is one PREDICT cycle's output: zero or more actions to
// dispatch in order, free-form reasoning logs to persist, an optional
// facade update to push to the guest before the next observation, and
// token/cost usage for the supplemented budget telemetry.
type Prediction struct {
	Actions []action.Action
	Logs    string
	Update  *guestclient.ComputerUpdate
	Usage   Usage
}

// Usage mirrors the token counts budget.Usage expects, kept as its own
// type here so this package does not import internal/budget for a single
// struct shape.
type Usage struct {
	PromptTokens     int64
	CompletionTokens int64
}

// Predictor is the interface every agent implementation satisfies.
type Predictor interface {
	// Reset clears any per-episode state (conversation history, scratch
	// memory) before a new task begins.
	Reset(ctx context.Context, instruction string) error

	// Predict receives the current observation and returns the next
	// Prediction. It must not block past ctx's deadline.
	Predict(ctx context.Context, obs observation.Observation) (Prediction, error)
}
