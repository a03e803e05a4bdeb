/*
Copyright (c) 2026 hortator-ai
SPDX-License-Identifier: MIT
*/

package agent

import (
	"context"
	"fmt"

	"github.com/legatus-arena/legatus/internal/action"
	"github.com/legatus-arena/legatus/internal/observation"
)

// Fixture is a scripted Predictor useful for exercising the episode engine
// in tests without a real model behind it: it replays a fixed sequence of
// Predictions and then emits DONE.
type Fixture struct {
	Script []Prediction
	calls  int
	resets int
}

func NewFixture(script ...Prediction) *Fixture {
	return &Fixture{Script: script}
}

func (f *Fixture) Reset(ctx context.Context, instruction string) error {
	f.resets++
	f.calls = 0
	return nil
}

func (f *Fixture) Predict(ctx context.Context, obs observation.Observation) (Prediction, error) {
	if f.calls >= len(f.Script) {
		return Prediction{Actions: []action.Action{{Sentinel: action.SentinelDone}}}, nil
	}
	p := f.Script[f.calls]
	f.calls++
	return p, nil
}

// Calls reports how many Predict invocations this fixture has served since
// the last Reset, for test assertions.
func (f *Fixture) Calls() int { return f.calls }

// ErrFixtureExhausted is returned by a FailingFixture once its script runs
// out, standing in for a real agent crashing mid-episode.
var ErrFixtureExhausted = fmt.Errorf("agent fixture: script exhausted")

// FailingFixture replays a script and then errors instead of emitting DONE,
// for exercising the episode engine's uncaught-exception handling.
type FailingFixture struct {
	Script []Prediction
	calls  int
}

func NewFailingFixture(script ...Prediction) *FailingFixture {
	return &FailingFixture{Script: script}
}

func (f *FailingFixture) Reset(ctx context.Context, instruction string) error {
	f.calls = 0
	return nil
}

func (f *FailingFixture) Predict(ctx context.Context, obs observation.Observation) (Prediction, error) {
	if f.calls >= len(f.Script) {
		return Prediction{}, ErrFixtureExhausted
	}
	p := f.Script[f.calls]
	f.calls++
	return p, nil
}
