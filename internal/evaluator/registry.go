/*
Copyright (c) 2026 hortator-ai
SPDX-License-Identifier: MIT
*/

// Package evaluator implements the Evaluator Kernel (C5): an explicit
// registry of named getters and metrics, composed per task descriptor
// (§3, §4.5), replacing the teacher-adjacent pattern of ad-hoc dispatch
// with the registry re-architecture the specification's Design Notes call
// for.
package evaluator

import (
	"context"
	"fmt"

	"github.com/legatus-arena/legatus/internal/task"
)

// Env is the set of live handles a getter needs to read guest or VM state.
// Kept as an interface so getters can be tested against a fake.
type Env interface {
	Query(ctx context.Context, endpoint string, payload, out interface{}) error
	File(ctx context.Context, path string) ([]byte, error)
}

// GetterFunc resolves one GetterSpec against a live environment into a
// comparable value (a string, number, bool, or decoded struct).
type GetterFunc func(ctx context.Context, spec task.GetterSpec, env Env) (interface{}, error)

// MetricFunc compares a resolved result against a resolved expected value
// under the options bag, returning a score in [0, 1].
type MetricFunc func(result, expected interface{}, opts task.Options) (float64, error)

// Registry is the explicit getter/metric lookup table (§9 redesign: no
// reflection-based dispatch, no convention-over-configuration name
// guessing — every tag is registered by name).
type Registry struct {
	getters map[string]GetterFunc
	metrics map[string]MetricFunc
}

// NewRegistry returns a registry pre-populated with the representative
// getter and metric set described in §4.5/§11.
func NewRegistry() *Registry {
	r := &Registry{
		getters: make(map[string]GetterFunc),
		metrics: make(map[string]MetricFunc),
	}
	registerDefaultGetters(r)
	registerDefaultMetrics(r)
	return r
}

func (r *Registry) RegisterGetter(tag string, fn GetterFunc) {
	r.getters[tag] = fn
}

func (r *Registry) RegisterMetric(tag string, fn MetricFunc) {
	r.metrics[tag] = fn
}

func (r *Registry) getter(tag string) (GetterFunc, error) {
	fn, ok := r.getters[tag]
	if !ok {
		return nil, fmt.Errorf("evaluator: no getter registered for %q", tag)
	}
	return fn, nil
}

func (r *Registry) metric(tag string) (MetricFunc, error) {
	fn, ok := r.metrics[tag]
	if !ok {
		return nil, fmt.Errorf("evaluator: no metric registered for %q", tag)
	}
	return fn, nil
}
