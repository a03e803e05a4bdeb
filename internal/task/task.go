/*
Copyright (c) 2026 hortator-ai
SPDX-License-Identifier: MIT
*/

// Package task holds the declarative task descriptor loaded from an
// experiment's task catalog: an instruction, a list of setup directives,
// and an evaluator specification.
package task

import (
	"encoding/json"
	"fmt"
)

// ConjKind is the conjunction used to combine a list-valued evaluator.
type ConjKind string

const (
	ConjAnd ConjKind = "and"
	ConjOr  ConjKind = "or"
)

// Directive is one setup or postconfig directive: a tagged `type` plus an
// arbitrary payload of recognized keys. The payload is kept as raw JSON and
// decoded by the setter registered for Type.
type Directive struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"-"`
}

// UnmarshalJSON splits the "type" key out and keeps the rest as the payload,
// since a directive's payload shape depends entirely on its type.
func (d *Directive) UnmarshalJSON(data []byte) error {
	var typed struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &typed); err != nil {
		return fmt.Errorf("directive: %w", err)
	}
	d.Type = typed.Type
	d.Payload = append(json.RawMessage(nil), data...)
	return nil
}

func (d Directive) MarshalJSON() ([]byte, error) {
	if len(d.Payload) == 0 {
		return json.Marshal(struct {
			Type string `json:"type"`
		}{d.Type})
	}
	// Payload already carries "type"; re-emit verbatim.
	return d.Payload, nil
}

// GetterSpec names a getter by tag and carries its config payload.
type GetterSpec struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"-"`
}

func (g *GetterSpec) UnmarshalJSON(data []byte) error {
	var typed struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &typed); err != nil {
		return fmt.Errorf("getter spec: %w", err)
	}
	g.Type = typed.Type
	g.Payload = append(json.RawMessage(nil), data...)
	return nil
}

func (g GetterSpec) MarshalJSON() ([]byte, error) {
	if len(g.Payload) == 0 {
		return json.Marshal(struct {
			Type string `json:"type"`
		}{g.Type})
	}
	return g.Payload, nil
}

// ScalarOrList decodes a JSON value that may be either a bare scalar or a
// list of scalars into a normalized slice, per Design Note "polymorphic
// func/result/expected/options: normalize into lists at construction time".
type ScalarOrList[T any] struct {
	Items []T
}

func (s *ScalarOrList[T]) UnmarshalJSON(data []byte) error {
	var list []T
	if err := json.Unmarshal(data, &list); err == nil {
		s.Items = list
		return nil
	}
	var one T
	if err := json.Unmarshal(data, &one); err != nil {
		return fmt.Errorf("scalar-or-list: %w", err)
	}
	s.Items = []T{one}
	return nil
}

func (s ScalarOrList[T]) MarshalJSON() ([]byte, error) {
	if len(s.Items) == 1 {
		return json.Marshal(s.Items[0])
	}
	return json.Marshal(s.Items)
}

// Options is a keyword-override bag, kept untyped at the task-descriptor
// level; individual metrics decode their own typed options record from it.
type Options map[string]json.RawMessage

// Evaluator is the declarative composition of getters and metrics for one
// task, as described in §3 and §4.5 of the specification.
type Evaluator struct {
	Func       ScalarOrList[string]     `json:"func"`
	Conj       ConjKind                 `json:"conj,omitempty"`
	Result     ScalarOrList[GetterSpec] `json:"result"`
	Expected   ScalarOrList[GetterSpec] `json:"expected,omitempty"`
	Options    ScalarOrList[Options]    `json:"options,omitempty"`
	PostConfig []Directive              `json:"postconfig,omitempty"`
}

// ResolvedConj returns the conjunction, defaulting to "and" per the spec.
func (e Evaluator) ResolvedConj() ConjKind {
	if e.Conj == "" {
		return ConjAnd
	}
	return e.Conj
}

// Validate enforces the length invariant: every present list-typed field of
// func/result/expected/options has the same length as Func.
func (e Evaluator) Validate() error {
	n := len(e.Func.Items)
	if n == 0 {
		return fmt.Errorf("evaluator: func must name at least one metric")
	}
	check := func(name string, got int) error {
		if got != 0 && got != n {
			return fmt.Errorf("evaluator: %s has length %d, want %d (or 0)", name, got, n)
		}
		return nil
	}
	if err := check("result", len(e.Result.Items)); err != nil {
		return err
	}
	if err := check("expected", len(e.Expected.Items)); err != nil {
		return err
	}
	if err := check("options", len(e.Options.Items)); err != nil {
		return err
	}
	return nil
}

// IsInfeasible reports whether this evaluator is the special-cased
// "infeasible" marker handled directly by the episode engine.
func (e Evaluator) IsInfeasible() bool {
	return len(e.Func.Items) == 1 && e.Func.Items[0] == "infeasible"
}

// Descriptor is the unique, immutable-for-the-duration task record.
type Descriptor struct {
	ID          string      `json:"id"`
	Domain      string      `json:"domain"`
	Instruction string      `json:"instruction"`
	Config      []Directive `json:"config"`
	Evaluator   Evaluator   `json:"evaluator"`

	// Snapshot names the VM snapshot RESET should restore to, when the VM
	// is controlled locally rather than remotely (§4.4 RESET).
	Snapshot string `json:"snapshot,omitempty"`

	// Health optionally opts this task into the supplemented stuck-episode
	// detector (SPEC_FULL.md §12); nil leaves detection off.
	Health *HealthConfig `json:"health,omitempty"`
}

// HealthConfig configures the supplemented stuck-episode heuristic.
type HealthConfig struct {
	ToolDiversityMin   float64 `json:"tool_diversity_min,omitempty"`
	MaxRepeatedPrompts int     `json:"max_repeated_prompts,omitempty"`
	StatusStaleSeconds int     `json:"status_stale_seconds,omitempty"`
	Action             string  `json:"action,omitempty"` // warn|fail
}

// Key uniquely identifies a task within a domain, used for partitioning and
// for the persisted result-directory layout.
type Key struct {
	Domain string
	TaskID string
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s", k.Domain, k.TaskID)
}
