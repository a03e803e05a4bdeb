/*
Copyright (c) 2026 hortator-ai
SPDX-License-Identifier: MIT
*/

package evaluator

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/legatus-arena/legatus/internal/task"
)

func registerDefaultMetrics(r *Registry) {
	r.RegisterMetric("exact_match", metricExactMatch)
	r.RegisterMetric("fuzzy_match", metricFuzzyMatch)
	r.RegisterMetric("numeric_tolerance", metricNumericTolerance)
	r.RegisterMetric("list_inclusion", metricListInclusion)
	r.RegisterMetric("boolean", metricBoolean)
	r.RegisterMetric("bytes_equal", metricBytesEqual)
}

func toString(v interface{}) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// metricExactMatch scores 1.0 when result equals expected under JSON
// round-trip comparison, 0.0 otherwise (§4.5).
func metricExactMatch(result, expected interface{}, opts task.Options) (float64, error) {
	rb, err := json.Marshal(result)
	if err != nil {
		return 0, fmt.Errorf("exact_match: marshal result: %w", err)
	}
	eb, err := json.Marshal(expected)
	if err != nil {
		return 0, fmt.Errorf("exact_match: marshal expected: %w", err)
	}
	if bytes.Equal(rb, eb) {
		return 1.0, nil
	}
	return 0.0, nil
}

// metricFuzzyMatch does a case-insensitive, whitespace-trimmed string
// comparison, falling back to substring containment when an "options.mode"
// of "contains" is set.
func metricFuzzyMatch(result, expected interface{}, opts task.Options) (float64, error) {
	rs, ok1 := toString(result)
	es, ok2 := toString(expected)
	if !ok1 || !ok2 {
		return 0, fmt.Errorf("fuzzy_match: both result and expected must be strings")
	}
	rs = strings.TrimSpace(strings.ToLower(rs))
	es = strings.TrimSpace(strings.ToLower(es))

	mode := "equal"
	if raw, ok := opts["mode"]; ok {
		_ = json.Unmarshal(raw, &mode)
	}
	switch mode {
	case "contains":
		if strings.Contains(rs, es) {
			return 1.0, nil
		}
	default:
		if rs == es {
			return 1.0, nil
		}
	}
	return 0.0, nil
}

// metricNumericTolerance scores 1.0 when |result-expected| <= tolerance
// (options.tolerance, default 0), per the numeric-coercion edge case: a
// non-numeric result coerces to 0.0 instead of returning an error; no
// warning is logged for it.
func metricNumericTolerance(result, expected interface{}, opts task.Options) (float64, error) {
	rf, ok := toFloat(result)
	if !ok {
		rf = 0.0
	}
	ef, ok := toFloat(expected)
	if !ok {
		return 0, fmt.Errorf("numeric_tolerance: expected must be numeric")
	}
	tol := 0.0
	if raw, ok := opts["tolerance"]; ok {
		_ = json.Unmarshal(raw, &tol)
	}
	if math.Abs(rf-ef) <= tol {
		return 1.0, nil
	}
	return 0.0, nil
}

// metricListInclusion scores the fraction of expected items present in the
// result list.
func metricListInclusion(result, expected interface{}, opts task.Options) (float64, error) {
	rb, _ := json.Marshal(result)
	eb, _ := json.Marshal(expected)
	var rlist, elist []string
	if err := json.Unmarshal(rb, &rlist); err != nil {
		return 0, fmt.Errorf("list_inclusion: result must be a string list: %w", err)
	}
	if err := json.Unmarshal(eb, &elist); err != nil {
		return 0, fmt.Errorf("list_inclusion: expected must be a string list: %w", err)
	}
	if len(elist) == 0 {
		return 1.0, nil
	}
	present := make(map[string]bool, len(rlist))
	for _, item := range rlist {
		present[item] = true
	}
	hits := 0
	for _, want := range elist {
		if present[want] {
			hits++
		}
	}
	return float64(hits) / float64(len(elist)), nil
}

func metricBoolean(result, expected interface{}, opts task.Options) (float64, error) {
	rb, ok1 := result.(bool)
	eb, ok2 := expected.(bool)
	if !ok1 || !ok2 {
		return 0, fmt.Errorf("boolean: both result and expected must be booleans")
	}
	if rb == eb {
		return 1.0, nil
	}
	return 0.0, nil
}

func metricBytesEqual(result, expected interface{}, opts task.Options) (float64, error) {
	rb, ok1 := result.([]byte)
	eb, ok2 := expected.([]byte)
	if !ok1 || !ok2 {
		return 0, fmt.Errorf("bytes_equal: both result and expected must be byte slices")
	}
	if bytes.Equal(rb, eb) {
		return 1.0, nil
	}
	return 0.0, nil
}
