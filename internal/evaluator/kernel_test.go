/*
Copyright (c) 2026 hortator-ai
SPDX-License-Identifier: MIT
*/

package evaluator

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/legatus-arena/legatus/internal/task"
)

type fakeEnv struct {
	queryResults map[string]interface{}
	files        map[string][]byte
}

func (f *fakeEnv) Query(ctx context.Context, endpoint string, payload, out interface{}) error {
	v, ok := f.queryResults[endpoint]
	if !ok {
		return nil
	}
	raw, _ := json.Marshal(v)
	return json.Unmarshal(raw, out)
}

func (f *fakeEnv) File(ctx context.Context, path string) ([]byte, error) {
	return f.files[path], nil
}

func specFor(t *testing.T, typ string, payload string) task.GetterSpec {
	t.Helper()
	raw := []byte(`{"type":"` + typ + `"` + payload + `}`)
	var spec task.GetterSpec
	if err := json.Unmarshal(raw, &spec); err != nil {
		t.Fatalf("build getter spec: %v", err)
	}
	return spec
}

func TestEvaluateFuzzyMatchWithoutExpectedRecordsOneMetric(t *testing.T) {
	env := &fakeEnv{queryResults: map[string]interface{}{
		"registry": map[string]interface{}{"result": "dark"},
	}}
	k := NewKernel(NewRegistry())
	ev := task.Evaluator{
		Func:   task.ScalarOrList[string]{Items: []string{"fuzzy_match"}},
		Result: task.ScalarOrList[task.GetterSpec]{Items: []task.GetterSpec{specFor(t, "registry", `,"key":"theme"`)}},
	}
	memo := NewMemo()
	out := k.Evaluate(context.Background(), ev, env, memo)
	// fuzzy_match compares result to expected; expected is unset (nil,
	// "") here so the two differ — verifying the path runs end to end
	// without requiring a match.
	if len(out.Metrics) != 1 {
		t.Fatalf("expected one metric outcome, got %d", len(out.Metrics))
	}
}

func TestEvaluateConjAndAveragesWhenNoShortCircuit(t *testing.T) {
	env := &fakeEnv{}
	k := NewKernel(NewRegistry())
	k.Registry.RegisterGetter("partial", func(ctx context.Context, spec task.GetterSpec, e Env) (interface{}, error) {
		return []string{"a", "b"}, nil
	})
	k.Registry.RegisterGetter("full", func(ctx context.Context, spec task.GetterSpec, e Env) (interface{}, error) {
		return []string{"a", "b", "c"}, nil
	})
	k.Registry.RegisterGetter("exact", func(ctx context.Context, spec task.GetterSpec, e Env) (interface{}, error) {
		return "x", nil
	})
	ev := task.Evaluator{
		Func: task.ScalarOrList[string]{Items: []string{"list_inclusion", "exact_match"}},
		Result: task.ScalarOrList[task.GetterSpec]{Items: []task.GetterSpec{
			specFor(t, "partial", ""), specFor(t, "exact", ""),
		}},
		Expected: task.ScalarOrList[task.GetterSpec]{Items: []task.GetterSpec{
			specFor(t, "full", ""), specFor(t, "exact", ""),
		}},
	}
	memo := NewMemo()
	out := k.Evaluate(context.Background(), ev, env, memo)
	// Neither metric hits 0, so AND with no short circuit averages them:
	// mean(0.667, 1.0) ~= 0.833.
	if out.Score < 0.83 || out.Score > 0.84 {
		t.Fatalf("expected mean score ~0.833, got %v", out.Score)
	}
}

func TestEvaluateConjOrTakesMaxWhenNoShortCircuit(t *testing.T) {
	env := &fakeEnv{}
	k := NewKernel(NewRegistry())
	k.Registry.RegisterGetter("half", func(ctx context.Context, spec task.GetterSpec, e Env) (interface{}, error) {
		return []string{"a"}, nil
	})
	k.Registry.RegisterGetter("halfExpected", func(ctx context.Context, spec task.GetterSpec, e Env) (interface{}, error) {
		return []string{"a", "b"}, nil
	})
	k.Registry.RegisterGetter("threeQuarter", func(ctx context.Context, spec task.GetterSpec, e Env) (interface{}, error) {
		return []string{"a", "b", "c"}, nil
	})
	k.Registry.RegisterGetter("threeQuarterExpected", func(ctx context.Context, spec task.GetterSpec, e Env) (interface{}, error) {
		return []string{"a", "b", "c", "d"}, nil
	})
	ev := task.Evaluator{
		Conj: task.ConjOr,
		Func: task.ScalarOrList[string]{Items: []string{"list_inclusion", "list_inclusion"}},
		Result: task.ScalarOrList[task.GetterSpec]{Items: []task.GetterSpec{
			specFor(t, "half", ""), specFor(t, "threeQuarter", ""),
		}},
		Expected: task.ScalarOrList[task.GetterSpec]{Items: []task.GetterSpec{
			specFor(t, "halfExpected", ""), specFor(t, "threeQuarterExpected", ""),
		}},
	}
	memo := NewMemo()
	out := k.Evaluate(context.Background(), ev, env, memo)
	// Neither metric hits 1.0 (0.5 and 0.75), so OR with no short circuit
	// takes the max: 0.75.
	if out.Score < 0.74 || out.Score > 0.76 {
		t.Fatalf("expected OR max ~0.75, got %v", out.Score)
	}
}

func TestEvaluateConjAndShortCircuitsOnZero(t *testing.T) {
	env := &fakeEnv{}
	k := NewKernel(NewRegistry())
	k.Registry.RegisterGetter("always_true", func(ctx context.Context, spec task.GetterSpec, e Env) (interface{}, error) {
		return true, nil
	})
	k.Registry.RegisterGetter("always_false", func(ctx context.Context, spec task.GetterSpec, e Env) (interface{}, error) {
		return false, nil
	})
	ev := task.Evaluator{
		Func: task.ScalarOrList[string]{Items: []string{"boolean", "boolean"}},
		Result: task.ScalarOrList[task.GetterSpec]{Items: []task.GetterSpec{
			specFor(t, "always_false", ""), specFor(t, "always_true", ""),
		}},
		Expected: task.ScalarOrList[task.GetterSpec]{Items: []task.GetterSpec{
			specFor(t, "always_true", ""), specFor(t, "always_true", ""),
		}},
	}
	memo := NewMemo()
	out := k.Evaluate(context.Background(), ev, env, memo)
	if out.Score != 0.0 {
		t.Fatalf("expected AND conjunction to fail on first 0, got %v", out.Score)
	}
	if out.Metrics[1].Score != -1 {
		t.Fatalf("expected second metric to be marked skipped, got %+v", out.Metrics[1])
	}
}

func TestMetricListInclusionPartialScore(t *testing.T) {
	score, err := metricListInclusion([]string{"a", "b"}, []string{"a", "b", "c"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if score < 0.66 || score > 0.67 {
		t.Fatalf("expected ~0.667, got %v", score)
	}
}

func TestMetricNumericToleranceCoercesNonNumericToZero(t *testing.T) {
	score, err := metricNumericTolerance("not-a-number", 0.0, task.Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if score != 1.0 {
		t.Fatalf("expected coerced 0.0 to match expected 0.0 within default tolerance, got %v", score)
	}
}
