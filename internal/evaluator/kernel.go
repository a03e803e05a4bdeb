/*
Copyright (c) 2026 hortator-ai
SPDX-License-Identifier: MIT
*/

package evaluator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/legatus-arena/legatus/internal/task"
)

// Memo caches getter results within one episode's evaluation, since the
// same GetterSpec can appear as both a "result" and an "expected" source
// across several metrics in a conjunction (§4.5). Callers create a fresh
// Memo per episode; it must not be shared across episodes.
type Memo struct {
	mu    sync.Mutex
	cache map[string]interface{}
}

func NewMemo() *Memo {
	return &Memo{cache: make(map[string]interface{})}
}

func memoKey(spec task.GetterSpec) string {
	raw, err := json.Marshal(spec)
	if err != nil {
		return spec.Type
	}
	return string(raw)
}

// Kernel evaluates one task's Evaluator against a live Env.
type Kernel struct {
	Registry *Registry
}

func NewKernel(r *Registry) *Kernel {
	if r == nil {
		r = NewRegistry()
	}
	return &Kernel{Registry: r}
}

// MetricOutcome is one func/result/expected evaluation within the
// conjunction, recorded for the trajectory (§4.5, §4.6).
type MetricOutcome struct {
	Func  string  `json:"func"`
	Score float64 `json:"score"`
	Error string  `json:"error,omitempty"`
}

// Outcome is the final evaluation result for one episode.
type Outcome struct {
	Score      float64         `json:"score"`
	Infeasible bool            `json:"infeasible,omitempty"`
	Metrics    []MetricOutcome `json:"metrics"`
}

// resolve fetches a GetterSpec's value through memo, or runs the getter and
// caches it.
func (k *Kernel) resolve(ctx context.Context, spec task.GetterSpec, env Env, memo *Memo) (interface{}, error) {
	key := memoKey(spec)
	memo.mu.Lock()
	if v, ok := memo.cache[key]; ok {
		memo.mu.Unlock()
		return v, nil
	}
	memo.mu.Unlock()

	fn, err := k.Registry.getter(spec.Type)
	if err != nil {
		return nil, err
	}
	v, err := fn(ctx, spec, env)
	if err != nil {
		return nil, err
	}

	memo.mu.Lock()
	memo.cache[key] = v
	memo.mu.Unlock()
	return v, nil
}

// Evaluate runs ev's func/result/expected/options lists against env,
// combining per-metric scores with ev.ResolvedConj() and short-circuiting
// as soon as the outcome is decided (AND stops at the first 0, OR stops at
// the first 1), per §4.5. When no short circuit fires, the combined score is
// mean(scores) for AND or max(scores) for OR (§4.5 step 4); the
// "infeasible" evaluator is handled one level up by the episode engine,
// which alone knows whether the agent actually emitted FAIL (§8 scenario 1).
func (k *Kernel) Evaluate(ctx context.Context, ev task.Evaluator, env Env, memo *Memo) Outcome {
	conj := ev.ResolvedConj()
	out := Outcome{Metrics: make([]MetricOutcome, 0, len(ev.Func.Items))}

	decided := false
	var decidedScore float64
	scores := make([]float64, 0, len(ev.Func.Items))

	for i, metricName := range ev.Func.Items {
		if decided {
			// Still record a placeholder so trajectory/report tooling sees
			// every configured metric even when short-circuited, per
			// Design Note "report what was skipped, never truncate
			// silently".
			out.Metrics = append(out.Metrics, MetricOutcome{Func: metricName, Score: -1})
			continue
		}

		score, err := k.evaluateOne(ctx, ev, i, metricName, env, memo)
		if err != nil {
			out.Metrics = append(out.Metrics, MetricOutcome{Func: metricName, Error: err.Error()})
			score = 0.0
		} else {
			out.Metrics = append(out.Metrics, MetricOutcome{Func: metricName, Score: score})
		}
		scores = append(scores, score)

		switch conj {
		case task.ConjOr:
			if score >= 1.0 {
				decided, decidedScore = true, 1.0
			}
		default: // AND
			if score <= 0.0 {
				decided, decidedScore = true, 0.0
			}
		}
	}

	switch {
	case decided:
		out.Score = decidedScore
	case conj == task.ConjOr:
		out.Score = maxScore(scores)
	default:
		out.Score = meanScore(scores)
	}
	return out
}

func maxScore(scores []float64) float64 {
	max := 0.0
	for i, s := range scores {
		if i == 0 || s > max {
			max = s
		}
	}
	return max
}

func meanScore(scores []float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range scores {
		sum += s
	}
	return sum / float64(len(scores))
}

func (k *Kernel) evaluateOne(ctx context.Context, ev task.Evaluator, i int, metricName string, env Env, memo *Memo) (float64, error) {
	metricFn, err := k.Registry.metric(metricName)
	if err != nil {
		return 0, err
	}

	var resultSpec, expectedSpec task.GetterSpec
	if len(ev.Result.Items) > 0 {
		resultSpec = ev.Result.Items[pick(i, len(ev.Result.Items))]
	}
	if len(ev.Expected.Items) > 0 {
		expectedSpec = ev.Expected.Items[pick(i, len(ev.Expected.Items))]
	}

	var opts task.Options
	if len(ev.Options.Items) > 0 {
		opts = ev.Options.Items[pick(i, len(ev.Options.Items))]
	}

	result, err := k.resolve(ctx, resultSpec, env, memo)
	if err != nil {
		return 0, fmt.Errorf("resolve result for %s: %w", metricName, err)
	}
	var expected interface{}
	if expectedSpec.Type != "" {
		expected, err = k.resolve(ctx, expectedSpec, env, memo)
		if err != nil {
			return 0, fmt.Errorf("resolve expected for %s: %w", metricName, err)
		}
	}

	return metricFn(result, expected, opts)
}

// pick maps index i into a length-n list that may be shorter than Func
// (per the evaluator's length invariant, it is either len(Func) or 0 or 1,
// but 1-length scalar-broadcast means every i maps to index 0).
func pick(i, n int) int {
	if n == 1 {
		return 0
	}
	if i < n {
		return i
	}
	return n - 1
}
