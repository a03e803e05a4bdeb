/*
Copyright (c) 2026 hortator-ai
SPDX-License-Identifier: MIT
*/

// Package worker implements the Worker Orchestrator (C7): partitioning the
// flattened task list across worker processes, skipping already-completed
// tasks, driving the Episode Engine over this worker's share, and
// aggregating a success rate (§4.7).
//
// The teacher's analog is internal/controller/result_cache.go's
// completed-work skip check, adapted here from an in-memory LRU keyed on a
// prompt hash to a filesystem result.txt existence probe, since that is
// what §4.7 actually specifies as the completeness test.
package worker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-logr/logr"

	"github.com/legatus-arena/legatus/internal/episode"
	"github.com/legatus-arena/legatus/internal/stream"
	"github.com/legatus-arena/legatus/internal/task"
	"github.com/legatus-arena/legatus/internal/trajectory"
)

// Partition splits the flattened, deterministically-ordered key list across
// numWorkers, distributing the remainder to the lowest-indexed workers
// (§4.7 step 2, §8 "partition edge case").
func Partition(keys []task.Key, numWorkers, workerID int) []task.Key {
	if numWorkers <= 0 {
		return nil
	}
	n := len(keys)
	base := n / numWorkers
	remainder := n % numWorkers

	start := workerID*base + minInt(workerID, remainder)
	count := base
	if workerID < remainder {
		count++
	}
	if start >= n {
		return nil
	}
	end := start + count
	if end > n {
		end = n
	}
	out := make([]task.Key, end-start)
	copy(out, keys[start:end])
	return out
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// ResultDirFor returns the persisted-state layout path for one task (§6).
func ResultDirFor(root, actionSpace, obsType, model, trialID string, k task.Key) string {
	return filepath.Join(root, actionSpace, obsType, model, trialID, k.Domain, k.TaskID)
}

// IsComplete reports whether dir already holds a finished result (§4.7
// step 3): a result.txt file exists. A directory that exists but lacks
// result.txt is partial and is wiped so a crashed prior attempt does not
// poison a resumed run.
func IsComplete(dir string) (bool, error) {
	_, err := os.Stat(filepath.Join(dir, "result.txt"))
	if err == nil {
		return true, nil
	}
	if !os.IsNotExist(err) {
		return false, fmt.Errorf("worker: stat result.txt: %w", err)
	}
	if _, statErr := os.Stat(dir); statErr == nil {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			return false, fmt.Errorf("worker: wipe partial result dir %q: %w", dir, rmErr)
		}
	}
	return false, nil
}

// Item is one task this worker must attempt, paired with the result
// directory it owns exclusively (§5 "the result directory is owned by a
// single worker; no cross-worker writes").
type Item struct {
	Key task.Key
	Dir string
}

// Plan resolves the full set of items this worker must run: partition,
// then filter out already-complete tasks.
func Plan(cat task.Catalog, numWorkers, workerID int, layout func(task.Key) string) ([]Item, error) {
	keys := cat.Flatten()
	mine := Partition(keys, numWorkers, workerID)

	items := make([]Item, 0, len(mine))
	for _, k := range mine {
		dir := layout(k)
		complete, err := IsComplete(dir)
		if err != nil {
			return nil, err
		}
		if complete {
			continue
		}
		items = append(items, Item{Key: k, Dir: dir})
	}
	return items, nil
}

// Report is the aggregate this worker emits once its share is finished
// (§4.7 step 5).
type Report struct {
	WorkerID   int
	Attempted  int
	Succeeded  int
	Skipped    int
	Scores     []float64
	SuccessPct float64
}

// Orchestrator drives one worker process's allotted share of tasks through
// the Episode Engine, one VM, strictly sequentially (§4.7, §5 "within a
// process, the episode engine is strictly sequential").
type Orchestrator struct {
	WorkerID int
	Catalog  task.Catalog
	Engine   *episode.Engine
	Layout   func(task.Key) string
	Log      logr.Logger

	// Broadcast, if set, is pushed one event per finished episode so
	// `legatus watch` can subscribe instead of polling result files.
	Broadcast *stream.Broadcaster
}

// Run executes Plan's items in order. A single task's infrastructure
// failure is logged and does not abort the remaining share; only a failure
// to even compute the plan is fatal (§4.7, §7 "anything limited to a
// single step/task is swallowed with a log line").
func (o *Orchestrator) Run(ctx context.Context, numWorkers int) (Report, error) {
	mine := Partition(o.Catalog.Flatten(), numWorkers, o.WorkerID)
	items, err := Plan(o.Catalog, numWorkers, o.WorkerID, o.Layout)
	if err != nil {
		return Report{WorkerID: o.WorkerID}, fmt.Errorf("worker %d: plan: %w", o.WorkerID, err)
	}

	rep := Report{WorkerID: o.WorkerID, Skipped: len(mine) - len(items)}

	for _, item := range items {
		select {
		case <-ctx.Done():
			return rep, ctx.Err()
		default:
		}

		desc, ok := o.Catalog.Get(item.Key)
		if !ok {
			o.Log.Error(fmt.Errorf("task vanished from catalog"), "skipping", "task", item.Key.String())
			continue
		}

		w, err := trajectory.NewWriter(item.Dir, o.Log)
		if err != nil {
			o.Log.Error(err, "could not open trajectory writer, skipping task", "task", item.Key.String())
			continue
		}

		summary, runErr := o.Engine.Run(ctx, desc, w)
		_ = w.Close()

		rep.Attempted++
		rep.Scores = append(rep.Scores, summary.Score)
		if summary.Score > 0 {
			rep.Succeeded++
		}
		if runErr != nil {
			o.Log.Error(runErr, "episode infrastructure failure", "task", item.Key.String())
		}

		if o.Broadcast != nil {
			// Publish is non-blocking: a slow/absent watcher must never
			// delay the next guest RPC for this worker's VM.
			o.Broadcast.Publish(stream.Event{
				WorkerID: o.WorkerID,
				Domain:   item.Key.Domain,
				TaskID:   item.Key.TaskID,
				Score:    summary.Score,
				Outcome:  summary.Outcome,
				Steps:    summary.TotalSteps,
			})
		}
	}

	if rep.Attempted > 0 {
		rep.SuccessPct = float64(rep.Succeeded) / float64(rep.Attempted)
	}
	o.Log.Info("worker finished its share", "worker_id", o.WorkerID, "attempted", rep.Attempted, "succeeded", rep.Succeeded, "skipped", rep.Skipped, "success_rate", rep.SuccessPct)
	return rep, nil
}
