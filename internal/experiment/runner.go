/*
Copyright (c) 2026 hortator-ai
SPDX-License-Identifier: MIT
*/

package experiment

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/legatus-arena/legatus/internal/task"
)

// UnfinishedPolicy decides what happens to an experiment whose manifest
// entry has a start time but is not marked done (§4.8 "already-started-
// but-not-finished experiments prompt the operator to resume, skip, or
// abort"; SPEC_FULL.md §12 turns that prompt into this explicit flag with
// an interactive fallback).
type UnfinishedPolicy string

const (
	PolicyPrompt UnfinishedPolicy = "prompt"
	PolicyResume UnfinishedPolicy = "resume"
	PolicySkip   UnfinishedPolicy = "skip"
	PolicyAbort  UnfinishedPolicy = "abort"
)

// Runner is the Experiment Runner (C8): it owns the manifest and spawns one
// worker subprocess per worker_id for each experiment not yet done,
// grounded on the teacher's cmd/hortator/cmd/root.go + spawn.go CLI shape
// and its warm-pool startup-resume pattern (SetupWithManager).
type Runner struct {
	Store      *ManifestStore
	WorkerBin  string // path to this binary; re-invoked as "<bin> worker ..."
	Unfinished UnfinishedPolicy
	Log        logr.Logger
	Stdin      io.Reader
	Stdout     io.Writer
}

// RunAll iterates every manifest entry not already marked done and drives
// it to completion (§4.8). Experiments are processed in manifest order;
// manifest iteration order is Go's randomized map order is avoided by the
// caller pre-sorting names if determinism across runs matters.
func (r *Runner) RunAll(ctx context.Context, names []string) error {
	for _, name := range names {
		if err := r.runOne(ctx, name); err != nil {
			return fmt.Errorf("experiment %q: %w", name, err)
		}
	}
	return nil
}

func (r *Runner) runOne(ctx context.Context, name string) error {
	var cfg task.ExperimentConfig
	found := false
	if err := r.Store.Mutate(func(m task.Manifest) error {
		c, ok := m[name]
		if !ok {
			return fmt.Errorf("unknown experiment %q", name)
		}
		found = true
		cfg = *c
		return nil
	}); err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("experiment %q not found in manifest", name)
	}

	if cfg.Done {
		r.Log.Info("experiment already done, skipping", "experiment", name)
		return nil
	}

	if cfg.StartTime != nil {
		decision, err := r.resolveUnfinished(name)
		if err != nil {
			return err
		}
		switch decision {
		case PolicySkip:
			r.Log.Info("skipping unfinished experiment per operator choice", "experiment", name)
			return nil
		case PolicyAbort:
			return fmt.Errorf("aborted at operator's request")
		case PolicyResume:
			r.Log.Info("resuming unfinished experiment", "experiment", name)
		}
	}

	if cfg.TrialID == "" {
		cfg.TrialID = uuid.NewString()
	}

	start := time.Now().UTC()
	if err := r.Store.Mutate(func(m task.Manifest) error {
		c := m[name]
		c.StartTime = &start
		c.TrialID = cfg.TrialID
		return nil
	}); err != nil {
		return fmt.Errorf("persist start time: %w", err)
	}

	if err := r.spawnWorkers(ctx, cfg); err != nil {
		return err
	}

	stop := time.Now().UTC()
	return r.Store.Mutate(func(m task.Manifest) error {
		c := m[name]
		c.StopTime = &stop
		c.Done = true
		return nil
	})
}

// resolveUnfinished applies Unfinished, prompting the operator on the
// configured Stdin/Stdout when the policy is PolicyPrompt and stdin looks
// interactive; a non-interactive run defaults to resume (SPEC_FULL.md §12).
func (r *Runner) resolveUnfinished(name string) (UnfinishedPolicy, error) {
	if r.Unfinished != "" && r.Unfinished != PolicyPrompt {
		return r.Unfinished, nil
	}
	if r.Stdin == nil {
		return PolicyResume, nil
	}

	fmt.Fprintf(r.Stdout, "experiment %q already has a start time but is not marked done.\n", name)
	fmt.Fprint(r.Stdout, "[r]esume, [s]kip, or [a]bort? [r] ")
	scanner := bufio.NewScanner(r.Stdin)
	if !scanner.Scan() {
		return PolicyResume, nil
	}
	switch scanner.Text() {
	case "s", "skip":
		return PolicySkip, nil
	case "a", "abort":
		return PolicyAbort, nil
	default:
		return PolicyResume, nil
	}
}

// spawnWorkers launches one "<bin> worker ..." subprocess per worker_id and
// waits for all of them (§4.8 step 2), using golang.org/x/sync/errgroup the
// way the teacher's dependency set carries it for bounded concurrent
// fan-out/wait.
func (r *Runner) spawnWorkers(ctx context.Context, cfg task.ExperimentConfig) error {
	ids := cfg.WorkerIDs
	if len(ids) == 0 {
		ids = make([]int, cfg.NumWorkers)
		for i := range ids {
			ids[i] = i
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			return r.runWorkerProcess(gctx, cfg, id)
		})
	}
	return g.Wait()
}

func (r *Runner) runWorkerProcess(ctx context.Context, cfg task.ExperimentConfig, workerID int) error {
	args := []string{
		"worker",
		"--worker_id", strconv.Itoa(workerID),
		"--num_workers", strconv.Itoa(cfg.NumWorkers),
		"--result_dir", cfg.ResultDir,
		"--test_all_meta_path", cfg.TestAllMetaPath,
		"--agent_name", cfg.AgentName,
		"--model", cfg.Model,
		"--max_steps", strconv.Itoa(cfg.MaxSteps),
		"--trial_id", cfg.TrialID,
	}
	if cfg.A11yBackend != "" {
		args = append(args, "--a11y_backend", cfg.A11yBackend)
	}
	if cfg.SomOrigin != "" {
		args = append(args, "--som_origin", cfg.SomOrigin)
	}
	if cfg.Domain != "" {
		args = append(args, "--domain", cfg.Domain)
	}
	if cfg.DiffLvl != "" {
		args = append(args, "--diff_lvl", cfg.DiffLvl)
	}
	if cfg.SleepAfterExec > 0 {
		args = append(args, "--sleep_after_execution", fmt.Sprintf("%g", cfg.SleepAfterExec))
	}
	if workerID < len(cfg.EmulatorIPs) {
		args = append(args, "--emulator_ip", cfg.EmulatorIPs[workerID])
	}

	cmd := exec.CommandContext(ctx, r.WorkerBin, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = nil

	r.Log.Info("spawning worker process", "worker_id", workerID, "args", args)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("worker %d: %w", workerID, err)
	}
	return nil
}
