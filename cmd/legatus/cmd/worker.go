/*
Copyright (c) 2026 hortator-ai
SPDX-License-Identifier: MIT
*/

package cmd

import (
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/legatus-arena/legatus/internal/agent"
	"github.com/legatus-arena/legatus/internal/budget"
	"github.com/legatus-arena/legatus/internal/episode"
	"github.com/legatus-arena/legatus/internal/evaluator"
	"github.com/legatus-arena/legatus/internal/guestclient"
	"github.com/legatus-arena/legatus/internal/stream"
	"github.com/legatus-arena/legatus/internal/task"
	"github.com/legatus-arena/legatus/internal/vmcontrol"
	"github.com/legatus-arena/legatus/internal/worker"
)

// guestAgentPort is the well-known port the guest-side HTTP stub server
// listens on inside each VM (§4.1).
const guestAgentPort = 5000

var (
	vmControlAddr string
	watchAddr     string
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run this process's share of a task catalog against one VM",
	Long: `worker is the Worker Orchestrator (C7): it partitions the flattened task
catalog across num_workers peers, skips tasks this run has already
completed, and drives its own share through the Episode Engine against the
VM addressed by --emulator_ip (and, if --vm_control_addr is set, a local
hypervisor control channel for snapshot/restore).

This is also the subcommand the Experiment Runner (legatus run) spawns
once per worker_id; invoking it directly runs exactly one worker's share
without any manifest bookkeeping.`,
	RunE: runWorker,
}

func init() {
	workerCmd.Flags().StringVar(&vmControlAddr, "vm_control_addr", "", "Hypervisor control channel address (host:port); omit for remote/cloud VMs")
	workerCmd.Flags().StringVar(&watchAddr, "watch_addr", "", "If set, serve a /ws/steps live per-episode feed on this address for 'legatus watch'")
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if testAllMetaPath == "" {
		return fmt.Errorf("--test_all_meta_path is required")
	}

	cat, err := task.LoadCatalog(testAllMetaPath, resultDirSibling(testAllMetaPath))
	if err != nil {
		return fmt.Errorf("load task catalog: %w", err)
	}
	if domainFilter != "" {
		cat = filterDomain(cat, domainFilter)
	}

	predictor, err := resolveAgent(agentName)
	if err != nil {
		return err
	}

	guest := guestclient.New(fmt.Sprintf("http://%s:%d", emulatorIP, guestAgentPort), log)

	var vm *vmcontrol.Client
	if vmControlAddr != "" {
		vm = vmcontrol.New(vmControlAddr)
	}

	prices := budget.NewPriceMap(24, log)

	eng := &episode.Engine{
		Guest:  guest,
		VM:     vm,
		Agent:  predictor,
		Kernel: evaluator.NewKernel(evaluator.NewRegistry()),
		Prices: prices,
		Model:  model,
		Config: episode.Config{
			MaxSteps:       maxSteps,
			WallClock:      episode.DefaultConfig.WallClock,
			SleepAfterExec: time.Duration(sleepAfterExec * float64(time.Second)),
			ReadyPollEvery: episode.DefaultConfig.ReadyPollEvery,
			ReadyMaxPolls:  episode.DefaultConfig.ReadyMaxPolls,
		},
		Log: log,
	}

	var broadcaster *stream.Broadcaster
	if watchAddr != "" {
		broadcaster = stream.NewBroadcaster(log)
		mux := http.NewServeMux()
		mux.Handle("/ws/steps", broadcaster)
		go func() {
			if err := http.ListenAndServe(watchAddr, mux); err != nil {
				log.Error(err, "watch feed server exited")
			}
		}()
	}

	resolvedTrial := trialID
	if resolvedTrial == "" {
		resolvedTrial = "trial"
	}
	actionSpace := "computer_13"
	obsType := somOrigin

	orch := &worker.Orchestrator{
		WorkerID:  workerID,
		Catalog:   cat,
		Engine:    eng,
		Log:       log,
		Broadcast: broadcaster,
		Layout: func(k task.Key) string {
			return worker.ResultDirFor(resultDir, actionSpace, obsType, model, resolvedTrial, k)
		},
	}

	rep, err := orch.Run(ctx, numWorkers)
	if err != nil {
		return fmt.Errorf("worker %d: %w", workerID, err)
	}

	fmt.Printf("worker %d: attempted=%d succeeded=%d skipped=%d success_rate=%.3f\n",
		rep.WorkerID, rep.Attempted, rep.Succeeded, rep.Skipped, rep.SuccessPct)
	return nil
}

// resolveAgent is the only registered Predictor in this repo: the real
// agent is an external black-box collaborator (§1), so "fixture" is the
// built-in stand-in used for dry runs and tests; any other name fails
// fast rather than silently falling back, per Design Note "unknown tag ⇒
// structured error rather than runtime failure."
func resolveAgent(name string) (agent.Predictor, error) {
	switch name {
	case "fixture", "":
		return agent.NewFixture(), nil
	default:
		return nil, fmt.Errorf("worker: no agent registered for %q (the real predictor is an external collaborator; wire one in via cmd/legatus/cmd/worker.go resolveAgent)", name)
	}
}

func filterDomain(cat task.Catalog, domain string) task.Catalog {
	tasks, ok := cat[domain]
	if !ok {
		return task.Catalog{}
	}
	return task.Catalog{domain: tasks}
}

// resultDirSibling guesses the per-task descriptor directory as the
// sibling "examples" tree next to the meta file, matching the original
// tool's examples_windows layout referenced by task.LoadCatalog's doc
// comment.
func resultDirSibling(metaPath string) string {
	return filepath.Join(filepath.Dir(metaPath), "examples")
}
