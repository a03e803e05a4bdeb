/*
Copyright (c) 2026 hortator-ai
SPDX-License-Identifier: MIT
*/

// Package cmd implements the legatus CLI surface (§6), grounded directly
// on the teacher's cmd/hortator/cmd/root.go (persistent flags +
// PersistentPreRunE) and cmd/hortator/cmd/spawn.go (subcommand flag
// patterns, polling helper shape).
package cmd

import (
	"fmt"
	"net/http"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/legatus-arena/legatus/internal/logging"
)

var (
	resultDir       string
	testAllMetaPath string
	agentName       string
	model           string
	a11yBackend     string
	somOrigin       string
	maxSteps        int
	sleepAfterExec  float64
	screenWidth     int
	screenHeight    int
	domainFilter    string
	emulatorIP      string
	diffLvl         string
	trialID         string
	workerID        int
	numWorkers      int
	logFormat       string
	logDebug        bool
	metricsAddr     string
	outputFormat    string

	log logr.Logger
)

var rootCmd = &cobra.Command{
	Use:   "legatus",
	Short: "Benchmark runner for autonomous GUI agents against virtualised desktop tasks",
	Long: `legatus partitions a task catalog across workers, each driving one virtual
machine through a reset -> observe -> plan -> act -> evaluate episode loop,
and records the resulting trajectories to disk.

Examples:
  # Run every experiment in a manifest that is not yet marked done
  legatus run --manifest experiments.json

  # Run this process's share of one experiment's tasks directly
  legatus worker --worker_id 0 --num_workers 4 --result_dir ./results \
    --test_all_meta_path ./tasks/meta.json --agent_name fixture --model gpt-4o --max_steps 15

  # Inspect a manifest or a single task's result
  legatus status --manifest experiments.json
  legatus result normal/task-0001 --result_dir ./results`,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}
		format := logging.FormatConsole
		if logFormat == "json" {
			format = logging.FormatJSON
		}
		l, err := logging.New(format, logDebug)
		if err != nil {
			return fmt.Errorf("build logger: %w", err)
		}
		log = logging.Named(l, "legatus")

		if metricsAddr != "" {
			go func() {
				mux := http.NewServeMux()
				mux.Handle("/metrics", promhttp.Handler())
				if err := http.ListenAndServe(metricsAddr, mux); err != nil {
					log.Error(err, "metrics server exited")
				}
			}()
		}
		return nil
	},
}

// Execute runs the root command; main() exits non-zero on error (§6 "Exit
// codes: 0 on success, non-zero on fatal startup error").
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&resultDir, "result_dir", "./results", "Root of the persisted result-directory layout (§6)")
	pf.StringVar(&testAllMetaPath, "test_all_meta_path", "", "Path to the task catalog meta file")
	pf.StringVar(&agentName, "agent_name", "fixture", "Registered agent implementation to drive episodes with")
	pf.StringVar(&model, "model", "", "Model name, used for pricing lookup and the result-directory layout")
	pf.StringVar(&a11yBackend, "a11y_backend", "uia", "Accessibility backend: uia|win32")
	pf.StringVar(&somOrigin, "som_origin", "oss", "Set-of-marks origin: oss|a11y|mixed-oss|omni|mixed-omni")
	pf.IntVar(&maxSteps, "max_steps", 15, "Maximum predictions per episode")
	pf.Float64Var(&sleepAfterExec, "sleep_after_execution", 3, "Seconds to sleep after each dispatched action")
	pf.IntVar(&screenWidth, "screen_width", 1920, "Guest screen width")
	pf.IntVar(&screenHeight, "screen_height", 1080, "Guest screen height")
	pf.StringVar(&domainFilter, "domain", "", "Restrict to one task-catalog domain")
	pf.StringVar(&emulatorIP, "emulator_ip", "127.0.0.1", "Guest agent server address for this worker's VM")
	pf.StringVar(&diffLvl, "diff_lvl", "normal", "Task difficulty level: normal|hard")
	pf.StringVar(&trialID, "trial_id", "", "Trial identifier; worker and result use \"trial\" when empty")
	pf.IntVar(&workerID, "worker_id", 0, "This process's worker index in [0, num_workers)")
	pf.IntVar(&numWorkers, "num_workers", 1, "Total number of workers the task list is partitioned across")
	pf.StringVar(&logFormat, "log-format", "console", "Log encoder: console|json")
	pf.BoolVar(&logDebug, "debug", false, "Enable debug-level logging")
	pf.StringVar(&metricsAddr, "metrics_addr", "", "If set, serve Prometheus metrics on this address")
	pf.StringVarP(&outputFormat, "output", "o", "table", "Output format for status/result: table|json|yaml")
}
