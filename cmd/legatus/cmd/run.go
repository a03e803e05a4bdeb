/*
Copyright (c) 2026 hortator-ai
SPDX-License-Identifier: MIT
*/

package cmd

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/legatus-arena/legatus/internal/experiment"
)

var (
	manifestPath   string
	onUnfinished   string
	runExperiments []string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Drive every not-yet-done experiment in a manifest to completion",
	Long: `run is the Experiment Runner (C8): for each experiment in --manifest not
already marked done, it spawns one "legatus worker" subprocess per
worker_id and records start/stop/done bookkeeping back into the manifest.

Examples:
  legatus run --manifest experiments.json
  legatus run --manifest experiments.json --experiment normal-chrome
  legatus run --manifest experiments.json --on-unfinished resume`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&manifestPath, "manifest", "experiments.json", "Path to the experiments manifest")
	runCmd.Flags().StringVar(&onUnfinished, "on-unfinished", "prompt", "Policy for an experiment with a start time but no done flag: prompt|resume|skip|abort")
	runCmd.Flags().StringSliceVar(&runExperiments, "experiment", nil, "Restrict to these experiment names (repeatable); defaults to every manifest entry")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	store := experiment.NewManifestStore(manifestPath)

	names := runExperiments
	if len(names) == 0 {
		m, err := store.Load()
		if err != nil {
			return fmt.Errorf("load manifest: %w", err)
		}
		for name := range m {
			names = append(names, name)
		}
		sort.Strings(names)
	}
	if len(names) == 0 {
		fmt.Println("no experiments in manifest")
		return nil
	}

	bin, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve worker binary: %w", err)
	}

	policy := experiment.UnfinishedPolicy(onUnfinished)
	var stdin io.Reader
	if isatty.IsTerminal(os.Stdin.Fd()) {
		stdin = os.Stdin
	}

	r := &experiment.Runner{
		Store:      store,
		WorkerBin:  bin,
		Unfinished: policy,
		Log:        log,
		Stdin:      stdin,
		Stdout:     os.Stdout,
	}

	return r.RunAll(cmd.Context(), names)
}
