/*
Copyright (c) 2026 hortator-ai
SPDX-License-Identifier: MIT
*/

package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"

	"github.com/legatus-arena/legatus/internal/experiment"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "List every experiment in a manifest and its progress",
	Long: `status reads an experiments manifest and reports each entry's bookkeeping
(start time, stop time, done flag).

Examples:
  legatus status --manifest experiments.json
  legatus status --manifest experiments.json -o json`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&manifestPath, "manifest", "experiments.json", "Path to the experiments manifest")
	rootCmd.AddCommand(statusCmd)
}

type experimentStatusRow struct {
	Name       string `json:"name"`
	NumWorkers int    `json:"num_workers"`
	Domain     string `json:"domain,omitempty"`
	Model      string `json:"model"`
	StartTime  string `json:"start_time,omitempty"`
	StopTime   string `json:"stop_time,omitempty"`
	Done       bool   `json:"done"`
	Phase      string `json:"phase"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	store := experiment.NewManifestStore(manifestPath)
	m, err := store.Load()
	if err != nil {
		return fmt.Errorf("load manifest: %w", err)
	}

	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)

	rows := make([]experimentStatusRow, 0, len(names))
	for _, name := range names {
		cfg := m[name]
		row := experimentStatusRow{
			Name:       name,
			NumWorkers: cfg.NumWorkers,
			Domain:     cfg.Domain,
			Model:      cfg.Model,
			Done:       cfg.Done,
			Phase:      phaseOf(cfg.StartTime, cfg.StopTime, cfg.Done),
		}
		if cfg.StartTime != nil {
			row.StartTime = cfg.StartTime.Format("2006-01-02T15:04:05Z")
		}
		if cfg.StopTime != nil {
			row.StopTime = cfg.StopTime.Format("2006-01-02T15:04:05Z")
		}
		rows = append(rows, row)
	}

	switch outputFormat {
	case "json":
		raw, err := json.MarshalIndent(rows, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(raw))
		return nil
	case "yaml":
		raw, err := yaml.Marshal(rows)
		if err != nil {
			return err
		}
		fmt.Print(string(raw))
		return nil
	}

	if len(rows) == 0 {
		fmt.Println("no experiments in manifest")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tPHASE\tWORKERS\tMODEL\tSTARTED\tSTOPPED")
	for _, row := range rows {
		started, stopped := row.StartTime, row.StopTime
		if started == "" {
			started = "-"
		}
		if stopped == "" {
			stopped = "-"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\n", row.Name, row.Phase, row.NumWorkers, row.Model, started, stopped)
	}
	return w.Flush()
}

func phaseOf(start, stop *time.Time, done bool) string {
	if done {
		return "done"
	}
	if start != nil {
		return "running"
	}
	return "pending"
}
