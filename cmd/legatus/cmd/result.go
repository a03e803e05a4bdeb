/*
Copyright (c) 2026 hortator-ai
SPDX-License-Identifier: MIT
*/

package cmd

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"

	"github.com/legatus-arena/legatus/internal/task"
	"github.com/legatus-arena/legatus/internal/trajectory"
	"github.com/legatus-arena/legatus/internal/worker"
)

var (
	resultWait     bool
	resultWaitFor  time.Duration
	resultBundle   bool
	resultBundleTo string
)

var resultCmd = &cobra.Command{
	Use:   "result <domain>/<task-id>",
	Short: "Show one task's recorded result",
	Long: `result reads back a single episode's result.txt/summary.json from the
persisted result-directory layout (§6), identified as "<domain>/<task-id>"
under --result_dir/--action_space(computer_13)/--som_origin/--model/--trial_id.

Examples:
  legatus result chrome/task-0001 --result_dir ./results --model gpt-4o --trial_id trial-1
  legatus result chrome/task-0001 --wait --result_dir ./results --model gpt-4o --trial_id trial-1
  legatus result chrome/task-0001 --bundle --bundle-to ./bundles --result_dir ./results --model gpt-4o --trial_id trial-1`,
	Args: cobra.ExactArgs(1),
	RunE: runResult,
}

func init() {
	resultCmd.Flags().BoolVarP(&resultWait, "wait", "w", false, "Poll until result.txt appears")
	resultCmd.Flags().DurationVar(&resultWaitFor, "wait-timeout", 10*time.Minute, "Maximum time to wait with --wait")
	resultCmd.Flags().BoolVar(&resultBundle, "bundle", false, "Archive the episode's full result directory as a .tar.gz")
	resultCmd.Flags().StringVar(&resultBundleTo, "bundle-to", "./bundles", "Directory to write the --bundle archive into")
	rootCmd.AddCommand(resultCmd)
}

func runResult(cmd *cobra.Command, args []string) error {
	domain, taskID, err := splitTaskRef(args[0])
	if err != nil {
		return err
	}

	resolvedTrial := trialID
	if resolvedTrial == "" {
		resolvedTrial = "trial"
	}
	dir := worker.ResultDirFor(resultDir, "computer_13", somOrigin, model, resolvedTrial, task.Key{Domain: domain, TaskID: taskID})

	if resultWait {
		if err := waitForResult(cmd.Context(), dir, resultWaitFor); err != nil {
			return err
		}
	}

	summaryPath := filepath.Join(dir, "summary.json")
	raw, err := os.ReadFile(summaryPath)
	if os.IsNotExist(err) {
		return fmt.Errorf("no result yet for %s/%s under %s (use --wait to block for it)", domain, taskID, dir)
	}
	if err != nil {
		return fmt.Errorf("read summary: %w", err)
	}

	var summary trajectory.Summary
	if err := json.Unmarshal(raw, &summary); err != nil {
		return fmt.Errorf("parse summary: %w", err)
	}

	if resultBundle {
		archivePath, err := bundleResultDir(dir, domain, taskID, resultBundleTo)
		if err != nil {
			return fmt.Errorf("bundle artifacts: %w", err)
		}
		fmt.Printf("bundled %s/%s into %s\n", domain, taskID, archivePath)
	}

	switch outputFormat {
	case "json":
		fmt.Println(string(raw))
	case "yaml":
		out, err := yaml.JSONToYAML(raw)
		if err != nil {
			return fmt.Errorf("render yaml: %w", err)
		}
		fmt.Print(string(out))
	default:
		fmt.Printf("Task:       %s/%s\n", summary.Domain, summary.TaskID)
		fmt.Printf("Score:      %.3f\n", summary.Score)
		fmt.Printf("Outcome:    %s\n", summary.Outcome)
		fmt.Printf("Infeasible: %v\n", summary.Infeasible)
		fmt.Printf("Steps:      %d\n", summary.TotalSteps)
		if summary.TotalCostUSD > 0 {
			fmt.Printf("Cost:       $%.4f (%d prompt / %d completion tokens)\n", summary.TotalCostUSD, summary.TotalPromptToks, summary.TotalCompletToks)
		}
	}
	return nil
}

// waitForResult polls for result.txt's appearance, matching the teacher's
// --wait flag on its result command but over a filesystem marker instead
// of a CRD's terminal phase.
func waitForResult(ctx context.Context, dir string, timeout time.Duration) error {
	deadline := time.After(timeout)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		if _, err := os.Stat(filepath.Join(dir, "result.txt")); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("wait for result: %w", ctx.Err())
		case <-deadline:
			return fmt.Errorf("timed out waiting for result in %s", dir)
		case <-ticker.C:
		}
	}
}

func splitTaskRef(ref string) (domain, taskID string, err error) {
	parts := strings.SplitN(ref, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("expected <domain>/<task-id>, got %q", ref)
	}
	return parts[0], parts[1], nil
}

// bundleResultDir tars and gzips an episode's result directory, grounded
// on the teacher's artifact-download flow in cmd/hortator/cmd/result.go
// and internal/artifacts/extractor.go, adapted from exec-into-pod-then-cat
// to a direct filesystem walk since episodes here run against a locally
// reachable result directory rather than a PVC mounted in a cluster.
func bundleResultDir(dir, domain, taskID, outDir string) (string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("create bundle dir: %w", err)
	}
	name := fmt.Sprintf("%s-%s.tar.gz", domain, taskID)
	archivePath := filepath.Join(outDir, name)

	f, err := os.Create(archivePath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	defer gz.Close()
	tw := tar.NewWriter(gz)
	defer tw.Close()

	return archivePath, filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = rel
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		src, err := os.Open(path)
		if err != nil {
			return err
		}
		defer src.Close()
		_, err = io.Copy(tw, src)
		return err
	})
}
