/*
Copyright (c) 2026 hortator-ai
SPDX-License-Identifier: MIT
*/

package task

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// ExperimentConfig is one entry of the experiments manifest: the runner
// flags for one named experiment, plus the three reserved bookkeeping
// fields the spec calls out (§6 File formats).
type ExperimentConfig struct {
	WorkerIDs         []int    `json:"worker_ids,omitempty"`
	NumWorkers        int      `json:"num_workers"`
	ResultDir         string   `json:"result_dir"`
	TestAllMetaPath   string   `json:"test_all_meta_path"`
	AgentName         string   `json:"agent_name"`
	Model             string   `json:"model"`
	A11yBackend       string   `json:"a11y_backend,omitempty"`
	SomOrigin         string   `json:"som_origin,omitempty"`
	MaxSteps          int      `json:"max_steps"`
	SleepAfterExec    float64  `json:"sleep_after_execution,omitempty"`
	ScreenWidth       int      `json:"screen_width,omitempty"`
	ScreenHeight      int      `json:"screen_height,omitempty"`
	Domain            string   `json:"domain,omitempty"`
	EmulatorIPs       []string `json:"emulator_ips,omitempty"`
	DiffLvl           string   `json:"diff_lvl,omitempty"`
	TrialID           string   `json:"trial_id,omitempty"`

	StartTime *time.Time `json:"_start_time,omitempty"`
	StopTime  *time.Time `json:"_stop_time,omitempty"`
	Done      bool       `json:"_done,omitempty"`
}

// Manifest is the JSON object mapping experiment name → config (§6).
type Manifest map[string]*ExperimentConfig

// LoadManifest reads a manifest file, returning an empty Manifest if the
// file does not yet exist (first run).
func LoadManifest(path string) (Manifest, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Manifest{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read manifest %q: %w", path, err)
	}
	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parse manifest %q: %w", path, err)
	}
	return m, nil
}

// Save writes the manifest back to disk. Per Design Note "process-wide
// experiment manifest mutations: encapsulate in a single owner, serialize
// read-modify-write through a file lock", callers obtain the file lock
// (experiment.ManifestStore) before calling Save.
func (m Manifest) Save(path string) error {
	raw, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("commit manifest: %w", err)
	}
	return nil
}
