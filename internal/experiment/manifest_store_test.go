/*
Copyright (c) 2026 hortator-ai
SPDX-License-Identifier: MIT
*/

package experiment

import (
	"path/filepath"
	"testing"

	"github.com/legatus-arena/legatus/internal/task"
)

func TestManifestStoreLoadMissingFileIsEmpty(t *testing.T) {
	store := NewManifestStore(filepath.Join(t.TempDir(), "experiments.json"))
	m, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(m) != 0 {
		t.Errorf("expected empty manifest, got %d entries", len(m))
	}
}

func TestManifestStoreMutateRoundTrip(t *testing.T) {
	store := NewManifestStore(filepath.Join(t.TempDir(), "experiments.json"))

	err := store.Mutate(func(m task.Manifest) error {
		m["normal-chrome"] = &task.ExperimentConfig{NumWorkers: 4, Model: "gpt-4o", Domain: "chrome"}
		return nil
	})
	if err != nil {
		t.Fatalf("Mutate: %v", err)
	}

	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg, ok := got["normal-chrome"]
	if !ok {
		t.Fatal("expected normal-chrome entry to persist")
	}
	if cfg.NumWorkers != 4 || cfg.Model != "gpt-4o" {
		t.Errorf("unexpected config after round trip: %+v", cfg)
	}
}

func TestManifestStoreMutateDoesNotPersistOnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "experiments.json")
	store := NewManifestStore(path)

	wantErr := errSentinel("boom")
	err := store.Mutate(func(m task.Manifest) error {
		m["should-not-land"] = &task.ExperimentConfig{NumWorkers: 1}
		return wantErr
	})
	if err != wantErr {
		t.Fatalf("expected Mutate to surface fn's error, got %v", err)
	}

	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, ok := got["should-not-land"]; ok {
		t.Error("expected a failed mutation to leave the manifest file untouched")
	}
}

type errSentinel string

func (e errSentinel) Error() string { return string(e) }

func TestManifestStoreSequentialMutatesAccumulate(t *testing.T) {
	store := NewManifestStore(filepath.Join(t.TempDir(), "experiments.json"))

	for i, name := range []string{"a", "b", "c"} {
		workers := i + 1
		err := store.Mutate(func(m task.Manifest) error {
			m[name] = &task.ExperimentConfig{NumWorkers: workers}
			return nil
		})
		if err != nil {
			t.Fatalf("Mutate(%s): %v", name, err)
		}
	}

	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(got))
	}
	if got["c"].NumWorkers != 3 {
		t.Errorf("expected c.num_workers == 3, got %d", got["c"].NumWorkers)
	}
}
