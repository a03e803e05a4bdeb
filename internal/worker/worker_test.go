/*
Copyright (c) 2026 hortator-ai
SPDX-License-Identifier: MIT
*/

package worker

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/legatus-arena/legatus/internal/task"
)

func keysN(n int) []task.Key {
	out := make([]task.Key, n)
	for i := range out {
		out[i] = task.Key{Domain: "chrome", TaskID: string(rune('a' + i))}
	}
	return out
}

func TestPartitionCoversEveryKeyExactlyOnce(t *testing.T) {
	keys := keysN(7)
	const numWorkers = 3

	seen := make(map[task.Key]int)
	for w := 0; w < numWorkers; w++ {
		for _, k := range Partition(keys, numWorkers, w) {
			seen[k]++
		}
	}
	if len(seen) != len(keys) {
		t.Fatalf("expected all %d keys covered, got %d", len(keys), len(seen))
	}
	for k, count := range seen {
		if count != 1 {
			t.Errorf("key %s assigned to %d workers, want exactly 1", k, count)
		}
	}
}

func TestPartitionRemainderGoesToLowestIndexedWorkers(t *testing.T) {
	// 7 keys over 3 workers: base=2, remainder=1, so worker 0 gets 3 and
	// workers 1/2 get 2 each (§8 "remainder goes to the lowest-indexed
	// workers").
	keys := keysN(7)
	got := []int{
		len(Partition(keys, 3, 0)),
		len(Partition(keys, 3, 1)),
		len(Partition(keys, 3, 2)),
	}
	want := []int{3, 2, 2}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("worker %d: got %d keys, want %d", i, got[i], want[i])
		}
	}
}

func TestPartitionEvenSplit(t *testing.T) {
	keys := keysN(6)
	for w := 0; w < 3; w++ {
		if n := len(Partition(keys, 3, w)); n != 2 {
			t.Errorf("worker %d: got %d keys, want 2", w, n)
		}
	}
}

func TestPartitionMoreWorkersThanKeys(t *testing.T) {
	keys := keysN(2)
	const numWorkers = 5

	seen := make(map[task.Key]bool)
	empty := 0
	for w := 0; w < numWorkers; w++ {
		p := Partition(keys, numWorkers, w)
		if len(p) == 0 {
			empty++
			continue
		}
		if len(p) != 1 {
			t.Errorf("worker %d: got %d keys, want 0 or 1", w, len(p))
		}
		for _, k := range p {
			seen[k] = true
		}
	}
	if empty != numWorkers-len(keys) {
		t.Errorf("expected %d idle workers, got %d", numWorkers-len(keys), empty)
	}
	if len(seen) != len(keys) {
		t.Errorf("expected both keys covered, got %d", len(seen))
	}
}

func TestPartitionZeroWorkers(t *testing.T) {
	if p := Partition(keysN(3), 0, 0); p != nil {
		t.Errorf("expected nil for numWorkers <= 0, got %v", p)
	}
}

func TestIsCompleteMissingDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "does-not-exist")
	complete, err := IsComplete(dir)
	if err != nil {
		t.Fatalf("IsComplete: %v", err)
	}
	if complete {
		t.Error("expected incomplete for a dir that was never created")
	}
}

func TestIsCompletePartialDirIsWiped(t *testing.T) {
	dir := t.TempDir()
	stray := filepath.Join(dir, "traj.jsonl")
	if err := os.WriteFile(stray, []byte("{}"), 0o644); err != nil {
		t.Fatalf("seed stray file: %v", err)
	}

	complete, err := IsComplete(dir)
	if err != nil {
		t.Fatalf("IsComplete: %v", err)
	}
	if complete {
		t.Error("expected incomplete: no result.txt present")
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("expected partial dir to be wiped, stat err = %v", err)
	}
}

func TestIsCompleteWithResult(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "result.txt"), []byte("1.0"), 0o644); err != nil {
		t.Fatalf("seed result.txt: %v", err)
	}

	complete, err := IsComplete(dir)
	if err != nil {
		t.Fatalf("IsComplete: %v", err)
	}
	if !complete {
		t.Error("expected complete: result.txt present")
	}
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("expected complete dir to survive, stat err = %v", err)
	}
}

func TestResultDirFor(t *testing.T) {
	got := ResultDirFor("/results", "computer_13", "oss", "gpt-4o", "trial-1", task.Key{Domain: "chrome", TaskID: "task-1"})
	want := filepath.Join("/results", "computer_13", "oss", "gpt-4o", "trial-1", "chrome", "task-1")
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestPlanSkipsCompletedTasks(t *testing.T) {
	root := t.TempDir()
	cat := task.Catalog{
		"chrome": {
			"a": task.Descriptor{ID: "a", Domain: "chrome"},
			"b": task.Descriptor{ID: "b", Domain: "chrome"},
		},
	}
	layout := func(k task.Key) string { return filepath.Join(root, k.Domain, k.TaskID) }

	doneDir := layout(task.Key{Domain: "chrome", TaskID: "a"})
	if err := os.MkdirAll(doneDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(doneDir, "result.txt"), []byte("1.0"), 0o644); err != nil {
		t.Fatalf("seed result.txt: %v", err)
	}

	items, err := Plan(cat, 1, 0, layout)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(items) != 1 || items[0].Key.TaskID != "b" {
		t.Fatalf("expected only task b pending, got %+v", items)
	}
}
