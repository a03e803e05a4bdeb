/*
Copyright (c) 2026 hortator-ai
SPDX-License-Identifier: MIT
*/

package trajectory

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-logr/logr"
)

func TestWriterAppendsDurableSteps(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, logr.Discard())
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	defer w.Close()

	for i := 1; i <= 3; i++ {
		rec := NewRecord(i)
		rec.Logs = "step log"
		if err := w.WriteStep(rec); err != nil {
			t.Fatalf("WriteStep: %v", err)
		}
	}

	raw, err := os.ReadFile(filepath.Join(dir, "traj.jsonl"))
	if err != nil {
		t.Fatalf("read traj.jsonl: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
}

func TestWriteResultProducesResultTxtAndHTML(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, logr.Discard())
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	defer w.Close()

	rec := NewRecord(1)
	rec.Observation = &StepObservation{ScreenshotFile: "step_1.png"}
	if err := w.WriteStep(rec); err != nil {
		t.Fatalf("WriteStep: %v", err)
	}

	summary := Summary{TaskID: "t1", Domain: "chrome", Score: 1.0, TotalSteps: 1, Outcome: "completed"}
	if err := w.WriteResult(summary); err != nil {
		t.Fatalf("WriteResult: %v", err)
	}

	resultRaw, err := os.ReadFile(filepath.Join(dir, "result.txt"))
	if err != nil {
		t.Fatalf("read result.txt: %v", err)
	}
	if strings.TrimSpace(string(resultRaw)) != "1" {
		t.Fatalf("expected result.txt to contain 1, got %q", resultRaw)
	}

	if _, err := os.Stat(filepath.Join(dir, "traj.html")); err != nil {
		t.Fatalf("expected traj.html to exist: %v", err)
	}
}

func TestWriteStepAppendsHTMLFragmentIncrementally(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, logr.Discard())
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	defer w.Close()

	htmlPath := filepath.Join(dir, "traj.html")
	before, err := os.ReadFile(htmlPath)
	if err != nil {
		t.Fatalf("read traj.html after NewWriter: %v", err)
	}
	if !strings.Contains(string(before), "toggle theme") {
		t.Fatalf("expected header with a theme switcher to be written up front, got %q", before)
	}

	rec := NewRecord(1)
	rec.Logs = "first step"
	if err := w.WriteStep(rec); err != nil {
		t.Fatalf("WriteStep: %v", err)
	}
	afterOne, err := os.ReadFile(htmlPath)
	if err != nil {
		t.Fatalf("read traj.html after step 1: %v", err)
	}
	if len(afterOne) <= len(before) {
		t.Fatalf("expected traj.html to grow after the first step")
	}
	if !strings.Contains(string(afterOne), "first step") {
		t.Fatalf("expected step 1's log to already be in traj.html before the episode ends")
	}

	rec2 := NewRecord(2)
	rec2.Logs = "second step"
	if err := w.WriteStep(rec2); err != nil {
		t.Fatalf("WriteStep: %v", err)
	}
	afterTwo, err := os.ReadFile(htmlPath)
	if err != nil {
		t.Fatalf("read traj.html after step 2: %v", err)
	}
	if len(afterTwo) <= len(afterOne) {
		t.Fatalf("expected traj.html to grow again after the second step")
	}
	if !strings.HasPrefix(string(afterTwo), string(afterOne)) {
		t.Fatalf("expected traj.html to be appended to, not rewritten from scratch")
	}
}

func TestStoreValueDispatchesByType(t *testing.T) {
	dir := t.TempDir()

	name, inline, err := StoreValue(dir, "screenshot_1", []byte("fake-png"))
	if err != nil || name != "screenshot_1.png" || inline != nil {
		t.Fatalf("expected PNG dispatch, got name=%q inline=%v err=%v", name, inline, err)
	}

	name, inline, err = StoreValue(dir, "scalar", 42)
	if err != nil || name != "" || inline != 42 {
		t.Fatalf("expected scalar to stay inline, got name=%q inline=%v err=%v", name, inline, err)
	}

	name, _, err = StoreValue(dir, "text", "hello world")
	if err != nil || name != "text.txt" {
		t.Fatalf("expected TXT dispatch, got name=%q err=%v", name, err)
	}
}
