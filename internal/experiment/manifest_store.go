/*
Copyright (c) 2026 hortator-ai
SPDX-License-Identifier: MIT
*/

// Package experiment implements the Experiment Runner (C8): reading the
// experiments manifest, spawning one worker process per worker_id for each
// not-yet-done experiment, and recording start/stop/done bookkeeping
// (§4.8).
package experiment

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/legatus-arena/legatus/internal/task"
)

// ManifestStore encapsulates the manifest behind a single owner whose
// read-modify-write cycle is serialized with a file lock, per Design Note
// "process-wide experiment manifest mutations: encapsulate the manifest in
// a single owner with read-modify-write serialized through a file lock; do
// not fan out mutations from worker subprocesses." No pack example carries
// a cross-process file-lock library (the teacher's concurrency primitives
// are all in-process, guarded by sync.Mutex/RWMutex — see
// internal/controller/result_cache.go); flock(2) via the stdlib syscall
// package is the narrowest correct tool for a lock shared by separate
// legatus processes (run, status), so it is used directly
// here rather than introducing a dependency with no other home in this
// repo.
type ManifestStore struct {
	path     string
	lockPath string
	lockFile *os.File
}

// NewManifestStore binds a store to path; it does not touch disk until
// Load/Mutate is called.
func NewManifestStore(path string) *ManifestStore {
	return &ManifestStore{path: path, lockPath: path + ".lock"}
}

// lock acquires an exclusive advisory lock, blocking until available.
func (s *ManifestStore) lock() error {
	f, err := os.OpenFile(s.lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("experiment: open lock file: %w", err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		_ = f.Close()
		return fmt.Errorf("experiment: acquire manifest lock: %w", err)
	}
	s.lockFile = f
	return nil
}

func (s *ManifestStore) unlock() {
	if s.lockFile == nil {
		return
	}
	_ = syscall.Flock(int(s.lockFile.Fd()), syscall.LOCK_UN)
	_ = s.lockFile.Close()
	s.lockFile = nil
}

// Mutate locks the manifest, loads it, hands it to fn, and — only if fn
// returns nil — persists the result before releasing the lock. This is the
// only sanctioned way to change the manifest; worker subprocesses never
// call it (§9 "do not fan out mutations from worker subprocesses").
func (s *ManifestStore) Mutate(fn func(task.Manifest) error) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("experiment: create manifest dir: %w", err)
	}
	if err := s.lock(); err != nil {
		return err
	}
	defer s.unlock()

	m, err := task.LoadManifest(s.path)
	if err != nil {
		return err
	}
	if err := fn(m); err != nil {
		return err
	}
	return m.Save(s.path)
}

// Load reads a point-in-time snapshot under the same lock discipline, for
// read-only callers like `legatus status`.
func (s *ManifestStore) Load() (task.Manifest, error) {
	if err := s.lock(); err != nil {
		return nil, err
	}
	defer s.unlock()
	return task.LoadManifest(s.path)
}
