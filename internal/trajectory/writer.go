/*
Copyright (c) 2026 hortator-ai
SPDX-License-Identifier: MIT
*/

package trajectory

import (
	"encoding/json"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-logr/logr"
)

// Writer owns one episode's result directory and appends records durably:
// every WriteStep call flushes and fsyncs traj.jsonl (and traj.html) before
// returning, so a crash mid-episode never loses a step that was already
// acted on (§4.6 "durable before the next step begins").
type Writer struct {
	mu     sync.Mutex
	dir    string
	file   *os.File
	html   *os.File
	log    logr.Logger
	nSteps int
}

// htmlHeader is the one-time preamble: doctype, a minimal dark/light theme
// switcher, and an opening <body>. It is never paired with a closing
// </body></html> — traj.html is a sequence of appended fragments, not a
// single document written in one shot, and each fragment (including this
// one) must stand on its own per §4.6 "must remain valid when truncated
// after any complete fragment".
const htmlHeader = `<!doctype html>
<html data-theme="dark">
<head>
<meta charset="utf-8">
<title>trajectory</title>
<style>
  :root[data-theme="dark"] body { background: #111; color: #ddd; }
  :root[data-theme="dark"] .step { border-color: #333; background: #1a1a1a; }
  :root[data-theme="light"] body { background: #fff; color: #111; }
  :root[data-theme="light"] .step { border-color: #ddd; background: #fafafa; }
  body { font-family: monospace; margin: 1em; }
  .step { border: 1px solid; border-radius: 4px; padding: 0.5em 1em; margin: 0.5em 0; }
  .error { color: #c0392b; }
  #theme-toggle { position: fixed; top: 1em; right: 1em; }
</style>
<script>
function toggleTheme() {
  var root = document.documentElement;
  root.setAttribute("data-theme", root.getAttribute("data-theme") === "dark" ? "light" : "dark");
}
</script>
</head>
<body>
<button id="theme-toggle" onclick="toggleTheme()">toggle theme</button>
`

// NewWriter creates dir if needed, opens traj.jsonl for append, and writes
// traj.html's one-time header.
func NewWriter(dir string, log logr.Logger) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("trajectory: create result dir: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(dir, "traj.jsonl"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("trajectory: open traj.jsonl: %w", err)
	}

	htmlPath := filepath.Join(dir, "traj.html")
	writeHeader := true
	if info, statErr := os.Stat(htmlPath); statErr == nil && info.Size() > 0 {
		writeHeader = false // resuming a partially written episode: header already there
	}
	hf, err := os.OpenFile(htmlPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("trajectory: open traj.html: %w", err)
	}
	w := &Writer{dir: dir, file: f, html: hf, log: log.WithName("trajectory")}
	if writeHeader {
		if _, err := hf.WriteString(htmlHeader); err != nil {
			return nil, fmt.Errorf("trajectory: write traj.html header: %w", err)
		}
		if err := hf.Sync(); err != nil {
			return nil, fmt.Errorf("trajectory: sync traj.html header: %w", err)
		}
	}
	return w, nil
}

// Dir returns the episode's result directory, for artifact storage.
func (w *Writer) Dir() string { return w.dir }

// WriteStep serializes rec as one JSON line in traj.jsonl and one <div>
// fragment in traj.html, flushing and fsyncing both before returning, so
// traj.html always reflects a prefix of completed steps rather than lagging
// behind until the episode ends.
func (w *Writer) WriteStep(rec Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("trajectory: marshal step %d: %w", rec.StepID, err)
	}
	raw = append(raw, '\n')
	if _, err := w.file.Write(raw); err != nil {
		return fmt.Errorf("trajectory: write step %d: %w", rec.StepID, err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("trajectory: sync step %d: %w", rec.StepID, err)
	}

	fragment := renderStepFragment(rec)
	if _, err := w.html.WriteString(fragment); err != nil {
		return fmt.Errorf("trajectory: write traj.html step %d: %w", rec.StepID, err)
	}
	if err := w.html.Sync(); err != nil {
		return fmt.Errorf("trajectory: sync traj.html step %d: %w", rec.StepID, err)
	}

	w.nSteps++
	return nil
}

// renderStepFragment renders one step as a self-contained <div>, the unit
// traj.html is appended in.
func renderStepFragment(rec Record) string {
	b := &fragmentBuilder{}
	b.writef("<div class=\"step\">\n")
	b.writef("<h3>step %d — %s</h3>\n", rec.StepID, html.EscapeString(rec.Timestamp))
	if rec.Sentinel != "" {
		b.writef("<p><b>sentinel:</b> %s</p>\n", html.EscapeString(rec.Sentinel))
	}
	if rec.Logs != "" {
		b.writef("<pre>%s</pre>\n", html.EscapeString(rec.Logs))
	}
	if rec.Observation != nil && rec.Observation.ScreenshotFile != "" {
		b.writef("<img src=%q width=\"480\">\n", rec.Observation.ScreenshotFile)
	}
	if rec.Error != "" {
		b.writef("<p class=\"error\">%s</p>\n", html.EscapeString(rec.Error))
	}
	b.writef("</div>\n")
	return b.String()
}

type fragmentBuilder struct {
	buf []byte
}

func (b *fragmentBuilder) writef(format string, args ...interface{}) {
	b.buf = append(b.buf, []byte(fmt.Sprintf(format, args...))...)
}

func (b *fragmentBuilder) String() string { return string(b.buf) }

// Close closes the underlying traj.jsonl and traj.html handles.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	err1 := w.file.Close()
	err2 := w.html.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// WriteResult writes result.txt (a single score line, per the original
// tool's flat result file), summary.json (the full Summary), and a final
// traj.html fragment summarizing the outcome. Per-step fragments were
// already appended incrementally by WriteStep, so this never re-reads or
// re-renders the whole trajectory.
func (w *Writer) WriteResult(summary Summary) error {
	resultPath := filepath.Join(w.dir, "result.txt")
	if err := os.WriteFile(resultPath, []byte(fmt.Sprintf("%v\n", summary.Score)), 0o644); err != nil {
		return fmt.Errorf("trajectory: write result.txt: %w", err)
	}

	raw, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("trajectory: marshal summary: %w", err)
	}
	if err := os.WriteFile(filepath.Join(w.dir, "summary.json"), raw, 0o644); err != nil {
		return fmt.Errorf("trajectory: write summary.json: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	footer := fmt.Sprintf("<div class=\"step\" id=\"result\"><h2>%s / %s — score %.3f</h2></div>\n",
		html.EscapeString(summary.Domain), html.EscapeString(summary.TaskID), summary.Score)
	if _, err := w.html.WriteString(footer); err != nil {
		return fmt.Errorf("trajectory: write traj.html result: %w", err)
	}
	return w.html.Sync()
}
