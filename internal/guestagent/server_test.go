/*
Copyright (c) 2026 hortator-ai
SPDX-License-Identifier: MIT
*/

package guestagent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-logr/logr"
)

type fakePlatform struct {
	execStdout string
	execErr    error
	probeRes   interface{}
}

func (f *fakePlatform) Screenshot(ctx context.Context) ([]byte, error) { return []byte("png-bytes"), nil }
func (f *fakePlatform) AccessibilityTree(ctx context.Context, backend string) (string, error) {
	return "<tree/>", nil
}
func (f *fakePlatform) Execute(ctx context.Context, command, shell string) (string, string, int, error) {
	return f.execStdout, "", 0, f.execErr
}
func (f *fakePlatform) ExecuteWindows(ctx context.Context, code string, facade *Facade) error {
	return f.execErr
}
func (f *fakePlatform) ForegroundWindow(ctx context.Context) (string, [4]int, []byte, error) {
	return "Notepad", [4]int{0, 0, 800, 600}, []byte("img"), nil
}
func (f *fakePlatform) VisibleWindows(ctx context.Context) ([]string, error) {
	return []string{"Notepad", "Explorer"}, nil
}
func (f *fakePlatform) Terminal(ctx context.Context) (string, error) { return "C:\\>", nil }
func (f *fakePlatform) ReadFile(ctx context.Context, path string) ([]byte, error) {
	return []byte("contents"), nil
}
func (f *fakePlatform) Setup(ctx context.Context, primitive string, payload map[string]interface{}) error {
	return nil
}
func (f *fakePlatform) FilesystemProbe(ctx context.Context, probe string, payload map[string]interface{}) (interface{}, error) {
	return f.probeRes, nil
}
func (f *fakePlatform) AppProbe(ctx context.Context, probe string, payload map[string]interface{}) (interface{}, error) {
	return f.probeRes, nil
}
func (f *fakePlatform) StartRecording(ctx context.Context) error     { return nil }
func (f *fakePlatform) EndRecording(ctx context.Context) ([]byte, error) { return []byte("mp4"), nil }

type fakeClipboard struct{ text string }

func (c *fakeClipboard) ReadAll() (string, error)  { return c.text, nil }
func (c *fakeClipboard) WriteAll(text string) error { c.text = text; return nil }

func newTestServer() (*Server, *fakePlatform, *fakeClipboard) {
	plat := &fakePlatform{execStdout: "ok"}
	clip := &fakeClipboard{text: "clip-text"}
	return New(plat, clip, logr.Discard()), plat, clip
}

func TestProbeReportsReady(t *testing.T) {
	s, _, _ := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestObsWinagentIncludesClipboard(t *testing.T) {
	s, _, _ := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/obs_winagent", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body["clipboard"] != "clip-text" {
		t.Fatalf("expected clipboard text, got %v", body["clipboard"])
	}
	if body["foreground_title"] != "Notepad" {
		t.Fatalf("expected foreground title, got %v", body["foreground_title"])
	}
}

func TestUpdateComputerWritesClipboard(t *testing.T) {
	s, _, clip := newTestServer()
	body := `{"clipboard": "new-text", "rects": [], "window_rect": [0,0,100,100], "scale_factor": 1.0}`
	req := httptest.NewRequest(http.MethodPost, "/update_computer", strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if clip.text != "new-text" {
		t.Fatalf("expected clipboard updated to new-text, got %q", clip.text)
	}
}

func TestExecuteSurfacesPlatformError(t *testing.T) {
	s, plat, _ := newTestServer()
	plat.execErr = errExec
	req := httptest.NewRequest(http.MethodPost, "/execute", strings.NewReader(`{"command": "dir"}`))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

var errExec = probeError("execution failed")
