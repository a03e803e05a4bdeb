/*
Copyright (c) 2026 hortator-ai
SPDX-License-Identifier: MIT
*/

// Package guestagent implements the Guest Agent Server (C1): the
// single-tenant HTTP service running inside the guest, exposing execution,
// observation, file, UI-tree, and evaluator-probe endpoints (§4.1).
//
// Routing follows the teacher's own gateway (internal/gateway/handler.go):
// a plain net/http mux, no router library, since the teacher's own
// dependency set carries none either.
package guestagent

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/go-logr/logr"
)

// ErrorEnvelope is the fixed error body for every non-2xx response (§4.1
// Contract, §6).
type ErrorEnvelope struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Facade is the "computer" object shared between /update_computer and
// in-guest code-block execution, per Design Note "guest facade shared
// between endpoints and in-guest code blocks: model as an explicit object
// owned by the server; /update_computer replaces it atomically". It is
// never read through an ambient global — every handler that needs it is
// handed a reference by the Server.
type Facade struct {
	mu          sync.RWMutex
	rects       []map[string]interface{}
	windowRect  [4]int
	screenshot  []byte
	scaleFactor float64
	clipboard   string
}

// Replace atomically swaps the facade's contents (/update_computer).
func (f *Facade) Replace(rects []map[string]interface{}, windowRect [4]int, screenshot []byte, scale float64, clip string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rects = rects
	f.windowRect = windowRect
	f.screenshot = screenshot
	f.scaleFactor = scale
	f.clipboard = clip
}

// Snapshot returns a read-only copy of the facade's current fields.
func (f *Facade) Snapshot() (rects []map[string]interface{}, windowRect [4]int, screenshot []byte, scale float64, clip string) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.rects, f.windowRect, f.screenshot, f.scaleFactor, f.clipboard
}

// Platform abstracts the OS-level operations the server needs, so the
// handlers are testable against a fake rather than a real Windows guest.
type Platform interface {
	Screenshot(ctx context.Context) ([]byte, error)
	AccessibilityTree(ctx context.Context, backend string) (string, error)
	Execute(ctx context.Context, command, shell string) (stdout, stderr string, code int, err error)
	ExecuteWindows(ctx context.Context, code string, facade *Facade) error
	ForegroundWindow(ctx context.Context) (title string, rect [4]int, image []byte, err error)
	VisibleWindows(ctx context.Context) ([]string, error)
	Terminal(ctx context.Context) (string, error)
	ReadFile(ctx context.Context, path string) ([]byte, error)
	Setup(ctx context.Context, primitive string, payload map[string]interface{}) error
	FilesystemProbe(ctx context.Context, probe string, payload map[string]interface{}) (interface{}, error)
	AppProbe(ctx context.Context, probe string, payload map[string]interface{}) (interface{}, error)
	StartRecording(ctx context.Context) error
	EndRecording(ctx context.Context) ([]byte, error)
}

// Clipboard abstracts OS clipboard access (§4.1 "the clipboard field of
// /obs_winagent is read through a real OS clipboard binding", §11).
type Clipboard interface {
	ReadAll() (string, error)
	WriteAll(text string) error
}

// Server is the guest agent HTTP service.
type Server struct {
	Platform  Platform
	Clipboard Clipboard
	Log       logr.Logger
	Facade    *Facade

	mux *http.ServeMux
}

// New constructs a Server and registers all routes.
func New(platform Platform, clip Clipboard, log logr.Logger) *Server {
	s := &Server{
		Platform:  platform,
		Clipboard: clip,
		Log:       log.WithName("guestagent"),
		Facade:    &Facade{},
		mux:       http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.mux.HandleFunc("/probe", s.handleProbe)
	s.mux.HandleFunc("/execute", s.handleExecute)
	s.mux.HandleFunc("/execute_windows", s.handleExecuteWindows)
	s.mux.HandleFunc("/screenshot", s.handleScreenshot)
	s.mux.HandleFunc("/accessibility", s.handleAccessibility)
	s.mux.HandleFunc("/obs_winagent", s.handleObsWinagent)
	s.mux.HandleFunc("/terminal", s.handleTerminal)
	s.mux.HandleFunc("/update_computer", s.handleUpdateComputer)
	s.mux.HandleFunc("/file", s.handleFile)
	s.mux.HandleFunc("/setup/", s.handleSetup)
	s.mux.HandleFunc("/start_recording", s.handleStartRecording)
	s.mux.HandleFunc("/end_recording", s.handleEndRecording)

	for _, probe := range []string{
		"folder_exists", "file_exists", "list_directory", "desktop_path",
		"documents_path", "wallpaper", "screen_size", "window_size",
	} {
		s.mux.HandleFunc("/"+probe, s.handleFilesystemProbe(probe))
	}
	for _, probe := range []string{
		"is_details_view", "are_files_sorted_by_modified_time",
		"is_directory_read_only_for_user", "are_all_images_tagged",
		"library_folders", "check_if_timer_started", "check_if_world_clock_exists",
	} {
		s.mux.HandleFunc("/"+probe, s.handleAppProbe(probe))
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, ErrorEnvelope{Status: "error", Message: err.Error()})
}

func decodeBody(r *http.Request, out interface{}) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}

func (s *Server) handleProbe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Command string `json:"command"`
		Shell   string `json:"shell"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	stdout, stderr, code, err := s.Platform.Execute(r.Context(), req.Command, req.Shell)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"stdout": stdout, "stderr": stderr, "returncode": code,
	})
}

func (s *Server) handleExecuteWindows(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Command string `json:"command"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.Platform.ExecuteWindows(r.Context(), req.Command, s.Facade); err != nil {
		// Any exception during code-block execution surfaces as 500 with
		// the captured error text standing in for a traceback (§4.1).
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleScreenshot(w http.ResponseWriter, r *http.Request) {
	png, err := s.Platform.Screenshot(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

func (s *Server) handleAccessibility(w http.ResponseWriter, r *http.Request) {
	backend := r.URL.Query().Get("backend")
	if backend == "" {
		backend = "uia"
	}
	xml, err := s.Platform.AccessibilityTree(r.Context(), backend)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(xml))
}

func (s *Server) handleObsWinagent(w http.ResponseWriter, r *http.Request) {
	title, rect, image, err := s.Platform.ForegroundWindow(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	windows, err := s.Platform.VisibleWindows(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	clip := ""
	if s.Clipboard != nil {
		if text, err := s.Clipboard.ReadAll(); err == nil {
			clip = text
		}
		// A platform without an attached clipboard (headless CI, a build
		// with no clipboard provider) reports empty rather than erroring,
		// per §4.1.
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"foreground_image_b64": base64.StdEncoding.EncodeToString(image),
		"foreground_title":     title,
		"foreground_rect":      rect,
		"visible_windows":      joinWindowTitles(windows),
		"clipboard":            clip,
		"human_input":          "",
	})
}

func joinWindowTitles(windows []string) string {
	out := ""
	for i, w := range windows {
		if i > 0 {
			out += "\n"
		}
		out += w
	}
	return out
}

func (s *Server) handleTerminal(w http.ResponseWriter, r *http.Request) {
	text, err := s.Platform.Terminal(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"text": text})
}

func (s *Server) handleUpdateComputer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Rects       []map[string]interface{} `json:"rects"`
		WindowRect  [4]int                   `json:"window_rect"`
		Screenshot  string                   `json:"screenshot"`
		ScaleFactor float64                  `json:"scale_factor"`
		Clipboard   string                   `json:"clipboard"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var raw []byte
	if req.Screenshot != "" {
		decoded, err := base64.StdEncoding.DecodeString(req.Screenshot)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid base64 screenshot: %w", err))
			return
		}
		raw = decoded
	}
	s.Facade.Replace(req.Rects, req.WindowRect, raw, req.ScaleFactor, req.Clipboard)
	if s.Clipboard != nil && req.Clipboard != "" {
		_ = s.Clipboard.WriteAll(req.Clipboard)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FilePath string `json:"file_path"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	raw, err := s.Platform.ReadFile(r.Context(), req.FilePath)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}

func (s *Server) handleStartRecording(w http.ResponseWriter, r *http.Request) {
	if err := s.Platform.StartRecording(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleEndRecording(w http.ResponseWriter, r *http.Request) {
	video, err := s.Platform.EndRecording(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "video/mp4")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(video)
}
