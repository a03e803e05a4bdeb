/*
Copyright (c) 2026 hortator-ai
SPDX-License-Identifier: MIT
*/

package guestagent

import (
	"net/http"
	"strings"
)

// handleSetup dispatches POST /setup/{primitive} to the platform's Setup
// primitive table (launch, open_file, activate_window, chdir, download,
// execute).
func (s *Server) handleSetup(w http.ResponseWriter, r *http.Request) {
	primitive := strings.TrimPrefix(r.URL.Path, "/setup/")
	if primitive == "" {
		writeError(w, http.StatusBadRequest, errMissingPrimitive)
		return
	}
	var payload map[string]interface{}
	if err := decodeBody(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.Platform.Setup(r.Context(), primitive, payload); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

var errMissingPrimitive = newProbeError("setup primitive name is empty")

// handleFilesystemProbe returns a handler bound to one filesystem/display
// probe name (folder_exists, screen_size, wallpaper, ...), per §4.5's
// representative getter kinds.
func (s *Server) handleFilesystemProbe(probe string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]interface{}
		if err := decodeBody(r, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		result, err := s.Platform.FilesystemProbe(r.Context(), probe, payload)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"result": result})
	}
}

// handleAppProbe returns a handler bound to one higher-level,
// application-aware probe (is_details_view, library_folders,
// check_if_world_clock_exists, ...), per §4.5/§11.
func (s *Server) handleAppProbe(probe string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]interface{}
		if err := decodeBody(r, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		result, err := s.Platform.AppProbe(r.Context(), probe, payload)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"result": result})
	}
}

type probeError string

func (e probeError) Error() string { return string(e) }

func newProbeError(msg string) error { return probeError(msg) }
