/*
Copyright (c) 2026 hortator-ai
SPDX-License-Identifier: MIT
*/

package evaluator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math"

	"github.com/legatus-arena/legatus/internal/task"
)

// registerDefaultGetters wires the representative getter kinds named in
// §4.5/§11: registry values, browser preferences, bookmark/history
// membership, file-explorer state, image content, clock state, directory
// trees and permissions, and library-folder membership. Every getter is a
// thin decode-payload-then-Query call; the guest agent's probe registry
// (internal/guestagent/winprimitives.go) does the actual OS-level work, so
// these stay environment-agnostic and easy to fake in tests. The guest
// agent server in this repository has no endpoint for the registry,
// browser_preference, bookmarks or history queries, so against it those
// four getters return an error.
func registerDefaultGetters(r *Registry) {
	r.RegisterGetter("registry", getterRegistry)
	r.RegisterGetter("browser_preference", getterBrowserPreference)
	r.RegisterGetter("bookmarks", getterBookmarks)
	r.RegisterGetter("history", getterHistory)
	r.RegisterGetter("file_explorer_state", getterFileExplorerState)
	r.RegisterGetter("file_exists", getterFileExists)
	r.RegisterGetter("image_content", getterImageContent)
	r.RegisterGetter("world_clock", getterWorldClock)
	r.RegisterGetter("directory_tree", getterDirectoryTree)
	r.RegisterGetter("directory_permissions", getterDirectoryPermissions)
	r.RegisterGetter("library_folders", getterLibraryFolders)
	r.RegisterGetter("file_contents", getterFileContents)
	r.RegisterGetter("vm_file", getterFileContents)
}

func decodePayload(spec task.GetterSpec, out interface{}) error {
	if len(spec.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(spec.Payload, out); err != nil {
		return fmt.Errorf("getter %s: decode payload: %w", spec.Type, err)
	}
	return nil
}

func getterRegistry(ctx context.Context, spec task.GetterSpec, env Env) (interface{}, error) {
	var payload struct {
		Key   string `json:"key"`
		Value string `json:"value_name"`
	}
	if err := decodePayload(spec, &payload); err != nil {
		return nil, err
	}
	var value interface{}
	if err := env.Query(ctx, "registry", payload, &value); err != nil {
		return nil, fmt.Errorf("registry getter: %w", err)
	}
	return value, nil
}

func getterBrowserPreference(ctx context.Context, spec task.GetterSpec, env Env) (interface{}, error) {
	var payload map[string]interface{}
	if err := decodePayload(spec, &payload); err != nil {
		return nil, err
	}
	var value interface{}
	if err := env.Query(ctx, "browser_preference", payload, &value); err != nil {
		return nil, fmt.Errorf("browser_preference getter: %w", err)
	}
	return value, nil
}

func getterBookmarks(ctx context.Context, spec task.GetterSpec, env Env) (interface{}, error) {
	var payload map[string]interface{}
	if err := decodePayload(spec, &payload); err != nil {
		return nil, err
	}
	var value []string
	if err := env.Query(ctx, "bookmarks", payload, &value); err != nil {
		return nil, fmt.Errorf("bookmarks getter: %w", err)
	}
	return value, nil
}

func getterHistory(ctx context.Context, spec task.GetterSpec, env Env) (interface{}, error) {
	var payload map[string]interface{}
	if err := decodePayload(spec, &payload); err != nil {
		return nil, err
	}
	var value []string
	if err := env.Query(ctx, "history", payload, &value); err != nil {
		return nil, fmt.Errorf("history getter: %w", err)
	}
	return value, nil
}

func getterFileExplorerState(ctx context.Context, spec task.GetterSpec, env Env) (interface{}, error) {
	var payload map[string]interface{}
	if err := decodePayload(spec, &payload); err != nil {
		return nil, err
	}
	var value map[string]interface{}
	if err := env.Query(ctx, "is_details_view", payload, &value); err != nil {
		return nil, fmt.Errorf("file_explorer_state getter: %w", err)
	}
	return value, nil
}

func getterFileExists(ctx context.Context, spec task.GetterSpec, env Env) (interface{}, error) {
	var payload struct {
		Path string `json:"path"`
	}
	if err := decodePayload(spec, &payload); err != nil {
		return nil, err
	}
	var value bool
	if err := env.Query(ctx, "file_exists", payload, &value); err != nil {
		return nil, fmt.Errorf("file_exists getter: %w", err)
	}
	return value, nil
}

// getterImageContent fetches an image file and runs one of the two checks
// §4.5 names for it: an exact width/height match, or a "red circle"
// detector standing in for the family of paint/drawing tasks that ask
// whether the agent actually drew the requested shape (§8).
func getterImageContent(ctx context.Context, spec task.GetterSpec, env Env) (interface{}, error) {
	var payload struct {
		Path   string `json:"path"`
		Check  string `json:"check"`
		Width  int    `json:"width,omitempty"`
		Height int    `json:"height,omitempty"`
	}
	if err := decodePayload(spec, &payload); err != nil {
		return nil, err
	}
	raw, err := env.File(ctx, payload.Path)
	if err != nil {
		return nil, fmt.Errorf("image_content getter: %w", err)
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("image_content getter: decode %s: %w", payload.Path, err)
	}
	switch payload.Check {
	case "dimensions":
		b := img.Bounds()
		return b.Dx() == payload.Width && b.Dy() == payload.Height, nil
	case "", "red_circle":
		return hasRedCircle(img), nil
	default:
		return nil, fmt.Errorf("image_content getter: unknown check %q", payload.Check)
	}
}

// hasRedCircle scans for a cluster of strongly red pixels whose bounding
// box is roughly square and whose fill ratio is close to pi/4, the
// signature of a filled circle rather than a red rectangle or stray noise.
func hasRedCircle(img image.Image) bool {
	b := img.Bounds()
	minX, minY := b.Max.X, b.Max.Y
	maxX, maxY := b.Min.X-1, b.Min.Y-1
	redCount := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			r8, g8, b8 := r>>8, g>>8, bl>>8
			if r8 > 180 && g8 < 90 && b8 < 90 {
				redCount++
				if x < minX {
					minX = x
				}
				if x > maxX {
					maxX = x
				}
				if y < minY {
					minY = y
				}
				if y > maxY {
					maxY = y
				}
			}
		}
	}
	if redCount < 50 || maxX < minX || maxY < minY {
		return false
	}
	w := float64(maxX - minX + 1)
	h := float64(maxY - minY + 1)
	if w/h < 0.6 || w/h > 1.6 {
		return false
	}
	expected := math.Pi / 4 * w * h
	fillRatio := float64(redCount) / expected
	return fillRatio > 0.5 && fillRatio < 1.5
}

func getterWorldClock(ctx context.Context, spec task.GetterSpec, env Env) (interface{}, error) {
	var payload struct {
		City    string `json:"city"`
		Country string `json:"country"`
	}
	if err := decodePayload(spec, &payload); err != nil {
		return nil, err
	}
	var value bool
	if err := env.Query(ctx, "check_if_world_clock_exists", payload, &value); err != nil {
		return nil, fmt.Errorf("world_clock getter: %w", err)
	}
	return value, nil
}

func getterDirectoryTree(ctx context.Context, spec task.GetterSpec, env Env) (interface{}, error) {
	var payload struct {
		Path string `json:"path"`
	}
	if err := decodePayload(spec, &payload); err != nil {
		return nil, err
	}
	var value []string
	if err := env.Query(ctx, "list_directory", payload, &value); err != nil {
		return nil, fmt.Errorf("directory_tree getter: %w", err)
	}
	return value, nil
}

func getterDirectoryPermissions(ctx context.Context, spec task.GetterSpec, env Env) (interface{}, error) {
	var payload struct {
		Path string `json:"path"`
	}
	if err := decodePayload(spec, &payload); err != nil {
		return nil, err
	}
	var value bool
	if err := env.Query(ctx, "is_directory_read_only_for_user", payload, &value); err != nil {
		return nil, fmt.Errorf("directory_permissions getter: %w", err)
	}
	return value, nil
}

func getterLibraryFolders(ctx context.Context, spec task.GetterSpec, env Env) (interface{}, error) {
	var payload map[string]interface{}
	if err := decodePayload(spec, &payload); err != nil {
		return nil, err
	}
	var value []string
	if err := env.Query(ctx, "library_folders", payload, &value); err != nil {
		return nil, fmt.Errorf("library_folders getter: %w", err)
	}
	return value, nil
}

func getterFileContents(ctx context.Context, spec task.GetterSpec, env Env) (interface{}, error) {
	var payload struct {
		Path string `json:"path"`
	}
	if err := decodePayload(spec, &payload); err != nil {
		return nil, err
	}
	raw, err := env.File(ctx, payload.Path)
	if err != nil {
		return nil, fmt.Errorf("file_contents getter: %w", err)
	}
	return raw, nil
}
