/*
Copyright (c) 2026 hortator-ai
SPDX-License-Identifier: MIT
*/

package guestclient

import (
	"context"
	"strings"
	"testing"

	"github.com/go-logr/logr"
	"github.com/legatus-arena/legatus/internal/action"
)

func testLogger() logr.Logger { return logr.Discard() }

func TestComputer13ToPyAutoGUIClick(t *testing.T) {
	code, err := computer13ToPyAutoGUI(action.Computer13{
		ActionType: action.Click,
		Parameters: map[string]interface{}{"x": 10, "y": 20},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(code, "pyautogui.click") {
		t.Fatalf("expected click call, got %q", code)
	}
}

func TestComputer13InvalidKeyFailsSynchronously(t *testing.T) {
	_, err := computer13ToPyAutoGUI(action.Computer13{
		ActionType: action.Key,
		Parameters: map[string]interface{}{"key": "not-a-real-key"},
	})
	if err == nil {
		t.Fatal("expected an error for an invalid key name")
	}
}

func TestComputer13ValidHotkey(t *testing.T) {
	code, err := computer13ToPyAutoGUI(action.Computer13{
		ActionType: action.Hotkey,
		Parameters: map[string]interface{}{"keys": []interface{}{"ctrl", "enter"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(code, "pyautogui.hotkey") {
		t.Fatalf("expected hotkey call, got %q", code)
	}
}

func TestUnknownActionSpaceErrors(t *testing.T) {
	c := New("http://127.0.0.1:0", testLogger())
	err := c.Dispatch(context.Background(), action.Action{Space: "bogus"})
	if err == nil {
		t.Fatal("expected error for unknown action space")
	}
}
