/*
Copyright (c) 2026 hortator-ai
SPDX-License-Identifier: MIT
*/

// Package action holds the Action type and the fixed action-space
// vocabularies described in §3 and §4.3.
package action

import "fmt"

// Sentinel is one of the three high-level control actions (§3).
type Sentinel string

const (
	SentinelWait Sentinel = "WAIT"
	SentinelFail Sentinel = "FAIL"
	SentinelDone Sentinel = "DONE"
)

// Space names an action-space (§3).
type Space string

const (
	SpaceComputer13 Space = "computer_13"
	SpacePyAutoGUI  Space = "pyautogui"
	SpaceCodeBlock  Space = "code_block"
)

// Computer13Type enumerates the fixed vocabulary of computer_13 primitives.
type Computer13Type string

const (
	MoveTo      Computer13Type = "MOVE_TO"
	Click       Computer13Type = "CLICK"
	MouseDown   Computer13Type = "MOUSE_DOWN"
	MouseUp     Computer13Type = "MOUSE_UP"
	RightClick  Computer13Type = "RIGHT_CLICK"
	DoubleClick Computer13Type = "DOUBLE_CLICK"
	Drag        Computer13Type = "DRAG_TO"
	Scroll      Computer13Type = "SCROLL"
	TypeText    Computer13Type = "TYPING"
	Key         Computer13Type = "KEY"
	Hotkey      Computer13Type = "HOTKEY"
	KeyDown     Computer13Type = "KEY_DOWN"
	KeyUp       Computer13Type = "KEY_UP"
)

// Computer13 is the tagged record for the computer_13 action space (§3).
type Computer13 struct {
	ActionType Computer13Type         `json:"action_type"`
	Parameters map[string]interface{} `json:"parameters,omitempty"`
}

// Action is either a Sentinel or a payload interpreted per Space (§3).
type Action struct {
	Sentinel Sentinel `json:"-"`

	Space      Space       `json:"-"`
	Computer13 *Computer13 `json:"-"`
	Code       string      `json:"-"` // pyautogui or code_block source fragment
}

// IsSentinel reports whether this action is a control sentinel rather than
// a dispatchable payload.
func (a Action) IsSentinel() bool {
	return a.Sentinel != ""
}

// ValidKeys is the fixed keyboard vocabulary actions are validated against
// before dispatch (§4.3 "invalid keys fail synchronously").
var ValidKeys = map[string]bool{
	"enter": true, "tab": true, "esc": true, "escape": true, "backspace": true,
	"delete": true, "space": true, "up": true, "down": true, "left": true,
	"right": true, "home": true, "end": true, "pageup": true, "pagedown": true,
	"ctrl": true, "alt": true, "shift": true, "win": true, "f1": true, "f2": true,
	"f3": true, "f4": true, "f5": true, "f6": true, "f7": true, "f8": true,
	"f9": true, "f10": true, "f11": true, "f12": true,
}

// ValidateKeys checks every key name in keys against ValidKeys, returning an
// error naming the first invalid one.
func ValidateKeys(keys []string) error {
	for _, k := range keys {
		if !ValidKeys[k] {
			return fmt.Errorf("action: invalid key %q", k)
		}
	}
	return nil
}
