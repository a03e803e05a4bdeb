/*
Copyright (c) 2026 hortator-ai
SPDX-License-Identifier: MIT
*/

package guestclient

import (
	"context"
	"fmt"
	"strings"

	"github.com/legatus-arena/legatus/internal/action"
)

// Dispatch maps one action to a concrete guest call, per the action-space
// rules in §3/§4.3/§4.4 ACT_AND_OBSERVE. Sentinels are the caller's
// responsibility (the episode engine handles WAIT/FAIL/DONE before
// reaching here); Dispatch only handles dispatchable payloads.
func (c *Client) Dispatch(ctx context.Context, a action.Action) error {
	if a.IsSentinel() {
		return fmt.Errorf("guestclient: dispatch called on sentinel action %q", a.Sentinel)
	}

	switch a.Space {
	case action.SpaceComputer13:
		if a.Computer13 == nil {
			return fmt.Errorf("guestclient: computer_13 action missing payload")
		}
		code, err := computer13ToPyAutoGUI(*a.Computer13)
		if err != nil {
			return err
		}
		_, err = c.Execute(ctx, code, "python")
		return err

	case action.SpacePyAutoGUI:
		_, err := c.Execute(ctx, a.Code, "python")
		return err

	case action.SpaceCodeBlock:
		return c.ExecuteWindows(ctx, a.Code)

	default:
		return fmt.Errorf("guestclient: unknown action space %q", a.Space)
	}
}

// computer13ToPyAutoGUI renders a tagged computer_13 record into a
// pyautogui source fragment, validating any key names against the fixed
// keyboard vocabulary before emission (§4.3 "invalid keys fail
// synchronously").
func computer13ToPyAutoGUI(c action.Computer13) (string, error) {
	p := c.Parameters

	switch c.ActionType {
	case action.MoveTo:
		return fmt.Sprintf("pyautogui.moveTo(%v, %v)", p["x"], p["y"]), nil
	case action.Click:
		return fmt.Sprintf("pyautogui.click(%v, %v)", p["x"], p["y"]), nil
	case action.DoubleClick:
		return fmt.Sprintf("pyautogui.doubleClick(%v, %v)", p["x"], p["y"]), nil
	case action.RightClick:
		return fmt.Sprintf("pyautogui.rightClick(%v, %v)", p["x"], p["y"]), nil
	case action.MouseDown:
		return "pyautogui.mouseDown()", nil
	case action.MouseUp:
		return "pyautogui.mouseUp()", nil
	case action.Drag:
		return fmt.Sprintf("pyautogui.dragTo(%v, %v, duration=0.5)", p["x"], p["y"]), nil
	case action.Scroll:
		return fmt.Sprintf("pyautogui.scroll(%v)", p["dy"]), nil
	case action.TypeText:
		text, _ := p["text"].(string)
		return fmt.Sprintf("pyautogui.typewrite(%q)", text), nil
	case action.Key:
		keys, err := keysFromParam(p["key"])
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("pyautogui.press(%s)", quoteJoin(keys)), nil
	case action.Hotkey:
		keys, err := keysFromParam(p["keys"])
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("pyautogui.hotkey(%s)", quoteJoin(keys)), nil
	case action.KeyDown:
		keys, err := keysFromParam(p["key"])
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("pyautogui.keyDown(%s)", quoteJoin(keys)), nil
	case action.KeyUp:
		keys, err := keysFromParam(p["key"])
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("pyautogui.keyUp(%s)", quoteJoin(keys)), nil
	default:
		return "", fmt.Errorf("guestclient: unknown computer_13 action type %q", c.ActionType)
	}
}

func keysFromParam(v interface{}) ([]string, error) {
	var keys []string
	switch val := v.(type) {
	case string:
		keys = []string{val}
	case []interface{}:
		for _, item := range val {
			if s, ok := item.(string); ok {
				keys = append(keys, s)
			}
		}
	default:
		return nil, fmt.Errorf("guestclient: unsupported key parameter type %T", v)
	}
	if err := action.ValidateKeys(keys); err != nil {
		return nil, err
	}
	return keys, nil
}

func quoteJoin(keys []string) string {
	quoted := make([]string, len(keys))
	for i, k := range keys {
		quoted[i] = fmt.Sprintf("%q", k)
	}
	return strings.Join(quoted, ", ")
}
