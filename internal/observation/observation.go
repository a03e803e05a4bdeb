/*
Copyright (c) 2026 hortator-ai
SPDX-License-Identifier: MIT
*/

// Package observation holds the per-step Observation and Entity types the
// episode engine assembles and hands to the agent and the recorder.
package observation

// Rect is a pixel-space integer rectangle.
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// EntityType enumerates the UI-parsing currency shared across observations.
type EntityType string

const (
	EntityText  EntityType = "text"
	EntityImage EntityType = "image"
	EntityIcon  EntityType = "icon"
	EntityHTML  EntityType = "html"
	EntityA11y  EntityType = "a11y"
)

// Entity is one labelled interactive region, the shared currency for UI
// parsing described in §3 and the GLOSSARY's "set-of-marks".
type Entity struct {
	Source string     `json:"source"`
	Type   EntityType `json:"type"`
	Shape  Rect       `json:"shape"`
	Text   string     `json:"text,omitempty"`
	Label  string     `json:"label,omitempty"`
}

// Observation is produced once per step by the episode engine (§3).
type Observation struct {
	Screenshot          []byte   `json:"-"`
	AccessibilityTree   string   `json:"accessibility_tree,omitempty"`
	Terminal            string   `json:"terminal,omitempty"`
	Instruction         string   `json:"instruction"`
	ForegroundTitle     string   `json:"foreground_window_title,omitempty"`
	ForegroundRect      Rect     `json:"foreground_window_rect"`
	ForegroundImage     []byte   `json:"-"`
	VisibleWindowTitles []string `json:"visible_window_titles,omitempty"`
	Clipboard           string   `json:"clipboard,omitempty"`
	HumanInput          string   `json:"human_input,omitempty"`

	// Entities is populated when a som_origin mode requires a decorated
	// screenshot; left empty for a11y-only or oss-only configurations.
	Entities []Entity `json:"entities,omitempty"`
}

// IsNull reports whether the observation failed to assemble (§4.4 OBSERVE:
// "If any required field is null after internal retries, emit a null
// observation").
func (o *Observation) IsNull() bool {
	return o == nil || (len(o.Screenshot) == 0 && o.Instruction == "")
}
