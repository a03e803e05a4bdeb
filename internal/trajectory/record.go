/*
Copyright (c) 2026 hortator-ai
SPDX-License-Identifier: MIT
*/

// Package trajectory implements the Trajectory Recorder (C6): the
// per-episode `traj.jsonl`/`traj.html`/`result.txt` writers described in
// §4.6, with a step record shape influenced by the ATIF trajectory schema.
package trajectory

import "time"

// ToolCall is one action the agent asked to be dispatched this step.
type ToolCall struct {
	ToolCallID string      `json:"tool_call_id"`
	Space      string      `json:"space"`
	Payload    interface{} `json:"payload"`
}

// StepObservation is the subset of the episode observation persisted per
// step; large binary fields are written as sibling artifact files and
// referenced here by path (see StoreValue in storage.go).
type StepObservation struct {
	ScreenshotFile string   `json:"screenshot_file,omitempty"`
	ForegroundFile string   `json:"foreground_image_file,omitempty"`
	Title          string   `json:"foreground_window_title,omitempty"`
	VisibleWindows []string `json:"visible_window_titles,omitempty"`
	Clipboard      string   `json:"clipboard,omitempty"`
}

// StepMetrics carries the supplemented cost/token telemetry for one step
// (SPEC_FULL.md §12).
type StepMetrics struct {
	PromptTokens     int64   `json:"prompt_tokens,omitempty"`
	CompletionTokens int64   `json:"completion_tokens,omitempty"`
	CostUSD          float64 `json:"cost_usd,omitempty"`
}

// Record is one line of traj.jsonl: one PREDICT/ACT_AND_OBSERVE cycle.
type Record struct {
	StepID      int              `json:"step_id"`
	Timestamp   string           `json:"timestamp"`
	Instruction string           `json:"instruction,omitempty"`
	Logs        string           `json:"logs,omitempty"`
	ToolCalls   []ToolCall       `json:"tool_calls,omitempty"`
	Sentinel    string           `json:"sentinel,omitempty"`
	Observation *StepObservation `json:"observation,omitempty"`
	Metrics     *StepMetrics     `json:"metrics,omitempty"`
	Error       string           `json:"error,omitempty"`
}

// NewRecord stamps the current time in UTC RFC3339, matching the ATIF
// timestamp convention.
func NewRecord(stepID int) Record {
	return Record{StepID: stepID, Timestamp: time.Now().UTC().Format(time.RFC3339)}
}

// Summary is the final aggregate written to summary.json; result.txt
// holds only the score (§4.6).
type Summary struct {
	TaskID           string  `json:"task_id"`
	Domain           string  `json:"domain"`
	Score            float64 `json:"score"`
	Infeasible       bool    `json:"infeasible,omitempty"`
	TotalSteps       int     `json:"total_steps"`
	TotalPromptToks  int64   `json:"total_prompt_tokens,omitempty"`
	TotalCompletToks int64   `json:"total_completion_tokens,omitempty"`
	TotalCostUSD     float64 `json:"total_cost_usd,omitempty"`
	Outcome          string  `json:"outcome"` // completed|stuck|budget_exceeded|error
}
