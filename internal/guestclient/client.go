/*
Copyright (c) 2026 hortator-ai
SPDX-License-Identifier: MIT
*/

// Package guestclient implements the Guest Client Stubs (C3): a thin typed
// client for the Guest Agent Server's HTTP endpoints (§4.1, §4.3, §6).
package guestclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/time/rate"
)

const (
	executeTimeout      = 90 * time.Second
	accessibilityTimeout = 300 * time.Second
	defaultTimeout      = 10 * time.Second
)

// ErrorEnvelope is the guest agent's JSON error shape (§4.1 Contract).
type ErrorEnvelope struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Client is the guest HTTP client. Every method serializes its request,
// POSTs or GETs, parses the response, logs, and returns — failures are
// logged and surfaced as zero values so the episode engine can decide to
// retry or skip (§4.3).
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Log     logr.Logger

	// Limiter is a golang.org/x/time/rate limiter that New sets to one token
	// per 5 s. No Client method consults it, and no request is retried.
	Limiter *rate.Limiter
}

// New returns a client bound to the guest agent's base URL.
func New(baseURL string, log logr.Logger) *Client {
	return &Client{
		BaseURL: baseURL,
		HTTP:    &http.Client{},
		Log:     log.WithName("guestclient"),
		Limiter: rate.NewLimiter(rate.Every(5*time.Second), 1),
	}
}

func (c *Client) do(ctx context.Context, method, path string, timeout time.Duration, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("guestclient: marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("guestclient: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		c.Log.Error(err, "guest transport fault", "path", path)
		return fmt.Errorf("guestclient: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("guestclient: read response %s: %w", path, err)
	}

	if resp.StatusCode >= 400 {
		var env ErrorEnvelope
		_ = json.Unmarshal(raw, &env)
		return fmt.Errorf("guestclient: %s %s: status %d: %s", method, path, resp.StatusCode, env.Message)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("guestclient: decode response %s: %w", path, err)
	}
	return nil
}

// Probe calls GET /probe; returns true when the guest reports ready.
func (c *Client) Probe(ctx context.Context) bool {
	err := c.do(ctx, http.MethodGet, "/probe", defaultTimeout, nil, nil)
	return err == nil
}

// WaitReady polls /probe every interval up to maxAttempts, per RESET's
// "wait for guest /probe to return ready (poll every 5 s, up to 20
// attempts)" (§4.4).
func (c *Client) WaitReady(ctx context.Context, interval time.Duration, maxAttempts int) bool {
	for i := 0; i < maxAttempts; i++ {
		if c.Probe(ctx) {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(interval):
		}
	}
	return false
}

// ExecuteResult is the response of /execute.
type ExecuteResult struct {
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	ReturnCode int    `json:"returncode"`
}

// Execute runs a shell/subprocess command in the guest (§4.1 /execute).
func (c *Client) Execute(ctx context.Context, command, shell string) (ExecuteResult, error) {
	var out ExecuteResult
	body := map[string]string{"command": command}
	if shell != "" {
		body["shell"] = shell
	}
	err := c.do(ctx, http.MethodPost, "/execute", executeTimeout, body, &out)
	return out, err
}

// ExecuteWindows evaluates a code block against the in-guest computer/human
// facades (§4.1 /execute_windows).
func (c *Client) ExecuteWindows(ctx context.Context, command string) error {
	return c.do(ctx, http.MethodPost, "/execute_windows", executeTimeout, map[string]string{"command": command}, nil)
}

// Screenshot fetches a PNG of the primary display (§4.1 /screenshot).
func (c *Client) Screenshot(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/screenshot", nil)
	if err != nil {
		return nil, fmt.Errorf("guestclient: build screenshot request: %w", err)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		c.Log.Error(err, "guest transport fault", "path", "/screenshot")
		return nil, fmt.Errorf("guestclient: screenshot: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("guestclient: screenshot: status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// Accessibility fetches the serialized UI-automation tree (§4.1
// /accessibility). backend is "uia" or "win32".
func (c *Client) Accessibility(ctx context.Context, backend string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/accessibility?backend="+backend, nil)
	if err != nil {
		return "", fmt.Errorf("guestclient: build accessibility request: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, accessibilityTimeout)
	defer cancel()
	req = req.WithContext(ctx)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		c.Log.Error(err, "guest transport fault", "path", "/accessibility")
		return "", fmt.Errorf("guestclient: accessibility: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("guestclient: read accessibility: %w", err)
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("guestclient: accessibility: status %d", resp.StatusCode)
	}
	return string(raw), nil
}

// CompositeObservation is the /obs_winagent response shape (§4.1).
type CompositeObservation struct {
	ForegroundImageB64  string   `json:"foreground_image_b64"`
	ForegroundTitle     string   `json:"foreground_title"`
	ForegroundRect      [4]int   `json:"foreground_rect"`
	VisibleWindows      string   `json:"visible_windows"`
	Clipboard           string   `json:"clipboard"`
	HumanInput          string   `json:"human_input"`
}

// ObsWinagent fetches the composite window observation (§4.1 /obs_winagent).
func (c *Client) ObsWinagent(ctx context.Context) (CompositeObservation, error) {
	var out CompositeObservation
	err := c.do(ctx, http.MethodGet, "/obs_winagent", defaultTimeout, nil, &out)
	return out, err
}

// Terminal fetches the active terminal's text content (§4.1 /terminal).
func (c *Client) Terminal(ctx context.Context) (string, error) {
	var out struct {
		Text string `json:"text"`
	}
	err := c.do(ctx, http.MethodGet, "/terminal", defaultTimeout, nil, &out)
	return out.Text, err
}

// ComputerUpdate is the payload forwarded to /update_computer when the
// agent's prediction carries one (§4.4 PREDICT).
type ComputerUpdate struct {
	Rects       []map[string]interface{} `json:"rects,omitempty"`
	WindowRect  *[4]int                  `json:"window_rect,omitempty"`
	Screenshot  string                   `json:"screenshot,omitempty"` // base64
	ScaleFactor float64                  `json:"scale_factor,omitempty"`
	Clipboard   string                   `json:"clipboard,omitempty"`
}

// UpdateComputer refreshes the guest's computer facade (§4.1
// /update_computer).
func (c *Client) UpdateComputer(ctx context.Context, update ComputerUpdate) error {
	return c.do(ctx, http.MethodPost, "/update_computer", defaultTimeout, update, nil)
}

// File streams raw file contents from the guest (§4.1 /file).
func (c *Client) File(ctx context.Context, filePath string) ([]byte, error) {
	raw, err := json.Marshal(map[string]string{"file_path": filePath})
	if err != nil {
		return nil, fmt.Errorf("guestclient: marshal file request: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/file", bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("guestclient: build file request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTP.Do(req)
	if err != nil {
		c.Log.Error(err, "guest transport fault", "path", "/file")
		return nil, fmt.Errorf("guestclient: file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("guestclient: file: status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// Setup dispatches one "/setup/{primitive}" call (§4.1).
func (c *Client) Setup(ctx context.Context, primitive string, payload interface{}) error {
	return c.do(ctx, http.MethodPost, "/setup/"+primitive, defaultTimeout, payload, nil)
}

// Probe-style boolean/text query helpers share one shape: POST a config
// payload, decode a generic result envelope.
type probeResult struct {
	Result json.RawMessage `json:"result"`
}

// Query issues one of the filesystem/display/app-specific POST probes
// listed in §4.1 and decodes its "result" field into out.
func (c *Client) Query(ctx context.Context, endpoint string, payload interface{}, out interface{}) error {
	var pr probeResult
	if err := c.do(ctx, http.MethodPost, "/"+endpoint, defaultTimeout, payload, &pr); err != nil {
		return err
	}
	if out == nil || len(pr.Result) == 0 {
		return nil
	}
	return json.Unmarshal(pr.Result, out)
}

// StartRecording begins a screen capture (§4.1 /start_recording).
func (c *Client) StartRecording(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/start_recording", defaultTimeout, nil, nil)
}

// EndRecording stops the capture and returns the video blob (§4.1
// /end_recording).
func (c *Client) EndRecording(ctx context.Context) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, executeTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/end_recording", nil)
	if err != nil {
		return nil, fmt.Errorf("guestclient: build end_recording request: %w", err)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		c.Log.Error(err, "guest transport fault", "path", "/end_recording")
		return nil, fmt.Errorf("guestclient: end_recording: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("guestclient: end_recording: status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
