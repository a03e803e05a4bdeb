/*
Copyright (c) 2026 hortator-ai
SPDX-License-Identifier: MIT
*/

// Package vmcontrol implements the VM Control Client (C2): a
// newline-delimited JSON command protocol over TCP to a hypervisor, as
// described in SPEC_FULL.md §4.2/§6.
//
// Every operation opens a fresh connection and closes it on all exit paths
// (Design Note "long-running socket to hypervisor: scope per operation;
// acquire-then-release on all exit paths; never share across
// goroutines/tasks"), grounded on the teacher's pod-exec session discipline
// in internal/artifacts/extractor.go.
package vmcontrol

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"time"
)

const readTimeout = 5 * time.Second

// ErrConnection is the single connection-error kind errors.Is callers check
// for (§4.2 "network faults, handshake failures, and protocol errors all
// surface as a single connection-error kind; callers treat them as
// retryable").
type ErrConnection struct {
	Op  string
	Err error
}

func (e *ErrConnection) Error() string {
	return fmt.Sprintf("vmcontrol: %s: %v", e.Op, e.Err)
}

func (e *ErrConnection) Unwrap() error { return e.Err }

// Client dials a fresh connection for every operation, per the scoped
// connection discipline in §4.2.
type Client struct {
	Addr string
}

// New returns a client bound to the given hypervisor control address
// ("host:port"). It does not dial until an operation is issued.
func New(addr string) *Client {
	return &Client{Addr: addr}
}

// command mirrors the request shape: {execute: <name>, arguments?: {...}}.
type command struct {
	Execute   string      `json:"execute"`
	Arguments interface{} `json:"arguments,omitempty"`
}

// reply is the generic response envelope; exactly one of Return/Error/Event
// is populated per message.
type reply struct {
	Return json.RawMessage `json:"return,omitempty"`
	Error  *struct {
		Class string `json:"class"`
		Desc  string `json:"desc"`
	} `json:"error,omitempty"`
	Event string `json:"event,omitempty"`
}

// call opens a connection, performs the greeting+capabilities handshake,
// issues one command, and returns its Return payload. The connection is
// always closed before returning.
func (c *Client) call(name string, args interface{}) (json.RawMessage, error) {
	conn, err := net.DialTimeout("tcp", c.Addr, readTimeout)
	if err != nil {
		return nil, &ErrConnection{Op: "dial", Err: err}
	}
	defer conn.Close()

	_ = conn.SetDeadline(time.Now().Add(readTimeout))
	r := bufio.NewReader(conn)

	// Greeting must mention "QMP".
	greeting, err := r.ReadString('\n')
	if err != nil {
		return nil, &ErrConnection{Op: "read greeting", Err: err}
	}
	if !containsQMP(greeting) {
		return nil, &ErrConnection{Op: "handshake", Err: fmt.Errorf("unexpected greeting: %q", greeting)}
	}

	if err := writeCommand(conn, command{Execute: "qmp_capabilities"}); err != nil {
		return nil, &ErrConnection{Op: "capabilities", Err: err}
	}
	if _, err := readReply(r); err != nil {
		return nil, &ErrConnection{Op: "capabilities", Err: err}
	}

	if err := writeCommand(conn, command{Execute: name, Arguments: args}); err != nil {
		return nil, &ErrConnection{Op: name, Err: err}
	}
	rep, err := readReply(r)
	if err != nil {
		return nil, &ErrConnection{Op: name, Err: err}
	}
	return rep.Return, nil
}

func writeCommand(conn net.Conn, cmd command) error {
	raw, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	raw = append(raw, '\n')
	_, err = conn.Write(raw)
	return err
}

// readReply skips event messages (top-level "event" key) and returns the
// first message carrying return or error, per §4.2/§6.
func readReply(r *bufio.Reader) (*reply, error) {
	for {
		line, err := r.ReadBytes('\n')
		if err != nil {
			return nil, err
		}
		var rep reply
		if err := json.Unmarshal(line, &rep); err != nil {
			continue // partial/garbled line; keep buffering per the line protocol
		}
		if rep.Event != "" {
			continue
		}
		if rep.Error != nil {
			return nil, fmt.Errorf("%s: %s", rep.Error.Class, rep.Error.Desc)
		}
		return &rep, nil
	}
}

func containsQMP(s string) bool {
	for i := 0; i+3 <= len(s); i++ {
		if s[i] == 'Q' && s[i+1] == 'M' && s[i+2] == 'P' {
			return true
		}
	}
	return false
}

// SaveVM issues savevm(name) (§4.2).
func (c *Client) SaveVM(name string) error {
	_, err := c.call("savevm", map[string]string{"name": name})
	return err
}

// LoadVM issues loadvm(name) (§4.2).
func (c *Client) LoadVM(name string) error {
	_, err := c.call("loadvm", map[string]string{"name": name})
	return err
}

// Snapshot is one entry of query-snapshots.
type Snapshot struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

// QuerySnapshots issues query-snapshots.
func (c *Client) QuerySnapshots() ([]Snapshot, error) {
	raw, err := c.call("query-snapshots", nil)
	if err != nil {
		return nil, err
	}
	var snaps []Snapshot
	if err := json.Unmarshal(raw, &snaps); err != nil {
		return nil, fmt.Errorf("vmcontrol: decode query-snapshots: %w", err)
	}
	return snaps, nil
}

// Status is the decoded query-status result.
type Status struct {
	Running    bool   `json:"running"`
	Status     string `json:"status"`
	Singlestep bool   `json:"singlestep"`
}

// QueryStatus issues query-status.
func (c *Client) QueryStatus() (Status, error) {
	raw, err := c.call("query-status", nil)
	if err != nil {
		return Status{}, err
	}
	var st Status
	if err := json.Unmarshal(raw, &st); err != nil {
		return Status{}, fmt.Errorf("vmcontrol: decode query-status: %w", err)
	}
	return st, nil
}

// Stop issues stop.
func (c *Client) Stop() error {
	_, err := c.call("stop", nil)
	return err
}

// Cont issues cont (resume execution).
func (c *Client) Cont() error {
	_, err := c.call("cont", nil)
	return err
}

// ScreenDump asks the hypervisor to write a screenshot to filename in the
// given format on the guest-host shared path, per §4.2. The caller is
// responsible for reading that path afterward; this client does not assume
// a particular shared-filesystem layout.
func (c *Client) ScreenDump(filename, format string) error {
	_, err := c.call("screendump", map[string]string{"filename": filename, "format": format})
	return err
}
