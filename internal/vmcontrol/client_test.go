/*
Copyright (c) 2026 hortator-ai
SPDX-License-Identifier: MIT
*/

package vmcontrol

import (
	"bufio"
	"encoding/json"
	"errors"
	"net"
	"testing"
)

// fakeHypervisor accepts exactly one connection per operation, replays a
// greeting, acknowledges qmp_capabilities, and answers the next command with
// a scripted response, mirroring the scoped-per-operation protocol in §4.2.
func fakeHypervisor(t *testing.T, respond func(cmd command) interface{}) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go serveOne(conn, respond)
		}
	}()
	return ln.Addr().String()
}

func serveOne(conn net.Conn, respond func(cmd command) interface{}) {
	defer conn.Close()
	_, _ = conn.Write([]byte(`{"QMP": {"version": {}}}` + "\n"))

	r := bufio.NewReader(conn)

	// qmp_capabilities
	if _, err := r.ReadBytes('\n'); err != nil {
		return
	}
	_, _ = conn.Write([]byte(`{"return": {}}` + "\n"))

	line, err := r.ReadBytes('\n')
	if err != nil {
		return
	}
	var cmd command
	if err := json.Unmarshal(line, &cmd); err != nil {
		return
	}
	ret := respond(cmd)
	raw, _ := json.Marshal(map[string]interface{}{"return": ret})
	_, _ = conn.Write(append(raw, '\n'))
}

func TestSaveVMLoadVMRoundTrip(t *testing.T) {
	var lastSnapshot string
	addr := fakeHypervisor(t, func(cmd command) interface{} {
		switch cmd.Execute {
		case "savevm":
			args := cmd.Arguments.(map[string]interface{})
			lastSnapshot = args["name"].(string)
			return map[string]interface{}{}
		case "loadvm":
			return map[string]interface{}{}
		case "query-status":
			return map[string]interface{}{"running": true, "status": "running"}
		}
		return map[string]interface{}{}
	})

	c := New(addr)
	if err := c.SaveVM("checkpoint-1"); err != nil {
		t.Fatalf("SaveVM: %v", err)
	}
	if lastSnapshot != "checkpoint-1" {
		t.Fatalf("server saw snapshot %q, want checkpoint-1", lastSnapshot)
	}

	if err := c.LoadVM("checkpoint-1"); err != nil {
		t.Fatalf("LoadVM: %v", err)
	}

	st, err := c.QueryStatus()
	if err != nil {
		t.Fatalf("QueryStatus: %v", err)
	}
	if !st.Running {
		t.Fatalf("expected running status after loadvm, got %+v", st)
	}
}

func TestQuerySnapshotsDecodesList(t *testing.T) {
	addr := fakeHypervisor(t, func(cmd command) interface{} {
		return []map[string]string{{"name": "base", "id": "1"}}
	})

	snaps, err := New(addr).QuerySnapshots()
	if err != nil {
		t.Fatalf("QuerySnapshots: %v", err)
	}
	if len(snaps) != 1 || snaps[0].Name != "base" {
		t.Fatalf("unexpected snapshots: %+v", snaps)
	}
}

func TestConnectionErrorOnUnreachableHost(t *testing.T) {
	c := New("127.0.0.1:1") // reserved, nothing listens
	err := c.Stop()
	if err == nil {
		t.Fatal("expected connection error, got nil")
	}
	var connErr *ErrConnection
	if !errors.As(err, &connErr) {
		t.Fatalf("expected *ErrConnection, got %T: %v", err, err)
	}
}
