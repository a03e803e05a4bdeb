/*
Copyright (c) 2026 hortator-ai
SPDX-License-Identifier: MIT
*/

// Package stream gives the worker process a live push channel for finished
// episodes, so `legatus watch` (cmd/legatus/cmd/watch.go) can
// subscribe instead of polling result.txt/traj.jsonl files.
//
// github.com/gorilla/websocket was an indirect dependency of the teacher
// (pulled in transitively by k8s apimachinery's watch support); this
// promotes it to a direct one, since C7 needs exactly this kind of
// real-time fan-out and there is no Kubernetes watch API in this domain to
// carry it instead.
package stream

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/go-logr/logr"
	"github.com/gorilla/websocket"
)

// Event is one broadcast unit: a task finishing inside a worker's episode
// loop. It intentionally carries only the summary a dashboard needs, not
// the full trajectory record.
type Event struct {
	WorkerID int     `json:"worker_id"`
	Domain   string  `json:"domain"`
	TaskID   string  `json:"task_id"`
	Score    float64 `json:"score"`
	Outcome  string  `json:"outcome"`
	Steps    int     `json:"steps"`
}

const clientBuffer = 32

// Broadcaster fans Events out to every currently-connected websocket
// client. A client whose buffer is full misses that event rather than
// blocking the publisher, matching the episode engine's single-threaded-per-VM
// discipline: nothing about watching may add latency to driving the VM.
type Broadcaster struct {
	log      logr.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
}

type client struct {
	conn *websocket.Conn
	ch   chan Event
}

// NewBroadcaster constructs an empty hub.
func NewBroadcaster(log logr.Logger) *Broadcaster {
	return &Broadcaster{
		log:     log.WithName("stream"),
		clients: make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the request to a websocket connection and registers it
// as a subscriber until the client disconnects. Mount at "/ws/steps".
func (b *Broadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.log.Error(err, "websocket upgrade failed")
		return
	}

	c := &client{conn: conn, ch: make(chan Event, clientBuffer)}
	b.mu.Lock()
	b.clients[c] = struct{}{}
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.clients, c)
		b.mu.Unlock()
		_ = conn.Close()
	}()

	// Drain the read side so the client's close/control frames are
	// observed; this connection never expects inbound application data.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				close(c.ch)
				return
			}
		}
	}()

	for ev := range c.ch {
		raw, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
			return
		}
	}
}

// Publish fans ev out to every connected client without blocking on any of
// them: a client whose buffer is full is dropped from this publish, not
// stalled on.
func (b *Broadcaster) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.clients {
		select {
		case c.ch <- ev:
		default:
			b.log.V(1).Info("dropping step event for slow watcher")
		}
	}
}

// Len reports the current subscriber count, for tests and /healthz.
func (b *Broadcaster) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}
