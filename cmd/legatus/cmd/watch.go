/*
Copyright (c) 2026 hortator-ai
SPDX-License-Identifier: MIT
*/

package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/gorilla/websocket"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/legatus-arena/legatus/internal/stream"
)

var watchFeedAddr string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Live dashboard of finished-episode events from a running worker's /ws/steps feed",
	Long: `watch connects to a worker process's --watch_addr websocket feed and
renders one row per finished episode as it lands. In a non-interactive
shell it falls back to printing one line per event.

Examples:
  legatus watch --feed ws://127.0.0.1:9090/ws/steps`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchFeedAddr, "feed", "ws://127.0.0.1:9090/ws/steps", "Worker --watch_addr websocket URL to subscribe to")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	conn, _, err := websocket.DefaultDialer.DialContext(cmd.Context(), watchFeedAddr, nil)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", watchFeedAddr, err)
	}
	defer conn.Close()

	events := make(chan stream.Event, 64)
	done := make(chan error, 1)
	go func() {
		defer close(events)
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				done <- err
				return
			}
			var ev stream.Event
			if err := json.Unmarshal(raw, &ev); err != nil {
				continue
			}
			events <- ev
		}
	}()

	if !isatty.IsTerminal(os.Stdout.Fd()) {
		for ev := range events {
			fmt.Printf("[worker %d] %s/%s score=%.2f outcome=%s steps=%d\n",
				ev.WorkerID, ev.Domain, ev.TaskID, ev.Score, ev.Outcome, ev.Steps)
		}
		select {
		case err := <-done:
			if err != nil {
				return fmt.Errorf("feed closed: %w", err)
			}
		default:
		}
		return nil
	}

	p := tea.NewProgram(watchModel{events: events}, tea.WithAltScreen())
	_, err = p.Run()
	return err
}

type watchEventMsg stream.Event

type watchModel struct {
	events <-chan stream.Event
	rows   []stream.Event
	width  int
	height int
}

func (m watchModel) Init() tea.Cmd {
	return waitForEvent(m.events)
}

func waitForEvent(events <-chan stream.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return nil
		}
		return watchEventMsg(ev)
	}
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
	case watchEventMsg:
		m.rows = append(m.rows, stream.Event(msg))
		maxRows := m.height - 4
		if maxRows < 1 {
			maxRows = 50
		}
		if len(m.rows) > maxRows {
			m.rows = m.rows[len(m.rows)-maxRows:]
		}
		return m, waitForEvent(m.events)
	}
	return m, nil
}

var (
	watchHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99"))
	watchOkStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	watchFailStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

func (m watchModel) View() string {
	var b strings.Builder
	b.WriteString(watchHeaderStyle.Render(fmt.Sprintf(" legatus watch — %s ", time.Now().Format("15:04:05"))))
	b.WriteString("\n\n")
	for _, ev := range m.rows {
		line := fmt.Sprintf(" worker %-3d %-20s %-16s score=%.2f steps=%-3d %s",
			ev.WorkerID, ev.Domain, ev.TaskID, ev.Score, ev.Steps, ev.Outcome)
		if ev.Score > 0 {
			line = watchOkStyle.Render(line)
		} else {
			line = watchFailStyle.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("\n q quit\n")
	return b.String()
}
