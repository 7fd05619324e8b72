package chat

import (
	"context"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
)

func scrolledModel(t *testing.T) *model {
	t.Helper()

	m := newModel(context.Background(), nil, modeInteractive, "", SessionInfo{})
	m.viewport.Width = 40
	m.viewport.Height = 5
	m.viewport.SetContent(strings.Repeat("riddle\n", 40))
	m.viewport.GotoBottom()
	return m
}

func TestMouseWheelScrolling(t *testing.T) {
	t.Parallel()

	t.Run("wheel up leaves the tail", func(t *testing.T) {
		m := scrolledModel(t)
		m.followLog = true
		before := m.viewport.YOffset

		if !m.handleViewportMouse(tea.MouseMsg{Action: tea.MouseActionPress, Button: tea.MouseButtonWheelUp}) {
			t.Fatal("expected wheel-up to be handled")
		}
		if m.followLog {
			t.Fatal("expected followLog off after scrolling up")
		}
		if m.viewport.YOffset >= before {
			t.Fatalf("YOffset = %d, want < %d", m.viewport.YOffset, before)
		}
	})

	t.Run("wheel down to the bottom follows again", func(t *testing.T) {
		m := scrolledModel(t)
		m.viewport.SetYOffset(max(0, m.viewport.TotalLineCount()-m.viewport.Height-1))
		m.followLog = false

		if !m.handleViewportMouse(tea.MouseMsg{Action: tea.MouseActionPress, Button: tea.MouseButtonWheelDown}) {
			t.Fatal("expected wheel-down to be handled")
		}
		if !m.viewport.AtBottom() || !m.followLog {
			t.Fatalf("AtBottom=%v followLog=%v, want both true", m.viewport.AtBottom(), m.followLog)
		}
	})

	t.Run("clicks are ignored", func(t *testing.T) {
		m := scrolledModel(t)
		if m.handleViewportMouse(tea.MouseMsg{Action: tea.MouseActionPress, Button: tea.MouseButtonLeft}) {
			t.Fatal("expected left click to be ignored")
		}
		if m.handleViewportMouse(tea.MouseMsg{Action: tea.MouseActionRelease, Button: tea.MouseButtonWheelUp}) {
			t.Fatal("expected wheel release to be ignored")
		}
	})
}
