package chat

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"

	"riddlebot/pkg/dispatch"
	"riddlebot/pkg/session"
)

func TestApplyReplyCountsBranches(t *testing.T) {
	t.Parallel()

	m := newModel(context.Background(), nil, modeInteractive, "", SessionInfo{Persona: "Riddler"})
	m.applyReply(replyMsg{reply: session.Reply{Segments: []string{"pong"}, Branch: dispatch.BranchSkill}})
	m.applyReply(replyMsg{reply: session.Reply{Segments: []string{"one", "two"}, Branch: dispatch.BranchFallback}})
	m.applyReply(replyMsg{reply: session.Reply{Segments: []string{"sorry"}, Branch: dispatch.BranchFallback, Failed: true}})

	require.Equal(t, 1, m.skillReplies)
	require.Equal(t, 1, m.fallbackReplies)
	require.Equal(t, 1, m.apologies)
	require.Equal(t, roleApology, m.messages[len(m.messages)-1].role)
	require.NotEmpty(t, m.lastErr)
}

func TestApplyReplyRecordsTransportError(t *testing.T) {
	t.Parallel()

	m := newModel(context.Background(), nil, modeInteractive, "", SessionInfo{})
	m.applyReply(replyMsg{err: errors.New("bus closed")})

	require.Equal(t, "bus closed", m.lastErr)
	require.Equal(t, roleError, m.messages[0].role)
}

func TestEnterSubmitsPrompt(t *testing.T) {
	t.Parallel()

	var got string
	promptFn := func(_ context.Context, prompt string) (session.Reply, error) {
		got = prompt
		return session.Reply{Segments: []string{"ok"}, Branch: dispatch.BranchFallback}, nil
	}

	m := newModel(context.Background(), promptFn, modeInteractive, "", SessionInfo{})
	m.booting = false
	m.input.SetValue("  /hint ")

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	require.True(t, m.isLoading)
	require.Equal(t, "", m.input.Value())
	require.Equal(t, 1, conversationTurns(m.messages))

	msg := sendPromptCmd(context.Background(), promptFn, "/hint")()
	_, _ = m.Update(msg)
	require.Equal(t, "/hint", got)
	require.False(t, m.isLoading)
	require.Len(t, m.messages, 2)
}

func TestExitCommandQuits(t *testing.T) {
	t.Parallel()

	m := newModel(context.Background(), nil, modeInteractive, "", SessionInfo{})
	m.booting = false
	m.input.SetValue(":q")

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatal("expected quit command")
	}
}

func TestOneShotViewShowsEverySegment(t *testing.T) {
	t.Parallel()

	m := newModel(context.Background(), nil, modeOneShot, "tell me a riddle", SessionInfo{Persona: "Riddler"})
	m.messages = append(m.messages, chatMessage{role: roleUser, segments: []string{"tell me a riddle"}})
	m.applyReply(replyMsg{reply: session.Reply{Segments: []string{"first line", "second line"}, Branch: dispatch.BranchFallback}})

	view := m.oneShotView()
	for _, want := range []string{"tell me a riddle", "first line", "second line"} {
		if !strings.Contains(view, want) {
			t.Fatalf("expected view to contain %q, got:\n%s", want, view)
		}
	}
}

func TestCardForPicksCardPerEntry(t *testing.T) {
	t.Parallel()

	m := newModel(context.Background(), nil, modeInteractive, "", SessionInfo{Persona: "Riddler"})
	tests := []struct {
		name  string
		item  chatMessage
		label string
	}{
		{name: "user", item: chatMessage{role: roleUser}, label: "you"},
		{name: "skill", item: chatMessage{role: roleBot, branch: dispatch.BranchSkill}, label: "skill"},
		{name: "fallback", item: chatMessage{role: roleBot, branch: dispatch.BranchFallback}, label: "riddler"},
		{name: "apology", item: chatMessage{role: roleApology, branch: dispatch.BranchSkill}, label: "apology"},
		{name: "error", item: chatMessage{role: roleError}, label: "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, label := m.cardFor(tt.item)
			if label != tt.label {
				t.Fatalf("label = %q, want %q", label, tt.label)
			}
		})
	}
}

func TestRenderMessageDrawsOneBoxPerSegment(t *testing.T) {
	t.Parallel()

	m := newModel(context.Background(), nil, modeInteractive, "", SessionInfo{Persona: "Riddler"})
	rendered := m.renderMessage(chatMessage{role: roleBot, branch: dispatch.BranchFallback, segments: []string{"first line", "second line"}}, 40)

	require.Contains(t, rendered, "riddler")
	require.Contains(t, rendered, "first line")
	require.Contains(t, rendered, "second line")
	require.Less(t, strings.Index(rendered, "first line"), strings.Index(rendered, "second line"))

	empty := m.renderMessage(chatMessage{role: roleBot, branch: dispatch.BranchSkill}, 40)
	require.Contains(t, empty, "(no reply)")
}
