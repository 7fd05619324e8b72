// Package chat renders the local terminal conversation with the bot.
package chat

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"riddlebot/pkg/session"
)

// PromptFunc sends one line to the bot and returns everything it replied.
type PromptFunc func(ctx context.Context, prompt string) (session.Reply, error)

// SessionInfo is shown in the header of the interactive view.
type SessionInfo struct {
	Sender   string
	Persona  string
	Provider string
	Model    string
	Skills   int
}

// RunInteractive starts the full-screen chat loop.
func RunInteractive(ctx context.Context, promptFn PromptFunc, info SessionInfo) error {
	m := newModel(ctx, promptFn, modeInteractive, "", info)
	program := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())
	if _, err := program.Run(); err != nil {
		return err
	}

	fmt.Println(renderGoodbyeBanner(info.Persona))
	return nil
}

// RunOneShot sends a single prompt, renders the reply and exits.
func RunOneShot(ctx context.Context, promptFn PromptFunc, prompt string, info SessionInfo) error {
	m := newModel(ctx, promptFn, modeOneShot, prompt, info)
	_, err := tea.NewProgram(m).Run()
	return err
}

func renderGoodbyeBanner(persona string) string {
	style := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("230")).
		Background(lipgloss.Color("54")).
		Padding(1, 2)

	return style.Render(fmt.Sprintf("🧩 %s will be waiting with the next riddle", displayOrNA(persona)))
}
