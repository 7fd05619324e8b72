package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"riddlebot/pkg/dispatch"
	"riddlebot/pkg/session"
)

type mode int

const (
	modeInteractive mode = iota
	modeOneShot
)

type role int

const (
	roleUser role = iota
	roleBot
	roleApology
	roleError
)

type chatMessage struct {
	role     role
	segments []string
	branch   dispatch.Branch
	skill    string
}

type replyMsg struct {
	reply session.Reply
	err   error
}

type bootTickMsg struct{}

type model struct {
	ctx          context.Context
	promptFn     PromptFunc
	mode         mode
	oneShotInput string
	info         SessionInfo

	theme     theme
	spinner   spinner.Model
	input     textinput.Model
	viewport  viewport.Model
	messages  []chatMessage
	width     int
	height    int
	isReady   bool
	isLoading bool
	lastErr   string
	booting   bool
	bootStep  int
	followLog bool

	skillReplies    int
	fallbackReplies int
	apologies       int
}

func newModel(ctx context.Context, promptFn PromptFunc, runMode mode, prompt string, info SessionInfo) *model {
	spin := spinner.New()
	spin.Spinner = spinner.MiniDot
	spin.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("177"))

	in := textinput.New()
	in.Prompt = ""
	in.Placeholder = "Try /start, /hint, /guess btc or just chat..."
	in.Focus()

	return &model{
		ctx:          ctx,
		promptFn:     promptFn,
		mode:         runMode,
		oneShotInput: strings.TrimSpace(prompt),
		info:         info,
		theme:        defaultTheme(),
		spinner:      spin,
		input:        in,
		viewport:     viewport.New(80, 12),
		width:        100,
		height:       28,
		booting:      runMode == modeInteractive,
		followLog:    true,
	}
}

func (m *model) Init() tea.Cmd {
	if m.mode == modeOneShot && m.oneShotInput != "" {
		return m.submit(m.oneShotInput)
	}

	return bootTickCmd()
}

func (m *model) submit(prompt string) tea.Cmd {
	m.lastErr = ""
	m.messages = append(m.messages, chatMessage{role: roleUser, segments: []string{prompt}})
	m.isLoading = true
	m.followLog = true
	m.refreshViewport(true)
	return tea.Batch(m.spinner.Tick, sendPromptCmd(m.ctx, m.promptFn, prompt))
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch typed := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = typed.Width
		m.height = typed.Height
		m.resizeComponents()
		m.refreshViewport(false)
		m.isReady = true
		return m, nil
	case bootTickMsg:
		if !m.booting {
			return m, nil
		}
		m.bootStep++
		if m.bootStep <= len(bootScriptLines()) {
			return m, bootTickCmd()
		}
		m.booting = false
		return m, textinput.Blink
	case tea.MouseMsg:
		if m.mode == modeInteractive && !m.booting {
			m.handleViewportMouse(typed)
		}
		return m, nil
	case tea.KeyMsg:
		return m.handleKey(typed)
	case spinner.TickMsg:
		if !m.isLoading {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(typed)
		return m, cmd
	case replyMsg:
		m.applyReply(typed)
		if m.mode == modeOneShot {
			return m, tea.Quit
		}
		return m, nil
	}

	if m.mode != modeInteractive {
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc":
		return m, tea.Quit
	}
	if m.booting || m.mode == modeOneShot {
		return m, nil
	}
	if m.handleViewportKey(msg) {
		return m, nil
	}

	if msg.String() == "enter" {
		prompt := strings.TrimSpace(m.input.Value())
		if m.isLoading || prompt == "" {
			return m, nil
		}
		if isExitCommand(prompt) {
			return m, tea.Quit
		}
		m.input.SetValue("")
		return m, m.submit(prompt)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *model) applyReply(msg replyMsg) {
	m.isLoading = false
	switch {
	case msg.err != nil:
		m.lastErr = msg.err.Error()
		m.messages = append(m.messages, chatMessage{role: roleError, segments: []string{msg.err.Error()}})
	case msg.reply.Failed:
		m.apologies++
		m.lastErr = "the bot apologised"
		m.messages = append(m.messages, chatMessage{role: roleApology, segments: msg.reply.Segments, branch: msg.reply.Branch})
	default:
		m.lastErr = ""
		switch msg.reply.Branch {
		case dispatch.BranchSkill:
			m.skillReplies++
		case dispatch.BranchFallback:
			m.fallbackReplies++
		}
		m.messages = append(m.messages, chatMessage{role: roleBot, segments: msg.reply.Segments, branch: msg.reply.Branch})
	}
	m.refreshViewport(false)
}

func (m *model) View() string {
	if !m.isReady {
		m.resizeComponents()
		m.refreshViewport(false)
	}
	if m.mode == modeOneShot {
		return m.oneShotView()
	}
	if m.booting {
		return m.bootView()
	}

	header := m.theme.header.Width(m.width - 2).Render("🧩 " + displayOrNA(m.info.Persona) + " riddle desk")
	meta := m.theme.headerMeta.Render(fmt.Sprintf(
		"sender:%s · provider:%s · model:%s · skills:%d · turns:%d · skill/fallback/apology:%d/%d/%d",
		displayOrNA(m.info.Sender),
		displayOrNA(m.info.Provider),
		displayOrNA(m.info.Model),
		m.info.Skills,
		conversationTurns(m.messages),
		m.skillReplies,
		m.fallbackReplies,
		m.apologies,
	))
	line := m.theme.divider.Width(m.width - 2).Render(strings.Repeat("─", max(8, m.width-2)))

	status := m.theme.status.Render("Enter send · PgUp/PgDn or wheel scroll · End latest · Ctrl+C/Esc quit")
	if m.isLoading {
		status = m.theme.statusBusy.Render(m.spinner.View() + " waiting for the bot...")
	} else if m.lastErr != "" {
		status = m.theme.statusErr.Render("last request failed: " + m.lastErr)
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		meta,
		line,
		m.theme.viewport.Width(m.width-2).Render(m.viewport.View()),
		status,
		m.theme.inputLabel.Render("You")+" "+m.theme.hint.Render("(exit, /exit, quit or :q to leave)"),
		m.theme.input.Width(m.width-2).Render(m.input.View()),
	)
}

func (m *model) resizeComponents() {
	w := max(50, m.width-6)
	h := m.height - 10
	if m.mode == modeOneShot {
		h = m.height - 6
	}

	m.viewport.Width = w
	m.viewport.Height = max(8, h)
	m.input.Width = w - 2
}

func (m *model) refreshViewport(forceBottom bool) {
	previousOffset := m.viewport.YOffset
	sections := make([]string, 0, len(m.messages))
	for _, item := range m.messages {
		sections = append(sections, m.renderMessage(item, m.viewport.Width))
	}

	m.viewport.SetContent(strings.Join(sections, "\n\n"))
	if m.followLog || forceBottom {
		m.viewport.GotoBottom()
		m.followLog = true
		return
	}

	m.viewport.SetYOffset(min(previousOffset, max(0, m.viewport.TotalLineCount()-m.viewport.Height)))
}

func (m *model) renderMessage(item chatMessage, width int) string {
	c, label := m.cardFor(item)
	if len(item.segments) == 0 {
		return lipgloss.JoinVertical(lipgloss.Left, c.tab.Render(label), m.theme.hint.Render("(no reply)"))
	}
	return c.render(label, width, item.segments)
}

// cardFor picks the card and tab label for one entry.
func (m *model) cardFor(item chatMessage) (card, string) {
	switch {
	case item.role == roleUser:
		return m.theme.cards.user, "you"
	case item.role == roleApology:
		return m.theme.cards.apology, "apology"
	case item.role == roleError:
		return m.theme.cards.failure, "error"
	case item.branch == dispatch.BranchSkill:
		return m.theme.cards.skill, "skill"
	default:
		return m.theme.cards.fallback, strings.ToLower(displayOrNA(m.info.Persona))
	}
}

func (m *model) oneShotView() string {
	width := max(40, m.width-6)
	parts := []string{m.renderMessage(chatMessage{role: roleUser, segments: []string{m.oneShotInput}}, width)}

	if m.isLoading {
		parts = append(parts, m.theme.statusBusy.Render(m.spinner.View()+" waiting for the bot..."))
		return lipgloss.JoinVertical(lipgloss.Left, parts...) + "\n"
	}

	if last := len(m.messages) - 1; last > 0 {
		parts = append(parts, m.renderMessage(m.messages[last], width))
	}
	return lipgloss.JoinVertical(lipgloss.Left, parts...) + "\n\n"
}

func (m *model) bootView() string {
	header := m.theme.header.Width(m.width - 2).Render("🧩 " + displayOrNA(m.info.Persona) + " riddle desk")
	line := m.theme.divider.Width(m.width - 2).Render(strings.Repeat("─", max(8, m.width-2)))

	script := bootScriptLines()
	count := min(m.bootStep, len(script))
	visible := make([]string, 0, count+1)
	for _, step := range script[:count] {
		visible = append(visible, m.theme.bootLine.Render(step))
	}
	if m.bootStep > len(script) {
		visible = append(visible, m.theme.bootDone.Render("ready"))
	}

	body := m.theme.viewport.Width(m.width - 2).Render(strings.Join(visible, "\n"))
	return lipgloss.JoinVertical(lipgloss.Left, header, line, body)
}

func bootTickCmd() tea.Cmd {
	return tea.Tick(60*time.Millisecond, func(time.Time) tea.Msg {
		return bootTickMsg{}
	})
}

func (m *model) handleViewportKey(msg tea.KeyMsg) bool {
	switch msg.String() {
	case "pgup", "ctrl+b", "ctrl+up":
		m.viewport.PageUp()
		m.followLog = false
	case "pgdown", "ctrl+f", "ctrl+down":
		m.viewport.PageDown()
		m.followLog = m.viewport.AtBottom()
	case "home":
		m.viewport.GotoTop()
		m.followLog = false
	case "end":
		m.viewport.GotoBottom()
		m.followLog = true
	default:
		return false
	}
	return true
}

func (m *model) handleViewportMouse(msg tea.MouseMsg) bool {
	if msg.Action != tea.MouseActionPress {
		return false
	}

	switch msg.Button {
	case tea.MouseButtonWheelUp:
		m.viewport.ScrollUp(3)
		m.followLog = false
	case tea.MouseButtonWheelDown:
		m.viewport.ScrollDown(3)
		m.followLog = m.viewport.AtBottom()
	default:
		return false
	}
	return true
}

func bootScriptLines() []string {
	return []string{
		"loading skill registry",
		"shuffling riddle catalog",
		"warming up the fallback persona",
	}
}

func sendPromptCmd(ctx context.Context, promptFn PromptFunc, prompt string) tea.Cmd {
	return func() tea.Msg {
		reply, err := promptFn(ctx, prompt)
		return replyMsg{reply: reply, err: err}
	}
}

func displayOrNA(value string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	return "n/a"
}

func conversationTurns(messages []chatMessage) int {
	count := 0
	for _, message := range messages {
		if message.role == roleUser {
			count++
		}
	}
	return count
}

func isExitCommand(input string) bool {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "exit", "/exit", "quit", ":q":
		return true
	default:
		return false
	}
}
