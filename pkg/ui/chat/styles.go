package chat

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Riddle-desk palette (xterm-256).
const (
	colorInk       = lipgloss.Color("16")
	colorChalk     = lipgloss.Color("231")
	colorParchment = lipgloss.Color("230")
	colorPlum      = lipgloss.Color("54")
	colorLilac     = lipgloss.Color("141")
	colorMint      = lipgloss.Color("114")
	colorAmber     = lipgloss.Color("214")
	colorCoral     = lipgloss.Color("203")
	colorOxblood   = lipgloss.Color("52")
	colorSlate     = lipgloss.Color("244")
	colorNight     = lipgloss.Color("233")
	colorDusk      = lipgloss.Color("235")
	colorStone     = lipgloss.Color("236")
)

// card draws one conversation entry: a coloured tab above one bordered box per
// segment.
type card struct {
	tab lipgloss.Style
	box lipgloss.Style
}

func newCard(accent lipgloss.Color, fill lipgloss.Color, border lipgloss.Border) card {
	return card{
		tab: lipgloss.NewStyle().Bold(true).Foreground(colorInk).Background(accent).Padding(0, 1),
		box: lipgloss.NewStyle().Border(border).BorderForeground(accent).Background(fill).Padding(0, 1),
	}
}

func (c card) render(label string, width int, segments []string) string {
	rows := make([]string, 0, len(segments)+1)
	rows = append(rows, c.tab.Render(label))
	for _, segment := range segments {
		rows = append(rows, c.box.Width(width).Render(strings.TrimSpace(segment)))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

// cards holds one style per kind of entry the desk shows.
type cards struct {
	user     card
	skill    card
	fallback card
	apology  card
	failure  card
}

type theme struct {
	cards cards

	header     lipgloss.Style
	headerMeta lipgloss.Style
	divider    lipgloss.Style
	bootLine   lipgloss.Style
	bootDone   lipgloss.Style
	status     lipgloss.Style
	statusBusy lipgloss.Style
	statusErr  lipgloss.Style
	hint       lipgloss.Style
	inputLabel lipgloss.Style
	input      lipgloss.Style
	viewport   lipgloss.Style
}

func defaultTheme() theme {
	apology := newCard(colorCoral, colorOxblood, lipgloss.NormalBorder())
	apology.box = apology.box.Foreground(colorCoral)

	failure := newCard(colorCoral, colorOxblood, lipgloss.ThickBorder())
	failure.tab = failure.tab.Foreground(colorChalk)

	return theme{
		cards: cards{
			user:     newCard(colorAmber, colorDusk, lipgloss.DoubleBorder()),
			skill:    newCard(colorMint, colorStone, lipgloss.RoundedBorder()),
			fallback: newCard(colorLilac, colorNight, lipgloss.DoubleBorder()),
			apology:  apology,
			failure:  failure,
		},

		header:     lipgloss.NewStyle().Bold(true).Padding(0, 1).Foreground(colorParchment).Background(colorPlum),
		headerMeta: lipgloss.NewStyle().Foreground(colorLilac),
		divider:    lipgloss.NewStyle().Foreground(colorPlum),
		bootLine:   lipgloss.NewStyle().Foreground(colorLilac).Italic(true),
		bootDone:   lipgloss.NewStyle().Foreground(colorMint).Bold(true),
		status:     lipgloss.NewStyle().Foreground(colorSlate),
		statusBusy: lipgloss.NewStyle().Foreground(colorAmber).Bold(true),
		statusErr:  lipgloss.NewStyle().Foreground(colorCoral).Bold(true),
		hint:       lipgloss.NewStyle().Foreground(colorSlate),
		inputLabel: lipgloss.NewStyle().Bold(true).Foreground(colorAmber),
		input:      lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(colorLilac).Padding(0, 1),
		viewport:   lipgloss.NewStyle().Border(lipgloss.ThickBorder()).BorderForeground(colorPlum).Background(colorNight).Padding(0, 1),
	}
}
