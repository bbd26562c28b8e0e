package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mgomes/flux/flux"
)

type browserKeyMap struct {
	Up     key.Binding
	Down   key.Binding
	Filter key.Binding
	Detail key.Binding
	Back   key.Binding
	Help   key.Binding
	Quit   key.Binding
}

func (k browserKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Filter, k.Detail, k.Help, k.Quit}
}

func (k browserKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Detail},
		{k.Filter, k.Back},
		{k.Help, k.Quit},
	}
}

var browserKeys = browserKeyMap{
	Up: key.NewBinding(
		key.WithKeys("up", "k"),
		key.WithHelp("↑/k", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "j"),
		key.WithHelp("↓/j", "down"),
	),
	Filter: key.NewBinding(
		key.WithKeys("/"),
		key.WithHelp("/", "filter"),
	),
	Detail: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "details"),
	),
	Back: key.NewBinding(
		key.WithKeys("esc"),
		key.WithHelp("esc", "back"),
	),
	Help: key.NewBinding(
		key.WithKeys("?"),
		key.WithHelp("?", "toggle help"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// browserModel lists capabilities in a table with a live filter and a
// detail panel for the selected row.
type browserModel struct {
	all       []*flux.Capability
	shown     []*flux.Capability
	table     table.Model
	filter    textinput.Model
	help      help.Model
	filtering bool
	detail    bool
	width     int
	quitting  bool
}

func newBrowserModel(caps []*flux.Capability) browserModel {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "Name", Width: 20},
			{Title: "Family", Width: 12},
			{Title: "Effects", Width: 28},
			{Title: "Signature", Width: 40},
		}),
		table.WithFocused(true),
		table.WithHeight(15),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.Foreground(accentColor).Bold(true)
	styles.Selected = styles.Selected.Foreground(lipgloss.Color("#FFFFFF")).Background(accentColor)
	t.SetStyles(styles)

	fi := textinput.New()
	fi.Placeholder = "filter by name, family or effect..."
	fi.CharLimit = 50
	fi.Width = 40
	fi.Prompt = "/ "
	fi.PromptStyle = helpKeyStyle

	m := browserModel{
		all:    caps,
		table:  t,
		filter: fi,
		help:   help.New(),
	}
	m.applyFilter()
	return m
}

func (m browserModel) Init() tea.Cmd {
	return nil
}

func (m browserModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		if msg.Height > 10 {
			m.table.SetHeight(msg.Height - 10)
		}
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			m.quitting = true
			return m, tea.Quit
		}
		if m.filtering {
			switch {
			case key.Matches(msg, browserKeys.Back), key.Matches(msg, browserKeys.Detail):
				m.filtering = false
				m.filter.Blur()
				m.table.Focus()
				return m, nil
			}
			m.filter, cmd = m.filter.Update(msg)
			m.applyFilter()
			return m, cmd
		}

		switch {
		case key.Matches(msg, browserKeys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, browserKeys.Filter):
			m.filtering = true
			m.detail = false
			m.table.Blur()
			return m, m.filter.Focus()
		case key.Matches(msg, browserKeys.Detail):
			if m.selected() != nil {
				m.detail = !m.detail
			}
			return m, nil
		case key.Matches(msg, browserKeys.Back):
			m.detail = false
			return m, nil
		case key.Matches(msg, browserKeys.Help):
			m.help.ShowAll = !m.help.ShowAll
			return m, nil
		}
	}

	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

// applyFilter narrows the rows to capabilities matching the filter text.
func (m *browserModel) applyFilter() {
	needle := strings.ToLower(strings.TrimSpace(m.filter.Value()))
	shown := make([]*flux.Capability, 0, len(m.all))
	rows := make([]table.Row, 0, len(m.all))
	for _, c := range m.all {
		if needle != "" &&
			!strings.Contains(c.Name, needle) &&
			!strings.Contains(c.Family, needle) &&
			!strings.Contains(c.Effects.String(), needle) {
			continue
		}
		shown = append(shown, c)
		rows = append(rows, table.Row{c.Name, c.Family, c.Effects.String(), c.Signature()})
	}
	m.shown = shown
	m.table.SetRows(rows)
	if m.table.Cursor() >= len(rows) {
		m.table.SetCursor(max(len(rows)-1, 0))
	}
}

func (m browserModel) selected() *flux.Capability {
	i := m.table.Cursor()
	if i < 0 || i >= len(m.shown) {
		return nil
	}
	return m.shown[i]
}

func (m browserModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(headerStyle.Render("Flux capabilities") + " ")
	b.WriteString(mutedStyle.Render(fmt.Sprintf("%d of %d", len(m.shown), len(m.all))) + "\n\n")

	if m.filtering || m.filter.Value() != "" {
		b.WriteString(m.filter.View() + "\n\n")
	}

	if c := m.selected(); m.detail && c != nil {
		b.WriteString(renderDetailPanel(c) + "\n\n")
	} else {
		b.WriteString(m.table.View() + "\n\n")
	}

	b.WriteString(m.help.View(browserKeys))
	return b.String()
}

func renderDetailPanel(c *flux.Capability) string {
	lines := []string{
		headerStyle.Render(c.Signature()),
		"",
		c.Doc,
		"",
		helpKeyStyle.Render(fmt.Sprintf("%-8s", "family")) + helpDescStyle.Render(c.Family),
		helpKeyStyle.Render(fmt.Sprintf("%-8s", "effects")) + helpDescStyle.Render(c.Effects.String()),
	}
	return borderStyle.Render(strings.Join(lines, "\n"))
}

func runBrowser(caps []*flux.Capability, in io.Reader, out io.Writer) error {
	p := tea.NewProgram(newBrowserModel(caps), tea.WithAltScreen(), tea.WithInput(in), tea.WithOutput(out))
	_, err := p.Run()
	return err
}
