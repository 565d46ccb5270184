// Package tui implements the warden dashboard: a live table of runs fed by
// the daemon's update stream, falling back to a one-shot listing when the
// daemon is not running.
package tui

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wardentools/warden/pkg/daemon"
	"github.com/wardentools/warden/pkg/runs"
	"github.com/wardentools/warden/tui/theme"
)

type runsLoadedMsg []*runs.Run

type streamOpenedMsg struct {
	ch <-chan daemon.StateUpdate
}

type streamUpdateMsg daemon.StateUpdate

type streamClosedMsg struct{}

type errMsg struct{ err error }

type tickMsg time.Time

// Model is the bubbletea model for the dashboard.
type Model struct {
	client daemon.Client
	ctx    context.Context

	table   table.Model
	runs    map[string]*runs.Run
	updates <-chan daemon.StateUpdate

	streaming bool
	width     int
	height    int
	err       error
}

// NewModel creates the dashboard model over a daemon client.
func NewModel(ctx context.Context, client daemon.Client) Model {
	t := theme.DefaultTheme

	columns := []table.Column{
		{Title: "RUN", Width: 22},
		{Title: "STATUS", Width: 15},
		{Title: "EVENTS", Width: 7},
		{Title: "SESSION", Width: 10},
		{Title: "UPDATED", Width: 12},
	}

	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(t.Colors.Border).
		BorderBottom(true).
		Bold(true)
	styles.Selected = styles.Selected.
		Foreground(t.Colors.LightText).
		Background(t.Colors.Selected).
		Bold(false)

	tbl := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
	)
	tbl.SetStyles(styles)

	return Model{
		client: client,
		ctx:    ctx,
		table:  tbl,
		runs:   make(map[string]*runs.Run),
	}
}

// Init loads the initial run set and opens the daemon stream.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.loadRuns, m.openStream, tick())
}

func (m Model) loadRuns() tea.Msg {
	all, err := m.client.GetRuns(m.ctx)
	if err != nil {
		return errMsg{err}
	}
	return runsLoadedMsg(all)
}

// openStream subscribes to daemon updates. Without the daemon the
// dashboard degrades to periodic reloads.
func (m Model) openStream() tea.Msg {
	ch, err := m.client.StreamState(m.ctx)
	if err != nil {
		return streamClosedMsg{}
	}
	return streamOpenedMsg{ch: ch}
}

func waitForUpdate(ch <-chan daemon.StateUpdate) tea.Cmd {
	return func() tea.Msg {
		update, ok := <-ch
		if !ok {
			return streamClosedMsg{}
		}
		return streamUpdateMsg(update)
	}
}

func tick() tea.Cmd {
	return tea.Tick(5*time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update handles bubbletea messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table.SetHeight(msg.Height - 6)
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			return m, m.loadRuns
		}

	case runsLoadedMsg:
		m.runs = make(map[string]*runs.Run, len(msg))
		for _, r := range msg {
			m.runs[r.ID] = r
		}
		m.rebuildRows()
		m.err = nil
		return m, nil

	case streamOpenedMsg:
		m.streaming = true
		m.updates = msg.ch
		return m, waitForUpdate(m.updates)

	case streamUpdateMsg:
		m.applyUpdate(daemon.StateUpdate(msg))
		m.rebuildRows()
		return m, waitForUpdate(m.updates)

	case streamClosedMsg:
		m.streaming = false
		return m, nil

	case tickMsg:
		// Polling fallback keeps the view fresh without the stream.
		if !m.streaming {
			return m, tea.Batch(m.loadRuns, tick())
		}
		return m, tick()

	case errMsg:
		m.err = msg.err
		return m, nil
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m *Model) applyUpdate(u daemon.StateUpdate) {
	switch u.UpdateType {
	case "initial", "run_set":
		m.runs = make(map[string]*runs.Run, len(u.Runs))
		for _, r := range u.Runs {
			m.runs[r.ID] = r
		}
	case "run":
		if u.Run != nil {
			m.runs[u.Run.ID] = u.Run
		}
	case "run_removed":
		delete(m.runs, u.RemovedID)
	}
}

func (m *Model) rebuildRows() {
	t := theme.DefaultTheme

	ids := make([]string, 0, len(m.runs))
	for id := range m.runs {
		ids = append(ids, id)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(ids))) // newest first

	rows := make([]table.Row, 0, len(ids))
	for _, id := range ids {
		r := m.runs[id]
		statusStyle := lipgloss.NewStyle().Foreground(t.StatusColor(string(r.Status)))
		sess := "-"
		if r.Session != nil {
			sess = fmt.Sprintf("pid %d", r.Session.PID)
		}
		rows = append(rows, table.Row{
			r.ID,
			statusStyle.Render(string(r.Status)),
			fmt.Sprintf("%d", r.EventCount),
			sess,
			humanizeSince(r.UpdatedAt),
		})
	}
	m.table.SetRows(rows)
}

// View renders the dashboard.
func (m Model) View() string {
	t := theme.DefaultTheme

	header := t.Title.Render("WARDEN") + "  " + t.Muted.Render(fmt.Sprintf("%d runs", len(m.runs)))
	if m.streaming {
		header += "  " + t.Muted.Render("live")
	} else {
		header += "  " + t.Muted.Render("polling")
	}

	footer := t.Muted.Render("q quit · r reload · ↑/↓ select")
	if m.err != nil {
		footer = lipgloss.NewStyle().Foreground(t.Colors.Red).Render("error: "+m.err.Error()) + "  " + footer
	}

	return "\n " + header + "\n\n" + m.table.View() + "\n\n " + footer + "\n"
}

func humanizeSince(at time.Time) string {
	if at.IsZero() {
		return "-"
	}
	d := time.Since(at)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return at.Format("2006-01-02")
	}
}

// Run starts the dashboard program and blocks until the user quits.
func Run(ctx context.Context, client daemon.Client) error {
	program := tea.NewProgram(NewModel(ctx, client), tea.WithAltScreen())
	_, err := program.Run()
	return err
}
