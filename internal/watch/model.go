package watch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"taskrouter/internal/eventbus"
)

const refreshInterval = 2 * time.Second

type snapshotMsg struct {
	rows []Row
	err  error
}

type detailMsg struct {
	detail Detail
	err    error
}

type busEventMsg struct {
	evt eventbus.Event
	ok  bool
}

type tickMsg time.Time

// model is the bubbletea.Model driving `taskrouterd watch`. It owns no
// routing logic: every state change it shows originates from a Source read
// or a bus event nudging it to re-read.
type model struct {
	ctx    context.Context
	src    Source
	events <-chan eventbus.Event

	table    table.Model
	logpane  viewport.Model
	renderer *glamour.TermRenderer

	rows       []Row
	selected   string
	detail     Detail
	haveDetail bool

	width, height int
	lastErr       error
	status        string
}

// New builds the watch dashboard model. ctx governs the lifetime of the
// background event subscription; cancel it to stop the program cleanly.
func New(ctx context.Context, src Source) (*model, error) {
	events, _, err := src.Events(ctx)
	if err != nil {
		return nil, fmt.Errorf("subscribe to events: %w", err)
	}

	columns := []table.Column{
		{Title: "Task", Width: 28},
		{Title: "Status", Width: 10},
		{Title: "Agent#", Width: 7},
		{Title: "Iter", Width: 5},
	}
	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(12),
	)

	renderer, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(60))
	if err != nil {
		renderer = nil // detail pane falls back to plain text; not fatal
	}

	return &model{
		ctx:      ctx,
		src:      src,
		events:   events,
		table:    t,
		logpane:  viewport.New(0, 0),
		renderer: renderer,
		status:   "loading…",
	}, nil
}

func (m *model) Init() tea.Cmd {
	return tea.Batch(m.refreshSnapshotCmd(), m.listenEventsCmd(), m.tickCmd())
}

func (m *model) refreshSnapshotCmd() tea.Cmd {
	return func() tea.Msg {
		rows, err := m.src.Snapshot(m.ctx)
		return snapshotMsg{rows: rows, err: err}
	}
}

func (m *model) loadDetailCmd(taskID string) tea.Cmd {
	return func() tea.Msg {
		d, err := m.src.TaskDetail(m.ctx, taskID)
		return detailMsg{detail: d, err: err}
	}
}

func (m *model) listenEventsCmd() tea.Cmd {
	return func() tea.Msg {
		evt, ok := <-m.events
		return busEventMsg{evt: evt, ok: ok}
	}
}

func (m *model) tickCmd() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.table.SetHeight(msg.Height - 8)
		m.logpane.Width = m.width/2 - 4
		m.logpane.Height = msg.Height - 14
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "enter":
			if row := m.table.SelectedRow(); len(row) > 0 {
				m.selected = m.rowTaskID(m.table.Cursor())
				return m, m.loadDetailCmd(m.selected)
			}
		}
		var cmd tea.Cmd
		m.table, cmd = m.table.Update(msg)
		return m, cmd

	case snapshotMsg:
		if msg.err != nil {
			m.lastErr = msg.err
			return m, nil
		}
		m.lastErr = nil
		m.rows = msg.rows
		m.table.SetRows(m.buildTableRows())
		m.status = fmt.Sprintf("%d active routing(s)", len(m.rows))
		return m, nil

	case detailMsg:
		if msg.err != nil {
			m.lastErr = msg.err
			return m, nil
		}
		m.detail = msg.detail
		m.haveDetail = true
		m.logpane.SetContent(strings.Join(m.detail.LogTail, "\n"))
		m.logpane.GotoBottom()
		return m, nil

	case busEventMsg:
		if !msg.ok {
			m.status = "event stream closed"
			return m, nil
		}
		cmds := []tea.Cmd{m.refreshSnapshotCmd(), m.listenEventsCmd()}
		if m.haveDetail && eventConcernsTask(msg.evt, m.selected) {
			cmds = append(cmds, m.loadDetailCmd(m.selected))
		}
		return m, tea.Batch(cmds...)

	case tickMsg:
		cmds := []tea.Cmd{m.refreshSnapshotCmd(), m.tickCmd()}
		if m.haveDetail {
			cmds = append(cmds, m.loadDetailCmd(m.selected))
		}
		return m, tea.Batch(cmds...)
	}

	return m, nil
}

// eventConcernsTask reports whether evt's payload names taskID, so the
// detail pane only re-fetches when something about the task it's showing
// actually changed.
func eventConcernsTask(evt eventbus.Event, taskID string) bool {
	if taskID == "" {
		return false
	}
	id, _ := evt.Payload["task_id"].(string)
	return id == taskID
}

func (m *model) rowTaskID(idx int) string {
	if idx < 0 || idx >= len(m.rows) {
		return ""
	}
	return m.rows[idx].TaskID
}

func (m *model) buildTableRows() []table.Row {
	rows := make([]table.Row, 0, len(m.rows))
	for _, r := range m.rows {
		rows = append(rows, table.Row{
			truncate(r.Title, 28),
			r.Status,
			fmt.Sprintf("%d", r.AgentIndex),
			fmt.Sprintf("%d", r.Iteration),
		})
	}
	return rows
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "…"
}

func (m *model) View() string {
	header := headerStyle.Render("taskrouterd watch") + "  " + footerStyle.Render(m.status)

	left := paneStyle.Render(m.table.View())
	right := paneStyle.Render(m.renderDetail())

	body := lipgloss.JoinHorizontal(lipgloss.Top, left, right)

	footer := footerStyle.Render("↑/↓ select • enter detail • q quit")
	if m.lastErr != nil {
		footer = errorStyle.Render("error: "+m.lastErr.Error()) + "  " + footer
	}

	return lipgloss.JoinVertical(lipgloss.Left, header, body, footer)
}

func (m *model) renderDetail() string {
	if !m.haveDetail {
		return footerStyle.Render("select a task to see comments and logs")
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", headerStyle.Render(m.detail.Title))
	b.WriteString(m.renderComments())
	if m.detail.ExecutionID != "" {
		b.WriteString("\n" + headerStyle.Render("log: "+m.detail.ExecutionID) + "\n")
		b.WriteString(m.logpane.View())
	}
	return b.String()
}

func (m *model) renderComments() string {
	if len(m.detail.Comments) == 0 {
		return footerStyle.Render("no comments yet")
	}
	var b strings.Builder
	for _, c := range m.detail.Comments {
		body := c.Content
		if m.renderer != nil {
			if rendered, err := m.renderer.Render(body); err == nil {
				body = rendered
			}
		}
		fmt.Fprintf(&b, "%s\n%s\n", headerStyle.Render(c.Author), strings.TrimRight(body, "\n"))
	}
	return b.String()
}
