// Package tui provides the Bubble Tea live dashboard.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/verte-zerg/keyrace/internal/model"
	"github.com/verte-zerg/keyrace/internal/stats"
	"github.com/verte-zerg/keyrace/internal/tracker"
)

// Tracker is the live state shown by the dashboard.
type Tracker interface {
	Snapshot() model.Counters
	Views() model.DerivedViews
	Players() []model.Player
	Status() model.Status
	Now() time.Time
	SetVisibilityFilter(ctx context.Context, onlyFollows bool) error
	Sync()
	Subscribe() <-chan struct{}
}

type pane int

const (
	paneCharts pane = iota
	paneKeyboard
	paneLeaderboard
	paneCount
)

func (p pane) String() string {
	switch p {
	case paneCharts:
		return "Charts"
	case paneKeyboard:
		return "Keyboard"
	case paneLeaderboard:
		return "Leaderboard"
	default:
		return ""
	}
}

// clockInterval keeps the minute axis current while nothing is typed.
const clockInterval = 30 * time.Second

type changedMsg struct{}

type clockMsg time.Time

type filterMsg struct {
	onlyFollows bool
	err         error
}

type keyMap struct {
	Next   key.Binding
	Filter key.Binding
	Sync   key.Binding
	Quit   key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Next, k.Filter, k.Sync, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

var keys = keyMap{
	Next:   key.NewBinding(key.WithKeys("tab", "right", "l"), key.WithHelp("tab", "next view")),
	Filter: key.NewBinding(key.WithKeys("f"), key.WithHelp("f", "toggle following")),
	Sync:   key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "sync now")),
	Quit:   key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

var (
	titleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0")).Bold(true)
	tabStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#8C8C8C"))
	activeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#C89A3A")).Underline(true)
	alertStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F")).Bold(true)
	footerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
)

// Model implements the Bubble Tea dashboard.
type Model struct {
	tracker Tracker
	changes <-chan struct{}

	width  int
	height int
	pane   pane

	counters model.Counters
	views    model.DerivedViews
	players  []model.Player
	status   model.Status
	now      time.Time

	board     table.Model
	help      help.Model
	filterErr error
}

// NewModel constructs a dashboard bound to t.
func NewModel(t Tracker) *Model {
	m := &Model{
		tracker: t,
		changes: t.Subscribe(),
		board:   newBoardTable(),
		help:    help.New(),
	}
	m.refresh()
	return m
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(waitForChange(m.changes), clockTick())
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.resizeBoard()
		return m, nil
	case changedMsg:
		m.refresh()
		return m, waitForChange(m.changes)
	case clockMsg:
		m.refresh()
		return m, clockTick()
	case filterMsg:
		m.filterErr = msg.err
		m.refresh()
		return m, nil
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, keys.Next):
			m.pane = (m.pane + 1) % paneCount
			return m, nil
		case key.Matches(msg, keys.Filter):
			return m, m.toggleFilter()
		case key.Matches(msg, keys.Sync):
			m.tracker.Sync()
			return m, nil
		}
		if m.pane == paneLeaderboard {
			var cmd tea.Cmd
			m.board, cmd = m.board.Update(msg)
			return m, cmd
		}
		return m, nil
	default:
		return m, nil
	}
}

// View implements tea.Model.
func (m *Model) View() string {
	header := []string{titleStyle.Render(stats.FormatCount(m.counters.Total)), m.renderTabs(), ""}
	footer := []string{"", m.renderStatus(), m.help.View(keys)}

	var body []string
	switch m.pane {
	case paneCharts:
		body = clipLines(m.chartLines(), m.width)
	case paneKeyboard:
		body = clipLines(m.keyboardLines(), m.width)
	case paneLeaderboard:
		body = m.leaderboardLines()
	}
	if m.height > 0 {
		room := m.height - len(header) - len(footer)
		body = fitHeight(body, max(room, 0))
	}

	lines := make([]string, 0, len(header)+len(body)+len(footer))
	lines = append(lines, header...)
	lines = append(lines, body...)
	lines = append(lines, footer...)
	return strings.Join(lines, "\n")
}

func (m *Model) refresh() {
	m.counters = m.tracker.Snapshot()
	m.views = m.tracker.Views()
	m.players = m.tracker.Players()
	m.status = m.tracker.Status()
	m.now = m.tracker.Now()
	m.board.SetRows(boardRows(m.players))
}

func (m *Model) toggleFilter() tea.Cmd {
	next := !m.status.OnlyFollows
	t := m.tracker
	return func() tea.Msg {
		err := t.SetVisibilityFilter(context.Background(), next)
		return filterMsg{onlyFollows: next, err: err}
	}
}

func waitForChange(ch <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return nil
		}
		return changedMsg{}
	}
}

func clockTick() tea.Cmd {
	return tea.Tick(clockInterval, func(t time.Time) tea.Msg {
		return clockMsg(t)
	})
}

func (m *Model) renderTabs() string {
	parts := make([]string, 0, paneCount)
	for p := pane(0); p < paneCount; p++ {
		if p == m.pane {
			parts = append(parts, activeStyle.Render(p.String()))
		} else {
			parts = append(parts, tabStyle.Render(p.String()))
		}
	}
	return strings.Join(parts, "  ")
}

func (m *Model) chartLines() []string {
	charts := []stats.BarChart{
		{Title: "Last 20 minutes", Labels: stats.MinuteLabels(model.MinuteOfDay(m.now)), Values: m.views.RecentMinutes, Height: 4, Every: 5},
		{Title: "Hours", Labels: stats.HourLabels(), Values: m.views.Hourly[:], Height: 4, Every: 6},
	}
	keyCharts := []stats.BarChart{
		{Title: "Letters", Labels: stats.LetterLabels(), Values: m.views.Letters, Height: 4},
		{Title: "Numbers and symbols", Labels: stats.SymbolLabels(), Values: m.views.Symbols, Height: 4},
	}
	var lines []string
	for i := range charts {
		lines = append(lines, sideBySide(charts[i].Lines(), keyCharts[i].Lines(), 4, m.width)...)
		lines = append(lines, "")
	}
	return lines
}

func (m *Model) keyboardLines() []string {
	var b strings.Builder
	if err := stats.RenderKeyboard(&b, m.views.Keyboard); err != nil {
		return []string{err.Error()}
	}
	lines := strings.Split(strings.TrimRight(b.String(), "\n"), "\n")
	top := stats.TopKeys(m.counters.Keys, 5)
	if len(top) == 0 {
		return lines
	}
	labels := make([]string, 0, len(top))
	for _, k := range top {
		labels = append(labels, fmt.Sprintf("%s %s", k.Label, humanize.Comma(int64(k.Count))))
	}
	return append(lines, "", "Most pressed: "+strings.Join(labels, ", "))
}

func (m *Model) leaderboardLines() []string {
	scope := "Everyone"
	if m.status.OnlyFollows {
		scope = "Following"
	}
	if len(m.players) == 0 {
		return []string{scope, "", "No leaderboard yet."}
	}
	return append([]string{scope, ""}, strings.Split(m.board.View(), "\n")...)
}

func (m *Model) renderStatus() string {
	var alerts, notes []string
	if m.status.HookDisabled {
		alerts = append(alerts, tracker.HookDisabledText)
	}
	if m.status.PersistDegraded {
		alerts = append(alerts, fmt.Sprintf("Counts not saved (%d failed writes)", m.status.PersistFailures))
	}
	if m.filterErr != nil {
		alerts = append(alerts, "Filter not saved: "+m.filterErr.Error())
	}
	switch {
	case m.status.LastSyncError != "":
		alerts = append(alerts, "Sync failed: "+m.status.LastSyncError)
	case !m.status.LastSyncAt.IsZero():
		notes = append(notes, "Synced "+m.status.LastSyncAt.In(m.now.Location()).Format("15:04:05"))
	default:
		notes = append(notes, "Not synced")
	}

	out := make([]string, 0, 2)
	if len(alerts) > 0 {
		out = append(out, alertStyle.Render(strings.Join(alerts, " · ")))
	}
	if len(notes) > 0 {
		out = append(out, footerStyle.Render(strings.Join(notes, " · ")))
	}
	return strings.Join(out, "  ")
}

func newBoardTable() table.Model {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "#", Width: 4},
			{Title: "Player", Width: 24},
			{Title: "Keys", Width: 10},
		}),
		table.WithFocused(true),
		table.WithHeight(10),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		Border(lipgloss.NormalBorder(), false, false, true, false).
		BorderForeground(lipgloss.Color("#4A4A4A")).
		Foreground(lipgloss.Color("#C0C0C0")).
		Bold(true)
	styles.Selected = styles.Cell.
		Foreground(lipgloss.Color("#F0F0F0")).
		Bold(true)
	t.SetStyles(styles)
	return t
}

func boardRows(players []model.Player) []table.Row {
	rows := make([]table.Row, 0, len(players))
	for i, p := range players {
		rows = append(rows, table.Row{
			fmt.Sprintf("%d", i+1),
			p.Name,
			humanize.Comma(int64(p.Count)),
		})
	}
	return rows
}

func (m *Model) resizeBoard() {
	// Title, tabs, scope line and footer take eight rows; the header row takes two.
	h := m.height - 10
	if h < 1 {
		h = 1
	}
	m.board.SetHeight(h)
}
