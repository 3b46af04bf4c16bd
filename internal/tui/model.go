package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/nixlim/devkit-gates/internal/audit"
)

type ViewState int

const (
	ViewDecisions ViewState = iota
	ViewHistory
)

const (
	defaultRefreshRate = 2 * time.Second
	defaultQueryLimit  = 500
)

type tickMsg time.Time

// DecisionProvider is satisfied by the SQLite decision store.
type DecisionProvider interface {
	QueryDecisions(f audit.Filter) []audit.Entry
	QueryDailySummaries(days int) []audit.DailySummary
}

type Model struct {
	view     ViewState
	width    int
	height   int
	keys     KeyMap
	quitting bool

	provider DecisionProvider
	gates    []string

	filter     audit.Filter
	filterMenu FilterMenuState

	entries []audit.Entry
	cursor  int

	detailOverlay   bool
	detailContent   string
	detailTitle     string
	detailScrollPos int

	historyGranularity string
	historyDays        int
	historyScrollPos   int

	refreshRate time.Duration
}

func NewModel(opts ...ModelOption) Model {
	m := Model{
		view:               ViewDecisions,
		keys:               DefaultKeyMap(),
		filter:             audit.Filter{Limit: defaultQueryLimit},
		historyGranularity: "daily",
		historyDays:        7,
		refreshRate:        defaultRefreshRate,
	}

	for _, opt := range opts {
		opt(&m)
	}

	m.filterMenu = NewFilterMenu(m.gates)
	m.reload()
	return m
}

type ModelOption func(*Model)

func WithDecisionProvider(p DecisionProvider) ModelOption {
	return func(m *Model) { m.provider = p }
}

// WithGates sets the gate names offered by the filter menu.
func WithGates(names []string) ModelOption {
	return func(m *Model) { m.gates = append([]string(nil), names...) }
}

func WithStartView(v ViewState) ModelOption {
	return func(m *Model) { m.view = v }
}

// WithHistoryDays sets the range of the daily history view.
func WithHistoryDays(days int) ModelOption {
	return func(m *Model) {
		if days > 0 {
			m.historyDays = days
		}
	}
}

func WithRefreshRate(d time.Duration) ModelOption {
	return func(m *Model) {
		if d > 0 {
			m.refreshRate = d
		}
	}
}

func (m Model) Init() tea.Cmd {
	return m.tickCmd()
}

func (m Model) tickCmd() tea.Cmd {
	return tea.Tick(m.refreshRate, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tickMsg:
		m.reload()
		return m, m.tickCmd()

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

// reload re-queries the provider for the decisions view and keeps the
// cursor in range.
func (m *Model) reload() {
	if m.provider == nil {
		m.entries = nil
		m.cursor = 0
		return
	}
	m.entries = m.provider.QueryDecisions(m.filter)
	if m.cursor >= len(m.entries) {
		m.cursor = len(m.entries) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.detailOverlay {
		return m.handleDetailOverlayKey(msg)
	}

	if m.filterMenu.Active {
		return m.handleFilterMenuKey(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		return m, tea.Quit

	case key.Matches(msg, m.keys.Refresh):
		m.reload()
		return m, nil
	}

	switch m.view {
	case ViewDecisions:
		return m.handleDecisionsKey(msg)
	case ViewHistory:
		return m.handleHistoryKey(msg)
	}

	return m, nil
}

func (m Model) handleDecisionsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Tab):
		m.view = ViewHistory
		return m, nil

	case key.Matches(msg, m.keys.Filter):
		m.filterMenu.Active = true
		m.filterMenu.Cursor = 0
		return m, nil

	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil

	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.entries)-1 {
			m.cursor++
		}
		return m, nil

	case key.Matches(msg, m.keys.ScrollUp):
		m.cursor -= m.listHeight()
		if m.cursor < 0 {
			m.cursor = 0
		}
		return m, nil

	case key.Matches(msg, m.keys.ScrollDown):
		m.cursor += m.listHeight()
		if m.cursor > len(m.entries)-1 {
			m.cursor = len(m.entries) - 1
		}
		if m.cursor < 0 {
			m.cursor = 0
		}
		return m, nil

	case key.Matches(msg, m.keys.Enter):
		if m.cursor >= 0 && m.cursor < len(m.entries) {
			m.detailOverlay = true
			m.detailTitle = "Decision Detail"
			m.detailContent = formatDecisionDetail(m.entries[m.cursor])
			m.detailScrollPos = 0
		}
		return m, nil

	case key.Matches(msg, m.keys.Session):
		if m.filter.SessionID != "" {
			m.filter.SessionID = ""
		} else if m.cursor >= 0 && m.cursor < len(m.entries) {
			m.filter.SessionID = m.entries[m.cursor].SessionID
		}
		m.cursor = 0
		m.reload()
		return m, nil

	case key.Matches(msg, m.keys.Escape):
		if m.filter.SessionID != "" {
			m.filter.SessionID = ""
			m.cursor = 0
			m.reload()
		}
		return m, nil
	}

	return m, nil
}

func (m Model) handleDetailOverlayKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Escape), key.Matches(msg, m.keys.Enter):
		m.detailOverlay = false
		m.detailContent = ""
		m.detailTitle = ""
		m.detailScrollPos = 0
		return m, nil

	case key.Matches(msg, m.keys.Up), key.Matches(msg, m.keys.ScrollUp):
		if m.detailScrollPos > 0 {
			m.detailScrollPos--
		}
		return m, nil

	case key.Matches(msg, m.keys.Down), key.Matches(msg, m.keys.ScrollDown):
		m.detailScrollPos++
		return m, nil

	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		return m, tea.Quit
	}

	return m, nil
}

func (m Model) handleFilterMenuKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Escape), key.Matches(msg, m.keys.Filter):
		m.filterMenu.Active = false
		return m, nil

	case key.Matches(msg, m.keys.Up):
		if m.filterMenu.Cursor > 0 {
			m.filterMenu.Cursor--
		}
		return m, nil

	case key.Matches(msg, m.keys.Down):
		if m.filterMenu.Cursor < len(m.filterMenu.Options)-1 {
			m.filterMenu.Cursor++
		}
		return m, nil

	case key.Matches(msg, m.keys.Enter):
		m.filterMenu.Toggle()
		m.filter = m.filterMenu.Apply(m.filter)
		m.cursor = 0
		m.reload()
		return m, nil
	}
	return m, nil
}

func (m Model) handleHistoryKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Tab):
		m.view = ViewDecisions
		return m, nil
	case key.Matches(msg, m.keys.Up):
		if m.historyScrollPos > 0 {
			m.historyScrollPos--
		}
		return m, nil
	case key.Matches(msg, m.keys.Down):
		m.historyScrollPos++
		return m, nil
	case key.Matches(msg, m.keys.Daily):
		m.historyGranularity = "daily"
		m.historyScrollPos = 0
		return m, nil
	case key.Matches(msg, m.keys.Weekly):
		m.historyGranularity = "weekly"
		m.historyScrollPos = 0
		return m, nil
	case key.Matches(msg, m.keys.Monthly):
		m.historyGranularity = "monthly"
		m.historyScrollPos = 0
		return m, nil
	}

	return m, nil
}

func formatDecisionDetail(e audit.Entry) string {
	var lines []string
	lines = append(lines, "Gate:      "+e.Gate)
	lines = append(lines, "Decision:  "+e.Decision)
	lines = append(lines, "Event:     "+orDash(e.HookEvent))
	lines = append(lines, "Tool:      "+orDash(e.ToolName))
	lines = append(lines, "Session:   "+orDash(e.SessionID))
	lines = append(lines, "CWD:       "+orDash(e.CWD))
	lines = append(lines, "Timestamp: "+e.Timestamp.Local().Format("2006-01-02 15:04:05"))
	lines = append(lines, fmt.Sprintf("Took:      %s", e.Duration))
	lines = append(lines, "ID:        "+e.ID)
	if e.Reason != "" {
		lines = append(lines, "")
		lines = append(lines, "Reason:")
		lines = append(lines, e.Reason)
	}
	return strings.Join(lines, "\n")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func (m Model) headerIndicators() string {
	var parts []string
	if m.provider == nil {
		parts = append(parts, "[No history]")
	}
	if desc := describeFilter(m.filter); desc != "" {
		parts = append(parts, "["+desc+"]")
	}
	if len(parts) == 0 {
		return ""
	}
	return " " + strings.Join(parts, " ")
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var output string
	switch m.view {
	case ViewDecisions:
		output = m.renderDecisions()
	case ViewHistory:
		output = m.renderHistory()
	}

	if m.height > 0 {
		lines := strings.Split(output, "\n")
		if len(lines) > m.height {
			lines = lines[:m.height]
			output = strings.Join(lines, "\n")
		}
	}

	return output
}
