package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/nixlim/devkit-gates/internal/audit"
)

type historyRow struct {
	label    string
	gate     string
	allowed  int
	blocked  int
	sessions int
}

func (r historyRow) blockRate() float64 {
	total := r.allowed + r.blocked
	if total == 0 {
		return 0
	}
	return float64(r.blocked) * 100 / float64(total)
}

// historyRange returns how many days of summaries each granularity covers.
func (m Model) historyRange() int {
	switch m.historyGranularity {
	case "weekly":
		if m.historyDays > 28 {
			return m.historyDays
		}
		return 28
	case "monthly":
		if m.historyDays > 90 {
			return m.historyDays
		}
		return 90
	default:
		return m.historyDays
	}
}

func (m Model) renderHistory() string {
	var sb strings.Builder

	viewLabel := fmt.Sprintf(" [History] %s, %dd", m.historyGranularity, m.historyRange())
	help := "d:Daily w:Weekly m:Monthly  Tab:Decisions  q:Quit "
	sb.WriteString(m.renderHeader(viewLabel, help))
	sb.WriteByte('\n')

	if m.provider == nil {
		sb.WriteByte('\n')
		sb.WriteString(dimStyle.Render("  decision history is disabled; set [audit] db_path in the config to record decisions"))
		sb.WriteByte('\n')
		return sb.String()
	}

	summaries := m.provider.QueryDailySummaries(m.historyRange())
	if len(summaries) == 0 {
		sb.WriteByte('\n')
		sb.WriteString(dimStyle.Render("  No historical data available"))
		sb.WriteByte('\n')
		return sb.String()
	}

	var rows []historyRow
	dateHeader := "Date"
	switch m.historyGranularity {
	case "weekly":
		rows = aggregateRows(summaries, weekLabel)
		dateHeader = "Week"
	case "monthly":
		rows = aggregateRows(summaries, monthLabel)
		dateHeader = "Month"
	default:
		rows = aggregateRows(summaries, func(date string) string { return date })
	}

	sb.WriteString(fmt.Sprintf("  %-14s %-13s %8s %8s %7s %8s",
		dateHeader, "Gate", "Allowed", "Blocked", "Block%", "Sessions"))
	sb.WriteByte('\n')
	sb.WriteString(dimStyle.Render("  " + strings.Repeat("─", 63)))
	sb.WriteByte('\n')

	visibleH := m.listHeight()
	startIdx := m.historyScrollPos
	if startIdx > len(rows)-visibleH {
		startIdx = len(rows) - visibleH
	}
	if startIdx < 0 {
		startIdx = 0
	}
	endIdx := startIdx + visibleH
	if endIdx > len(rows) {
		endIdx = len(rows)
	}

	for i := startIdx; i < endIdx; i++ {
		r := rows[i]
		blocked := fmt.Sprintf("%8d", r.blocked)
		if r.blocked > 0 {
			blocked = blockStyle.Render(blocked)
		}
		sb.WriteString(fmt.Sprintf("  %-14s %-13s %8d %s %6.1f%% %8d",
			r.label, truncate(r.gate, 13), r.allowed, blocked, r.blockRate(), r.sessions))
		sb.WriteByte('\n')
	}

	return sb.String()
}

// aggregateRows groups summaries by (label(date), gate), preserving the
// order in which groups first appear.
func aggregateRows(summaries []audit.DailySummary, label func(date string) string) []historyRow {
	type groupKey struct{ label, gate string }
	index := make(map[groupKey]int)
	var rows []historyRow

	for _, ds := range summaries {
		k := groupKey{label(ds.Date), ds.Gate}
		i, ok := index[k]
		if !ok {
			i = len(rows)
			index[k] = i
			rows = append(rows, historyRow{label: k.label, gate: k.gate})
		}
		rows[i].allowed += ds.Allowed
		rows[i].blocked += ds.Blocked
		rows[i].sessions += ds.Sessions
	}
	return rows
}

func weekLabel(date string) string {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return date
	}
	y, w := t.ISOWeek()
	return fmt.Sprintf("Week %d-%02d", y, w)
}

func monthLabel(date string) string {
	if len(date) >= 7 {
		return date[:7]
	}
	return date
}
