package tui

import (
	"fmt"
	"strings"
)

func (m Model) renderDecisions() string {
	var sb strings.Builder

	help := "f:Filter s:Session Enter:Detail Tab:History q:Quit "
	sb.WriteString(m.renderHeader(" [Decisions]", help))
	sb.WriteByte('\n')

	if m.provider == nil {
		sb.WriteByte('\n')
		sb.WriteString(dimStyle.Render("  decision history is disabled; set [audit] db_path in the config to record decisions"))
		sb.WriteByte('\n')
		return sb.String()
	}

	if len(m.entries) == 0 {
		sb.WriteByte('\n')
		sb.WriteString(dimStyle.Render("  No decisions recorded"))
		sb.WriteByte('\n')
		return m.withOverlays(sb.String())
	}

	sb.WriteString(fmt.Sprintf("  %-14s %-13s %-8s %-8s %-6s %s",
		"Time", "Gate", "Decision", "Session", "Tool", "Reason"))
	sb.WriteByte('\n')
	sb.WriteString(dimStyle.Render("  " + strings.Repeat("─", 68)))
	sb.WriteByte('\n')

	// Columns before the reason take 2+14+1+13+1+8+1+8+1+6+1 cells.
	reasonW := m.width - 56
	if reasonW < 10 {
		reasonW = 10
	}

	start, end := window(m.cursor, len(m.entries), m.listHeight())
	for i := start; i < end; i++ {
		e := m.entries[i]

		decision := allowStyle.Render(fmt.Sprintf("%-8s", "allow"))
		if e.Blocked() {
			decision = blockStyle.Render(fmt.Sprintf("%-8s", "BLOCK"))
		}
		session := truncateID(e.SessionID, 8)
		if session == "" {
			session = "-"
		}

		line := fmt.Sprintf("  %-14s %-13s %s %-8s %-6s %s",
			e.Timestamp.Local().Format("01-02 15:04:05"),
			truncate(e.Gate, 13),
			decision,
			session,
			truncate(orDash(e.ToolName), 6),
			truncate(firstLine(e.Reason), reasonW),
		)
		if i == m.cursor {
			line = selectedStyle.Render("▸" + line[1:])
		}
		sb.WriteString(line)
		sb.WriteByte('\n')
	}

	return m.withOverlays(sb.String())
}

func (m Model) withOverlays(s string) string {
	if m.filterMenu.Active {
		s = m.overlayFilterMenu(s)
	}
	if m.detailOverlay {
		s = m.overlayDetail(s)
	}
	return s
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
