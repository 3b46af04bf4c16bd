package tui

import (
	"strings"

	"github.com/nixlim/devkit-gates/internal/audit"
)

const optBlockedOnly = "blocked_only"

// FilterMenuState tracks the interactive filter menu.
type FilterMenuState struct {
	Active  bool
	Cursor  int
	Options []FilterOption
}

// FilterOption is one row of the filter menu. Gate options behave as a
// radio group: enabling one disables the others, and none enabled means
// all gates.
type FilterOption struct {
	Label   string
	Key     string
	Enabled bool
}

// NewFilterMenu creates a filter menu with one option per gate plus a
// blocked-only toggle.
func NewFilterMenu(gateNames []string) FilterMenuState {
	opts := []FilterOption{{Label: "Blocked only", Key: optBlockedOnly}}
	for _, name := range gateNames {
		opts = append(opts, FilterOption{Label: "Gate: " + name, Key: gateOptionKey(name)})
	}
	return FilterMenuState{Options: opts}
}

func gateOptionKey(name string) string { return "gate:" + name }

// Toggle flips the option under the cursor.
func (f *FilterMenuState) Toggle() {
	if f.Cursor < 0 || f.Cursor >= len(f.Options) {
		return
	}
	opt := &f.Options[f.Cursor]
	opt.Enabled = !opt.Enabled
	if opt.Enabled && strings.HasPrefix(opt.Key, "gate:") {
		for i := range f.Options {
			if i != f.Cursor && strings.HasPrefix(f.Options[i].Key, "gate:") {
				f.Options[i].Enabled = false
			}
		}
	}
}

// Apply copies the menu selections into filter, keeping its session and
// limit.
func (f FilterMenuState) Apply(filter audit.Filter) audit.Filter {
	filter.Gate = ""
	filter.BlockedOnly = false
	for _, opt := range f.Options {
		if !opt.Enabled {
			continue
		}
		if opt.Key == optBlockedOnly {
			filter.BlockedOnly = true
		} else if gate, ok := strings.CutPrefix(opt.Key, "gate:"); ok {
			filter.Gate = gate
		}
	}
	return filter
}

// describeFilter renders the active filter for the header; empty when
// nothing is filtered.
func describeFilter(f audit.Filter) string {
	var parts []string
	if f.Gate != "" {
		parts = append(parts, "gate="+f.Gate)
	}
	if f.SessionID != "" {
		parts = append(parts, "session="+truncateID(f.SessionID, 8))
	}
	if f.BlockedOnly {
		parts = append(parts, "blocked")
	}
	return strings.Join(parts, " ")
}
