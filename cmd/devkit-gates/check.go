package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/nixlim/devkit-gates/internal/gates"
	"github.com/nixlim/devkit-gates/internal/hook"
)

// exitBlocked is returned by check when the gate blocks, so fixture runs can
// be scripted.
const exitBlocked = 2

var (
	allowBadge = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("82")).
			Padding(0, 1)

	blockBadge = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("196")).
			Padding(0, 1)

	gateNameStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("69"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	reasonBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("196")).
			Padding(0, 1).
			Width(72)
)

// runCheck evaluates a payload without recording it and prints a
// human-readable verdict.
//
// Exit codes:
//   - 0: allow
//   - 1: usage or input error
//   - 2: block
func runCheck(configPath string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.SetOutput(stderr)
	jsonOut := fs.Bool("json", false, "Print the raw hook output instead of the styled verdict")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() < 1 || fs.NArg() > 2 {
		fmt.Fprintln(stderr, "usage: devkit-gates check [--json] <gate> [payload.json]")
		return 1
	}

	result, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error loading config: %v\n", err)
		return 1
	}
	for _, w := range result.Warnings {
		fmt.Fprintf(stderr, "Config warning: %s\n", w)
	}

	gate, err := gates.New(fs.Arg(0), result.Config)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	var data []byte
	if fs.NArg() == 2 {
		data, err = os.ReadFile(fs.Arg(1))
	} else {
		data, err = io.ReadAll(stdin)
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error reading payload: %v\n", err)
		return 1
	}

	ev, parseErr := hook.ParseEvent(data)
	d := hook.Allow()
	if parseErr == nil {
		d = gates.Evaluate(gate, ev)
	}

	if *jsonOut {
		if err := hook.WriteDecision(stdout, d); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
	} else {
		fmt.Fprintln(stdout, renderVerdict(gate.Name(), ev, d, parseErr))
	}

	if d.Blocked() {
		return exitBlocked
	}
	return 0
}

func renderVerdict(gate string, ev *hook.Event, d hook.Decision, parseErr error) string {
	var sb strings.Builder

	badge := allowBadge.Render("ALLOW")
	if d.Blocked() {
		badge = blockBadge.Render("BLOCK")
	}
	sb.WriteString(badge + " " + gateNameStyle.Render(gate))
	sb.WriteByte('\n')

	if parseErr != nil {
		sb.WriteString(labelStyle.Render("payload:  ") + "not a JSON object (" + parseErr.Error() + "); hooks fail open")
		sb.WriteByte('\n')
		return strings.TrimRight(sb.String(), "\n")
	}

	for _, field := range []struct{ label, value string }{
		{"event:    ", ev.HookEventName()},
		{"tool:     ", ev.ToolName()},
		{"session:  ", ev.SessionID()},
	} {
		if field.value != "" {
			sb.WriteString(labelStyle.Render(field.label) + field.value)
			sb.WriteByte('\n')
		}
	}

	if ev.Bool("stop_hook_active") {
		sb.WriteString(labelStyle.Render("note:     ") + "stop_hook_active is set; the runtime is already continuing from a block")
		sb.WriteByte('\n')
	}

	if d.Blocked() {
		sb.WriteString(reasonBoxStyle.Render(d.Reason()))
	}
	return strings.TrimRight(sb.String(), "\n")
}
