package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nixlim/devkit-gates/internal/gates"
	"github.com/nixlim/devkit-gates/internal/storage"
	"github.com/nixlim/devkit-gates/internal/tui"
)

func runHistory(configPath string, args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	fs.SetOutput(stderr)
	days := fs.Int("days", 7, "Days covered by the daily history view")
	refresh := fs.Duration("refresh", 2*time.Second, "How often the decision list is re-read")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *refresh <= 0 {
		fmt.Fprintf(stderr, "devkit-gates: --refresh must be positive, got %s\n", *refresh)
		return 1
	}

	result, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(stderr, "devkit-gates: config error: %v\n", err)
		return 1
	}
	for _, w := range result.Warnings {
		fmt.Fprintf(stderr, "devkit-gates: config warning: %s\n", w)
	}

	store, err := storage.NewStore(result.Config.Audit)
	if err != nil {
		fmt.Fprintf(stderr, "devkit-gates: storage error: %v\n", err)
		return 1
	}
	if store == nil {
		fmt.Fprintln(stderr, "devkit-gates: history requires [audit] db_path in the config")
		return 1
	}
	defer func() { _ = store.Close() }()

	if _, err := store.VacuumIfDue(context.Background()); err != nil {
		fmt.Fprintf(stderr, "devkit-gates: WARNING: %v\n", err)
	}

	model := tui.NewModel(
		tui.WithDecisionProvider(store),
		tui.WithGates(gates.Names()),
		tui.WithHistoryDays(*days),
		tui.WithRefreshRate(*refresh),
	)

	p := tea.NewProgram(model, tea.WithAltScreen())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		if _, ok := <-sigCh; ok {
			p.Quit()
		}
	}()

	if _, err := p.Run(); err != nil {
		fmt.Fprintf(stderr, "devkit-gates: %v\n", err)
		return 1
	}
	return 0
}
