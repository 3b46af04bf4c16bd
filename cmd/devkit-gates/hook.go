package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/nixlim/devkit-gates/internal/audit"
	"github.com/nixlim/devkit-gates/internal/config"
	"github.com/nixlim/devkit-gates/internal/gates"
	"github.com/nixlim/devkit-gates/internal/hook"
	"github.com/nixlim/devkit-gates/internal/storage"
	"github.com/nixlim/devkit-gates/internal/telemetry"
)

// runHookCommand is the hook entry point. It always exits 0: a decision is
// communicated only through the JSON document on stdout.
func runHookCommand(configPath, name string, stdin io.Reader, stdout, stderr io.Writer) int {
	log.SetOutput(io.Discard)

	cfg := config.DefaultConfig()
	if result, err := loadConfig(configPath); err != nil {
		fmt.Fprintf(stderr, "devkit-gates: config error: %v (using defaults)\n", err)
	} else {
		cfg = result.Config
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if _, err := runHook(ctx, cfg, name, stdin, stdout); err != nil {
		fmt.Fprintf(stderr, "devkit-gates: %v\n", err)
	}
	return 0
}

// runHook evaluates the named gate against the payload on in, writes the
// decision to out and records it. An unknown gate name allows.
func runHook(ctx context.Context, cfg config.Config, name string, in io.Reader, out io.Writer) (hook.Decision, error) {
	gate, err := gates.New(name, cfg)
	if err != nil {
		return hook.Allow(), err
	}

	recorders, closeRecorders := openRecorders(cfg)
	defer closeRecorders()

	opts := make([]gates.RunnerOption, 0, len(recorders))
	for _, rec := range recorders {
		opts = append(opts, gates.WithRecorder(rec))
	}
	return gates.NewRunner(opts...).Run(ctx, gate, in, out), nil
}

// openRecorders opens every configured decision recorder. Recorders that
// fail to open are skipped. The returned func closes whatever was opened.
func openRecorders(cfg config.Config) ([]audit.Logger, func()) {
	var (
		recorders []audit.Logger
		closers   []func() error
	)

	store, err := storage.NewStore(cfg.Audit)
	if err != nil {
		log.Printf("WARNING: decision history unavailable: %v", err)
	} else if store != nil {
		recorders = append(recorders, store)
		closers = append(closers, store.Close)
	}

	if cfg.Audit.LogPath != "" {
		f, err := openAppend(config.ExpandTilde(cfg.Audit.LogPath))
		if err != nil {
			log.Printf("WARNING: decision log unavailable: %v", err)
		} else {
			recorders = append(recorders, audit.NewFileLogger(f))
			closers = append(closers, f.Close)
		}
	}

	exporter, err := telemetry.NewExporter(cfg.Telemetry)
	if err != nil {
		log.Printf("WARNING: telemetry export unavailable: %v", err)
	} else if exporter != nil {
		recorders = append(recorders, exporter)
		closers = append(closers, exporter.Close)
	}

	return recorders, func() {
		for _, c := range closers {
			if err := c(); err != nil {
				log.Printf("WARNING: closing recorder: %v", err)
			}
		}
	}
}

func openAppend(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	return f, nil
}
