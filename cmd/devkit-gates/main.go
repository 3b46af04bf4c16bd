package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/nixlim/devkit-gates/internal/config"
	"github.com/nixlim/devkit-gates/internal/gates"
)

const usage = `devkit-gates: Claude Code hooks that keep task logs, handoffs and commits traceable

Usage:
  devkit-gates [-config PATH] <command> [arguments]

Commands:
  run <gate>                         hook mode: read the payload on stdin, write the decision on stdout
  check <gate> [payload]             evaluate a payload file (or stdin) and print the verdict
  install [flags]                    register the gate hooks in Claude Code settings.json
  history [--days N] [--refresh D]   browse recorded decisions
  gates                              list the available gates
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("devkit-gates", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to config.toml (default $DEVKIT_GATES_CONFIG or ~/.config/devkit-gates/config.toml)")
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fmt.Fprintln(stderr, "\nGlobal flags:")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 1
	}

	if fs.NArg() == 0 {
		fs.Usage()
		return 1
	}

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	switch cmd {
	case "run":
		if len(rest) != 1 {
			fmt.Fprintln(stderr, "usage: devkit-gates run <gate>")
			// Misregistered hooks must not block the agent.
			return 0
		}
		return runHookCommand(*configPath, rest[0], stdin, stdout, stderr)
	case "check":
		return runCheck(*configPath, rest, stdin, stdout, stderr)
	case "install":
		return runInstall(*configPath, rest, stdout, stderr)
	case "history":
		return runHistory(*configPath, rest, stderr)
	case "gates":
		listGates(stdout)
		return 0
	case "help":
		fmt.Fprint(stdout, usage)
		return 0
	default:
		fmt.Fprintf(stderr, "devkit-gates: unknown command %q\n\n", cmd)
		fs.Usage()
		return 1
	}
}

// loadConfig loads the config at path, or the default location when path
// is empty.
func loadConfig(path string) (*config.LoadResult, error) {
	if path != "" {
		return config.LoadFrom(path)
	}
	return config.Load()
}

func listGates(w io.Writer) {
	for _, info := range gates.Registry() {
		event := info.HookEvent
		if info.Matcher != "" {
			event += "[" + info.Matcher + "]"
		}
		fmt.Fprintf(w, "%-14s %-18s %s\n", info.Name, event, info.Description)
	}
}
