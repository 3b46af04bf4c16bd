package main

import (
	"flag"
	"fmt"
	"io"
	"path/filepath"

	"github.com/nixlim/devkit-gates/internal/config"
	"github.com/nixlim/devkit-gates/internal/settings"
)

// runInstall registers the gate hooks in Claude Code's settings.json and
// prints the result.
//
// Exit codes:
//   - 0: success or already configured
//   - 1: error
func runInstall(configPath string, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("install", flag.ContinueOnError)
	fs.SetOutput(stderr)
	settingsPath := fs.String("settings", "", "Path to settings.json (default ~/.claude/settings.json)")
	projectDir := fs.String("project", "", "Install into <dir>/.claude/settings.json instead of the user settings")
	binary := fs.String("binary", settings.DefaultBinary, "Command used to invoke devkit-gates from the hook")
	force := fs.Bool("force", false, "Replace existing devkit-gates hooks that use a different command")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *settingsPath != "" && *projectDir != "" {
		fmt.Fprintln(stderr, "Error: --settings and --project are mutually exclusive")
		return 1
	}

	path := *settingsPath
	if *projectDir != "" {
		path = settings.ProjectSettingsPath(*projectDir)
	}

	// Hooks run from each session's working directory.
	if configPath != "" {
		abs, err := filepath.Abs(config.ExpandTilde(configPath))
		if err != nil {
			fmt.Fprintf(stderr, "Error: resolving config path: %v\n", err)
			return 1
		}
		configPath = abs
	}
	hooks := settings.RequiredHooks(*binary, configPath)

	output := settings.Merge(settings.MergeOptions{
		SettingsPath: path,
		Hooks:        hooks,
		Force:        *force,
	})

	for _, msg := range output.Messages {
		fmt.Fprintln(stdout, msg)
	}
	for _, w := range output.Warnings {
		fmt.Fprintln(stderr, w)
	}

	switch output.Result {
	case settings.MergeSuccess:
		fmt.Fprintln(stdout, "Hooks installed. Restart your Claude Code sessions to apply.")
		return 0
	case settings.MergeAlreadyConfigured:
		fmt.Fprintln(stdout, "Already configured. No changes needed.")
		return 0
	default:
		fmt.Fprintf(stderr, "Error: %v\n", output.Err)
		return 1
	}
}
