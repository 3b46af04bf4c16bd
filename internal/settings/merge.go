package settings

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/kballard/go-shellquote"

	"github.com/nixlim/devkit-gates/internal/gates"
)

// DefaultBinary is the command name written into settings.json when no
// explicit binary path is given.
const DefaultBinary = "devkit-gates"

// DefaultSettingsPath returns the path to the user-level Claude Code
// settings.json.
func DefaultSettingsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".claude", "settings.json")
}

// ProjectSettingsPath returns the project-level settings.json under dir.
func ProjectSettingsPath(dir string) string {
	return filepath.Join(dir, ".claude", "settings.json")
}

// RequiredHooks returns one registration per known gate, each invoking
// "<binary> [-config <configPath>] run <gate>". The command is shell-quoted,
// so paths containing spaces survive the runtime's shell.
func RequiredHooks(binary, configPath string) []Hook {
	if binary == "" {
		binary = DefaultBinary
	}
	infos := gates.Registry()
	hooks := make([]Hook, 0, len(infos))
	for _, info := range infos {
		hooks = append(hooks, Hook{
			Event:   info.HookEvent,
			Matcher: info.Matcher,
			Gate:    info.Name,
			Command: HookCommand(binary, configPath, info.Name),
		})
	}
	return hooks
}

// HookCommand builds the shell command that runs gate.
func HookCommand(binary, configPath, gate string) string {
	args := []string{binary}
	if configPath != "" {
		args = append(args, "-config", configPath)
	}
	return shellquote.Join(append(args, "run", gate)...)
}

// Merge registers opts.Hooks in settings.json and writes the file back
// atomically (temp file + rename).
//
// Behaviour:
//   - File not found or empty: creates it with the hooks block.
//   - Malformed JSON: creates a .bak backup and returns an error.
//   - Hooks registered by other tools are left untouched.
//   - A hook already present: nothing is written (MergeAlreadyConfigured).
//   - Same gate registered with another command: warns, or rewrites it when
//     opts.Force is set.
func Merge(opts MergeOptions) MergeOutput {
	settingsPath := opts.SettingsPath
	if settingsPath == "" {
		settingsPath = DefaultSettingsPath()
	}
	if settingsPath == "" {
		return MergeOutput{Result: MergeError, Err: errors.New("cannot determine settings path: no home directory")}
	}

	settings := make(map[string]any)
	indent := defaultIndent
	created := false

	data, err := os.ReadFile(settingsPath)
	switch {
	case err == nil:
		indent = detectIndent(data)
		if len(bytes.TrimSpace(data)) > 0 {
			if err := json.Unmarshal(data, &settings); err != nil {
				return backupMalformed(settingsPath, data)
			}
			if settings == nil {
				settings = make(map[string]any)
			}
		}
	case errors.Is(err, fs.ErrNotExist):
		created = true
		dir := filepath.Dir(settingsPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			if errors.Is(err, fs.ErrPermission) {
				return MergeOutput{Result: MergeError, Err: fmt.Errorf("permission denied creating directory %s", dir)}
			}
			return MergeOutput{Result: MergeError, Err: fmt.Errorf("creating directory %s: %w", dir, err)}
		}
	case errors.Is(err, fs.ErrPermission):
		return MergeOutput{Result: MergeError, Err: fmt.Errorf("permission denied reading %s", settingsPath)}
	default:
		return MergeOutput{Result: MergeError, Err: fmt.Errorf("reading settings file: %w", err)}
	}

	hooksBlock, ok := settings["hooks"].(map[string]any)
	if !ok {
		if v, exists := settings["hooks"]; exists && v != nil {
			return MergeOutput{
				Result: MergeError,
				Err:    fmt.Errorf("%s: \"hooks\" is not an object; fix it by hand before installing", settingsPath),
			}
		}
		hooksBlock = make(map[string]any)
		settings["hooks"] = hooksBlock
	}

	var (
		messages []string
		warnings []string
		changed  bool
	)
	for _, h := range opts.Hooks {
		change, existing, err := mergeHook(hooksBlock, h, opts.Force)
		if err != nil {
			return MergeOutput{Result: MergeError, Err: fmt.Errorf("%s: %w", settingsPath, err)}
		}
		switch change {
		case hookAdded:
			changed = true
			messages = append(messages, fmt.Sprintf("Added %s hook: %s", describe(h), h.Command))
		case hookUpdated:
			changed = true
			messages = append(messages, fmt.Sprintf("Updated %s hook from %q to %q", describe(h), existing, h.Command))
		case hookConflict:
			warnings = append(warnings, fmt.Sprintf(
				"Warning: %s hook runs %q (expected %q), not overwriting; use --force to replace",
				describe(h), existing, h.Command,
			))
		}
	}

	if !changed {
		return MergeOutput{
			Result:   MergeAlreadyConfigured,
			Messages: []string{"All gate hooks are already registered"},
			Warnings: warnings,
		}
	}

	if err := writeSettingsAtomic(settingsPath, settings, indent); err != nil {
		return MergeOutput{Result: MergeError, Err: fmt.Errorf("writing settings file: %w", err)}
	}
	if created {
		messages = append([]string{fmt.Sprintf("Created %s", settingsPath)}, messages...)
	}

	return MergeOutput{Result: MergeSuccess, Messages: messages, Warnings: warnings}
}

type hookChange int

const (
	hookPresent hookChange = iota
	hookAdded
	hookUpdated
	hookConflict
)

// mergeHook registers h in hooksBlock. A matcher group with the same matcher
// is reused; otherwise a new group is appended after existing ones.
func mergeHook(hooksBlock map[string]any, h Hook, force bool) (hookChange, string, error) {
	var groups []any
	if raw, exists := hooksBlock[h.Event]; exists {
		var ok bool
		if groups, ok = raw.([]any); !ok {
			return hookPresent, "", fmt.Errorf("hooks.%s is not an array", h.Event)
		}
	}

	var target map[string]any
	for _, g := range groups {
		group, ok := g.(map[string]any)
		if !ok {
			continue
		}
		matcher, _ := group["matcher"].(string)
		if matcher != h.Matcher {
			continue
		}
		if target == nil {
			target = group
		}

		entries, _ := group["hooks"].([]any)
		for _, e := range entries {
			entry, ok := e.(map[string]any)
			if !ok {
				continue
			}
			command, _ := entry["command"].(string)
			if command == h.Command {
				return hookPresent, "", nil
			}
			if runsGate(command, h.Gate) {
				if !force {
					return hookConflict, command, nil
				}
				entry["command"] = h.Command
				return hookUpdated, command, nil
			}
		}
	}

	entry := map[string]any{"type": "command", "command": h.Command}
	if target != nil {
		entries, _ := target["hooks"].([]any)
		target["hooks"] = append(entries, entry)
	} else {
		group := map[string]any{"hooks": []any{entry}}
		if h.Matcher != "" {
			group["matcher"] = h.Matcher
		}
		groups = append(groups, group)
	}
	hooksBlock[h.Event] = groups
	return hookAdded, "", nil
}

// runsGate reports whether command invokes "devkit-gates ... run <gate>",
// whatever the binary's directory, global flags or leading env assignments.
func runsGate(command, gate string) bool {
	fields, err := shellquote.Split(command)
	if err != nil {
		fields = strings.Fields(command)
	}
	n := len(fields)
	if n < 3 || fields[n-1] != gate || fields[n-2] != "run" {
		return false
	}
	for _, f := range fields[:n-2] {
		if filepath.Base(f) == DefaultBinary {
			return true
		}
	}
	return false
}

func describe(h Hook) string {
	if h.Matcher == "" {
		return h.Event
	}
	return h.Event + "[" + h.Matcher + "]"
}

func backupMalformed(settingsPath string, data []byte) MergeOutput {
	bakPath := settingsPath + ".bak"
	if err := os.WriteFile(bakPath, data, 0644); err != nil {
		return MergeOutput{
			Result:   MergeError,
			Err:      fmt.Errorf("settings.json contains invalid JSON and backup failed: %w", err),
			Messages: []string{fmt.Sprintf("Failed to create backup at %s", bakPath)},
		}
	}
	return MergeOutput{
		Result:   MergeError,
		Err:      fmt.Errorf("settings.json contains invalid JSON (backup saved to %s)", bakPath),
		Messages: []string{fmt.Sprintf("Backup saved to %s", bakPath)},
	}
}

// writeSettingsAtomic writes settings to a temp file in the same directory
// and renames it over path.
func writeSettingsAtomic(path string, settings map[string]any, indent string) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false) // keep "&&" in commands readable
	enc.SetIndent("", indent)
	if err := enc.Encode(settings); err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}

	dir := filepath.Dir(path)
	tmpFile, err := os.CreateTemp(dir, ".settings-*.json.tmp")
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return fmt.Errorf("permission denied writing to %s", dir)
		}
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	defer func() {
		if tmpPath != "" {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(buf.Bytes()); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}

	mode := os.FileMode(0644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode()
	}
	_ = os.Chmod(tmpPath, mode)

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming temp file to %s: %w", path, err)
	}
	tmpPath = ""

	return nil
}
