package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kballard/go-shellquote"

	"github.com/nixlim/devkit-gates/internal/audit"
	"github.com/nixlim/devkit-gates/internal/hook"
	"github.com/nixlim/devkit-gates/internal/storage"
)

const blockedCommit = `{"session_id":"s1","hook_event_name":"PreToolUse","tool_name":"Bash","tool_input":{"command":"git commit -m \"fix bug\""}}`

// writeConfig writes a config that records into dir and returns its path.
func writeConfig(t *testing.T, dir, extra string) string {
	t.Helper()
	path := filepath.Join(dir, "config.toml")
	content := "[audit]\n" +
		"db_path = \"" + filepath.ToSlash(filepath.Join(dir, "gates.db")) + "\"\n" +
		"log_path = \"" + filepath.ToSlash(filepath.Join(dir, "decisions.jsonl")) + "\"\n" +
		extra
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func runCLI(t *testing.T, stdin string, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(args, strings.NewReader(stdin), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRun_HookBlocksAndRecords(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir, "")

	code, stdout, _ := runCLI(t, blockedCommit, "-config", cfgPath, "run", "commit-trace")
	if code != 0 {
		t.Errorf("hook mode must exit 0, got %d", code)
	}

	var doc map[string]string
	if err := json.Unmarshal([]byte(stdout), &doc); err != nil {
		t.Fatalf("stdout is not a decision document: %v\n%q", err, stdout)
	}
	if doc["decision"] != "block" {
		t.Errorf("want block, got %v", doc)
	}

	store, err := storage.NewSQLiteStore(filepath.Join(dir, "gates.db"), 30)
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	defer func() { _ = store.Close() }()
	entries := store.QueryDecisions(audit.Filter{})
	if len(entries) != 1 || entries[0].Gate != "commit-trace" || entries[0].SessionID != "s1" {
		t.Errorf("decision not recorded in history: %+v", entries)
	}

	logData, err := os.ReadFile(filepath.Join(dir, "decisions.jsonl"))
	if err != nil {
		t.Fatalf("reading decision log: %v", err)
	}
	if !strings.Contains(string(logData), `"decision":"block"`) {
		t.Errorf("decision log should carry the block, got %q", logData)
	}
}

func TestRun_HookFailsOpen(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir, "")
	badCfg := filepath.Join(dir, "bad.toml")
	if err := os.WriteFile(badCfg, []byte("[gates\n"), 0644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		stdin string
		args  []string
	}{
		{"unknown gate", blockedCommit, []string{"-config", cfgPath, "run", "nope"}},
		{"missing gate", blockedCommit, []string{"-config", cfgPath, "run"}},
		{"malformed payload", "{oops", []string{"-config", cfgPath, "run", "commit-trace"}},
		{"empty payload", "", []string{"-config", cfgPath, "run", "handoff"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, stdout, _ := runCLI(t, tt.stdin, tt.args...)
			if code != 0 {
				t.Errorf("want exit 0, got %d", code)
			}
			if stdout != "" {
				t.Errorf("want no output, got %q", stdout)
			}
		})
	}

	t.Run("broken config uses defaults", func(t *testing.T) {
		code, stdout, stderr := runCLI(t, blockedCommit, "-config", badCfg, "run", "commit-trace")
		if code != 0 {
			t.Errorf("want exit 0, got %d", code)
		}
		if !strings.Contains(stdout, `"decision":"block"`) {
			t.Errorf("default config should still evaluate the gate, got %q", stdout)
		}
		if !strings.Contains(stderr, "config error") {
			t.Errorf("config error should be reported on stderr, got %q", stderr)
		}
	})
}

func TestRun_DisabledGate(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir, "\n[gates]\ncommit_trace = false\n")

	code, stdout, _ := runCLI(t, blockedCommit, "-config", cfgPath, "run", "commit-trace")
	if code != 0 || stdout != "" {
		t.Errorf("disabled gate should allow silently, got %d %q", code, stdout)
	}
}

func TestCheck_ExitCodes(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir, "")
	payload := filepath.Join(dir, "payload.json")
	if err := os.WriteFile(payload, []byte(blockedCommit), 0644); err != nil {
		t.Fatal(err)
	}

	code, stdout, _ := runCLI(t, "", "-config", cfgPath, "check", "commit-trace", payload)
	if code != exitBlocked {
		t.Errorf("block: want exit %d, got %d", exitBlocked, code)
	}
	if !strings.Contains(stdout, "BLOCK") || !strings.Contains(stdout, "Task:") {
		t.Errorf("verdict should show the block and reason, got:\n%s", stdout)
	}

	allowed := `{"tool_name":"Bash","tool_input":{"command":"git status"}}`
	code, stdout, _ = runCLI(t, allowed, "-config", cfgPath, "check", "commit-trace")
	if code != 0 || !strings.Contains(stdout, "ALLOW") {
		t.Errorf("allow: want exit 0 with ALLOW, got %d:\n%s", code, stdout)
	}

	code, stdout, _ = runCLI(t, blockedCommit, "-config", cfgPath, "check", "--json", "commit-trace")
	if code != exitBlocked || !strings.HasPrefix(stdout, `{"decision":"block"`) {
		t.Errorf("--json should print the hook document, got %d %q", code, stdout)
	}

	if _, err := os.Stat(filepath.Join(dir, "gates.db")); err == nil {
		t.Error("check must not record decisions")
	}

	if code, _, _ := runCLI(t, "", "-config", cfgPath, "check", "nope"); code != 1 {
		t.Errorf("unknown gate: want exit 1, got %d", code)
	}
	if code, _, _ := runCLI(t, "", "-config", cfgPath, "check", "handoff", filepath.Join(dir, "missing.json")); code != 1 {
		t.Errorf("missing payload file: want exit 1, got %d", code)
	}
}

func TestCheck_MalformedPayload(t *testing.T) {
	cfgPath := writeConfig(t, t.TempDir(), "")

	code, stdout, _ := runCLI(t, "[1,2]", "-config", cfgPath, "check", "handoff")
	if code != 0 {
		t.Errorf("malformed payload fails open: want exit 0, got %d", code)
	}
	if !strings.Contains(stdout, "not a JSON object") {
		t.Errorf("verdict should explain the parse failure, got:\n%s", stdout)
	}
}

func TestRenderVerdict(t *testing.T) {
	ev := hook.NewEvent(map[string]any{
		"hook_event_name":  "Stop",
		"session_id":       "abc",
		"stop_hook_active": true,
	})

	out := renderVerdict("handoff", ev, hook.Block("write a handoff"), nil)
	for _, want := range []string{"BLOCK", "handoff", "Stop", "abc", "stop_hook_active", "write a handoff"} {
		if !strings.Contains(out, want) {
			t.Errorf("verdict should contain %q:\n%s", want, out)
		}
	}

	out = renderVerdict("handoff", hook.NewEvent(nil), hook.Allow(), nil)
	if !strings.Contains(out, "ALLOW") || strings.Contains(out, "session:") {
		t.Errorf("allow verdict with no metadata should be a single badge line:\n%s", out)
	}
}

func TestInstall_Project(t *testing.T) {
	project := t.TempDir()

	code, stdout, stderr := runCLI(t, "", "install", "--project", project)
	if code != 0 {
		t.Fatalf("install failed (%d): %s", code, stderr)
	}
	if !strings.Contains(stdout, "Hooks installed") {
		t.Errorf("unexpected output: %s", stdout)
	}

	data, err := os.ReadFile(filepath.Join(project, ".claude", "settings.json"))
	if err != nil {
		t.Fatalf("settings not written: %v", err)
	}
	for _, want := range []string{"devkit-gates run handoff", "devkit-gates run log-quality", "devkit-gates run commit-trace"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("settings should register %q:\n%s", want, data)
		}
	}

	code, stdout, _ = runCLI(t, "", "install", "--project", project)
	if code != 0 || !strings.Contains(stdout, "Already configured") {
		t.Errorf("second install should be a no-op, got %d: %s", code, stdout)
	}
}

func TestInstall_ConfigPathInCommand(t *testing.T) {
	settingsPath := filepath.Join(t.TempDir(), "settings.json")

	code, _, stderr := runCLI(t, "", "-config", "/etc/devkit/gates.toml", "install", "--settings", settingsPath)
	if code != 0 {
		t.Fatalf("install failed (%d): %s", code, stderr)
	}
	data, _ := os.ReadFile(settingsPath)
	if !strings.Contains(string(data), "devkit-gates -config /etc/devkit/gates.toml run handoff") {
		t.Errorf("hook command should carry the config path:\n%s", data)
	}
}

// installedCommand returns the settings.json hook command that runs gate.
func installedCommand(t *testing.T, settingsPath, gate string) string {
	t.Helper()
	data, err := os.ReadFile(settingsPath)
	if err != nil {
		t.Fatalf("reading settings: %v", err)
	}
	var doc struct {
		Hooks map[string][]struct {
			Hooks []struct {
				Command string `json:"command"`
			} `json:"hooks"`
		} `json:"hooks"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("parsing settings: %v", err)
	}
	for _, groups := range doc.Hooks {
		for _, g := range groups {
			for _, h := range g.Hooks {
				if strings.HasSuffix(h.Command, "run "+gate) {
					return h.Command
				}
			}
		}
	}
	t.Fatalf("no hook runs %s:\n%s", gate, data)
	return ""
}

func TestInstall_CommandRunsWithSpacedConfigPath(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "My Config")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	cfgPath := writeConfig(t, dir, "")
	settingsPath := filepath.Join(t.TempDir(), "settings.json")

	if code, _, stderr := runCLI(t, "", "-config", cfgPath, "install", "--settings", settingsPath); code != 0 {
		t.Fatalf("install failed (%d): %s", code, stderr)
	}

	args, err := shellquote.Split(installedCommand(t, settingsPath, "commit-trace"))
	if err != nil {
		t.Fatalf("installed command does not parse: %v", err)
	}
	if args[0] != "devkit-gates" {
		t.Fatalf("unexpected binary %q", args[0])
	}

	code, stdout, stderr := runCLI(t, blockedCommit, args[1:]...)
	if code != 0 || !strings.Contains(stdout, `"decision":"block"`) {
		t.Errorf("installed command should evaluate the gate, got %d %q (stderr %q)", code, stdout, stderr)
	}
	if _, err := os.Stat(filepath.Join(dir, "gates.db")); err != nil {
		t.Errorf("installed command should use the configured history: %v", err)
	}
}

func TestInstall_RelativeConfigPathMadeAbsolute(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	settingsPath := filepath.Join(t.TempDir(), "settings.json")

	if code, _, stderr := runCLI(t, "", "-config", "gates.toml", "install", "--settings", settingsPath); code != 0 {
		t.Fatalf("install failed (%d): %s", code, stderr)
	}

	args, err := shellquote.Split(installedCommand(t, settingsPath, "handoff"))
	if err != nil {
		t.Fatalf("installed command does not parse: %v", err)
	}
	if len(args) != 5 || args[1] != "-config" {
		t.Fatalf("unexpected command %q", args)
	}
	if !filepath.IsAbs(args[2]) || filepath.Base(args[2]) != "gates.toml" {
		t.Errorf("config path should be absolute, got %q", args[2])
	}
}

func TestInstall_FlagConflict(t *testing.T) {
	code, _, stderr := runCLI(t, "", "install", "--settings", "a.json", "--project", "b")
	if code != 1 || !strings.Contains(stderr, "mutually exclusive") {
		t.Errorf("want exit 1 with conflict message, got %d: %s", code, stderr)
	}
}

func TestHistory_RequiresDBPath(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(cfgPath, []byte("[audit]\nretention_days = 10\n"), 0644); err != nil {
		t.Fatal(err)
	}

	code, _, stderr := runCLI(t, "", "-config", cfgPath, "history")
	if code != 1 || !strings.Contains(stderr, "db_path") {
		t.Errorf("want exit 1 naming db_path, got %d: %s", code, stderr)
	}
}

func TestHistory_RejectsNonPositiveRefresh(t *testing.T) {
	cfgPath := writeConfig(t, t.TempDir(), "")

	code, _, stderr := runCLI(t, "", "-config", cfgPath, "history", "--refresh", "0s")
	if code != 1 || !strings.Contains(stderr, "--refresh") {
		t.Errorf("want exit 1 naming --refresh, got %d: %s", code, stderr)
	}
}

func TestGatesCommand(t *testing.T) {
	code, stdout, _ := runCLI(t, "", "gates")
	if code != 0 {
		t.Fatalf("want exit 0, got %d", code)
	}
	for _, want := range []string{"handoff", "Stop", "log-quality", "PreToolUse[Edit]", "commit-trace", "PreToolUse[Bash]"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("gates output should contain %q:\n%s", want, stdout)
		}
	}
}

func TestUsage(t *testing.T) {
	if code, _, stderr := runCLI(t, ""); code != 1 || !strings.Contains(stderr, "Commands:") {
		t.Errorf("no command: want usage and exit 1, got %d", code)
	}
	if code, _, stderr := runCLI(t, "", "frobnicate"); code != 1 || !strings.Contains(stderr, "unknown command") {
		t.Errorf("unknown command: want exit 1, got %d: %s", code, stderr)
	}
	if code, stdout, _ := runCLI(t, "", "help"); code != 0 || !strings.Contains(stdout, "Usage:") {
		t.Errorf("help: want usage on stdout, got %d", code)
	}
}
