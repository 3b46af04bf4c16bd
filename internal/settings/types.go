package settings

// MergeResult describes the outcome of a hook installation.
type MergeResult int

const (
	// MergeSuccess means settings.json was written.
	MergeSuccess MergeResult = iota
	// MergeAlreadyConfigured means every hook was already registered.
	MergeAlreadyConfigured
	// MergeError means the file could not be read, parsed or written.
	MergeError
)

func (r MergeResult) String() string {
	switch r {
	case MergeSuccess:
		return "success"
	case MergeAlreadyConfigured:
		return "already configured"
	default:
		return "error"
	}
}

// Hook is one command registration under settings.json "hooks".
type Hook struct {
	Event   string // e.g. "Stop", "PreToolUse"
	Matcher string // tool name matcher; empty for events without tools
	Gate    string
	Command string
}

// MergeOptions configures Merge.
type MergeOptions struct {
	// SettingsPath overrides ~/.claude/settings.json.
	SettingsPath string
	// Hooks to register. RequiredHooks builds the standard set.
	Hooks []Hook
	// Force rewrites registrations that run the same gate with a different
	// command (for example an older binary path).
	Force bool
}

// MergeOutput reports what Merge did.
type MergeOutput struct {
	Result   MergeResult
	Err      error
	Messages []string
	Warnings []string
}
