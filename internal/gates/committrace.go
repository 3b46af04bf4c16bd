package gates

import (
	"regexp"
	"strings"

	"github.com/nixlim/devkit-gates/internal/hook"
)

const commitTraceReason = "Include a Task: trailer in the commit message " +
	"(e.g., Task: add-auth-middleware) or Task: ad-hoc for untracked work."

var (
	// git commit ... -m "msg" | -m 'msg'. The first -m after "git commit"
	// wins; the message may span lines.
	inlineMessageRe = regexp.MustCompile(`(?s)git\s+commit\s+.*?-m\s+(?:"(.+?)"|'(.+?)')`)

	// git commit ... -m "$(cat <<'EOF' ... EOF)". Captures the optional
	// tab-stripping dash and the delimiter; the body is located separately
	// since RE2 has no backreferences.
	heredocOpenRe = regexp.MustCompile(`(?s)git\s+commit\s+.*?-m\s+"\$\(cat\s+<<(-?)\s*['"]?(\w+)['"]?`)

	taskTrailerRe = regexp.MustCompile(`(?i)Task:`)
)

// CommitTraceGate runs before Bash tool calls. It blocks git commit
// invocations whose message carries no Task: trailer. Commands whose
// message cannot be extracted are allowed.
type CommitTraceGate struct{}

// Name implements Gate.
func (CommitTraceGate) Name() string { return NameCommitTrace }

// Evaluate implements Gate.
func (CommitTraceGate) Evaluate(ev *hook.Event) hook.Decision {
	if ev.ToolName() != hook.ToolBash {
		return hook.Allow()
	}

	command := ev.String("tool_input", "command")
	if !strings.Contains(command, "git commit") {
		return hook.Allow()
	}

	// --amend without -m keeps the existing message.
	if strings.Contains(command, "--amend") && !strings.Contains(command, "-m") {
		return hook.Allow()
	}

	message, ok := ExtractCommitMessage(command)
	if !ok {
		return hook.Allow()
	}

	if taskTrailerRe.MatchString(message) {
		return hook.Allow()
	}
	return hook.Block(commitTraceReason)
}

// ExtractCommitMessage pulls the commit message out of a git commit command
// line. It recognises an inline quoted -m argument and a heredoc fed through
// $(cat <<EOF ...). ok is false when neither form is present.
func ExtractCommitMessage(command string) (message string, ok bool) {
	if m := inlineMessageRe.FindStringSubmatch(command); m != nil {
		message = m[1]
		if message == "" {
			message = m[2]
		}
		if !strings.HasPrefix(message, "$(cat") {
			return message, true
		}
	}

	if body, found := heredocBody(command); found {
		return body, true
	}

	if message != "" {
		return message, true
	}
	return "", false
}

// heredocBody returns the lines after the heredoc opener up to the first
// line consisting only of the delimiter. With <<- leading tabs are ignored
// when looking for it. An unterminated heredoc yields everything after the
// opener.
func heredocBody(command string) (string, bool) {
	loc := heredocOpenRe.FindStringSubmatchIndex(command)
	if loc == nil {
		return "", false
	}

	stripTabs := loc[3] > loc[2]
	delimiter := command[loc[4]:loc[5]]

	rest := command[loc[1]:]
	nl := strings.IndexByte(rest, '\n')
	if nl < 0 {
		return "", false
	}
	rest = rest[nl+1:]

	var body []string
	for _, line := range strings.Split(rest, "\n") {
		candidate := strings.TrimRight(line, " \t\r")
		if stripTabs {
			candidate = strings.TrimLeft(candidate, "\t")
		}
		if candidate == delimiter {
			return strings.Join(body, "\n"), true
		}
		body = append(body, line)
	}
	return rest, true
}
