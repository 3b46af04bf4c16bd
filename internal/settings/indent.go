package settings

import "strings"

const defaultIndent = "  "

// detectIndent returns the leading whitespace of the first indented line in
// data so a rewritten settings.json keeps the user's formatting.
func detectIndent(data []byte) string {
	for _, line := range strings.Split(string(data), "\n") {
		trimmed := strings.TrimLeft(line, " \t")
		if trimmed != "" && len(trimmed) < len(line) {
			return line[:len(line)-len(trimmed)]
		}
	}
	return defaultIndent
}
