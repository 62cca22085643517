package search

import "strings"

// Highlight flattens content onto one line and truncates it to maxLen runes,
// appending "..." when cut. A non-positive maxLen returns the flattened content.
func Highlight(content string, maxLen int) string {
	content = strings.Join(strings.Fields(content), " ")
	rs := []rune(content)
	if maxLen <= 0 || len(rs) <= maxLen {
		return content
	}
	return strings.TrimSpace(string(rs[:maxLen])) + "..."
}
