// Package strings holds text helpers shared by the output formatters.
package strings

import (
	"strings"
)

// DefaultMaxLen is the column width used for free-text cells such as
// errors and descriptions.
const DefaultMaxLen = 60

// minLen leaves room for one character plus "...".
const minLen = 4

// Truncate flattens s onto one line and shortens it to maxLen runes,
// marking the cut with "...". Runs of whitespace, newlines included, become
// single spaces. maxLen values below 4 are raised to 4.
func Truncate(s string, maxLen int) string {
	if maxLen < minLen {
		maxLen = minLen
	}
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) > maxLen {
		return string(runes[:maxLen-3]) + "..."
	}
	return s
}
