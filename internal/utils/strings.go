package utils

import "fmt"

// DefaultMaxStringLength bounds strings written to logs and span attributes.
const DefaultMaxStringLength = 500

// TruncateString cuts s to maxLen bytes and records the original length.
// A non-positive maxLen falls back to DefaultMaxStringLength.
func TruncateString(s string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = DefaultMaxStringLength
	}
	if len(s) <= maxLen {
		return s
	}
	return fmt.Sprintf("%s... (truncated, total: %d chars)", s[:maxLen], len(s))
}
