// Package utils provides bespoke, one off utils that don't make sense to be
// their own package
package utils

// Truncate is a simple string truncate
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// TruncateRaw cuts a string at maxLen without appending an ellipsis.
// Used where the result feeds a model rather than a human.
func TruncateRaw(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}
