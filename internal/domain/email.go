package domain

import "strings"

// NormalizeEmail lowercases and trims an address for comparison and
// storage. Emails are unique case-insensitively throughout the system.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func equalFoldEmail(a, b string) bool {
	return NormalizeEmail(a) == NormalizeEmail(b)
}
