// Package sanitizer normalizes user input before validation.
// Every transform is a plain func(string) string so they compose with Apply.
package sanitizer

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	whitespaceRegex     = regexp.MustCompile(`\s+`)
	unsafeFilenameRegex = regexp.MustCompile(`[^\w.\-]+`)
)

// Apply runs value through transforms in order.
func Apply[T any](value T, transforms ...func(T) T) T {
	for _, transform := range transforms {
		value = transform(value)
	}
	return value
}

// Compose stores a transform chain for reuse.
func Compose[T any](transforms ...func(T) T) func(T) T {
	return func(value T) T { return Apply(value, transforms...) }
}

func Trim(s string) string    { return strings.TrimSpace(s) }
func ToUpper(s string) string { return strings.ToUpper(s) }
func ToLower(s string) string { return strings.ToLower(s) }

// NormalizeWhitespace collapses whitespace runs into single spaces and trims.
func NormalizeWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRegex.ReplaceAllString(s, " "))
}

// RemoveWhitespace drops every whitespace rune, e.g. "123 456 789" -> "123456789".
func RemoveWhitespace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

// KeepDigits keeps ASCII digits only.
func KeepDigits(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
}

// NormalizeEmail trims and lower-cases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SanitizeFilename replaces unsafe runs with "_" and never returns "".
func SanitizeFilename(name string) string {
	safe := strings.Trim(unsafeFilenameRegex.ReplaceAllString(name, "_"), " ._")
	if len(safe) > 255 {
		safe = safe[:255]
	}
	if safe == "" {
		return "file"
	}
	return safe
}
