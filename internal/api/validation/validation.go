package validation

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

	domainRegex = regexp.MustCompile(`^([a-zA-Z0-9]([a-zA-Z0-9\-]{0,61}[a-zA-Z0-9])?\.)+[a-zA-Z]{2,}$`)

	// Lowercase words joined by single hyphens.
	slugRegex = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

	// Page paths are rooted and made of slug segments; "/" alone is the
	// funnel's entry page.
	pathRegex = regexp.MustCompile(`^/([a-z0-9]+(-[a-z0-9]+)*(/[a-z0-9]+(-[a-z0-9]+)*)*)?$`)
)

const (
	MaxNameLength  = 100
	MaxSlugLength  = 64
	MaxPathLength  = 200
	MinPasswordLen = 8
	MaxPasswordLen = 128
)

// IsValidEmail checks if the string is a valid email format
func IsValidEmail(email string) bool {
	if len(email) > 254 {
		return false
	}
	return emailRegex.MatchString(email)
}

// IsValidDomain checks if the string is a valid domain format
func IsValidDomain(domain string) bool {
	if len(domain) > 253 {
		return false
	}
	return domainRegex.MatchString(domain)
}

func IsValidSlug(slug string) bool {
	return len(slug) <= MaxSlugLength && slugRegex.MatchString(slug)
}

func IsValidPagePath(path string) bool {
	return len(path) <= MaxPathLength && pathRegex.MatchString(path)
}

// IsValidPassword only enforces length; strength rules are left to the
// client.
func IsValidPassword(password string) (bool, string) {
	if len(password) < MinPasswordLen {
		return false, "Password must be at least 8 characters"
	}
	if len(password) > MaxPasswordLen {
		return false, "Password must be at most 128 characters"
	}
	return true, ""
}

// ValidateName reports a user-facing problem with a display name, or ""
// when it is acceptable.
func ValidateName(label, name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return label + " is required"
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return label + " must be at most 100 characters"
	}
	return ""
}

// SanitizeString removes potentially dangerous characters for display
func SanitizeString(s string) string {
	s = strings.ReplaceAll(s, "\x00", "")

	var result strings.Builder
	for _, r := range s {
		if r == '\n' || r == '\r' || r == '\t' || !unicode.IsControl(r) {
			result.WriteRune(r)
		}
	}

	return result.String()
}

// TruncateString truncates a string to maxLen runes
func TruncateString(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	return string([]rune(s)[:maxLen])
}
