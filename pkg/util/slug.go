package util

import (
	"strings"

	"github.com/google/uuid"
)

// Slugify lowercases name and collapses every run of characters outside
// [a-z0-9] into a single hyphen.
func Slugify(name string) string {
	var b strings.Builder
	hyphen := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			hyphen = false
		case r == '\'':
		default:
			if !hyphen && b.Len() > 0 {
				b.WriteByte('-')
				hyphen = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// UniqueSlug appends a short random suffix so globally unique columns
// (workspace slugs) don't collide on common names.
func UniqueSlug(name string) string {
	suffix := uuid.NewString()[:8]
	if s := Slugify(name); s != "" {
		return s + "-" + suffix
	}
	return suffix
}
