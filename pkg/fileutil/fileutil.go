// Package fileutil holds filename validation helpers for upload handling.
package fileutil

import (
	"path/filepath"
	"strings"
)

// HasAllowedExtension reports whether filename carries one of the allowed
// extensions (compared without the leading dot, case-insensitive).
func HasAllowedExtension(filename string, allowed []string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	if ext == "" {
		return false
	}
	for _, a := range allowed {
		if ext == strings.ToLower(strings.TrimPrefix(a, ".")) {
			return true
		}
	}
	return false
}

// SanitizeFilename strips path components and replaces characters that are
// unsafe in object paths. The result is never empty for a non-empty input.
func SanitizeFilename(filename string) string {
	base := filepath.Base(filename)
	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	out := strings.Trim(b.String(), ".")
	if out == "" {
		return "file"
	}
	return out
}
