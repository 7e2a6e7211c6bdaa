package textutil

import (
	"fmt"
	"hash/fnv"
	"strings"
)

// maxTokenLength keeps path segments well under common filesystem limits.
const maxTokenLength = 96

// SanitizeToken converts a string to a filesystem-safe token. Letters, digits,
// dots, hyphens and underscores are kept; everything else becomes an
// underscore. Returns "unknown" for empty input.
func SanitizeToken(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "unknown"
	}
	var b strings.Builder
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_' || r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := strings.Trim(b.String(), "_-.")
	if out == "" {
		return "unknown"
	}
	return out
}

// PathToken maps an identifier to a stable path segment. Identifiers that had
// to be rewritten or shortened get a hash suffix so distinct inputs never
// collide on the same directory.
func PathToken(value string) string {
	token := SanitizeToken(value)
	if token == value && len(token) <= maxTokenLength {
		return token
	}
	if len(token) > maxTokenLength {
		token = token[:maxTokenLength]
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(value))
	return fmt.Sprintf("%s-%08x", token, h.Sum32())
}
