package textutil

import "strings"

// SanitizeToken converts a string to a lowercase key-safe token. Letters are
// lowercased, digits, hyphens and underscores are kept, everything else
// becomes an underscore. Returns "unknown" for empty input.
func SanitizeToken(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "unknown"
	}
	var b strings.Builder
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r + ('a' - 'A'))
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := strings.Trim(b.String(), "_-")
	if out == "" {
		return "unknown"
	}
	return out
}

// KeySegments sanitizes each segment and joins them with "/".
func KeySegments(segments ...string) string {
	parts := make([]string, len(segments))
	for i, segment := range segments {
		parts[i] = SanitizeToken(segment)
	}
	return strings.Join(parts, "/")
}
