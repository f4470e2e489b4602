package processor

import "strings"

// MaxStatementDescriptorLength is the gateway's limit for prefix + "* " + suffix.
const MaxStatementDescriptorLength = 22

// SanitizeStatementDescriptor turns free-form seller input into a descriptor
// suffix: only ASCII letters, digits, spaces and dots survive, whitespace is
// collapsed and the result is cut so that the fixed prefix always fits. The
// boolean is false when nothing usable is left and the field must be omitted.
func SanitizeStatementDescriptor(prefix, description string) (string, bool) {
	var b strings.Builder
	for _, r := range description {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.':
			b.WriteRune(r)
		case r == ' ' || r == '\t' || r == '\n':
			b.WriteRune(' ')
		}
	}
	suffix := strings.Join(strings.Fields(b.String()), " ")

	limit := MaxStatementDescriptorLength
	if prefix = strings.TrimSpace(prefix); prefix != "" {
		limit -= len(prefix) + len("* ")
	}
	if limit <= 0 {
		return "", false
	}
	if len(suffix) > limit {
		suffix = strings.TrimSpace(suffix[:limit])
	}
	if suffix == "" {
		return "", false
	}
	return suffix, true
}
