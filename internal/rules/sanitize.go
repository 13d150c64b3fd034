package rules

import "strings"

// SanitizeBanNote strips a ban mod-note down to the character set the
// moderation API accepts, trims surrounding whitespace and truncates to
// the 100-character API limit.
func SanitizeBanNote(s string) string {
	return truncate(strings.TrimSpace(keep(s, banNoteAllowed)), 100)
}

// SanitizeModlogReason normalizes a mod-log reason: newlines become
// spaces, disallowed characters are dropped, runs of double spaces
// collapse, and the result is trimmed and truncated to 250 characters.
func SanitizeModlogReason(s string) string {
	s = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(s)
	s = keep(s, modlogAllowed)
	for strings.Contains(s, "  ") {
		s = strings.ReplaceAll(s, "  ", " ")
	}
	return truncate(strings.TrimSpace(s), 250)
}

func banNoteAllowed(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == ' ', r == '-', r == '_', r == '.', r == ',':
		return true
	}
	return false
}

func modlogAllowed(r rune) bool {
	return banNoteAllowed(r) || r == '/' || r == '\\'
}

func keep(s string, allowed func(rune) bool) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if allowed(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
