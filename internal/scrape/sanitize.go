package scrape

import (
	"strings"
	"unicode"
)

const (
	// maxLineChars drops pathological single-line blobs (minified JS that
	// slipped through, base64 payloads).
	maxLineChars = 2000

	// truncationNotice is appended when sanitized content hits the size cap.
	truncationNotice = "\n\n[content truncated]"
)

// sanitize normalizes extracted text for storage and prompting: line endings
// become \n, NULs and other non-printables (except \n and \t) are dropped,
// horizontal whitespace runs collapse to one space, over-long lines are
// removed, and the result is capped at maxBytes with a truncation notice.
func sanitize(s string, maxBytes int) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	var b strings.Builder
	b.Grow(len(s))
	lastSpace := false
	for _, r := range s {
		switch {
		case r == '\n':
			b.WriteRune('\n')
			lastSpace = false
		case r == ' ' || r == '\t':
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
		case r == 0, !unicode.IsPrint(r):
			// dropped
		default:
			b.WriteRune(r)
			lastSpace = false
		}
	}

	lines := strings.Split(b.String(), "\n")
	kept := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if len(line) > maxLineChars {
			continue
		}
		if line == "" {
			// at most one consecutive blank line
			if blank || len(kept) == 0 {
				continue
			}
			blank = true
			kept = append(kept, "")
			continue
		}
		blank = false
		kept = append(kept, line)
	}
	for len(kept) > 0 && kept[len(kept)-1] == "" {
		kept = kept[:len(kept)-1]
	}
	out := strings.Join(kept, "\n")

	if maxBytes > 0 && len(out) > maxBytes {
		cut := out[:maxBytes]
		// do not split a multi-byte rune
		for len(cut) > 0 && !utf8ValidSuffix(cut) {
			cut = cut[:len(cut)-1]
		}
		out = cut + truncationNotice
	}
	return out
}

func utf8ValidSuffix(s string) bool {
	// The last byte of a well-formed string is either ASCII or the final
	// byte of a multi-byte sequence; trimming until the string is valid
	// UTF-8 is sufficient here.
	return strings.ToValidUTF8(s, "") == s
}

// wordCount counts whitespace-separated tokens.
func wordCount(s string) int {
	return len(strings.Fields(s))
}
