// Package safety guards what the engine is allowed to say. Outbound reply
// text is cleaned before persistence and delivery, and internal failures are
// replaced by a stable user-facing message so error details never leak into
// a chat channel.
package safety

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// maxReplyRunes caps outbound messages; chat channels truncate or reject
// anything longer anyway.
const maxReplyRunes = 2000

// internalErrorText is the only thing a user sees when processing fails.
const internalErrorText = "Algo salió mal procesando tu mensaje. Probá de nuevo en unos segundos."

// InternalErrorReply returns the stable user-facing text for an internal
// failure. Callers log the real error; this is all that leaves the service.
func InternalErrorReply() string { return internalErrorText }

// Outbound cleans reply text for delivery: control characters are dropped
// (newlines kept, for list replies), runs of blank lines are collapsed, the
// result is trimmed and capped. A reply that cleans down to nothing becomes
// the internal-error text, because an empty message is never a valid turn.
func Outbound(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\n':
			b.WriteRune(r)
		case unicode.IsControl(r):
			// dropped
		default:
			b.WriteRune(r)
		}
	}

	out := collapseBlankLines(b.String())
	out = strings.TrimSpace(out)
	if out == "" {
		return internalErrorText
	}
	if utf8.RuneCountInString(out) > maxReplyRunes {
		out = string([]rune(out)[:maxReplyRunes])
	}
	return out
}

// collapseBlankLines reduces any run of blank lines to a single one.
func collapseBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, l := range lines {
		if strings.TrimSpace(l) == "" {
			if blank {
				continue
			}
			blank = true
			out = append(out, "")
			continue
		}
		blank = false
		out = append(out, l)
	}
	return strings.Join(out, "\n")
}
