package safety

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestOutbound(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain text untouched", "Tu pedido 98765 está en camino.", "Tu pedido 98765 está en camino."},
		{"control chars dropped", "hola\x00\x1b[31m mundo", "hola[31m mundo"},
		{"newlines kept", "Te puede interesar:\n• One Piece Vol. 1", "Te puede interesar:\n• One Piece Vol. 1"},
		{"blank runs collapsed", "a\n\n\n\nb", "a\n\nb"},
		{"trimmed", "  hola  ", "hola"},
		{"empty becomes error text", "   \x00  ", internalErrorText},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Outbound(tc.in); got != tc.want {
				t.Fatalf("Outbound(%q) = %q; want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestOutbound_CapsLength(t *testing.T) {
	long := strings.Repeat("á", maxReplyRunes+50)
	got := Outbound(long)
	if utf8.RuneCountInString(got) != maxReplyRunes {
		t.Fatalf("len = %d; want capped at %d", utf8.RuneCountInString(got), maxReplyRunes)
	}
}

func TestInternalErrorReply_Stable(t *testing.T) {
	if InternalErrorReply() == "" || InternalErrorReply() != internalErrorText {
		t.Fatalf("internal error reply must be the stable text")
	}
}
