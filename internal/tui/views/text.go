package views

import (
	"strings"
	"unicode"

	"github.com/rivo/tview"
)

// displayText prepares message-derived text for a tview cell or text view. Webhook
// bodies are untrusted: control characters (escape sequences included) are dropped,
// tabs become spaces and tview style tags are escaped. Emoji modifiers that tcell
// cannot measure are removed so a skin-toned thumbs up renders as a plain one.
func displayText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\n':
			b.WriteRune(r)
		case r == '\t':
			b.WriteByte(' ')
		case unicode.IsControl(r), isEmojiModifier(r):
		default:
			b.WriteRune(r)
		}
	}
	return tview.Escape(b.String())
}

// displayLine is displayText collapsed onto one line, for table cells.
func displayLine(s string) string {
	return displayText(singleLine(s))
}

func isEmojiModifier(r rune) bool {
	switch {
	case r >= 0x1F3FB && r <= 0x1F3FF: // skin tones
		return true
	case r == 0x200D: // zero width joiner
		return true
	case r >= 0xFE00 && r <= 0xFE0F, r >= 0xE0100 && r <= 0xE01EF: // variation selectors
		return true
	}
	return false
}

func singleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
