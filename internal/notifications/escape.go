package notifications

import "strings"

// markdownSpecial lists every character Telegram MarkdownV2 treats as markup.
const markdownSpecial = "_*[]()~`>#+-=|{}.!\\"

// EscapeMarkdown makes s safe for inclusion in a MarkdownV2 message by
// prefixing each reserved character with a backslash.
func EscapeMarkdown(s string) string {
	if s == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(s) + len(s)/4)
	for i := 0; i < len(s); i++ {
		if strings.IndexByte(markdownSpecial, s[i]) >= 0 {
			b.WriteByte('\\')
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// UnescapeMarkdown reverses EscapeMarkdown. Markup written by templates
// (bold markers) is left in place.
func UnescapeMarkdown(s string) string {
	if !strings.Contains(s, "\\") {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !escaped && c == '\\' {
			escaped = true
			continue
		}
		if escaped && strings.IndexByte(markdownSpecial, c) < 0 {
			b.WriteByte('\\')
		}
		escaped = false
		b.WriteByte(c)
	}
	if escaped {
		b.WriteByte('\\')
	}
	return b.String()
}
