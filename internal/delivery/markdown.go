package delivery

import "strings"

// reservedChars are the characters Telegram MarkdownV2 requires escaped
// outside of code entities.
const reservedChars = `_*[]()~` + "`" + `>#+-=|{}.!`

// span is a run of text that is either prose or code.
type span struct {
	text   string
	code   bool // inline code or fenced block content
	fenced bool // content of a ``` block
	lang   string
}

// tokenize splits text into prose and code spans. Fenced blocks take
// precedence over inline spans; an unterminated fence runs to the end
// of the text, and a lone backtick is treated as prose.
func tokenize(text string) []span {
	var spans []span
	for len(text) > 0 {
		fence := strings.Index(text, "```")
		inline := strings.IndexByte(text, '`')

		if inline < 0 {
			spans = append(spans, span{text: text})
			break
		}

		if fence >= 0 && fence == inline {
			if fence > 0 {
				spans = append(spans, span{text: text[:fence]})
			}
			rest := text[fence+3:]
			lang := ""
			if nl := strings.IndexByte(rest, '\n'); nl >= 0 && !strings.Contains(rest[:nl], "`") {
				lang = rest[:nl]
				rest = rest[nl+1:]
			}
			end := strings.Index(rest, "```")
			if end < 0 {
				spans = append(spans, span{text: rest, code: true, fenced: true, lang: lang})
				break
			}
			spans = append(spans, span{text: rest[:end], code: true, fenced: true, lang: lang})
			text = rest[end+3:]
			continue
		}

		// Inline span: needs a closing backtick.
		rest := text[inline+1:]
		end := strings.IndexByte(rest, '`')
		if end < 0 {
			spans = append(spans, span{text: text})
			break
		}
		if inline > 0 {
			spans = append(spans, span{text: text[:inline]})
		}
		spans = append(spans, span{text: rest[:end], code: true})
		text = rest[end+1:]
	}
	return spans
}

// Escape renders model output as Telegram MarkdownV2: code entities are
// preserved with their own escaping rules, everything else has the
// reserved characters backslash-escaped.
func Escape(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4)

	for _, s := range tokenize(text) {
		switch {
		case s.fenced:
			b.WriteString("```")
			b.WriteString(s.lang)
			b.WriteString("\n")
			b.WriteString(escapeCode(s.text))
			b.WriteString("```")
		case s.code:
			b.WriteString("`")
			b.WriteString(escapeCode(s.text))
			b.WriteString("`")
		default:
			b.WriteString(escapeProse(s.text))
		}
	}
	return b.String()
}

// escapeProse escapes every reserved character.
func escapeProse(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if strings.ContainsRune(reservedChars, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// escapeCode escapes the two characters significant inside code
// entities.
func escapeCode(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, "`", "\\`")
}

// Unescape reverses Escape's backslash escaping.
func Unescape(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	escaped := false
	for _, r := range s {
		if escaped {
			b.WriteRune(r)
			escaped = false
			continue
		}
		if r == '\\' {
			escaped = true
			continue
		}
		b.WriteRune(r)
	}
	if escaped {
		b.WriteByte('\\')
	}
	return b.String()
}
