package format

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	// MarkdownV1 denotes Telegram markdown version 1.
	MarkdownV1 = 1
	// MarkdownV2 denotes Telegram markdown version 2.
	MarkdownV2 = 2
)

const mdV2Specials = "\\_*[]()~`>#+-=|{}.!"

var (
	mdV1Re = regexp.MustCompile("([_*\\[`])")
	mdV2Re = regexp.MustCompile("(" + charClass(mdV2Specials) + ")")
)

// charClass escapes every rune so '-' and ']' never act as class syntax.
func charClass(chars string) string {
	var b strings.Builder
	b.WriteByte('[')
	for _, r := range chars {
		b.WriteByte('\\')
		b.WriteRune(r)
	}
	b.WriteByte(']')
	return b.String()
}

// EscapeMarkdown escapes special characters for MarkdownV1 or V2.
// Inside pre and code entities V2 only requires escaping of ` and \.
func EscapeMarkdown(text string, version int, entityType string) (string, error) {
	switch version {
	case MarkdownV1:
		return mdV1Re.ReplaceAllString(text, `\$1`), nil
	case MarkdownV2:
		if entityType == "pre" || entityType == "code" {
			r := strings.NewReplacer("\\", "\\\\", "`", "\\`")
			return r.Replace(text), nil
		}
		return mdV2Re.ReplaceAllString(text, `\$1`), nil
	}
	return "", fmt.Errorf("unsupported markdown version: %d", version)
}

// MD escapes plain text for use in a MarkdownV2 message body.
func MD(text string) string {
	out, _ := EscapeMarkdown(text, MarkdownV2, "")
	return out
}
