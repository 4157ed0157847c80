// Package sanitize turns Markdown-formatted model replies into plain text.
package sanitize

import (
	"regexp"
	"strings"
)

type rule struct {
	pattern     *regexp.Regexp
	replacement string
}

// Applied in order; links keep their anchor text.
var rules = []rule{
	{regexp.MustCompile("(?s)```.*?```"), ""},
	{regexp.MustCompile("`.*?`"), ""},
	{regexp.MustCompile(`!\[.*?\]\(.*?\)`), ""},
	{regexp.MustCompile(`\[([^\]]+)\]\([^\)]+\)`), "$1"},
	{regexp.MustCompile(`(\*\*|\*|__|_)`), ""},
	{regexp.MustCompile(`(?m)^#+\s`), ""},
	{regexp.MustCompile(`(?m)^>\s`), ""},
	{regexp.MustCompile(`(?m)^---$`), ""},
	{regexp.MustCompile(`(?m)^[-\*\+]\s+`), ""},
	{regexp.MustCompile(`(?m)^\d+\.\s+`), ""},
	{regexp.MustCompile(`[<>]`), ""},
}

// StripMarkup removes Markdown syntax from text and trims surrounding whitespace.
// The rules are reapplied until the output stops changing, so
// StripMarkup(StripMarkup(s)) == StripMarkup(s).
func StripMarkup(text string) string {
	// Every rule deletes at least one character per match, so this terminates.
	for {
		next := strip(text)
		if next == text {
			return text
		}
		text = next
	}
}

func strip(text string) string {
	for _, r := range rules {
		text = r.pattern.ReplaceAllString(text, r.replacement)
	}
	return strings.TrimSpace(text)
}
