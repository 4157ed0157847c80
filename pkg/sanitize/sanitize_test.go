package sanitize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStripMarkup(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"bold and italic", "**Bold** and *italic*", "Bold and italic"},
		{"underscore emphasis", "__strong__ _em_", "strong em"},
		{"heading", "# Heading\nText", "Heading\nText"},
		{"nested heading markers", "#\t# Title", "Title"},
		{"link keeps text", "See [the site](https://hawaii.gov) now", "See the site now"},
		{"image removed", "![logo](img.png)Caption", "Caption"},
		{"inline code removed", "Use `code` here", "Use  here"},
		{"fenced code removed", "```go\nfmt.Println()\n```\nAfter", "After"},
		{"blockquote", "> quoted", "quoted"},
		{"bullets", "- one\n- two\n+ three", "one\ntwo\nthree"},
		{"numbered list", "1. first\n2. second", "first\nsecond"},
		{"angle brackets", "a <b> c", "a b c"},
		{"horizontal rule", "above\n---\nbelow", "above\n\nbelow"},
		{"underscores in identifiers", "snake_case_name", "snakecasename"},
		{"surrounding whitespace", "  plain text  ", "plain text"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripMarkup(tt.input))
		})
	}
}

func TestStripMarkupIdempotent(t *testing.T) {
	inputs := []string{
		"**Bold** and *italic*",
		"#\t# Title",
		"> > double quote",
		"- - nested bullet",
		"1. 2. numbered twice",
		"[[inner](a)](b)",
		"``double ticks``",
		"<<tag>>",
		"---\n---",
		"   \n# \n",
		"Aloha! The DMV is open 8am to 4pm.",
	}

	for _, input := range inputs {
		once := StripMarkup(input)
		assert.Equal(t, once, StripMarkup(once), input)
	}
}
