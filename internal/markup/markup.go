// Package markup converts model-produced web HTML into the subset of HTML
// the chat platform renders.
package markup

import (
	"regexp"
	"strings"
)

type rule struct {
	re  *regexp.Regexp
	sub string
}

// Rules run in order: fence strip, structural tag removal, list rewriting,
// paragraph and heading conversion, then whitespace collapse.
var rules = []rule{
	{regexp.MustCompile("(?i)```html"), ""},
	{regexp.MustCompile("```"), ""},

	{regexp.MustCompile(`(?i)<!DOCTYPE[^>]*>`), ""},
	{regexp.MustCompile(`(?i)<html[^>]*>`), ""},
	{regexp.MustCompile(`(?i)</html>`), ""},
	{regexp.MustCompile(`(?is)<head>.*?</head>`), ""},
	{regexp.MustCompile(`(?i)<body[^>]*>`), ""},
	{regexp.MustCompile(`(?i)</body>`), ""},

	{regexp.MustCompile(`(?i)<ul[^>]*>`), ""},
	{regexp.MustCompile(`(?i)</ul>`), ""},
	{regexp.MustCompile(`(?i)<ol[^>]*>`), ""},
	{regexp.MustCompile(`(?i)</ol>`), ""},
	{regexp.MustCompile(`(?i)<li[^>]*>`), "\n   • "},
	{regexp.MustCompile(`(?i)</li>`), ""},

	{regexp.MustCompile(`(?i)<br\s*/?>`), "\n"},
	{regexp.MustCompile(`(?i)</p>`), "\n\n"},
	{regexp.MustCompile(`(?i)<p[^>]*>`), ""},
	{regexp.MustCompile(`(?i)</div>`), "\n"},
	{regexp.MustCompile(`(?i)<div[^>]*>`), ""},
	{regexp.MustCompile(`(?i)<h[1-6][^>]*>`), "\n<b>"},
	{regexp.MustCompile(`(?i)</h[1-6]>`), "</b>\n"},

	{regexp.MustCompile(`(?i)<span[^>]*>`), ""},
	{regexp.MustCompile(`(?i)</span>`), ""},
	{regexp.MustCompile(`\n{3,}`), "\n\n"},
}

// CleanHTML rewrites generated web HTML into chat-safe HTML. Inline
// formatting tags (b, i, u, a, code) pass through unchanged.
func CleanHTML(text string) string {
	for _, r := range rules {
		text = r.re.ReplaceAllString(text, r.sub)
	}
	return strings.TrimSpace(text)
}
