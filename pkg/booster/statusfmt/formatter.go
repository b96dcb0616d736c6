// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package statusfmt converts Mastodon status HTML to plain text.
package statusfmt

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// span kinds tracked while walking the status.
const (
	spanPlain = iota
	spanInvisible
	spanEllipsis
)

// Parse converts status HTML to plain text. Paragraphs are separated by a
// blank line and <br> becomes a newline. In shortened links the parts
// Mastodon hides (span.invisible) are dropped and span.ellipsis gets a
// trailing ellipsis.
func Parse(content string) string {
	if content == "" {
		return ""
	}

	var (
		b         strings.Builder
		hideDepth int
		spans     []int
	)
	z := html.NewTokenizer(strings.NewReader(content))
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			return cleanup(b.String())

		case html.TextToken:
			if hideDepth == 0 {
				b.WriteString(html.UnescapeString(string(z.Raw())))
			}

		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			switch tok.DataAtom {
			case atom.Br:
				b.WriteByte('\n')
			case atom.P:
				if b.Len() > 0 {
					b.WriteString("\n\n")
				}
			case atom.Span:
				if tt == html.SelfClosingTagToken {
					continue
				}
				kind := spanPlain
				class := attr(tok, "class")
				switch {
				case hasClass(class, "invisible"):
					kind = spanInvisible
					hideDepth++
				case hasClass(class, "ellipsis"):
					kind = spanEllipsis
				}
				spans = append(spans, kind)
			}

		case html.EndTagToken:
			tok := z.Token()
			if tok.DataAtom != atom.Span || len(spans) == 0 {
				continue
			}
			kind := spans[len(spans)-1]
			spans = spans[:len(spans)-1]
			switch kind {
			case spanInvisible:
				hideDepth--
			case spanEllipsis:
				if hideDepth == 0 {
					b.WriteString("…")
				}
			}
		}
	}
}

// Excerpt returns at most maxRunes runes of the plain text of content on a
// single line, ending with an ellipsis when truncated.
func Excerpt(content string, maxRunes int) string {
	text := strings.Join(strings.Fields(Parse(content)), " ")
	if maxRunes <= 0 || utf8.RuneCountInString(text) <= maxRunes {
		return text
	}
	runes := []rune(text)
	return strings.TrimRight(string(runes[:maxRunes]), " ") + "…"
}

func attr(tok html.Token, key string) string {
	for _, a := range tok.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(classes, name string) bool {
	for _, c := range strings.Fields(classes) {
		if c == name {
			return true
		}
	}
	return false
}

// cleanup trims trailing spaces on each line and the text as a whole.
func cleanup(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
