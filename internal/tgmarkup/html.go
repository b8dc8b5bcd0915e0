// © 2024 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package tgmarkup

import (
	"cmp"
	"html"
	"slices"
	"strings"
	"unicode/utf16"
)

// ToHTML renders text with entities as Telegram-flavored HTML, suitable for
// sending back with the HTML parse mode. Entities that have no HTML
// counterpart (mentions, hashtags and the like) are emitted as plain text.
//
// Entities must be properly nested, as Telegram always returns them.
func ToHTML(text string, entities []Entity) string {
	sorted := slices.Clone(entities)
	// Outer entities open first: earlier offset, then longer length.
	slices.SortStableFunc(sorted, func(a, b Entity) int {
		if c := cmp.Compare(a.Offset, b.Offset); c != 0 {
			return c
		}
		return cmp.Compare(b.Length, a.Length)
	})

	var (
		sb    strings.Builder
		open  []Entity
		next  int
		pos   int // in UTF-16 code units
		chunk strings.Builder
	)
	flush := func() {
		sb.WriteString(html.EscapeString(chunk.String()))
		chunk.Reset()
	}
	closeUntil := func(pos int) {
		for len(open) > 0 && open[len(open)-1].Offset+open[len(open)-1].Length <= pos {
			flush()
			sb.WriteString(closeTag(open[len(open)-1]))
			open = open[:len(open)-1]
		}
	}
	openAt := func(pos int) {
		for next < len(sorted) && sorted[next].Offset <= pos {
			e := sorted[next]
			next++
			if e.Length <= 0 || openTag(e) == "" {
				continue
			}
			flush()
			sb.WriteString(openTag(e))
			open = append(open, e)
		}
	}

	for _, r := range text {
		closeUntil(pos)
		openAt(pos)
		chunk.WriteRune(r)
		pos += utf16.RuneLen(r)
	}
	closeUntil(pos)
	flush()
	// Entities running past the end of the text.
	for i := len(open) - 1; i >= 0; i-- {
		sb.WriteString(closeTag(open[i]))
	}

	return sb.String()
}

func openTag(e Entity) string {
	switch e.Type {
	case Bold:
		return "<b>"
	case Italic:
		return "<i>"
	case Underline:
		return "<u>"
	case Strikethrough:
		return "<s>"
	case Spoiler:
		return "<tg-spoiler>"
	case Code:
		return "<code>"
	case Pre:
		if e.Language != "" {
			return `<pre><code class="language-` + html.EscapeString(e.Language) + `">`
		}
		return "<pre>"
	case TextLink:
		return `<a href="` + html.EscapeString(e.URL) + `">`
	case Blockquote:
		return "<blockquote>"
	case ExpandableBlockquote:
		return "<blockquote expandable>"
	}
	return ""
}

func closeTag(e Entity) string {
	switch e.Type {
	case Bold:
		return "</b>"
	case Italic:
		return "</i>"
	case Underline:
		return "</u>"
	case Strikethrough:
		return "</s>"
	case Spoiler:
		return "</tg-spoiler>"
	case Code:
		return "</code>"
	case Pre:
		if e.Language != "" {
			return "</code></pre>"
		}
		return "</pre>"
	case TextLink:
		return "</a>"
	case Blockquote, ExpandableBlockquote:
		return "</blockquote>"
	}
	return ""
}
