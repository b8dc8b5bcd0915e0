// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package post implements the daily post: a single channel message per day
// that accumulates tasks, notes and ideas.
package post

import (
	"html"
	"regexp"
	"strings"
	"sync"
)

// Priority is an optional priority of an item.
type Priority string

// Known priorities.
const (
	Low    Priority = "low"
	Medium Priority = "medium"
	High   Priority = "high"
)

// Marker returns the glyph rendered in front of an item with priority p, or
// an empty string for unknown priorities.
func (p Priority) Marker() string {
	switch p {
	case High:
		return "🔴"
	case Medium:
		return "🟡"
	case Low:
		return "🟢"
	}
	return ""
}

// Item is one entry of the daily post.
type Item struct {
	Text      string   `json:"text"`
	Priority  Priority `json:"priority,omitempty"`
	Tags      []string `json:"tags,omitempty"`
	Completed bool     `json:"completed,omitempty"`
}

const (
	strikeOpen  = "<s>"
	strikeClose = "</s>"
)

// RenderLine renders an item as a line of Telegram HTML.
func RenderLine(it Item) string {
	parts := make([]string, 0, 2+len(it.Tags))
	if m := it.Priority.Marker(); m != "" {
		parts = append(parts, m)
	}
	parts = append(parts, html.EscapeString(it.Text))
	for _, tag := range it.Tags {
		tag = strings.TrimPrefix(strings.TrimSpace(tag), "#")
		if tag == "" {
			continue
		}
		parts = append(parts, "#"+html.EscapeString(tag))
	}
	line := strings.Join(parts, " ")
	if it.Completed {
		return Strike(line)
	}
	return line
}

// plainText returns the text of it followed by its tags, without markup.
// This is what task queries are matched against.
func plainText(it Item) string {
	var sb strings.Builder
	sb.WriteString(it.Text)
	for _, tag := range it.Tags {
		if tag = strings.TrimPrefix(strings.TrimSpace(tag), "#"); tag != "" {
			sb.WriteString(" #" + tag)
		}
	}
	return sb.String()
}

// Strike wraps a rendered line in strikethrough markup.
func Strike(line string) string { return strikeOpen + line + strikeClose }

// IsCompleted reports whether a rendered line is wrapped in strikethrough
// markup.
func IsCompleted(line string) bool {
	return strings.HasPrefix(line, strikeOpen) && strings.HasSuffix(line, strikeClose)
}

var markerRe = sync.OnceValue(func() *regexp.Regexp {
	return regexp.MustCompile(`^(?:[-*+•·]|\[[ xX]\]|\d+[.)]|📝|✅|🔔|💡|🔴|🟡|🟢|☑️?|✔️?)\s*`)
})

// CleanLine strips list, checkbox, numbering and bullet markers and known
// decorative glyphs from the start of line and trims it. Markers may be
// stacked, so they are stripped until none is left.
func CleanLine(line string) string {
	s := strings.TrimSpace(line)
	re := markerRe()
	for {
		loc := re.FindStringIndex(s)
		if loc == nil || loc[1] == 0 {
			break
		}
		s = s[loc[1]:]
	}
	return strings.TrimSpace(s)
}

// ParseLine decodes a rendered line back into an item. Only the text and the
// completion state survive: priority and tags are not reconstructed, and tags
// stay part of the text. It returns false if nothing is left after cleaning.
func ParseLine(line string) (Item, bool) {
	s := CleanLine(line)
	completed := IsCompleted(s)
	if completed {
		s = CleanLine(strings.TrimSuffix(strings.TrimPrefix(s, strikeOpen), strikeClose))
	}
	s = strings.TrimSpace(html.UnescapeString(stripTags(s)))
	if s == "" {
		return Item{}, false
	}
	return Item{Text: s, Completed: completed}, true
}

var tagRe = sync.OnceValue(func() *regexp.Regexp {
	return regexp.MustCompile(`</?[a-zA-Z][a-zA-Z0-9-]*(?:\s[^>]*)?>`)
})

// stripTags removes HTML formatting tags, such as the ones Telegram returns
// for bold text.
func stripTags(s string) string { return tagRe().ReplaceAllString(s, "") }
