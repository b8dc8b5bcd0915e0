// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package post

import (
	"fmt"
	"math/rand/v2"
	"regexp"
	"strings"
	"sync"
	"time"
)

// Section is one of the three content categories of a post.
type Section string

// Sections in the order they are rendered.
const (
	Tasks Section = "tasks"
	Notes Section = "notes"
	Ideas Section = "ideas"
)

// Sections lists all sections in render order.
var Sections = []Section{Tasks, Notes, Ideas}

// ParseSection parses a section name, accepting both singular and plural
// forms.
func ParseSection(s string) (Section, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "task", "tasks":
		return Tasks, nil
	case "note", "notes":
		return Notes, nil
	case "idea", "ideas":
		return Ideas, nil
	}
	return "", fmt.Errorf("unknown section %q", s)
}

// Header returns the header line of the section.
func (s Section) Header() string {
	switch s {
	case Tasks:
		return "✅ Задачи"
	case Notes:
		return "📝 Заметки"
	case Ideas:
		return "💡 Идеи"
	}
	return ""
}

// Content is the structured content of a daily post.
type Content struct {
	Tasks []Item `json:"tasks,omitempty"`
	Notes []Item `json:"notes,omitempty"`
	Ideas []Item `json:"ideas,omitempty"`
}

// Items returns a pointer to the items of section s.
func (c *Content) Items(s Section) *[]Item {
	switch s {
	case Notes:
		return &c.Notes
	case Ideas:
		return &c.Ideas
	}
	return &c.Tasks
}

// Add appends it to section s.
func (c *Content) Add(s Section, it Item) {
	items := c.Items(s)
	*items = append(*items, it)
}

// Clone returns a deep copy of c. Empty sections come back as nil.
func (c Content) Clone() Content {
	cp := func(items []Item) []Item {
		if len(items) == 0 {
			return nil
		}
		out := make([]Item, len(items))
		for i, it := range items {
			it.Tags = append([]string(nil), it.Tags...)
			out[i] = it
		}
		return out
	}
	return Content{Tasks: cp(c.Tasks), Notes: cp(c.Notes), Ideas: cp(c.Ideas)}
}

var headerEmojis = []string{"☀️", "🌤", "🌱", "🚀", "✨", "☕", "🌈", "🔥", "🍀", "🎯"}

var weekdays = [...]string{
	time.Sunday:    "Воскресенье",
	time.Monday:    "Понедельник",
	time.Tuesday:   "Вторник",
	time.Wednesday: "Среда",
	time.Thursday:  "Четверг",
	time.Friday:    "Пятница",
	time.Saturday:  "Суббота",
}

// Header renders the first line of a post for date. The emoji is picked at
// random, seeded by the date, so every edit of the same day keeps it.
func Header(date time.Time) string {
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	r := rand.New(rand.NewPCG(uint64(day.Unix()), 0x766f6963656c6f67))
	emoji := headerEmojis[r.IntN(len(headerEmojis))]
	return emoji + " | " + date.Format("02.01.2006") + " | " + weekdays[date.Weekday()]
}

// RenderSection renders items under header. It returns nothing for an empty
// section.
func RenderSection(items []Item, header string) []string {
	if len(items) == 0 {
		return nil
	}
	lines := make([]string, 0, len(items)+2)
	lines = append(lines, "", header)
	for _, it := range items {
		lines = append(lines, " • "+RenderLine(it))
	}
	return lines
}

// Render renders the whole post for date as Telegram HTML.
func Render(c Content, date time.Time) string {
	lines := []string{Header(date)}
	for _, s := range Sections {
		lines = append(lines, RenderSection(*c.Items(s), s.Header())...)
	}
	return strings.Join(lines, "\n")
}

var dateHeaderRe = sync.OnceValue(func() *regexp.Regexp {
	return regexp.MustCompile(`\|\s*\d{2}\.\d{2}\.\d{4}\s*\|`)
})

// Parse decodes the text of a rendered post. Lines before the first section
// header are discarded, as are blank lines and date headers.
func Parse(text string) Content {
	var (
		c       Content
		current Section
	)
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(stripTags(line))
		if trimmed == "" || dateHeaderRe().MatchString(trimmed) {
			continue
		}
		if s, ok := sectionByHeader(trimmed); ok {
			current = s
			continue
		}
		if current == "" {
			continue
		}
		if it, ok := ParseLine(line); ok {
			c.Add(current, it)
		}
	}
	return c
}

func sectionByHeader(line string) (Section, bool) {
	for _, s := range Sections {
		if line == s.Header() {
			return s, true
		}
	}
	return "", false
}
