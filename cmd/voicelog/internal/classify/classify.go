// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package classify decides what a transcribed voice message is: a task, a
// note or an idea, and what the user wants done with it.
package classify

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"go.astrophena.name/voicelog/cmd/voicelog/internal/post"
)

// Action is what the user wants done.
type Action string

// Known actions.
const (
	Add      Action = "add"
	Edit     Action = "edit"
	Delete   Action = "delete"
	Complete Action = "complete"
	Note     Action = "note"
	Idea     Action = "idea"
)

func (a Action) valid() bool {
	switch a {
	case Add, Edit, Delete, Complete, Note, Idea:
		return true
	}
	return false
}

// Analysis is the result of classifying a message.
type Analysis struct {
	IsTask     bool          `json:"isTask"`
	Action     Action        `json:"action"`
	Content    string        `json:"content"`
	Priority   post.Priority `json:"priority,omitempty"`
	Tags       []string      `json:"tags,omitempty"`
	Confidence float64       `json:"confidence"`
}

// Item returns the post item described by a. Only tasks carry a priority and
// tags.
func (a Analysis) Item() post.Item {
	it := post.Item{Text: a.Content}
	if a.IsTask {
		it.Priority, it.Tags = a.Priority, a.Tags
	}
	return it
}

// Section returns the post section a belongs to.
func (a Analysis) Section() post.Section {
	switch a.Action {
	case Note:
		return post.Notes
	case Idea:
		return post.Ideas
	}
	return post.Tasks
}

// Classifier classifies transcribed messages.
type Classifier interface {
	Analyze(ctx context.Context, text string) (Analysis, error)
}

var taskIndicators = []string{
	"добавить", "сделать", "создать", "позвонить", "купить", "отправить",
	"написать", "закончить", "завершить", "начать", "запомнить",
	"не забыть", "нужно", "должен", "следует", "задача", "сделка",
	"todo", "task", "add", "do", "make", "call", "buy", "send", "write",
	"finish", "complete", "start", "remember", "don't forget", "need to",
	"have to", "should", "must",
}

// Heuristic classifies text by looking for task keywords. It's used when no
// model is available.
func Heuristic(text string) Analysis {
	lower := strings.ToLower(text)
	isTask := false
	for _, ind := range taskIndicators {
		if strings.Contains(lower, ind) {
			isTask = true
			break
		}
	}
	return Analysis{
		IsTask:     isTask,
		Action:     Add,
		Content:    Clean(text),
		Confidence: 0.5,
	}
}

var fillers = []string{
	"um", "uh", "like", "you know", "I mean", "actually", "basically",
	"literally", "so", "well", "anyway", "ээ", "мм", "как бы", "знаешь",
	"то есть", "на самом деле", "в общем-то", "в общем", "буквально",
	"короче", "так сказать",
}

var (
	fillerRe = sync.OnceValue(func() *regexp.Regexp {
		quoted := make([]string, len(fillers))
		for i, f := range fillers {
			quoted[i] = regexp.QuoteMeta(f)
		}
		return regexp.MustCompile(`(?i)(^|[^\p{L}\p{N}])(?:` + strings.Join(quoted, "|") + `)([^\p{L}\p{N}-]|$)`)
	})
	spaceRe = sync.OnceValue(func() *regexp.Regexp {
		return regexp.MustCompile(`\s+`)
	})
)

// Clean removes filler words from text, collapses whitespace and capitalizes
// the first letter.
func Clean(text string) string {
	s := text
	for {
		next := fillerRe().ReplaceAllString(s, "$1$2")
		if next == s {
			break
		}
		s = next
	}
	s = spaceRe().ReplaceAllString(s, " ")
	s = strings.TrimLeftFunc(s, func(r rune) bool { return unicode.IsSpace(r) || r == ',' || r == '.' })
	s = strings.TrimRight(s, " ,")
	if r, size := utf8.DecodeRuneInString(s); r != utf8.RuneError {
		s = string(unicode.ToUpper(r)) + s[size:]
	}
	return s
}

// sanitize fills in defaults and normalizes the output of a model. original
// is the text that was classified.
func sanitize(a Analysis, original string) Analysis {
	if !a.Action.valid() {
		a.Action = Add
	}
	if strings.TrimSpace(a.Content) == "" {
		a.Content = original
	}
	a.Content = Clean(a.Content)
	if a.Priority.Marker() == "" {
		a.Priority = ""
	}
	var tags []string
	for _, tag := range a.Tags {
		if tag = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(tag), "#")); tag != "" {
			tags = append(tags, tag)
		}
	}
	a.Tags = tags
	if a.Confidence == 0 {
		a.Confidence = 0.5
	}
	a.Confidence = min(max(a.Confidence, 0), 1)
	return a
}

type fallback struct {
	c      Classifier
	logger *slog.Logger
}

// WithFallback returns a Classifier that never fails: when c returns an
// error, the error is logged and the [Heuristic] result is returned.
func WithFallback(c Classifier, logger *slog.Logger) Classifier {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &fallback{c: c, logger: logger}
}

func (f *fallback) Analyze(ctx context.Context, text string) (Analysis, error) {
	if f.c != nil {
		a, err := f.c.Analyze(ctx, text)
		if err == nil {
			return a, nil
		}
		f.logger.Warn("classifier failed, using heuristic", "err", err)
	}
	return Heuristic(text), nil
}
