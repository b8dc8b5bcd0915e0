// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package post

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.astrophena.name/voicelog/internal/syncx"
)

// DateLayout is the layout of day keys.
const DateLayout = "2006-01-02"

// Channel sends and edits messages in a channel. Messages are Telegram HTML.
type Channel interface {
	SendMessage(ctx context.Context, chatID int64, html string) (messageID int64, err error)
	EditMessageText(ctx context.Context, chatID, messageID int64, html string) error
	DeleteMessage(ctx context.Context, chatID, messageID int64) error
}

// Reader reads back the text of a message as Telegram HTML.
type Reader interface {
	ReadMessageText(ctx context.Context, chatID, messageID int64) (string, error)
}

// Pointer locates the daily post of a channel.
type Pointer struct {
	// Date is the day key in DateLayout. Empty for a cleared pointer.
	Date string `json:"date"`
	// MessageID is the channel message that holds the post. Zero for a
	// cleared pointer.
	MessageID int64 `json:"message_id"`
	// Content is the structured content of the post. If nil, it is decoded
	// from the message text.
	Content *Content `json:"content,omitempty"`
}

// PointerStore persists pointers, one per channel.
type PointerStore interface {
	// Load returns the pointer of a channel, or false if there is none or it
	// can't be read.
	Load(ctx context.Context, chatID int64) (Pointer, bool)
	// Save replaces the pointer of a channel.
	Save(ctx context.Context, chatID int64, p Pointer) error
}

// Options configure a [Manager].
type Options struct {
	Channel  Channel
	Reader   Reader       // optional, used for posts without stored content
	Pointers PointerStore // required
	Matcher  Matcher      // defaults to SubstringMatcher
	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
	// Location is the time zone that defines "today". Defaults to time.Local.
	Location *time.Location
	// Timeout limits every call to the channel. Defaults to 15 seconds.
	Timeout time.Duration
	// IsPermanent reports whether a channel error means the message is gone
	// for good. Defaults to treating every error as temporary.
	IsPermanent func(error) bool
	Logger      *slog.Logger
}

// Manager finds, creates and edits daily posts. Operations on the same channel
// are serialized.
type Manager struct {
	ch          Channel
	reader      Reader
	pointers    PointerStore
	matcher     Matcher
	now         func() time.Time
	loc         *time.Location
	timeout     time.Duration
	isPermanent func(error) bool
	logger      *slog.Logger

	mu syncx.KeyedMutex[int64]
}

// Result describes the state of a daily post.
type Result struct {
	Date      string
	MessageID int64
	Content   Content
	// Text is the rendered post.
	Text string
}

// TaskResult is the outcome of completing or deleting a task. Success is false
// when no task matched. Task holds the matched task, if any, so a task that
// was already completed comes back with Success false and a non-empty Task.
type TaskResult struct {
	Success bool
	Task    string
}

var errNoChannel = errors.New("post: channel is not set")

// ErrEmptyItem is returned by [Manager.Add] for an item without text.
var ErrEmptyItem = errors.New("post: item has no text")

// NewManager returns a new Manager.
func NewManager(opts Options) *Manager {
	m := &Manager{
		ch:          opts.Channel,
		reader:      opts.Reader,
		pointers:    opts.Pointers,
		matcher:     opts.Matcher,
		now:         opts.Now,
		loc:         opts.Location,
		timeout:     opts.Timeout,
		isPermanent: opts.IsPermanent,
		logger:      opts.Logger,
	}
	if m.matcher == nil {
		m.matcher = SubstringMatcher{}
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.loc == nil {
		m.loc = time.Local
	}
	if m.timeout == 0 {
		m.timeout = 15 * time.Second
	}
	if m.isPermanent == nil {
		m.isPermanent = func(error) bool { return false }
	}
	if m.logger == nil {
		m.logger = slog.New(slog.DiscardHandler)
	}
	return m
}

// day returns the day key and the midnight of date in the manager's location.
// A zero date means today.
func (m *Manager) day(date time.Time) (string, time.Time) {
	if date.IsZero() {
		date = m.now()
	}
	date = date.In(m.loc)
	return date.Format(DateLayout), time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, m.loc)
}

// GetOrCreate returns the post for date, creating it if it doesn't exist yet.
func (m *Manager) GetOrCreate(ctx context.Context, chatID int64, date time.Time) (*Result, error) {
	defer m.mu.Lock(chatID)()
	return m.resolve(ctx, chatID, date, true)
}

// Today returns today's post without creating it. It returns false if there
// is none.
func (m *Manager) Today(ctx context.Context, chatID int64) (*Result, bool, error) {
	defer m.mu.Lock(chatID)()
	r, err := m.resolve(ctx, chatID, time.Time{}, false)
	if err != nil {
		return nil, false, err
	}
	return r, r != nil, nil
}

// Add appends it to section s of the post for date, creating the post if
// needed. Items with blank text are rejected with [ErrEmptyItem] and leave
// the post untouched.
func (m *Manager) Add(ctx context.Context, chatID int64, it Item, s Section, date time.Time) (*Result, error) {
	if strings.TrimSpace(it.Text) == "" {
		return nil, ErrEmptyItem
	}
	defer m.mu.Lock(chatID)()

	if date.IsZero() {
		date = m.now()
	}
	r, err := m.resolve(ctx, chatID, date, true)
	if err != nil {
		return nil, err
	}
	_, day := m.day(date)
	prev := r.Content.Clone()
	r.Content.Add(s, it)
	if err := m.publish(ctx, chatID, r, day, prev); err != nil {
		return nil, err
	}
	m.logger.Info("added item to daily post", "chat_id", chatID, "message_id", r.MessageID, "section", s)
	return r, nil
}

// CompleteTask marks the task best matching query as completed.
func (m *Manager) CompleteTask(ctx context.Context, chatID int64, query string, date time.Time) (TaskResult, error) {
	return m.editTask(ctx, chatID, query, date, func(c *Content, i int) bool {
		if c.Tasks[i].Completed {
			return false
		}
		c.Tasks[i].Completed = true
		return true
	})
}

// DeleteTask removes the task best matching query.
func (m *Manager) DeleteTask(ctx context.Context, chatID int64, query string, date time.Time) (TaskResult, error) {
	return m.editTask(ctx, chatID, query, date, func(c *Content, i int) bool {
		c.Tasks = append(c.Tasks[:i], c.Tasks[i+1:]...)
		return true
	})
}

func (m *Manager) editTask(ctx context.Context, chatID int64, query string, date time.Time, edit func(c *Content, i int) bool) (TaskResult, error) {
	defer m.mu.Lock(chatID)()

	if date.IsZero() {
		date = m.now()
	}
	r, err := m.resolve(ctx, chatID, date, true)
	if err != nil {
		return TaskResult{}, err
	}

	lines := make([]string, len(r.Content.Tasks))
	for i, it := range r.Content.Tasks {
		lines[i] = plainText(it)
	}
	i, ok := m.matcher.Find(lines, query)
	if !ok {
		return TaskResult{}, nil
	}
	task := r.Content.Tasks[i].Text

	_, day := m.day(date)
	prev := r.Content.Clone()
	if !edit(&r.Content, i) {
		return TaskResult{Task: task}, nil
	}
	if err := m.publish(ctx, chatID, r, day, prev); err != nil {
		return TaskResult{}, err
	}
	return TaskResult{Success: true, Task: task}, nil
}

// ClearToday deletes today's post and resets the pointer. It returns false if
// there was nothing to clear. A post whose message is already gone is still
// cleared.
func (m *Manager) ClearToday(ctx context.Context, chatID int64) (bool, error) {
	defer m.mu.Lock(chatID)()

	today, _ := m.day(time.Time{})
	p, ok := m.pointers.Load(ctx, chatID)
	if !ok || p.Date != today || p.MessageID == 0 {
		return false, nil
	}
	if m.ch == nil {
		return false, errNoChannel
	}

	err := m.call(ctx, func(ctx context.Context) error {
		return m.ch.DeleteMessage(ctx, chatID, p.MessageID)
	})
	if err != nil {
		if !m.isPermanent(err) {
			return false, fmt.Errorf("deleting daily post: %w", err)
		}
		m.logger.Warn("daily post is already gone", "chat_id", chatID, "message_id", p.MessageID, "err", err)
	}

	if err := m.pointers.Save(ctx, chatID, Pointer{}); err != nil {
		return false, fmt.Errorf("resetting daily post pointer: %w", err)
	}
	m.logger.Info("cleared daily post", "chat_id", chatID, "message_id", p.MessageID)
	return true, nil
}

// resolve finds the post for date. If there is none, it creates one when
// create is true and returns nil otherwise.
func (m *Manager) resolve(ctx context.Context, chatID int64, date time.Time, create bool) (*Result, error) {
	if m.ch == nil {
		return nil, errNoChannel
	}
	key, day := m.day(date)

	if r, ok := m.find(ctx, chatID, key, day); ok {
		return r, nil
	}
	if !create {
		return nil, nil
	}

	r := &Result{Date: key}
	if err := m.create(ctx, chatID, r, day); err != nil {
		return nil, err
	}
	m.logger.Info("created daily post", "chat_id", chatID, "message_id", r.MessageID, "date", key)
	return r, nil
}

func (m *Manager) find(ctx context.Context, chatID int64, key string, day time.Time) (*Result, bool) {
	p, ok := m.pointers.Load(ctx, chatID)
	if !ok || p.Date != key || p.MessageID == 0 {
		return nil, false
	}

	r := &Result{Date: key, MessageID: p.MessageID}
	if p.Content != nil {
		r.Content = p.Content.Clone()
		r.Text = Render(r.Content, day)
		return r, true
	}

	if m.reader == nil {
		return nil, false
	}
	var text string
	err := m.call(ctx, func(ctx context.Context) (err error) {
		text, err = m.reader.ReadMessageText(ctx, chatID, p.MessageID)
		return err
	})
	if err != nil {
		m.logger.Warn("can't read daily post, creating a new one", "chat_id", chatID, "message_id", p.MessageID, "err", err)
		return nil, false
	}
	if text == "" {
		m.logger.Warn("daily post has no text, creating a new one", "chat_id", chatID, "message_id", p.MessageID)
		return nil, false
	}
	r.Content = Parse(text)
	r.Text = Render(r.Content, day)
	return r, true
}

// create sends r.Content as a new post and saves the pointer to it.
func (m *Manager) create(ctx context.Context, chatID int64, r *Result, day time.Time) error {
	text := Render(r.Content, day)
	var id int64
	err := m.call(ctx, func(ctx context.Context) (err error) {
		id, err = m.ch.SendMessage(ctx, chatID, text)
		return err
	})
	if err != nil {
		return fmt.Errorf("sending daily post: %w", err)
	}

	content := r.Content.Clone()
	if err := m.pointers.Save(ctx, chatID, Pointer{Date: r.Date, MessageID: id, Content: &content}); err != nil {
		return fmt.Errorf("saving daily post pointer: %w", err)
	}
	r.MessageID, r.Text = id, text
	return nil
}

// publish stores r.Content and edits the post to match it. If the edit fails,
// the pointer is rolled back to prev. If the post message is gone for good, a
// new post with the same content replaces it.
func (m *Manager) publish(ctx context.Context, chatID int64, r *Result, day time.Time, prev Content) error {
	content := r.Content.Clone()
	if err := m.pointers.Save(ctx, chatID, Pointer{Date: r.Date, MessageID: r.MessageID, Content: &content}); err != nil {
		return fmt.Errorf("saving daily post pointer: %w", err)
	}

	text := Render(r.Content, day)
	err := m.call(ctx, func(ctx context.Context) error {
		return m.ch.EditMessageText(ctx, chatID, r.MessageID, text)
	})
	if err == nil {
		r.Text = text
		return nil
	}

	if m.isPermanent(err) {
		m.logger.Warn("daily post is gone, sending a new one", "chat_id", chatID, "message_id", r.MessageID, "err", err)
		return m.create(ctx, chatID, r, day)
	}

	if rerr := m.pointers.Save(ctx, chatID, Pointer{Date: r.Date, MessageID: r.MessageID, Content: &prev}); rerr != nil {
		m.logger.Error("rolling back daily post pointer", "chat_id", chatID, "err", rerr)
	}
	return fmt.Errorf("editing daily post: %w", err)
}

// call runs f with the manager's timeout.
func (m *Manager) call(ctx context.Context, f func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	return f(ctx)
}
