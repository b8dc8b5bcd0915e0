// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package pointer persists daily post pointers in a key-value store.
package pointer

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"

	"go.astrophena.name/voicelog/cmd/voicelog/internal/post"
	"go.astrophena.name/voicelog/internal/store"
)

// Store implements [post.PointerStore] on top of a [store.Store].
type Store struct {
	kv     store.Store
	logger *slog.Logger
}

var _ post.PointerStore = (*Store)(nil)

// New returns a new Store. A nil logger discards log output.
func New(kv store.Store, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{kv: kv, logger: logger}
}

// Key returns the store key of the pointer of a channel.
func Key(chatID int64) string { return "pointer/" + strconv.FormatInt(chatID, 10) }

// Load returns the pointer of a channel. A pointer that can't be read or
// decoded is reported as absent.
func (s *Store) Load(ctx context.Context, chatID int64) (post.Pointer, bool) {
	b, err := s.kv.Get(ctx, Key(chatID))
	if err != nil {
		s.logger.Warn("reading daily post pointer", "chat_id", chatID, "err", err)
		return post.Pointer{}, false
	}
	if b == nil {
		return post.Pointer{}, false
	}
	var p post.Pointer
	if err := json.Unmarshal(b, &p); err != nil {
		s.logger.Warn("corrupt daily post pointer", "chat_id", chatID, "err", err)
		return post.Pointer{}, false
	}
	return p, true
}

// Save replaces the pointer of a channel.
func (s *Store) Save(ctx context.Context, chatID int64, p post.Pointer) error {
	b, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return s.kv.Set(ctx, Key(chatID), b)
}

// Clear resets the pointer of a channel, so the next post of the day is sent
// as a new message.
func (s *Store) Clear(ctx context.Context, chatID int64) error {
	return s.Save(ctx, chatID, post.Pointer{})
}
