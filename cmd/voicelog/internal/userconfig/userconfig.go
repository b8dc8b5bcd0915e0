// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package userconfig stores per-user bot settings.
package userconfig

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"

	"go.astrophena.name/voicelog/internal/store"
)

// Config is the configuration of one user.
type Config struct {
	// ChannelID is the channel the user's daily posts go to, as typed by
	// the user or reported by Telegram.
	ChannelID string `json:"channel_id,omitempty"`
	// WaitingForChannelID is set while the bot waits for the user to name a
	// channel.
	WaitingForChannelID bool `json:"waiting_for_channel_id,omitempty"`
}

// Update is a partial change of a Config. Nil fields are left as is.
type Update struct {
	ChannelID           *string
	WaitingForChannelID *bool
}

// Apply returns c with u applied.
func (u Update) Apply(c Config) Config {
	if u.ChannelID != nil {
		c.ChannelID = *u.ChannelID
	}
	if u.WaitingForChannelID != nil {
		c.WaitingForChannelID = *u.WaitingForChannelID
	}
	return c
}

// Store keeps user configs in a [store.Store].
type Store struct {
	kv     store.Store
	logger *slog.Logger
}

// New returns a new Store. A nil logger discards log output.
func New(kv store.Store, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{kv: kv, logger: logger}
}

// Key returns the store key of a user's config.
func Key(userID int64) string { return "user/" + strconv.FormatInt(userID, 10) }

// Get returns the config of a user. A missing or corrupt config is returned
// as the zero Config.
func (s *Store) Get(ctx context.Context, userID int64) (Config, error) {
	b, err := s.kv.Get(ctx, Key(userID))
	if err != nil {
		return Config{}, err
	}
	return s.decode(userID, b), nil
}

// Set applies u to the config of a user in a single atomic step.
func (s *Store) Set(ctx context.Context, userID int64, u Update) error {
	return s.kv.Update(ctx, Key(userID), func(old []byte) ([]byte, error) {
		return json.Marshal(u.Apply(s.decode(userID, old)))
	})
}

// SetChannelID binds a channel to the user and stops waiting for one.
func (s *Store) SetChannelID(ctx context.Context, userID int64, channelID string) error {
	return s.Set(ctx, userID, Update{ChannelID: &channelID, WaitingForChannelID: ptr(false)})
}

// SetWaiting sets whether the bot waits for the user to name a channel. The
// channel, if any, is kept.
func (s *Store) SetWaiting(ctx context.Context, userID int64, waiting bool) error {
	return s.Set(ctx, userID, Update{WaitingForChannelID: &waiting})
}

// RemoveChannel unbinds the user's channel and waits for a new one.
func (s *Store) RemoveChannel(ctx context.Context, userID int64) error {
	return s.Set(ctx, userID, Update{ChannelID: ptr(""), WaitingForChannelID: ptr(true)})
}

func (s *Store) decode(userID int64, b []byte) Config {
	var c Config
	if b == nil {
		return c
	}
	if err := json.Unmarshal(b, &c); err != nil {
		s.logger.Warn("corrupt user config", "user_id", userID, "err", err)
		return Config{}
	}
	return c
}

func ptr[T any](v T) *T { return &v }
