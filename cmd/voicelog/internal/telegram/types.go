// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package telegram

import (
	"strings"
	"unicode"

	"go.astrophena.name/voicelog/internal/tgmarkup"
)

// Update is an incoming update.
//
// See https://core.telegram.org/bots/api#update.
type Update struct {
	UpdateID     int64              `json:"update_id"`
	Message      *Message           `json:"message,omitempty"`
	ChannelPost  *Message           `json:"channel_post,omitempty"`
	MyChatMember *ChatMemberUpdated `json:"my_chat_member,omitempty"`
}

// Message is a message.
//
// See https://core.telegram.org/bots/api#message.
type Message struct {
	MessageID int64             `json:"message_id"`
	From      *User             `json:"from,omitempty"`
	Chat      Chat              `json:"chat"`
	Date      int64             `json:"date"`
	Text      string            `json:"text,omitempty"`
	Entities  []tgmarkup.Entity `json:"entities,omitempty"`
	Voice     *Voice            `json:"voice,omitempty"`
	Audio     *Voice            `json:"audio,omitempty"`
}

// Command returns the bot command the message starts with, without the
// leading slash and the bot username, and the rest of the text.
func (m *Message) Command() (cmd, args string, ok bool) {
	if len(m.Entities) == 0 || m.Entities[0].Type != tgmarkup.BotCommand || m.Entities[0].Offset != 0 {
		return "", "", false
	}
	cmd = m.Text
	if i := strings.IndexFunc(cmd, unicode.IsSpace); i >= 0 {
		cmd, args = cmd[:i], strings.TrimSpace(cmd[i:])
	}
	cmd, _, _ = strings.Cut(strings.TrimPrefix(cmd, "/"), "@")
	return strings.ToLower(cmd), args, true
}

// User is a Telegram user or bot.
type User struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot,omitempty"`
	FirstName string `json:"first_name"`
	Username  string `json:"username,omitempty"`
}

// Chat types.
const (
	ChatPrivate    = "private"
	ChatGroup      = "group"
	ChatSupergroup = "supergroup"
	ChatChannel    = "channel"
)

// Chat is a chat.
type Chat struct {
	ID       int64  `json:"id"`
	Type     string `json:"type"`
	Title    string `json:"title,omitempty"`
	Username string `json:"username,omitempty"`
}

// Voice is a voice note or an audio file.
type Voice struct {
	FileID       string `json:"file_id"`
	FileUniqueID string `json:"file_unique_id"`
	Duration     int    `json:"duration"`
	MimeType     string `json:"mime_type,omitempty"`
	FileSize     int64  `json:"file_size,omitempty"`
}

// File is a file ready to be downloaded.
type File struct {
	FileID       string `json:"file_id"`
	FileUniqueID string `json:"file_unique_id"`
	FileSize     int64  `json:"file_size,omitempty"`
	FilePath     string `json:"file_path,omitempty"`
}

// Chat member statuses.
const (
	StatusCreator       = "creator"
	StatusAdministrator = "administrator"
	StatusMember        = "member"
	StatusRestricted    = "restricted"
	StatusLeft          = "left"
	StatusKicked        = "kicked"
)

// ChatMember describes a member of a chat.
type ChatMember struct {
	Status string `json:"status"`
	User   User   `json:"user"`
	// CanPostMessages is set for administrators of channels.
	CanPostMessages bool `json:"can_post_messages,omitempty"`
	CanEditMessages bool `json:"can_edit_messages,omitempty"`
}

// ChatMemberUpdated is a change of a chat member status.
type ChatMemberUpdated struct {
	Chat          Chat       `json:"chat"`
	From          User       `json:"from"`
	Date          int64      `json:"date"`
	OldChatMember ChatMember `json:"old_chat_member"`
	NewChatMember ChatMember `json:"new_chat_member"`
}
