// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.astrophena.name/voicelog/internal/request"
	"go.astrophena.name/voicelog/internal/tgmarkup"
)

// GetMe returns the bot user.
func (c *Client) GetMe(ctx context.Context) (User, error) {
	return call[User](ctx, c, "getMe", struct{}{})
}

// GetChat returns a chat by its ID or @username.
func (c *Client) GetChat(ctx context.Context, chatID string) (Chat, error) {
	return call[Chat](ctx, c, "getChat", map[string]string{"chat_id": chatID})
}

// GetChatMember returns the membership of a user in a chat.
func (c *Client) GetChatMember(ctx context.Context, chatID, userID int64) (ChatMember, error) {
	return call[ChatMember](ctx, c, "getChatMember", map[string]int64{"chat_id": chatID, "user_id": userID})
}

type linkPreviewOptions struct {
	IsDisabled bool `json:"is_disabled"`
}

type sendMessage struct {
	ChatID             int64              `json:"chat_id"`
	ParseMode          string             `json:"parse_mode,omitempty"`
	LinkPreviewOptions linkPreviewOptions `json:"link_preview_options"`
	tgmarkup.Message
}

// SendMessage sends a message formatted as Telegram HTML and returns its ID.
func (c *Client) SendMessage(ctx context.Context, chatID int64, html string) (int64, error) {
	msg, err := call[Message](ctx, c, "sendMessage", sendMessage{
		ChatID:             chatID,
		ParseMode:          "HTML",
		LinkPreviewOptions: linkPreviewOptions{IsDisabled: true},
		Message:            tgmarkup.Message{Text: html},
	})
	return msg.MessageID, err
}

// SendMarkdown sends a message formatted as Markdown and returns its ID.
func (c *Client) SendMarkdown(ctx context.Context, chatID int64, md string) (int64, error) {
	msg, err := call[Message](ctx, c, "sendMessage", sendMessage{
		ChatID:             chatID,
		LinkPreviewOptions: linkPreviewOptions{IsDisabled: true},
		Message:            tgmarkup.FromMarkdown(md),
	})
	return msg.MessageID, err
}

type editMessageText struct {
	ChatID             int64              `json:"chat_id"`
	MessageID          int64              `json:"message_id"`
	Text               string             `json:"text"`
	ParseMode          string             `json:"parse_mode"`
	LinkPreviewOptions linkPreviewOptions `json:"link_preview_options"`
}

// EditMessageText replaces the text of a message with Telegram HTML. Editing
// a message to the text it already has is not an error.
func (c *Client) EditMessageText(ctx context.Context, chatID, messageID int64, html string) error {
	// The result is either the edited message or true.
	_, err := call[json.RawMessage](ctx, c, "editMessageText", editMessageText{
		ChatID:             chatID,
		MessageID:          messageID,
		Text:               html,
		ParseMode:          "HTML",
		LinkPreviewOptions: linkPreviewOptions{IsDisabled: true},
	})
	if isNotModified(err) {
		return nil
	}
	return err
}

// DeleteMessage deletes a message.
func (c *Client) DeleteMessage(ctx context.Context, chatID, messageID int64) error {
	_, err := call[bool](ctx, c, "deleteMessage", map[string]int64{"chat_id": chatID, "message_id": messageID})
	return err
}

// ForwardMessage silently forwards a message from one chat to another.
func (c *Client) ForwardMessage(ctx context.Context, toChatID, fromChatID, messageID int64) (Message, error) {
	return call[Message](ctx, c, "forwardMessage", map[string]any{
		"chat_id":              toChatID,
		"from_chat_id":         fromChatID,
		"message_id":           messageID,
		"disable_notification": true,
	})
}

// ReadMessageText returns the text of a message as Telegram HTML.
//
// The Bot API has no way to read a message by its ID, so the message is
// forwarded to the same chat and the copy is deleted right away.
func (c *Client) ReadMessageText(ctx context.Context, chatID, messageID int64) (string, error) {
	fwd, err := c.ForwardMessage(ctx, chatID, chatID, messageID)
	if err != nil {
		return "", err
	}
	if err := c.DeleteMessage(ctx, chatID, fwd.MessageID); err != nil {
		c.logger().Warn("deleting forwarded copy", "chat_id", chatID, "message_id", fwd.MessageID, "err", err)
	}
	return tgmarkup.ToHTML(fwd.Text, fwd.Entities), nil
}

// GetFile prepares a file for download.
func (c *Client) GetFile(ctx context.Context, fileID string) (File, error) {
	return call[File](ctx, c, "getFile", map[string]string{"file_id": fileID})
}

// DownloadFile downloads a file by the path returned by GetFile.
func (c *Client) DownloadFile(ctx context.Context, path string) ([]byte, error) {
	b, err := request.Make[request.Bytes](ctx, request.Params{
		Method:     http.MethodGet,
		URL:        c.baseURL() + "/file/bot" + c.Token + "/" + strings.TrimPrefix(path, "/"),
		HTTPClient: c.HTTPClient,
		Scrubber:   c.scrubber(),
	})
	if err != nil {
		return nil, fmt.Errorf("telegram: downloading file: %w", err)
	}
	return b, nil
}

// AllowedUpdates are the update types the bot subscribes to.
var AllowedUpdates = []string{"message", "my_chat_member"}

// GetUpdates long polls for updates with IDs starting at offset.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error) {
	return call[[]Update](ctx, c, "getUpdates", map[string]any{
		"offset":          offset,
		"timeout":         int(timeout.Seconds()),
		"allowed_updates": AllowedUpdates,
	})
}

// SetWebhook makes Telegram deliver updates to url, authenticated with
// secret.
func (c *Client) SetWebhook(ctx context.Context, url, secret string) error {
	_, err := call[bool](ctx, c, "setWebhook", map[string]any{
		"url":             url,
		"secret_token":    secret,
		"allowed_updates": AllowedUpdates,
	})
	return err
}

// DeleteWebhook removes the webhook, so updates can be polled.
func (c *Client) DeleteWebhook(ctx context.Context) error {
	_, err := call[bool](ctx, c, "deleteWebhook", struct{}{})
	return err
}

func isNotModified(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == http.StatusBadRequest && strings.Contains(e.Description, "message is not modified")
}
