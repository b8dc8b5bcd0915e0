// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package main

import (
	"cmp"
	"context"
	"fmt"
	"html"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"go.astrophena.name/voicelog/cmd/voicelog/internal/classify"
	"go.astrophena.name/voicelog/cmd/voicelog/internal/telegram"
)

var channelIDRe = regexp.MustCompile(`^-?\d+$`)

// handleUpdate handles a single update. Failures are logged and, if the
// update came from a user, reported back to them.
func (e *engine) handleUpdate(ctx context.Context, u telegram.Update) {
	switch {
	case u.MyChatMember != nil:
		e.handleChatMember(ctx, u.MyChatMember)
	case u.Message != nil:
		m := u.Message
		if err := e.handleMessage(ctx, m); err != nil {
			e.log.Error("handling message failed", "update_id", u.UpdateID, "chat_id", m.Chat.ID, "err", err)
			if err := e.reply(ctx, m.Chat.ID, formatError(err)); err != nil {
				e.log.Error("reporting error failed", "chat_id", m.Chat.ID, "err", err)
			}
		}
	}
}

func (e *engine) handleMessage(ctx context.Context, m *telegram.Message) error {
	if m.From == nil || m.Chat.Type != telegram.ChatPrivate {
		return nil
	}
	if cmd, args, ok := m.Command(); ok {
		return e.handleCommand(ctx, m, cmd, args)
	}
	if v := cmp.Or(m.Voice, m.Audio); v != nil {
		return e.handleVoice(ctx, m, v)
	}
	if m.Text == "" {
		return nil
	}

	e.log.Info("received text message", "user_id", m.From.ID, "username", m.From.Username)
	text := strings.TrimSpace(m.Text)
	if channelIDRe.MatchString(text) || strings.HasPrefix(text, "@") {
		cfg, err := e.users.Get(ctx, m.From.ID)
		if err != nil {
			return err
		}
		if cfg.WaitingForChannelID {
			return e.setChannel(ctx, m.Chat.ID, m.From.ID, text)
		}
	}
	return e.reply(ctx, m.Chat.ID, msgTextNotSupported)
}

func (e *engine) handleCommand(ctx context.Context, m *telegram.Message, cmd, args string) error {
	userID, chatID := m.From.ID, m.Chat.ID

	switch cmd {
	case "start":
		e.log.Info("user started the bot", "user_id", userID, "username", m.From.Username)
		cfg, err := e.users.Get(ctx, userID)
		if err != nil {
			return err
		}
		if cfg.ChannelID != "" {
			return e.reply(ctx, chatID, msgWelcomeBack)
		}
		return e.askChannel(ctx, chatID, userID)
	case "help":
		return e.replyMarkdown(ctx, chatID, mdHelp)
	case "status":
		return e.replyMarkdown(ctx, chatID, mdStatus)
	case "debug":
		cfg, err := e.users.Get(ctx, userID)
		if err != nil {
			return err
		}
		return e.reply(ctx, chatID, formatDebug(userID, cfg.ChannelID, cfg.WaitingForChannelID))
	case "setchannel":
		fields := strings.Fields(args)
		if len(fields) == 0 {
			return e.reply(ctx, chatID, msgSetChannelUsage)
		}
		return e.setChannel(ctx, chatID, userID, fields[0])
	case "removechannel":
		if err := e.users.RemoveChannel(ctx, userID); err != nil {
			return err
		}
		e.log.Info("removed channel", "user_id", userID)
		return e.reply(ctx, chatID, msgChannelRemoved)
	case "today":
		channelID, ok, err := e.channel(ctx, chatID, userID)
		if !ok {
			return err
		}
		r, ok, err := e.posts.Today(ctx, channelID)
		if err != nil {
			return err
		}
		if !ok {
			return e.reply(ctx, chatID, msgNoPostToday)
		}
		_, err = e.tg.SendMessage(ctx, chatID, r.Text)
		return err
	case "done", "delete":
		if args == "" {
			return e.reply(ctx, chatID, "❗ Использование: /"+cmd+" <текст задачи>")
		}
		channelID, ok, err := e.channel(ctx, chatID, userID)
		if !ok {
			return err
		}
		edit := e.posts.CompleteTask
		if cmd == "delete" {
			edit = e.posts.DeleteTask
		}
		res, err := edit(ctx, channelID, args, time.Time{})
		if err != nil {
			return err
		}
		return e.reply(ctx, chatID, formatTaskResult(cmd == "done", args, res))
	case "clear":
		channelID, ok, err := e.channel(ctx, chatID, userID)
		if !ok {
			return err
		}
		cleared, err := e.posts.ClearToday(ctx, channelID)
		if err != nil {
			e.log.Error("clearing today's post failed", "channel_id", channelID, "err", err)
			return e.replyMarkdown(ctx, chatID, mdClearError)
		}
		if !cleared {
			return e.replyMarkdown(ctx, chatID, mdClearNothing)
		}
		return e.replyMarkdown(ctx, chatID, mdClearSuccess)
	}
	return nil
}

// setChannel binds the channel identified by arg, a numeric ID or an
// @username, to the user.
func (e *engine) setChannel(ctx context.Context, chatID, userID int64, arg string) error {
	channelID := arg
	if strings.HasPrefix(arg, "@") {
		chat, err := e.tg.GetChat(ctx, arg)
		if err != nil || chat.Type != telegram.ChatChannel {
			e.log.Info("can't resolve channel", "user_id", userID, "channel", arg, "err", err)
			return e.reply(ctx, chatID, msgBadChannelID)
		}
		channelID = strconv.FormatInt(chat.ID, 10)
	}
	if !channelIDRe.MatchString(channelID) {
		return e.reply(ctx, chatID, msgBadChannelID)
	}

	if err := e.users.SetChannelID(ctx, userID, channelID); err != nil {
		return err
	}
	e.log.Info("set channel", "user_id", userID, "channel_id", channelID)
	if err := e.reply(ctx, chatID, formatChannelSet(channelID)); err != nil {
		return err
	}

	id, _ := strconv.ParseInt(channelID, 10, 64)
	member, err := e.tg.GetChatMember(ctx, id, e.me.ID)
	if err == nil && (member.Status == telegram.StatusAdministrator || member.Status == telegram.StatusCreator) {
		return nil
	}
	e.log.Info("bot is not an administrator of the channel", "channel_id", channelID, "status", member.Status, "err", err)
	return e.reply(ctx, chatID, msgNotAdmin)
}

// channel returns the channel of the user. If the user has none, it asks them
// to set one up and returns false.
func (e *engine) channel(ctx context.Context, chatID, userID int64) (int64, bool, error) {
	cfg, err := e.users.Get(ctx, userID)
	if err != nil {
		return 0, false, err
	}
	if cfg.ChannelID == "" {
		return 0, false, e.askChannel(ctx, chatID, userID)
	}
	id, err := strconv.ParseInt(cfg.ChannelID, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("invalid channel ID %q: %w", cfg.ChannelID, err)
	}
	return id, true, nil
}

func (e *engine) askChannel(ctx context.Context, chatID, userID int64) error {
	if err := e.users.SetWaiting(ctx, userID, true); err != nil {
		return err
	}
	return e.reply(ctx, chatID, msgAskChannel)
}

func (e *engine) handleVoice(ctx context.Context, m *telegram.Message, v *telegram.Voice) error {
	userID, chatID := m.From.ID, m.Chat.ID
	e.log.Info("received voice message", "user_id", userID, "username", m.From.Username, "duration", v.Duration)

	if !e.allow(userID) {
		e.log.Warn("rate limit exceeded", "user_id", userID)
		return e.reply(ctx, chatID, msgRateLimited)
	}

	channelID, ok, err := e.channel(ctx, chatID, userID)
	if err != nil {
		e.log.Error("getting user config failed", "user_id", userID, "err", err)
		return e.reply(ctx, chatID, msgConfigError)
	}
	if !ok {
		return nil
	}

	progressID, err := e.tg.SendMessage(ctx, chatID, html.EscapeString(msgProcessingVoice))
	if err != nil {
		return err
	}
	progress := func(text string) {
		if err := e.tg.EditMessageText(ctx, chatID, progressID, html.EscapeString(text)); err != nil {
			e.log.Warn("updating progress message failed", "chat_id", chatID, "err", err)
		}
	}

	file, err := e.tg.GetFile(ctx, v.FileID)
	if err != nil {
		return err
	}
	audio, err := e.tg.DownloadFile(ctx, file.FilePath)
	if err != nil {
		return err
	}

	progress(msgTranscribing)
	text, err := e.speech.Transcribe(ctx, audio)
	if err != nil {
		return err
	}
	e.log.Debug("transcribed voice message", "user_id", userID, "text", text)

	progress(msgAnalyzing)
	a, err := e.classifier.Analyze(ctx, text)
	if err != nil {
		return err
	}

	progress(msgAddingToChannel)
	reply, err := e.apply(ctx, channelID, a)
	if err != nil {
		return err
	}
	progress(reply)
	return nil
}

// apply carries out the analyzed message in the channel and returns the reply
// to the user.
func (e *engine) apply(ctx context.Context, channelID int64, a classify.Analysis) (string, error) {
	switch a.Action {
	case classify.Complete, classify.Delete:
		edit := e.posts.CompleteTask
		if a.Action == classify.Delete {
			edit = e.posts.DeleteTask
		}
		res, err := edit(ctx, channelID, a.Content, time.Time{})
		if err != nil {
			return "", err
		}
		return formatTaskResult(a.Action == classify.Complete, a.Content, res), nil
	}

	s, it := a.Section(), a.Item()
	if strings.TrimSpace(it.Text) == "" {
		return msgNothingToAdd, nil
	}
	if _, err := e.posts.Add(ctx, channelID, it, s, time.Time{}); err != nil {
		return "", err
	}
	return formatAdded(s, it, a.Confidence), nil
}

func (e *engine) handleChatMember(ctx context.Context, u *telegram.ChatMemberUpdated) {
	if u.Chat.Type != telegram.ChatChannel {
		return
	}
	userID := cmp.Or(u.From.ID, u.Chat.ID)
	e.log.Info("bot membership changed",
		"channel_id", u.Chat.ID,
		"user_id", userID,
		"old_status", u.OldChatMember.Status,
		"new_status", u.NewChatMember.Status,
	)

	var reply string
	switch {
	case u.NewChatMember.Status == telegram.StatusAdministrator:
		channelID := strconv.FormatInt(u.Chat.ID, 10)
		if err := e.users.SetChannelID(ctx, userID, channelID); err != nil {
			e.log.Error("saving channel failed", "user_id", userID, "channel_id", channelID, "err", err)
			return
		}
		reply = msgChannelSaved
	case u.NewChatMember.Status == telegram.StatusMember && u.OldChatMember.Status == telegram.StatusLeft:
		reply = msgNotAdmin
	default:
		return
	}

	if err := e.reply(ctx, userID, reply); err != nil {
		e.log.Warn("can't message user", "user_id", userID, "err", err)
	}
}

// allow reports whether the user may send another voice message now.
func (e *engine) allow(userID int64) bool {
	var lim *rate.Limiter
	e.limiters.Access(func(m map[int64]*rate.Limiter) {
		lim = m[userID]
		if lim == nil {
			lim = rate.NewLimiter(rate.Every(time.Minute/voiceLimit), voiceLimit)
			m[userID] = lim
		}
	})
	return lim.AllowN(e.now(), 1)
}

func (e *engine) reply(ctx context.Context, chatID int64, text string) error {
	_, err := e.tg.SendMessage(ctx, chatID, html.EscapeString(text))
	return err
}

func (e *engine) replyMarkdown(ctx context.Context, chatID int64, md string) error {
	_, err := e.tg.SendMarkdown(ctx, chatID, md)
	return err
}
