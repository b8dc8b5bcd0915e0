// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

/*
Voicelog is a Telegram bot that turns voice messages into a daily log.

Send the bot a voice message and it transcribes it, decides whether it is a
task, a note or an idea, and adds it to a single post for the current day in
your private channel. Tasks can be completed or deleted by voice ("I bought
milk, mark the task") or with commands.

# Usage

	$ voicelog [flags...]

Every flag can also be set with the environment variable named in its
description. A .env file in the working directory is loaded first, if it
exists.

# Setting up a channel

Create a private channel and add the bot to it as an administrator. The bot
remembers the channel for the user who added it. Alternatively, send

	/setchannel <channel_id>

# Commands

	/start          Greet and explain how to set up a channel.
	/help           Show help.
	/status         Show what the bot can do.
	/debug          Show the stored configuration.
	/setchannel ID  Use the channel with the given ID.
	/removechannel  Forget the channel.
	/today          Show today's post.
	/done TEXT      Complete the task that best matches TEXT.
	/delete TEXT    Delete the task that best matches TEXT.
	/clear          Delete today's post.

# Modes

In poll mode (the default) voicelog receives updates with getUpdates and holds
a lock in the state directory so only one instance polls at a time. In
webhook mode it registers https://$HOST/telegram as the webhook and serves
updates over HTTP, checking the secret token. Both modes serve the following
HTTP endpoints on -addr:

	/health                          Health checks.
	/debug/                          Debug pages, including logs, with -debug.
	POST /api/transcription/transcribe  Transcription of an uploaded "audio"
	                                 file, if -api-token is set.

# Storage

State (the pointer to each channel's daily post and user settings) is kept in
a JSON file or an SQLite database in the state directory, in PostgreSQL, or in
memory, see -store.
*/
package main

import (
	_ "embed"

	"go.astrophena.name/voicelog/internal/cli"
)

//go:embed doc.go
var doc []byte

func init() { cli.SetDocComment(doc) }
