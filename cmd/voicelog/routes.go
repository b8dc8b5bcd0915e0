// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"go.astrophena.name/voicelog/internal/web"
)

// maxAudioSize limits uploads to the transcription API.
const maxAudioSize = 25 << 20

func (e *engine) initRoutes() {
	e.mux = http.NewServeMux()

	if e.mode == modeWebhook {
		e.mux.HandleFunc("POST /telegram", e.handleTelegramWebhook)
	}

	if e.apiToken != "" {
		e.mux.HandleFunc("POST /api/transcription/transcribe", e.handleTranscribe)
		e.mux.HandleFunc("GET /api/transcription/health", func(w http.ResponseWriter, r *http.Request) {
			web.RespondJSON(w, map[string]string{
				"status":    "ok",
				"service":   "transcription",
				"timestamp": e.now().UTC().Format(time.RFC3339),
			})
		})
	}

	health := web.Health(e.mux)
	health.RegisterFunc("store", func(ctx context.Context) (status string, ok bool) {
		if _, err := e.kv.Get(ctx, "health"); err != nil {
			return err.Error(), false
		}
		return "ok", true
	})
	health.RegisterFunc("telegram", func(context.Context) (status string, ok bool) {
		if e.mode != modePoll {
			return "webhook", true
		}
		ok = true
		e.pollStatus.RAccess(func(s *pollStatus) {
			switch {
			case s.err != nil:
				status, ok = s.err.Error(), false
			case s.last.IsZero():
				status = "not polled yet"
			default:
				status = "last polled at " + s.last.Format(time.RFC3339)
			}
		})
		return status, ok
	})

	if e.debug {
		dbg := web.Debugger(e.mux)
		dbg.KV("Bot", "@"+e.me.Username)
		dbg.KV("Mode", e.mode)
		dbg.KV("Time zone", e.loc.String())
		dbg.KVFunc("Users seen", func() any {
			var n int
			e.limiters.RAccess(func(m map[int64]*rate.Limiter) { n = len(m) })
			return n
		})
		dbg.Handle("logs", "Logs", e.logStream)
	}
}

type transcribeResponse struct {
	Success       bool      `json:"success"`
	Transcription string    `json:"transcription"`
	Timestamp     time.Time `json:"timestamp"`
}

func (e *engine) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	if !e.authorized(r) {
		web.RespondJSONError(e.log.Logger, w, web.ErrUnauthorized)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxAudioSize+1<<20)
	f, hdr, err := r.FormFile("audio")
	if err != nil {
		web.RespondJSONError(e.log.Logger, w, fmt.Errorf("%w: no audio file provided", web.ErrBadRequest))
		return
	}
	defer f.Close()
	audio, err := io.ReadAll(io.LimitReader(f, maxAudioSize+1))
	if err != nil {
		web.RespondJSONError(e.log.Logger, w, err)
		return
	}
	if len(audio) > maxAudioSize {
		web.RespondJSONError(e.log.Logger, w, fmt.Errorf("%w: audio file is too large", web.ErrBadRequest))
		return
	}
	e.log.Info("received audio file", "name", hdr.Filename, "size", len(audio))

	text, err := e.speech.Transcribe(r.Context(), audio)
	if err != nil {
		web.RespondJSONError(e.log.Logger, w, err)
		return
	}

	web.RespondJSON(w, transcribeResponse{
		Success:       true,
		Transcription: text,
		Timestamp:     e.now().UTC(),
	})
}
