// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package main

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.astrophena.name/voicelog/cmd/voicelog/internal/telegram"
	"go.astrophena.name/voicelog/internal/web"
)

const pollRetryDelay = 5 * time.Second

// poll receives updates with getUpdates until ctx is done. Updates are
// handled concurrently; handlers that are running when ctx is done are allowed
// to finish.
func (e *engine) poll(ctx context.Context) {
	handlerCtx := context.WithoutCancel(ctx)
	var offset int64
	for {
		updates, err := e.tg.GetUpdates(ctx, offset, pollTimeout)
		if ctx.Err() != nil {
			return
		}
		e.pollStatus.Access(func(s *pollStatus) {
			s.last, s.err = e.now(), err
		})
		if err != nil {
			e.log.Warn("polling updates failed", "err", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(pollRetryDelay):
			}
			continue
		}
		for _, u := range updates {
			offset = u.UpdateID + 1
			e.handlers.Go(func() { e.handleUpdate(handlerCtx, u) })
		}
	}
}

func (e *engine) handleTelegramWebhook(w http.ResponseWriter, r *http.Request) {
	gotSecret := r.Header.Get("X-Telegram-Bot-Api-Secret-Token")
	if e.tgSecret == "" || subtle.ConstantTimeCompare([]byte(gotSecret), []byte(e.tgSecret)) != 1 {
		web.RespondJSONError(e.log.Logger, w, web.ErrNotFound)
		return
	}

	var u telegram.Update
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		web.RespondJSONError(e.log.Logger, w, fmt.Errorf("%w: %v", web.ErrBadRequest, err))
		return
	}

	// Telegram redelivers updates that aren't acknowledged quickly.
	ctx := context.WithoutCancel(r.Context())
	release := e.idle.Hold()
	e.handlers.Go(func() {
		defer release()
		e.handleUpdate(ctx, u)
	})

	web.RespondJSON(w, map[string]string{"status": "success"})
}
