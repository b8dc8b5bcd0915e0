// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package transcribe

import (
	"cmp"
	"context"
	"errors"
	"strings"

	"go.astrophena.name/voicelog/internal/api/google/gemini"
)

// DefaultGeminiModel is the model used by [Gemini] by default.
const DefaultGeminiModel = "gemini-2.5-flash"

const geminiPrompt = `Transcribe this voice message word for word. ` +
	`The speaker most likely speaks Russian. ` +
	`Reply with the transcript only, without any comments. ` +
	`If there is no speech, reply with an empty message.`

// Gemini transcribes audio with a Gemini model.
type Gemini struct {
	Client *gemini.Client
	// Model defaults to DefaultGeminiModel.
	Model string
}

var _ Transcriber = (*Gemini)(nil)

// Transcribe implements [Transcriber].
func (g *Gemini) Transcribe(ctx context.Context, audio []byte) (string, error) {
	zero := 0.0
	resp, err := g.Client.GenerateContent(ctx, cmp.Or(g.Model, DefaultGeminiModel), gemini.GenerateContentParams{
		Contents: []*gemini.Content{{
			Role: "user",
			Parts: []*gemini.Part{
				{Text: geminiPrompt},
				gemini.Blob("audio/ogg", audio),
			},
		}},
		GenerationConfig: &gemini.GenerationConfig{Temperature: &zero},
	})
	if err != nil {
		return "", wrapError(err)
	}
	text, err := resp.Text()
	if errors.Is(err, gemini.ErrNoText) {
		return "", ErrEmpty
	}
	if err != nil {
		return "", wrapError(err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmpty
	}
	return text, nil
}
