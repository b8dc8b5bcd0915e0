// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package transcribe

import (
	"bytes"
	"cmp"
	"context"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"go.astrophena.name/voicelog/internal/request"
)

// Whisper defaults.
const (
	DefaultWhisperURL   = "https://foundation-models.api.cloud.ru"
	DefaultWhisperModel = "openai/whisper-large-v3"
	DefaultLanguage     = "ru"

	transcriptionsPath = "/v1/audio/transcriptions"
	temperature        = 0.5
)

// DefaultFallbacks are the endpoints tried when the primary one is not found.
// Relative paths are resolved against the base URL.
var DefaultFallbacks = []string{
	"/v1/audio/transcribe",
	"https://api.cloud.ru/v1/audio/transcriptions",
	"https://cloud.ru/api/v1/audio/transcriptions",
}

// Whisper transcribes audio with an OpenAI-compatible transcription API.
type Whisper struct {
	APIKey string
	// BaseURL defaults to DefaultWhisperURL.
	BaseURL string
	// Model defaults to DefaultWhisperModel.
	Model string
	// Language defaults to DefaultLanguage.
	Language string
	// Fallbacks default to DefaultFallbacks.
	Fallbacks  []string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

var _ Transcriber = (*Whisper)(nil)

type whisperResponse struct {
	Text     string  `json:"text"`
	Language string  `json:"language,omitempty"`
	Duration float64 `json:"duration,omitempty"`
}

// Transcribe implements [Transcriber].
func (w *Whisper) Transcribe(ctx context.Context, audio []byte) (string, error) {
	body, contentType, err := w.form(audio)
	if err != nil {
		return "", wrapError(err)
	}

	text, err := w.post(ctx, w.url(transcriptionsPath), body, contentType)
	if err == nil {
		return text, nil
	}
	if statusCode(err) == http.StatusNotFound {
		fallbacks := w.Fallbacks
		if fallbacks == nil {
			fallbacks = DefaultFallbacks
		}
		for _, endpoint := range fallbacks {
			w.logger().Warn("trying alternative transcription endpoint", "endpoint", endpoint)
			text, altErr := w.post(ctx, w.url(endpoint), body, contentType)
			if altErr == nil {
				return text, nil
			}
			w.logger().Warn("alternative transcription endpoint failed", "endpoint", endpoint, "err", altErr)
		}
	}
	return "", wrapError(err)
}

func (w *Whisper) post(ctx context.Context, url string, body []byte, contentType string) (string, error) {
	var scrubber *strings.Replacer
	if w.APIKey != "" {
		scrubber = strings.NewReplacer(w.APIKey, "[EXPUNGED]")
	}
	resp, err := request.Make[whisperResponse](ctx, request.Params{
		Method: http.MethodPost,
		URL:    url,
		Headers: map[string]string{
			"Authorization": "Bearer " + w.APIKey,
			"Content-Type":  contentType,
		},
		Body:       body,
		HTTPClient: w.HTTPClient,
		Scrubber:   scrubber,
	})
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", ErrEmpty
	}
	w.logger().Debug("transcribed audio", "url", url, "language", resp.Language, "duration", resp.Duration)
	return text, nil
}

func (w *Whisper) form(audio []byte) ([]byte, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fw, err := mw.CreateFormFile("file", "voice.ogg")
	if err != nil {
		return nil, "", err
	}
	if _, err := fw.Write(audio); err != nil {
		return nil, "", err
	}

	fields := [][2]string{
		{"model", cmp.Or(w.Model, DefaultWhisperModel)},
		{"response_format", "json"},
		{"temperature", strconv.FormatFloat(temperature, 'f', -1, 64)},
		{"language", cmp.Or(w.Language, DefaultLanguage)},
	}
	for _, f := range fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return nil, "", err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), mw.FormDataContentType(), nil
}

func (w *Whisper) url(endpoint string) string {
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return endpoint
	}
	return strings.TrimSuffix(cmp.Or(w.BaseURL, DefaultWhisperURL), "/") + endpoint
}

func (w *Whisper) logger() *slog.Logger {
	if w.Logger != nil {
		return w.Logger
	}
	return slog.New(slog.DiscardHandler)
}
