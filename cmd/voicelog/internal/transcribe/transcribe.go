// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package transcribe turns voice messages into text.
package transcribe

import (
	"context"
	"errors"
	"net/http"

	"go.astrophena.name/voicelog/internal/request"
)

// Transcriber transcribes audio.
type Transcriber interface {
	// Transcribe returns the text spoken in an OGG/Opus voice message.
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

// Error is a transcription failure with a message fit to be shown to the
// user.
type Error struct {
	// StatusCode is the HTTP status returned by the API, if any.
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Err }

// ErrEmpty is returned when the API recognized no speech.
var ErrEmpty = &Error{Message: "No transcription text received from API."}

var statusMessages = map[int]string{
	http.StatusBadRequest:      "Invalid request or audio format not supported.",
	http.StatusUnauthorized:    "Invalid API key. Please check the transcription API configuration.",
	http.StatusNotFound:        "API endpoint not found. Please check the API configuration.",
	http.StatusTooManyRequests: "API rate limit exceeded. Please try again later.",
}

// wrapError turns err into an *Error.
func wrapError(err error) error {
	var e *Error
	if errors.As(err, &e) || errors.Is(err, context.Canceled) {
		return err
	}
	code := statusCode(err)
	msg, ok := statusMessages[code]
	if !ok {
		msg = "Failed to transcribe audio. Please try again."
	}
	return &Error{StatusCode: code, Message: msg, Err: err}
}

func statusCode(err error) int {
	var statusErr *request.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode
	}
	return 0
}
