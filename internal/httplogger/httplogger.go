// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package httplogger provides a http.RoundTripper middleware that logs HTTP
// requests and responses.
//
// Only the last element of the URL path is logged, so tokens embedded in
// earlier path elements (like the Telegram Bot API does) never reach the log.
package httplogger

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// New creates a new http.RoundTripper that logs information about HTTP requests
// and responses at debug level.
func New(t http.RoundTripper, logger *slog.Logger) http.RoundTripper {
	if t == nil {
		t = http.DefaultTransport
	}
	return &loggingTransport{transport: t, logger: logger}
}

type loggingTransport struct {
	transport http.RoundTripper
	logger    *slog.Logger
}

func (t *loggingTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	if !t.logger.Enabled(r.Context(), slog.LevelDebug) {
		return t.transport.RoundTrip(r)
	}

	start := time.Now()
	resp, err := t.transport.RoundTrip(r)

	attrs := []slog.Attr{
		slog.String("method", r.Method),
		slog.String("host", r.URL.Host),
		slog.String("path", lastElem(r.URL.Path)),
		slog.Duration("duration", time.Since(start)),
	}
	if resp != nil {
		attrs = append(attrs, slog.Int("status", resp.StatusCode))
	}
	if err != nil {
		attrs = append(attrs, slog.String("err", err.Error()))
	}
	t.logger.LogAttrs(context.Background(), slog.LevelDebug, "http request", attrs...)

	return resp, err
}

func lastElem(path string) string {
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[i:]
	}
	return path
}
