// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package telegram is a small client for the Telegram Bot API.
//
// See https://core.telegram.org/bots/api.
package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.astrophena.name/voicelog/internal/request"
)

// DefaultBaseURL is the default Bot API server.
const DefaultBaseURL = "https://api.telegram.org"

// retryLimit is how many times a rate limited call is attempted.
const retryLimit = 5

// Client calls the Bot API.
type Client struct {
	Token string
	// BaseURL is the Bot API server. Defaults to DefaultBaseURL.
	BaseURL    string
	HTTPClient *http.Client
	Logger     *slog.Logger

	// sleep waits between retries. Replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// Error is an error returned by the Bot API.
type Error struct {
	Method      string
	Code        int
	Description string
	// RetryAfter is set for rate limited calls.
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	return fmt.Sprintf("telegram: %s: %d %s", e.Method, e.Code, e.Description)
}

// IsPermanent reports whether err means the target message or chat is gone
// for good or out of the bot's reach, so retrying won't help.
func IsPermanent(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	switch e.Code {
	case http.StatusForbidden:
		return true
	case http.StatusBadRequest:
		d := strings.ToLower(e.Description)
		for _, s := range []string{"not found", "can't be edited", "can't be deleted", "message_id_invalid"} {
			if strings.Contains(d, s) {
				return true
			}
		}
	}
	return false
}

// IsTransient reports whether err may go away when the call is retried:
// rate limiting, server errors and network failures.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var e *Error
	if !errors.As(err, &e) {
		return true
	}
	return e.Code == http.StatusTooManyRequests || e.Code >= http.StatusInternalServerError
}

type response[R any] struct {
	OK          bool   `json:"ok"`
	Result      R      `json:"result"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
	Parameters  struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

func (c *Client) baseURL() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	return DefaultBaseURL
}

func (c *Client) scrubber() *strings.Replacer {
	if c.Token == "" {
		return nil
	}
	return strings.NewReplacer(c.Token, "[EXPUNGED]")
}

func (c *Client) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.New(slog.DiscardHandler)
}

func (c *Client) wait(ctx context.Context, d time.Duration) error {
	if c.sleep != nil {
		return c.sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// call calls a Bot API method, retrying it while it's rate limited.
func call[R any](ctx context.Context, c *Client, method string, args any) (R, error) {
	var zero R
	for attempt := 1; ; attempt++ {
		resp, err := request.Make[response[R]](ctx, request.Params{
			Method:     http.MethodPost,
			URL:        c.baseURL() + "/bot" + c.Token + "/" + method,
			Body:       args,
			HTTPClient: c.HTTPClient,
			Scrubber:   c.scrubber(),
		})
		if err == nil && !resp.OK {
			err = &Error{Method: method, Code: resp.ErrorCode, Description: resp.Description}
		}
		if err == nil {
			return resp.Result, nil
		}
		err = asError(method, err)

		var tgErr *Error
		if !errors.As(err, &tgErr) || tgErr.Code != http.StatusTooManyRequests || attempt >= retryLimit {
			return zero, err
		}
		c.logger().Warn("rate limited, waiting", "method", method, "wait", tgErr.RetryAfter, "attempt", attempt)
		if err := c.wait(ctx, tgErr.RetryAfter); err != nil {
			return zero, err
		}
	}
}

// asError turns an unexpected HTTP status into an *Error if the body carries
// a Bot API error description.
func asError(method string, err error) error {
	var statusErr *request.StatusError
	if !errors.As(err, &statusErr) {
		return err
	}
	var resp response[json.RawMessage]
	if json.Unmarshal(statusErr.Body, &resp) != nil || resp.Description == "" {
		return err
	}
	code := resp.ErrorCode
	if code == 0 {
		code = statusErr.StatusCode
	}
	return &Error{
		Method:      method,
		Code:        code,
		Description: resp.Description,
		RetryAfter:  time.Duration(resp.Parameters.RetryAfter) * time.Second,
	}
}
