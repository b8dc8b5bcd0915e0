// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.astrophena.name/voicelog/internal/testutil"
	"go.astrophena.name/voicelog/internal/tgmarkup"
)

const testToken = "123456:secret"

// fakeAPI is a fake Bot API server. Handlers get the decoded arguments of a
// call and return its result or an error.
type fakeAPI struct {
	t        *testing.T
	mu       sync.Mutex
	calls    []string
	args     []map[string]any
	handlers map[string]func(args map[string]any) (any, *Error)
	sleeps   []time.Duration
}

func newTestClient(t *testing.T, handlers map[string]func(args map[string]any) (any, *Error)) (*Client, *fakeAPI) {
	t.Helper()
	api := &fakeAPI{t: t, handlers: handlers}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /{token}/{method}", api.serveMethod)
	mux.HandleFunc("GET /file/{token}/{path...}", func(w http.ResponseWriter, r *http.Request) {
		testutil.AssertEqual(t, r.PathValue("token"), "bot"+testToken)
		fmt.Fprintf(w, "contents of %s", r.PathValue("path"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c := &Client{
		Token:      testToken,
		BaseURL:    srv.URL,
		HTTPClient: srv.Client(),
		sleep: func(_ context.Context, d time.Duration) error {
			api.mu.Lock()
			defer api.mu.Unlock()
			api.sleeps = append(api.sleeps, d)
			return nil
		},
	}
	return c, api
}

func (api *fakeAPI) serveMethod(w http.ResponseWriter, r *http.Request) {
	testutil.AssertEqual(api.t, r.PathValue("token"), "bot"+testToken)
	method := r.PathValue("method")

	b, err := io.ReadAll(r.Body)
	if err != nil {
		api.t.Fatal(err)
	}
	args := make(map[string]any)
	if len(b) > 0 {
		args = testutil.UnmarshalJSON[map[string]any](api.t, b)
	}

	api.mu.Lock()
	api.calls = append(api.calls, method)
	api.args = append(api.args, args)
	api.mu.Unlock()

	h, ok := api.handlers[method]
	if !ok {
		writeError(w, &Error{Code: http.StatusNotFound, Description: "Not Found"})
		return
	}
	result, tgErr := h(args)
	if tgErr != nil {
		writeError(w, tgErr)
		return
	}
	json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": result})
}

func (api *fakeAPI) recorded() (calls []string, args []map[string]any, sleeps []time.Duration) {
	api.mu.Lock()
	defer api.mu.Unlock()
	return api.calls, api.args, api.sleeps
}

func writeError(w http.ResponseWriter, e *Error) {
	resp := map[string]any{"ok": false, "error_code": e.Code, "description": e.Description}
	if e.RetryAfter > 0 {
		resp["parameters"] = map[string]any{"retry_after": int(e.RetryAfter.Seconds())}
	}
	w.WriteHeader(e.Code)
	json.NewEncoder(w).Encode(resp)
}

func TestSendMessage(t *testing.T) {
	t.Parallel()

	c, api := newTestClient(t, map[string]func(map[string]any) (any, *Error){
		"sendMessage": func(args map[string]any) (any, *Error) {
			return Message{MessageID: 42}, nil
		},
	})

	id, err := c.SendMessage(t.Context(), -100, "<s>Buy milk</s>")
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, id, int64(42))
	_, args, _ := api.recorded()
	testutil.AssertEqual(t, args[0]["chat_id"], float64(-100))
	testutil.AssertEqual(t, args[0]["parse_mode"], "HTML")
	testutil.AssertEqual(t, args[0]["text"], "<s>Buy milk</s>")
}

func TestSendMarkdown(t *testing.T) {
	t.Parallel()

	c, api := newTestClient(t, map[string]func(map[string]any) (any, *Error){
		"sendMessage": func(args map[string]any) (any, *Error) {
			return Message{MessageID: 1}, nil
		},
	})

	if _, err := c.SendMarkdown(t.Context(), 7, "**Готово**"); err != nil {
		t.Fatal(err)
	}
	_, args, _ := api.recorded()
	testutil.AssertEqual(t, args[0]["text"], "Готово")
	if _, ok := args[0]["parse_mode"]; ok {
		t.Fatal("parse_mode is sent along with entities")
	}
	entities := args[0]["entities"].([]any)
	testutil.AssertEqual(t, entities[0].(map[string]any)["type"], string(tgmarkup.Bold))
}

func TestEditMessageText(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		err     *Error
		wantErr bool
	}{
		"edited":       {},
		"not modified": {err: &Error{Code: 400, Description: "Bad Request: message is not modified: specified new message content and reply markup are exactly the same"}},
		"gone":         {err: &Error{Code: 400, Description: "Bad Request: message to edit not found"}, wantErr: true},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			c, _ := newTestClient(t, map[string]func(map[string]any) (any, *Error){
				"editMessageText": func(args map[string]any) (any, *Error) {
					if tc.err != nil {
						return nil, tc.err
					}
					return true, nil
				},
			})
			err := c.EditMessageText(t.Context(), 1, 2, "text")
			if (err != nil) != tc.wantErr {
				t.Fatalf("EditMessageText() error = %v, want error: %v", err, tc.wantErr)
			}
		})
	}
}

func TestRateLimitRetry(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int32
	c, api := newTestClient(t, map[string]func(map[string]any) (any, *Error){
		"deleteMessage": func(args map[string]any) (any, *Error) {
			if attempts.Add(1) < 3 {
				return nil, &Error{Code: 429, Description: "Too Many Requests: retry after 3", RetryAfter: 3 * time.Second}
			}
			return true, nil
		},
	})

	if err := c.DeleteMessage(t.Context(), 1, 2); err != nil {
		t.Fatal(err)
	}
	calls, _, sleeps := api.recorded()
	testutil.AssertEqual(t, len(calls), 3)
	testutil.AssertEqual(t, sleeps, []time.Duration{3 * time.Second, 3 * time.Second})
}

func TestRateLimitGivesUp(t *testing.T) {
	t.Parallel()

	c, api := newTestClient(t, map[string]func(map[string]any) (any, *Error){
		"deleteMessage": func(args map[string]any) (any, *Error) {
			return nil, &Error{Code: 429, Description: "Too Many Requests: retry after 1", RetryAfter: time.Second}
		},
	})

	err := c.DeleteMessage(t.Context(), 1, 2)
	var tgErr *Error
	if !errors.As(err, &tgErr) {
		t.Fatalf("DeleteMessage() error = %v, want *Error", err)
	}
	testutil.AssertEqual(t, tgErr.Method, "deleteMessage")
	testutil.AssertEqual(t, tgErr.RetryAfter, time.Second)
	calls, _, _ := api.recorded()
	testutil.AssertEqual(t, len(calls), retryLimit)
	testutil.AssertEqual(t, IsTransient(err), true)
}

func TestErrorClassification(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		err           error
		wantPermanent bool
		wantTransient bool
	}{
		"nil":               {nil, false, false},
		"edit not found":    {&Error{Code: 400, Description: "Bad Request: message to edit not found"}, true, false},
		"delete not found":  {&Error{Code: 400, Description: "Bad Request: message to delete not found"}, true, false},
		"can't be edited":   {&Error{Code: 400, Description: "Bad Request: message can't be edited"}, true, false},
		"invalid id":        {&Error{Code: 400, Description: "Bad Request: MESSAGE_ID_INVALID"}, true, false},
		"kicked":            {&Error{Code: 403, Description: "Forbidden: bot is not a member of the channel chat"}, true, false},
		"other bad request": {&Error{Code: 400, Description: "Bad Request: can't parse entities"}, false, false},
		"rate limited":      {&Error{Code: 429, Description: "Too Many Requests"}, false, true},
		"server error":      {&Error{Code: 502, Description: "Bad Gateway"}, false, true},
		"wrapped":           {fmt.Errorf("editing: %w", &Error{Code: 403}), true, false},
		"network":           {errors.New("connection reset by peer"), false, true},
		"canceled":          {context.Canceled, false, false},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			testutil.AssertEqual(t, IsPermanent(tc.err), tc.wantPermanent)
			testutil.AssertEqual(t, IsTransient(tc.err), tc.wantTransient)
		})
	}
}

func TestReadMessageText(t *testing.T) {
	t.Parallel()

	c, api := newTestClient(t, map[string]func(map[string]any) (any, *Error){
		"forwardMessage": func(args map[string]any) (any, *Error) {
			testutil.AssertEqual(t, args["chat_id"], args["from_chat_id"])
			testutil.AssertEqual(t, args["disable_notification"], true)
			return Message{
				MessageID: 99,
				Text:      "✅ Задачи\n • Buy milk\n • a < b",
				Entities: []tgmarkup.Entity{
					{Type: tgmarkup.Strikethrough, Offset: 12, Length: 8},
				},
			}, nil
		},
		"deleteMessage": func(args map[string]any) (any, *Error) {
			testutil.AssertEqual(t, args["message_id"], float64(99))
			return true, nil
		},
	})

	text, err := c.ReadMessageText(t.Context(), -100, 5)
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, text, "✅ Задачи\n • <s>Buy milk</s>\n • a &lt; b")
	calls, _, _ := api.recorded()
	testutil.AssertEqual(t, calls, []string{"forwardMessage", "deleteMessage"})
}

func TestReadMessageTextGone(t *testing.T) {
	t.Parallel()

	c, _ := newTestClient(t, map[string]func(map[string]any) (any, *Error){
		"forwardMessage": func(args map[string]any) (any, *Error) {
			return nil, &Error{Code: 400, Description: "Bad Request: message to forward not found"}
		},
	})
	_, err := c.ReadMessageText(t.Context(), -100, 5)
	testutil.AssertEqual(t, IsPermanent(err), true)
}

func TestDownloadFile(t *testing.T) {
	t.Parallel()

	c, _ := newTestClient(t, map[string]func(map[string]any) (any, *Error){
		"getFile": func(args map[string]any) (any, *Error) {
			return File{FileID: args["file_id"].(string), FilePath: "voice/file_1.oga"}, nil
		},
	})

	f, err := c.GetFile(t.Context(), "abc")
	if err != nil {
		t.Fatal(err)
	}
	b, err := c.DownloadFile(t.Context(), f.FilePath)
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, string(b), "contents of voice/file_1.oga")
}

func TestGetUpdates(t *testing.T) {
	t.Parallel()

	c, api := newTestClient(t, map[string]func(map[string]any) (any, *Error){
		"getUpdates": func(args map[string]any) (any, *Error) {
			return json.RawMessage(`[
				{"update_id": 10, "message": {"message_id": 1, "from": {"id": 5, "first_name": "A"}, "chat": {"id": 5, "type": "private"}, "voice": {"file_id": "f", "file_unique_id": "u", "duration": 3}}},
				{"update_id": 11, "my_chat_member": {"chat": {"id": -100, "type": "channel", "title": "Log"}, "from": {"id": 5, "first_name": "A"}, "date": 1, "old_chat_member": {"status": "left", "user": {"id": 1, "first_name": "bot"}}, "new_chat_member": {"status": "administrator", "user": {"id": 1, "first_name": "bot"}}}}
			]`), nil
		},
	})

	updates, err := c.GetUpdates(t.Context(), 10, 30*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, len(updates), 2)
	testutil.AssertEqual(t, updates[0].Message.Voice.FileID, "f")
	testutil.AssertEqual(t, updates[1].MyChatMember.NewChatMember.Status, StatusAdministrator)
	_, args, _ := api.recorded()
	testutil.AssertEqual(t, args[0]["offset"], float64(10))
	testutil.AssertEqual(t, args[0]["timeout"], float64(30))
}

func TestTokenIsScrubbed(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "oops", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)
	c := &Client{Token: testToken, BaseURL: srv.URL, HTTPClient: srv.Client()}

	_, err := c.GetMe(t.Context())
	if err == nil {
		t.Fatal("GetMe() succeeded")
	}
	if strings.Contains(err.Error(), testToken) {
		t.Fatalf("token leaked into error: %v", err)
	}
	testutil.AssertEqual(t, IsTransient(err), true)
}

func TestCommand(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		text     string
		entities []tgmarkup.Entity
		wantCmd  string
		wantArgs string
		wantOK   bool
	}{
		"plain":     {"/start", []tgmarkup.Entity{{Type: tgmarkup.BotCommand, Length: 6}}, "start", "", true},
		"args":      {"/done  купить молоко ", []tgmarkup.Entity{{Type: tgmarkup.BotCommand, Length: 5}}, "done", "купить молоко", true},
		"username":  {"/Help@voicelog_bot", []tgmarkup.Entity{{Type: tgmarkup.BotCommand, Length: 18}}, "help", "", true},
		"newline":   {"/delete\nmilk", []tgmarkup.Entity{{Type: tgmarkup.BotCommand, Length: 7}}, "delete", "milk", true},
		"not first": {"hi /start", []tgmarkup.Entity{{Type: tgmarkup.BotCommand, Offset: 3, Length: 6}}, "", "", false},
		"no entity": {"/start", nil, "", "", false},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			m := &Message{Text: tc.text, Entities: tc.entities}
			cmd, args, ok := m.Command()
			testutil.AssertEqual(t, cmd, tc.wantCmd)
			testutil.AssertEqual(t, args, tc.wantArgs)
			testutil.AssertEqual(t, ok, tc.wantOK)
		})
	}
}
