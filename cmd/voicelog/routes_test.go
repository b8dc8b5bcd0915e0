// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package main

import (
	"bytes"
	"encoding/json"
	"html"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.astrophena.name/voicelog/cmd/voicelog/internal/telegram"
	"go.astrophena.name/voicelog/internal/testutil"
	"go.astrophena.name/voicelog/internal/web"
)

const (
	apiToken = "api-test-token"
	tgSecret = "webhook-test-secret"
)

func TestWebhook(t *testing.T) {
	t.Parallel()

	update, err := json.Marshal(telegram.Update{UpdateID: 1, Message: command("/start")})
	if err != nil {
		t.Fatal(err)
	}

	cases := map[string]struct {
		secret     string
		body       string
		wantStatus int
		wantReply  string
	}{
		"no secret": {
			body:       string(update),
			wantStatus: http.StatusNotFound,
		},
		"wrong secret": {
			secret:     "guess",
			body:       string(update),
			wantStatus: http.StatusNotFound,
		},
		"malformed update": {
			secret:     tgSecret,
			body:       "{",
			wantStatus: http.StatusBadRequest,
		},
		"handles update": {
			secret:     tgSecret,
			body:       string(update),
			wantStatus: http.StatusOK,
			wantReply:  msgAskChannel,
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			f := newFakeServices(t)
			e := testEngine(t, f, func(e *engine) {
				e.mode = modeWebhook
				e.host = "voicelog.example.com"
				e.tgSecret = tgSecret
			})

			r := httptest.NewRequest(http.MethodPost, "/telegram", strings.NewReader(tc.body))
			if tc.secret != "" {
				r.Header.Set("X-Telegram-Bot-Api-Secret-Token", tc.secret)
			}
			w := httptest.NewRecorder()
			e.mux.ServeHTTP(w, r)
			e.handlers.Wait()

			testutil.AssertEqual(t, w.Code, tc.wantStatus)
			if tc.wantReply == "" {
				testutil.AssertEqual(t, f.called("sendMessage"), 0)
				return
			}
			testutil.AssertEqual(t, f.lastText(testChat), html.EscapeString(tc.wantReply))
		})
	}
}

func TestWebhookNotServedWhenPolling(t *testing.T) {
	t.Parallel()

	e := testEngine(t, newFakeServices(t))

	w := httptest.NewRecorder()
	e.mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/telegram", strings.NewReader("{}")))
	testutil.AssertEqual(t, w.Code, http.StatusNotFound)
}

func TestTranscribeAPI(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		token       string
		noFile      bool
		whisperCode int
		wantStatus  int
		wantText    string
		wantError   string
	}{
		"no token": {
			wantStatus: http.StatusUnauthorized,
		},
		"wrong token": {
			token:      "guess",
			wantStatus: http.StatusUnauthorized,
		},
		"no file": {
			token:      apiToken,
			noFile:     true,
			wantStatus: http.StatusBadRequest,
			wantError:  "no audio file provided",
		},
		"transcribes": {
			token:      apiToken,
			wantStatus: http.StatusOK,
			wantText:   "Купить молоко",
		},
		"transcription fails": {
			token:       apiToken,
			whisperCode: http.StatusTooManyRequests,
			wantStatus:  http.StatusInternalServerError,
			wantError:   "API rate limit exceeded. Please try again later.",
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			f := newFakeServices(t)
			f.set(func(f *fakeServices) { f.whisperCode = tc.whisperCode })
			e := testEngine(t, f, func(e *engine) { e.apiToken = apiToken })

			var body bytes.Buffer
			mw := multipart.NewWriter(&body)
			if !tc.noFile {
				fw, err := mw.CreateFormFile("audio", "voice.ogg")
				if err != nil {
					t.Fatal(err)
				}
				io.WriteString(fw, "OggS fake voice")
			}
			if err := mw.Close(); err != nil {
				t.Fatal(err)
			}

			r := httptest.NewRequest(http.MethodPost, "/api/transcription/transcribe", &body)
			r.Header.Set("Content-Type", mw.FormDataContentType())
			if tc.token != "" {
				r.Header.Set("Authorization", "Bearer "+tc.token)
			}
			w := httptest.NewRecorder()
			e.mux.ServeHTTP(w, r)

			testutil.AssertEqual(t, w.Code, tc.wantStatus)
			switch {
			case tc.wantText != "":
				resp := testutil.UnmarshalJSON[transcribeResponse](t, w.Body.Bytes())
				testutil.AssertEqual(t, resp.Success, true)
				testutil.AssertEqual(t, resp.Transcription, tc.wantText)
				testutil.AssertEqual(t, resp.Timestamp, testNow)
			case tc.wantError != "":
				resp := testutil.UnmarshalJSON[map[string]string](t, w.Body.Bytes())
				if !strings.Contains(resp["error"], tc.wantError) {
					t.Errorf("error must contain %q, got %q", tc.wantError, resp["error"])
				}
			}
		})
	}
}

func TestTranscribeAPIDisabled(t *testing.T) {
	t.Parallel()

	e := testEngine(t, newFakeServices(t))

	for _, path := range []string{"/api/transcription/transcribe", "/api/transcription/health"} {
		w := httptest.NewRecorder()
		e.mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		testutil.AssertEqual(t, w.Code, http.StatusNotFound)
	}
}

func TestTranscribeAPIHealth(t *testing.T) {
	t.Parallel()

	e := testEngine(t, newFakeServices(t), func(e *engine) { e.apiToken = apiToken })

	w := httptest.NewRecorder()
	e.mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/transcription/health", nil))

	testutil.AssertEqual(t, w.Code, http.StatusOK)
	testutil.AssertEqual(t, testutil.UnmarshalJSON[map[string]string](t, w.Body.Bytes()), map[string]string{
		"status":    "ok",
		"service":   "transcription",
		"timestamp": "2025-03-15T10:30:00Z",
	})
}

func TestHealth(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		mode         string
		wantTelegram web.CheckResponse
	}{
		"poll": {
			mode:         modePoll,
			wantTelegram: web.CheckResponse{Status: "not polled yet", OK: true},
		},
		"webhook": {
			mode:         modeWebhook,
			wantTelegram: web.CheckResponse{Status: "webhook", OK: true},
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			e := testEngine(t, newFakeServices(t), func(e *engine) { e.mode = tc.mode })

			w := httptest.NewRecorder()
			e.mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

			testutil.AssertEqual(t, w.Code, http.StatusOK)
			health := testutil.UnmarshalJSON[web.HealthResponse](t, w.Body.Bytes())
			testutil.AssertEqual(t, health.OK, true)
			testutil.AssertEqual(t, health.Checks["store"], web.CheckResponse{Status: "ok", OK: true})
			testutil.AssertEqual(t, health.Checks["telegram"], tc.wantTelegram)
		})
	}
}

func TestDebugLogs(t *testing.T) {
	t.Parallel()

	f := newFakeServices(t)
	e := testEngine(t, f, func(e *engine) { e.debug = true })

	e.handleUpdate(t.Context(), telegram.Update{Message: command("/start")})

	w := httptest.NewRecorder()
	e.mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/debug/logs", nil))
	testutil.AssertEqual(t, w.Code, http.StatusOK)
	if !strings.Contains(w.Body.String(), "user started the bot") {
		t.Errorf("logs must mention the /start command, got:\n%s", w.Body.String())
	}
	if strings.Contains(w.Body.String(), tgToken) {
		t.Error("logs must not contain the Telegram token")
	}
}

func TestDebugAuth(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		apiToken string
		header   string
		want     bool
	}{
		"no token configured": {want: true},
		"no header":           {apiToken: apiToken},
		"wrong token":         {apiToken: apiToken, header: "Bearer guess"},
		"not a bearer token":  {apiToken: apiToken, header: apiToken},
		"valid token":         {apiToken: apiToken, header: "Bearer " + apiToken, want: true},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			e := &engine{apiToken: tc.apiToken}
			r := httptest.NewRequest(http.MethodGet, "/debug/", nil)
			if tc.header != "" {
				r.Header.Set("Authorization", tc.header)
			}
			testutil.AssertEqual(t, e.debugAuth(r), tc.want)
		})
	}
}
