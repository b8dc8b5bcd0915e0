// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package classify

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.astrophena.name/voicelog/cmd/voicelog/internal/post"
	"go.astrophena.name/voicelog/internal/api/google/gemini"
	"go.astrophena.name/voicelog/internal/testutil"
)

func TestClean(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"купить молоко":                  "Купить молоко",
		"  ну   купить\nмолоко ":         "Ну купить молоко",
		"Короче, купить молоко":          "Купить молоко",
		"купить молоко, в общем":         "Купить молоко",
		"в общем-то надо позвонить маме": "Надо позвонить маме",
		"мм ээ как бы написать отчёт":    "Написать отчёт",
		"um, so, call mom":               "Call mom",
		"also buy soap":                  "Also buy soap",
		"мммолоко":                       "Мммолоко",
		"":                               "",
	}

	for in, want := range cases {
		t.Run(in, func(t *testing.T) {
			t.Parallel()
			testutil.AssertEqual(t, Clean(in), want)
		})
	}
}

func TestHeuristic(t *testing.T) {
	t.Parallel()

	cases := map[string]Analysis{
		"не забыть купить молоко": {IsTask: true, Action: Add, Content: "Не забыть купить молоко", Confidence: 0.5},
		"Need to fix the bike":    {IsTask: true, Action: Add, Content: "Need to fix the bike", Confidence: 0.5},
		"встреча была отличной":   {IsTask: false, Action: Add, Content: "Встреча была отличной", Confidence: 0.5},
		"um":       {Action: Add, Confidence: 0.5},
		"well, so": {Action: Add, Confidence: 0.5},
	}

	for in, want := range cases {
		t.Run(in, func(t *testing.T) {
			t.Parallel()
			testutil.AssertEqual(t, Heuristic(in), want)
		})
	}
}

func TestSanitize(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		in   Analysis
		want Analysis
	}{
		"defaults": {
			in:   Analysis{},
			want: Analysis{Action: Add, Content: "Исходный текст", Confidence: 0.5},
		},
		"unknown action and priority": {
			in:   Analysis{Action: "remind", Content: "позвонить", Priority: "urgent", Confidence: 0.9},
			want: Analysis{Action: Add, Content: "Позвонить", Confidence: 0.9},
		},
		"clamped confidence": {
			in:   Analysis{Action: Note, Content: "x", Confidence: 7},
			want: Analysis{Action: Note, Content: "X", Confidence: 1},
		},
		"negative confidence": {
			in:   Analysis{Action: Idea, Content: "x", Confidence: -1},
			want: Analysis{Action: Idea, Content: "X", Confidence: 0},
		},
		"tags": {
			in:   Analysis{IsTask: true, Action: Add, Content: "a", Tags: []string{"#дом", " ", "семья "}, Priority: post.High, Confidence: 0.8},
			want: Analysis{IsTask: true, Action: Add, Content: "A", Tags: []string{"дом", "семья"}, Priority: post.High, Confidence: 0.8},
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			testutil.AssertEqual(t, sanitize(tc.in, "исходный текст"), tc.want)
		})
	}
}

func TestAnalysisTarget(t *testing.T) {
	t.Parallel()

	cases := map[Action]post.Section{
		Add:      post.Tasks,
		Edit:     post.Tasks,
		Delete:   post.Tasks,
		Complete: post.Tasks,
		Note:     post.Notes,
		Idea:     post.Ideas,
	}
	for action, want := range cases {
		testutil.AssertEqual(t, Analysis{Action: action}.Section(), want)
	}
}

func TestAnalysisItem(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		a    Analysis
		want post.Item
	}{
		"task keeps priority and tags": {
			a:    Analysis{IsTask: true, Action: Add, Content: "Купить молоко", Priority: post.Low, Tags: []string{"покупки"}},
			want: post.Item{Text: "Купить молоко", Priority: post.Low, Tags: []string{"покупки"}},
		},
		"note drops priority and tags": {
			a:    Analysis{Action: Note, Content: "Встреча в 3 часа", Priority: post.High, Tags: []string{"работа"}},
			want: post.Item{Text: "Встреча в 3 часа"},
		},
		"idea drops priority and tags": {
			a:    Analysis{Action: Idea, Content: "Открыть пекарню", Priority: post.Medium, Tags: []string{"бизнес"}},
			want: post.Item{Text: "Открыть пекарню"},
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			testutil.AssertEqual(t, tc.a.Item(), tc.want)
		})
	}
}

func geminiServer(t *testing.T, status int, body string) *gemini.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		params := testutil.UnmarshalJSON[gemini.GenerateContentParams](t, readAll(t, r))
		testutil.AssertEqual(t, params.GenerationConfig.ResponseMimeType, "application/json")
		testutil.AssertEqual(t, params.SystemInstruction.Parts[0].Text, systemPrompt)
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return &gemini.Client{APIKey: "test", BaseURL: srv.URL, HTTPClient: srv.Client()}
}

func TestGemini(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		reply string
		want  Analysis
	}{
		"task": {
			reply: `{"isTask": true, "action": "add", "content": "купить молоко", "priority": "high", "tags": ["покупки"], "confidence": 0.9}`,
			want:  Analysis{IsTask: true, Action: Add, Content: "Купить молоко", Priority: post.High, Tags: []string{"покупки"}, Confidence: 0.9},
		},
		"fenced note with nulls": {
			reply: "```json\n{\"isTask\": false, \"action\": \"note\", \"content\": \"Встреча в 3 часа\", \"priority\": null, \"tags\": null, \"confidence\": 0.8}\n```",
			want:  Analysis{Action: Note, Content: "Встреча в 3 часа", Confidence: 0.8},
		},
		"complete": {
			reply: `{"isTask": true, "action": "complete", "content": "молоко", "confidence": 0.7}`,
			want:  Analysis{IsTask: true, Action: Complete, Content: "Молоко", Confidence: 0.7},
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			body, err := jsonCandidate(tc.reply)
			if err != nil {
				t.Fatal(err)
			}
			g := &Gemini{Client: geminiServer(t, http.StatusOK, body)}
			got, err := g.Analyze(t.Context(), "текст")
			if err != nil {
				t.Fatal(err)
			}
			testutil.AssertEqual(t, got, tc.want)
		})
	}
}

func TestGeminiBadReply(t *testing.T) {
	t.Parallel()

	body, err := jsonCandidate("I think it's a task")
	if err != nil {
		t.Fatal(err)
	}
	g := &Gemini{Client: geminiServer(t, http.StatusOK, body)}
	if _, err := g.Analyze(t.Context(), "купить молоко"); err == nil {
		t.Fatal("Analyze() succeeded on a non-JSON reply")
	}

	// The fallback hides the error.
	got, err := WithFallback(g, nil).Analyze(t.Context(), "купить молоко")
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, got, Heuristic("купить молоко"))
}

func TestGeminiServerError(t *testing.T) {
	t.Parallel()

	g := &Gemini{Client: geminiServer(t, http.StatusInternalServerError, `{"error": {}}`)}
	got, err := WithFallback(g, nil).Analyze(t.Context(), "заметка про встречу")
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, got.Action, Add)
	testutil.AssertEqual(t, got.Confidence, 0.5)
}

type staticClassifier struct {
	a   Analysis
	err error
}

func (c staticClassifier) Analyze(context.Context, string) (Analysis, error) { return c.a, c.err }

func TestWithFallback(t *testing.T) {
	t.Parallel()

	want := Analysis{Action: Idea, Content: "Пекарня", Confidence: 0.7}
	got, err := WithFallback(staticClassifier{a: want}, nil).Analyze(t.Context(), "x")
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, got, want)

	got, err = WithFallback(staticClassifier{err: errors.New("boom")}, nil).Analyze(t.Context(), "купить хлеб")
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, got, Heuristic("купить хлеб"))

	got, err = WithFallback(nil, nil).Analyze(t.Context(), "купить хлеб")
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, got, Heuristic("купить хлеб"))
}
