// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/time/rate"

	"go.astrophena.name/voicelog/cmd/voicelog/internal/classify"
	"go.astrophena.name/voicelog/cmd/voicelog/internal/pointer"
	"go.astrophena.name/voicelog/cmd/voicelog/internal/post"
	"go.astrophena.name/voicelog/cmd/voicelog/internal/telegram"
	"go.astrophena.name/voicelog/cmd/voicelog/internal/transcribe"
	"go.astrophena.name/voicelog/cmd/voicelog/internal/userconfig"
	"go.astrophena.name/voicelog/internal/api/google/gemini"
	"go.astrophena.name/voicelog/internal/cli"
	"go.astrophena.name/voicelog/internal/cli/envflag"
	"go.astrophena.name/voicelog/internal/filelock"
	"go.astrophena.name/voicelog/internal/httplogger"
	"go.astrophena.name/voicelog/internal/idle"
	"go.astrophena.name/voicelog/internal/logger"
	"go.astrophena.name/voicelog/internal/restrict"
	"go.astrophena.name/voicelog/internal/store"
	"go.astrophena.name/voicelog/internal/syncx"
	"go.astrophena.name/voicelog/internal/systemd"
	"go.astrophena.name/voicelog/internal/web"
)

// Update modes.
const (
	modePoll    = "poll"
	modeWebhook = "webhook"
)

// Transcription backends.
const (
	transcriberWhisper = "whisper"
	transcriberGemini  = "gemini"
)

const (
	logLineLimit = 300
	pollTimeout  = 30 * time.Second
	voiceLimit   = 10 // voice messages per minute per user
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("loading .env: %v", err)
	}
	cli.Main(new(engine))
}

func (e *engine) EnvFlags(flags *flag.FlagSet, getenv func(string) string) {
	if e.addr == "" {
		e.addr = "localhost:3000"
	}
	if e.mode == "" {
		e.mode = modePoll
	}
	if e.transcriber == "" {
		e.transcriber = transcriberWhisper
	}
	if e.concurrency == 0 {
		e.concurrency = 4
	}

	envflag.Var(&e.tgToken, "telegram-token", "TELEGRAM_TOKEN", "Telegram Bot API `token`.", flags, getenv)
	envflag.Var(&e.tgSecret, "telegram-secret", "TELEGRAM_SECRET", "Secret `token` Telegram sends with webhook requests.", flags, getenv)
	envflag.Var(&e.mode, "mode", "MODE", "How to receive updates: poll or webhook.", flags, getenv)
	envflag.Var(&e.host, "host", "HOST", "Public `host` name used for the webhook URL.", flags, getenv)
	envflag.Var(&e.addr, "addr", "ADDR", "Listen on `host:port`.", flags, getenv)
	envflag.Var(&e.stateDir, "state-dir", "STATE_DIRECTORY", "Store state in `dir`.", flags, getenv)
	envflag.Var(&e.storeBackend, "store", "STORE", "State store: json, sqlite, postgres or mem. Defaults to postgres if -database-url is set and json otherwise.", flags, getenv)
	envflag.Var(&e.databaseURL, "database-url", "DATABASE_URL", "PostgreSQL `URL`.", flags, getenv)
	envflag.Var(&e.tzName, "tz", "TZ_NAME", "Time `zone` that defines the day of a post. Defaults to the local time zone.", flags, getenv)
	envflag.Var(&e.transcriber, "transcriber", "TRANSCRIBER", "Transcription backend: whisper or gemini.", flags, getenv)
	envflag.Var(&e.whisperKey, "whisper-key", "WHISPER_API_KEY", "Whisper API `key`.", flags, getenv)
	envflag.Var(&e.whisperURL, "whisper-url", "WHISPER_URL", "Whisper API base `URL`.", flags, getenv)
	envflag.Var(&e.geminiKey, "gemini-key", "GEMINI_API_KEY", "Gemini API `key`. Enables classification with Gemini.", flags, getenv)
	envflag.Var(&e.geminiModel, "gemini-model", "GEMINI_MODEL", "Gemini `model`.", flags, getenv)
	envflag.Var(&e.apiToken, "api-token", "API_TOKEN", "Bearer `token` for the transcription API and debug pages. The API is disabled if empty.", flags, getenv)
	envflag.Var(&e.concurrency, "concurrency", "CONCURRENCY", "Handle at most `n` updates at once.", flags, getenv)
	envflag.Var(&e.debug, "debug", "DEBUG", "Serve debug pages at /debug/.", flags, getenv)
	envflag.Var(&e.verbose, "v", "VERBOSE", "Enable debug logging.", flags, getenv)
}

func (e *engine) Run(ctx context.Context) error {
	env := cli.GetEnv(ctx)

	if e.tgToken == "" {
		return fmt.Errorf("%w: TELEGRAM_TOKEN is not set", cli.ErrInvalidArgs)
	}
	switch e.mode {
	case modePoll:
	case modeWebhook:
		if e.host == "" || e.tgSecret == "" {
			return fmt.Errorf("%w: webhook mode requires HOST and TELEGRAM_SECRET", cli.ErrInvalidArgs)
		}
	default:
		return fmt.Errorf("%w: unknown mode %q", cli.ErrInvalidArgs, e.mode)
	}
	if e.stateDir == "" {
		dir, err := defaultStateDir(env.Getenv)
		if err != nil {
			return err
		}
		e.stateDir = dir
	}
	if err := os.MkdirAll(e.stateDir, 0o700); err != nil {
		return err
	}
	e.stderr = env.Stderr

	// Initialize internal state.
	if err := e.init.Get(func() error {
		return e.doInit(ctx)
	}); err != nil {
		return err
	}

	// Used in tests.
	if e.noServerStart {
		return nil
	}

	restrict.DoUnlessTesting(ctx, restrict.StateDir(e.stateDir)...)
	defer e.kv.Close()

	return e.serve(ctx, env.Getenv)
}

func defaultStateDir(getenv func(string) string) (string, error) {
	xdgStateHome := getenv("XDG_STATE_HOME")
	if xdgStateHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		xdgStateHome = filepath.Join(home, ".local", "state")
	}
	return filepath.Join(xdgStateHome, "voicelog"), nil
}

type engine struct {
	init syncx.Lazy[error] // main initialization

	// configuration, read-only after initialization
	addr         string
	apiToken     string
	concurrency  int
	databaseURL  string
	debug        bool
	geminiKey    string
	geminiModel  string
	host         string
	mode         string
	stateDir     string
	storeBackend string
	tgSecret     string
	tgToken      string
	transcriber  string
	tzName       string
	verbose      bool
	whisperKey   string
	whisperURL   string

	// initialized by doInit
	classifier classify.Classifier
	handlers   *syncx.LimitedWaitGroup
	httpc      *http.Client
	idle       *idle.Tracker // only in webhook mode on socket activation
	kv         store.Store
	limiters   *syncx.Protected[map[int64]*rate.Limiter]
	loc        *time.Location
	log        *logger.Logger
	logStream  logger.Streamer
	me         telegram.User
	mux        *http.ServeMux
	pollStatus *syncx.Protected[*pollStatus]
	posts      *post.Manager
	scrubber   *strings.Replacer
	speech     transcribe.Transcriber
	tg         *telegram.Client
	users      *userconfig.Store

	// for tests
	now           func() time.Time
	noServerStart bool
	ready         func(net.Addr) // see web.ListenAndServeConfig.Ready
	stderr        io.Writer
}

type pollStatus struct {
	last time.Time
	err  error
}

func (e *engine) doInit(ctx context.Context) error {
	if e.stderr == nil {
		e.stderr = os.Stderr
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.concurrency <= 0 {
		e.concurrency = 1
	}

	e.logStream = logger.NewStreamer(logLineLimit)
	e.log = logger.New(e.stderr, e.logStream)
	if e.verbose {
		e.log.Level.Set(slog.LevelDebug)
	}

	var scrubPairs []string
	for _, val := range []string{
		e.apiToken,
		e.databaseURL,
		e.geminiKey,
		e.tgSecret,
		e.tgToken,
		e.whisperKey,
	} {
		if val != "" {
			scrubPairs = append(scrubPairs, val, "[EXPUNGED]")
		}
	}
	if len(scrubPairs) > 0 {
		e.scrubber = strings.NewReplacer(scrubPairs...)
	}

	if e.httpc == nil {
		e.httpc = &http.Client{
			// Transcription of long voice messages takes a while.
			Timeout: 60 * time.Second,
		}
	}
	httpc := *e.httpc
	httpc.Transport = httplogger.New(httpc.Transport, e.log.Logger)
	e.httpc = &httpc

	e.loc = time.Local
	if e.tzName != "" {
		loc, err := time.LoadLocation(e.tzName)
		if err != nil {
			return fmt.Errorf("%w: %v", cli.ErrInvalidArgs, err)
		}
		e.loc = loc
	}

	if e.kv == nil {
		kv, err := e.openStore(ctx)
		if err != nil {
			return fmt.Errorf("opening store: %w", err)
		}
		e.kv = kv
	}

	e.tg = &telegram.Client{
		Token:      e.tgToken,
		HTTPClient: e.httpc,
		Logger:     e.log.Logger,
	}
	me, err := e.tg.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("getting bot info: %w", err)
	}
	e.me = me

	e.posts = post.NewManager(post.Options{
		Channel:     e.tg,
		Reader:      e.tg,
		Pointers:    pointer.New(e.kv, e.log.Logger),
		Now:         e.now,
		Location:    e.loc,
		IsPermanent: telegram.IsPermanent,
		Logger:      e.log.Logger,
	})
	e.users = userconfig.New(e.kv, e.log.Logger)

	var geminic *gemini.Client
	if e.geminiKey != "" {
		geminic = &gemini.Client{
			APIKey:     e.geminiKey,
			HTTPClient: e.httpc,
			Scrubber:   e.scrubber,
		}
	}

	switch e.transcriber {
	case transcriberWhisper:
		if e.whisperKey == "" {
			return fmt.Errorf("%w: WHISPER_API_KEY is not set", cli.ErrInvalidArgs)
		}
		e.speech = &transcribe.Whisper{
			APIKey:     e.whisperKey,
			BaseURL:    e.whisperURL,
			HTTPClient: e.httpc,
			Logger:     e.log.Logger,
		}
	case transcriberGemini:
		if geminic == nil {
			return fmt.Errorf("%w: GEMINI_API_KEY is not set", cli.ErrInvalidArgs)
		}
		e.speech = &transcribe.Gemini{Client: geminic, Model: e.geminiModel}
	default:
		return fmt.Errorf("%w: unknown transcriber %q", cli.ErrInvalidArgs, e.transcriber)
	}

	var model classify.Classifier
	if geminic != nil {
		model = &classify.Gemini{Client: geminic, Model: e.geminiModel}
	}
	e.classifier = classify.WithFallback(model, e.log.Logger)

	e.limiters = syncx.Protect(make(map[int64]*rate.Limiter))
	e.handlers = syncx.NewLimitedWaitGroup(e.concurrency)
	e.pollStatus = syncx.Protect(new(pollStatus))

	e.initRoutes()

	return nil
}

func (e *engine) openStore(ctx context.Context) (store.Store, error) {
	backend := e.storeBackend
	if backend == "" {
		backend = "json"
		if e.databaseURL != "" {
			backend = "postgres"
		}
	}
	var dsn string
	switch backend {
	case "json":
		dsn = filepath.Join(e.stateDir, "state.json")
	case "sqlite":
		dsn = filepath.Join(e.stateDir, "state.db")
	case "postgres":
		dsn = e.databaseURL
	}
	return store.Open(ctx, backend, dsn)
}

// serve receives updates until ctx is done.
func (e *engine) serve(ctx context.Context, getenv func(string) string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	notifier := &systemd.Notifier{Getenv: getenv, Logger: e.log.Logger}
	go notifier.WatchdogLoop(ctx)

	cfg := &web.ListenAndServeConfig{
		Addr:       e.addr,
		Mux:        e.mux,
		Logger:     e.log.Logger,
		Debuggable: e.debug,
		DebugAuth:  e.debugAuth,
		Ready: func(addr net.Addr) {
			notifier.Notify(systemd.Ready)
			if e.ready != nil {
				e.ready(addr)
			}
		},
	}

	var wg sync.WaitGroup
	switch e.mode {
	case modePoll:
		lock, err := filelock.Acquire(filepath.Join(e.stateDir, ".poll.lock"))
		if err != nil {
			return fmt.Errorf("acquiring poll lock: %w", err)
		}
		defer lock.Release()
		if err := e.tg.DeleteWebhook(ctx); err != nil {
			return fmt.Errorf("deleting webhook: %w", err)
		}
		e.log.Info("receiving updates by polling")
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.poll(ctx)
		}()
	case modeWebhook:
		if err := e.tg.SetWebhook(ctx, "https://"+e.host+"/telegram", e.tgSecret); err != nil {
			return fmt.Errorf("setting webhook: %w", err)
		}
		e.log.Info("receiving updates by webhook", "host", e.host)
		if e.idle = idle.NewTracker(getenv, cancel); e.idle != nil {
			e.idle.Run(ctx)
			cfg.Middleware = append(cfg.Middleware, e.idle.Handler)
		}
	}

	err := web.ListenAndServe(ctx, cfg)
	notifier.Notify(systemd.Stopping)
	cancel()
	wg.Wait()
	e.handlers.Wait()
	return err
}

func (e *engine) debugAuth(r *http.Request) bool {
	return e.apiToken == "" || e.authorized(r)
}

func (e *engine) authorized(r *http.Request) bool {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	return ok && e.apiToken != "" && subtle.ConstantTimeCompare([]byte(token), []byte(e.apiToken)) == 1
}
