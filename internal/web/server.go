// © 2024 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"
)

// Middleware wraps an http.Handler.
type Middleware func(http.Handler) http.Handler

// ListenAndServeConfig is used to configure the HTTP server started by
// [ListenAndServe].
//
// All fields of ListenAndServeConfig can't be modified after [ListenAndServe]
// is called.
type ListenAndServeConfig struct {
	// Addr is a network address to listen on (in the form of "host:port").
	Addr string
	// Listener, if set, is used instead of listening on Addr.
	Listener net.Listener
	// Mux is a http.ServeMux to serve.
	Mux *http.ServeMux
	// Logger specifies a logger to use. If nil, slog.Default is used.
	Logger *slog.Logger
	// Debuggable specifies whether to register debug handlers at /debug/.
	Debuggable bool
	// DebugAuth specifies an optional function that's invoked on every request to
	// debug handlers at /debug/ to allow or deny access to them. If not provided,
	// all access is allowed.
	DebugAuth func(r *http.Request) bool
	// Middleware is applied to every request, outermost first.
	Middleware []Middleware
	// Ready, if set, is called once the server accepts connections.
	Ready func(addr net.Addr)
}

var (
	errNoAddr = errors.New("c.Addr is empty")
	errNilMux = errors.New("c.Mux is nil")
)

// ListenAndServe starts the HTTP server based on the provided
// [ListenAndServeConfig] and blocks until ctx is done or the server fails.
func ListenAndServe(ctx context.Context, c *ListenAndServeConfig) error {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Addr == "" && c.Listener == nil {
		return errNoAddr
	}
	if c.Mux == nil {
		return errNilMux
	}

	l := c.Listener
	if l == nil {
		var err error
		l, err = net.Listen("tcp", c.Addr)
		if err != nil {
			return fmt.Errorf("failed to listen: %w", err)
		}
	}
	defer l.Close()
	c.Logger.Info("listening", "addr", l.Addr().String())

	Health(c.Mux)
	if c.Debuggable {
		Debugger(c.Mux)
	}

	var handler http.Handler = c.Mux
	handler = protectDebug(c, handler)
	for i := len(c.Middleware) - 1; i >= 0; i-- {
		handler = c.Middleware[i](handler)
	}

	s := &http.Server{
		ErrorLog:          slog.NewLogLogger(c.Logger.Handler(), slog.LevelError),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	if c.Ready != nil {
		c.Ready(l.Addr())
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		c.Logger.Info("gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	}
}

func protectDebug(c *ListenAndServeConfig, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/debug/") || c.DebugAuth == nil {
			next.ServeHTTP(w, r)
			return
		}
		// If access denied, pretend that debug endpoints don't exist.
		if !c.DebugAuth(r) {
			RespondJSONError(c.Logger, w, ErrNotFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}
