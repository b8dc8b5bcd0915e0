// © 2024 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package web

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"go.astrophena.name/voicelog/internal/testutil"
)

func TestListenAndServeConfigValidation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	if err := ListenAndServe(ctx, &ListenAndServeConfig{Mux: http.NewServeMux()}); err != errNoAddr {
		t.Fatalf("want %v, got %v", errNoAddr, err)
	}
	if err := ListenAndServe(ctx, &ListenAndServeConfig{Addr: "localhost:0"}); err != errNilMux {
		t.Fatalf("want %v, got %v", errNilMux, err)
	}
}

func TestListenAndServe(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/hello", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "hello")
	})

	var middlewareCalls atomic.Int32
	ready := make(chan net.Addr, 1)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- ListenAndServe(ctx, &ListenAndServeConfig{
			Addr:       "localhost:0",
			Mux:        mux,
			Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
			Debuggable: true,
			DebugAuth:  func(r *http.Request) bool { return r.Header.Get("X-Debug") == "yes" },
			Middleware: []Middleware{func(next http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					middlewareCalls.Add(1)
					next.ServeHTTP(w, r)
				})
			}},
			Ready: func(addr net.Addr) { ready <- addr },
		})
	}()

	var addr net.Addr
	select {
	case addr = <-ready:
	case <-time.After(5 * time.Second):
		t.Fatal("server did not start")
	}
	base := "http://" + addr.String()

	get := func(path string, header http.Header) (int, string) {
		req, err := http.NewRequest(http.MethodGet, base+path, nil)
		if err != nil {
			t.Fatal(err)
		}
		req.Header = header
		res, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		defer res.Body.Close()
		b, err := io.ReadAll(res.Body)
		if err != nil {
			t.Fatal(err)
		}
		return res.StatusCode, string(b)
	}

	code, body := get("/hello", nil)
	testutil.AssertEqual(t, code, http.StatusOK)
	testutil.AssertEqual(t, body, "hello")

	code, _ = get("/health", nil)
	testutil.AssertEqual(t, code, http.StatusOK)

	code, _ = get("/debug/", nil)
	testutil.AssertEqual(t, code, http.StatusNotFound)
	code, _ = get("/debug/", http.Header{"X-Debug": {"yes"}})
	testutil.AssertEqual(t, code, http.StatusOK)

	cancel()
	if err := <-errCh; err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, middlewareCalls.Load(), int32(4))
}
