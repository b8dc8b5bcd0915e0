// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package web

import (
	"context"
	"errors"
	"maps"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go.astrophena.name/voicelog/internal/syncx"
)

// DefaultCheckTimeout limits how long a single health check may run.
const DefaultCheckTimeout = 5 * time.Second

// Health returns the [HealthHandler] registered on mux at /health, creating it
// if necessary.
func Health(mux *http.ServeMux) *HealthHandler {
	h, pat := mux.Handler(&http.Request{URL: &url.URL{Path: "/health"}})
	if hh, ok := h.(*HealthHandler); ok && pat == "/health" {
		return hh
	}
	ret := &HealthHandler{
		checks:  syncx.Protect(make(checksMap)),
		Timeout: DefaultCheckTimeout,
	}
	mux.Handle("/health", ret)
	return ret
}

// HealthHandler is an HTTP handler that runs registered health checks
// concurrently and reports their results.
type HealthHandler struct {
	checks *syncx.Protected[checksMap]

	// Timeout limits every check. A check that runs out of time is reported
	// as failed.
	Timeout time.Duration
}

type checksMap = map[string]HealthFunc

// HealthFunc reports the state of a particular subsystem. It should return
// when ctx is done.
type HealthFunc func(ctx context.Context) (status string, ok bool)

// RegisterFunc registers the health check function by the given name. If the
// health check function with this name already exists, RegisterFunc panics.
//
// Health check function must be safe for concurrent use.
func (h *HealthHandler) RegisterFunc(name string, f HealthFunc) {
	h.checks.Access(func(checks checksMap) {
		if _, dup := checks[name]; dup {
			panic("health: health check function with this name already exists")
		}
		checks[name] = f
	})
}

// HealthResponse represents a response of the /health endpoint.
type HealthResponse struct {
	OK     bool                     `json:"ok"`
	Checks map[string]CheckResponse `json:"checks"`
}

// CheckResponse represents a status of an individual check.
type CheckResponse struct {
	Status string `json:"status"`
	OK     bool   `json:"ok"`
}

// ServeHTTP implements the [http.Handler] interface.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var checks checksMap
	h.checks.RAccess(func(m checksMap) { checks = maps.Clone(m) })

	var (
		mu sync.Mutex
		wg sync.WaitGroup
		hr = &HealthResponse{OK: true, Checks: make(map[string]CheckResponse, len(checks))}
	)
	for name, f := range checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cr := h.run(r.Context(), f)
			mu.Lock()
			defer mu.Unlock()
			hr.Checks[name] = cr
			hr.OK = hr.OK && cr.OK
		}()
	}
	wg.Wait()

	w.Header().Set("Content-Type", "application/json")
	if hr.OK {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusInternalServerError)
	}
	respondJSON(w, hr, true)
}

func (h *HealthHandler) run(ctx context.Context, f HealthFunc) CheckResponse {
	timeout := h.Timeout
	if timeout <= 0 {
		timeout = DefaultCheckTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan CheckResponse, 1)
	go func() {
		status, ok := f(ctx)
		done <- CheckResponse{Status: status, OK: ok}
	}()
	select {
	case cr := <-done:
		return cr
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return CheckResponse{Status: "timed out", OK: false}
		}
		return CheckResponse{Status: ctx.Err().Error(), OK: false}
	}
}
