// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package idle stops socket-activated services after a period of inactivity.
//
// Activity is either an HTTP request passing through [Tracker.Handler] or
// background work held with [Tracker.Hold]. The service is never stopped while
// any of them is in flight.
package idle

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"
)

const checkInterval = 30 * time.Second

// Tracker watches for activity and cancels a context once the service has
// been idle for long enough.
type Tracker struct {
	lastActivity atomic.Int64 // Unix nanoseconds
	inFlight     atomic.Int64
	exitIdleTime time.Duration
	cancel       context.CancelFunc
}

// NewTracker returns a new idle tracker that calls cancel when the service
// becomes idle. It returns nil if the functionality is disabled.
//
// It is enabled only when the EXIT_IDLE_TIME environment variable is set to a
// positive duration and the service is socket-activated.
func NewTracker(getenv func(string) string, cancel context.CancelFunc) *Tracker {
	if getenv("FORCE_SOCKET_ACTIVATED") != "1" && getenv("LISTEN_PID") == "" {
		return nil
	}
	exitIdleTime, err := time.ParseDuration(getenv("EXIT_IDLE_TIME"))
	if err != nil || exitIdleTime <= 0 {
		return nil
	}
	t := &Tracker{
		exitIdleTime: exitIdleTime,
		cancel:       cancel,
	}
	t.touch()
	return t
}

func (t *Tracker) touch() { t.lastActivity.Store(time.Now().UnixNano()) }

// Hold marks the start of background work. The returned function marks its
// end and must be called exactly once. A nil Tracker holds nothing.
func (t *Tracker) Hold() (release func()) {
	if t == nil {
		return func() {}
	}
	t.touch()
	t.inFlight.Add(1)
	var released atomic.Bool
	return func() {
		if released.Swap(true) {
			return
		}
		t.touch()
		t.inFlight.Add(-1)
	}
}

// Handler is a [web.Middleware] that counts every request as activity.
func (t *Tracker) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer t.Hold()()
		next.ServeHTTP(w, r)
	})
}

// Run runs the activity monitor in a separate goroutine until ctx is done or
// the service becomes idle.
func (t *Tracker) Run(ctx context.Context) {
	go t.monitor(ctx, checkInterval)
}

func (t *Tracker) idle() bool {
	if t.inFlight.Load() > 0 {
		return false
	}
	return time.Since(time.Unix(0, t.lastActivity.Load())) > t.exitIdleTime
}

func (t *Tracker) monitor(ctx context.Context, tick time.Duration) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if t.idle() {
				t.cancel()
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
