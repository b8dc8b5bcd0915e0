// © 2024 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package systemd

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"go.astrophena.name/voicelog/internal/testutil"
)

func listen(t *testing.T) (*net.UnixConn, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "notify.sock")
	l, err := net.ListenUnixgram("unixgram", &net.UnixAddr{Name: path, Net: "unixgram"})
	if err != nil {
		t.Fatalf("Failed to listen on unixgram socket: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l, path
}

func env(m map[string]string) func(string) string {
	return func(key string) string { return m[key] }
}

func TestNotify(t *testing.T) {
	t.Parallel()

	l, path := listen(t)
	n := &Notifier{Getenv: env(map[string]string{"NOTIFY_SOCKET": path})}
	n.Notify(Ready)

	buf := make([]byte, 512)
	size, _, err := l.ReadFromUnix(buf)
	if err != nil {
		t.Fatalf("Failed to read from unixgram socket: %v", err)
	}
	testutil.AssertEqual(t, string(buf[:size]), string(Ready))
}

func TestNotifyNotUnderSystemd(t *testing.T) {
	t.Parallel()

	var n *Notifier
	n.Notify(Ready)
	(&Notifier{}).WatchdogLoop(context.Background())
}

func TestWatchdogLoop(t *testing.T) {
	t.Parallel()

	l, path := listen(t)
	n := &Notifier{Getenv: env(map[string]string{
		"NOTIFY_SOCKET": path,
		"WATCHDOG_USEC": "250000",
	})}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		n.WatchdogLoop(ctx)
		close(done)
	}()

	buf := make([]byte, 512)
	size, _, err := l.ReadFromUnix(buf)
	if err != nil {
		t.Fatalf("Failed to read from unixgram socket: %v", err)
	}
	testutil.AssertEqual(t, string(buf[:size]), string(Watchdog))

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WatchdogLoop did not stop")
	}
}

func TestWatchdogInterval(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		"valid":    {in: "1000000", want: time.Second},
		"zero":     {in: "0", wantErr: true},
		"negative": {in: "-5", wantErr: true},
		"garbage":  {in: "soon", wantErr: true},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			got, err := watchdogInterval(tc.in)
			if (err != nil) != tc.wantErr {
				t.Fatalf("watchdogInterval(%q) error = %v, wantErr %v", tc.in, err, tc.wantErr)
			}
			testutil.AssertEqual(t, got, tc.want)
		})
	}
}
