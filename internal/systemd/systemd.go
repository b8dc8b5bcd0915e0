// © 2024 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package systemd enables applications to signal readiness and update watchdog
// timestamp to systemd.
package systemd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"
)

// State defines a sd-notify protocol state.
// See https://www.freedesktop.org/software/systemd/man/sd_notify.html.
type State string

const (
	// Ready tells the service manager that service startup is
	// finished, or the service finished loading its configuration.
	Ready State = "READY=1"
	// Stopping tells the service manager that the service is beginning its
	// shutdown.
	Stopping State = "STOPPING=1"
	// Watchdog tells the service manager to update the watchdog timestamp.
	Watchdog State = "WATCHDOG=1"
)

// Notifier sends sd_notify messages. The zero value does nothing.
type Notifier struct {
	// Getenv looks up NOTIFY_SOCKET and WATCHDOG_USEC.
	Getenv func(string) string
	// Logger receives notification errors. If nil, errors are dropped.
	Logger *slog.Logger
}

func (n *Notifier) getenv(key string) string {
	if n == nil || n.Getenv == nil {
		return ""
	}
	return n.Getenv(key)
}

// Notify sends a message to systemd using the sd_notify protocol. It does
// nothing when the program doesn't run under systemd.
func (n *Notifier) Notify(state State) {
	addr := &net.UnixAddr{
		Net:  "unixgram",
		Name: n.getenv("NOTIFY_SOCKET"),
	}
	if addr.Name == "" {
		return
	}

	conn, err := net.DialUnix(addr.Net, nil, addr)
	if err != nil {
		n.logError(err)
		return
	}
	defer conn.Close()

	if _, err = conn.Write([]byte(state)); err != nil {
		n.logError(err)
	}
}

func (n *Notifier) logError(err error) {
	if n.Logger != nil {
		n.Logger.Warn("systemd: failed when notifying", "err", err)
	}
}

// WatchdogLoop periodically updates systemd watchdog timestamp until ctx is
// done. It returns immediately if the watchdog is not enabled.
func (n *Notifier) WatchdogLoop(ctx context.Context) {
	usec := n.getenv("WATCHDOG_USEC")
	if usec == "" {
		return
	}
	interval, err := watchdogInterval(usec)
	if err != nil {
		n.logError(err)
		return
	}

	// Notify twice as often as required.
	ticker := time.NewTicker(interval / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			n.Notify(Watchdog)
		case <-ctx.Done():
			return
		}
	}
}

func watchdogInterval(usec string) (time.Duration, error) {
	s, err := strconv.Atoi(usec)
	if err != nil {
		return 0, fmt.Errorf("systemd: error converting WATCHDOG_USEC: %w", err)
	}
	if s <= 0 {
		return 0, errors.New("systemd: error WATCHDOG_USEC must be a positive number")
	}
	return time.Duration(s) * time.Microsecond, nil
}
