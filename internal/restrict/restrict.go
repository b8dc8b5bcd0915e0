// © 2024 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package restrict enables programs to utilize the [Landlock] Linux Security
// Module (LSM) for sandboxing on supported systems.
//
// On systems where Landlock is not available, this package will have no effect.
//
// [Landlock]: https://landlock.io
package restrict

import (
	"context"
	"testing"

	"github.com/landlock-lsm/go-landlock/landlock"
)

// DoUnlessTesting applies the provided set of [landlock.Rule] to restrict all
// goroutines within the program, unless the program is running under 'go test'.
//
// If sandboxing fails, a log message will be generated, but the program will
// continue execution.
func DoUnlessTesting(ctx context.Context, rules ...landlock.Rule) {
	if !testing.Testing() {
		Do(ctx, rules...)
	}
}

// StateDir returns rules that allow read-write access to the state directory
// dir and read-only access to the files needed for outgoing TLS connections
// and time zone lookups.
func StateDir(dir string) []landlock.Rule {
	rules := []landlock.Rule{
		landlock.ROFiles("/etc/hosts", "/etc/resolv.conf", "/etc/nsswitch.conf").IgnoreIfMissing(),
		landlock.RODirs("/etc/ssl", "/usr/share/zoneinfo", "/etc/pki").IgnoreIfMissing(),
	}
	if dir != "" {
		rules = append(rules, landlock.RWDirs(dir).WithRefer())
	}
	return rules
}
