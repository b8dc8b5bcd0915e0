// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package clitest provides utilities for testing command-line applications.
package clitest

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"go.astrophena.name/voicelog/internal/cli"
)

// Case represents a single test case for a command-line application.
type Case[App cli.App] struct {
	// Args are the command-line arguments to pass to the application.
	Args []string
	// Stdin is the optional standard input to pass to the application.
	Stdin io.Reader
	// Env are the environment variables visible to the application. Nothing
	// from the real environment leaks in.
	Env map[string]string
	// WantErr is the expected error to be returned by the application, checked
	// with errors.Is. If nil, the application must succeed.
	WantErr error
	// WantInStdout is the expected substring to be present in the stdout output.
	WantInStdout string
	// WantInStderr is the expected substring to be present in the stderr output.
	WantInStderr string
	// CheckFunc is an optional function to perform additional checks after the
	// application has run successfully.
	CheckFunc func(*testing.T, App)
}

// Run runs the provided test cases against the application returned by setup.
// Every case gets a fresh application and runs in parallel.
func Run[App cli.App](t *testing.T, setup func(*testing.T) App, cases map[string]Case[App]) {
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			app := setup(t)
			stdout, stderr, err := run(t, app, tc)

			switch {
			case tc.WantErr == nil && err != nil:
				t.Fatalf("failed: %v\n\nstderr:\n%s", err, stderr)
			case tc.WantErr != nil && err == nil:
				t.Fatalf("must fail with error: %v", tc.WantErr)
			case tc.WantErr != nil && !errors.Is(err, tc.WantErr):
				t.Fatalf("want error %v, got: %v", tc.WantErr, err)
			}

			if tc.WantInStdout != "" && !strings.Contains(stdout, tc.WantInStdout) {
				t.Errorf("stdout must contain %q, got: %q", tc.WantInStdout, stdout)
			}
			if tc.WantInStderr != "" && !strings.Contains(stderr, tc.WantInStderr) {
				t.Errorf("stderr must contain %q, got: %q", tc.WantInStderr, stderr)
			}

			if tc.CheckFunc != nil && err == nil {
				tc.CheckFunc(t, app)
			}
		})
	}
}

func run[App cli.App](t *testing.T, app App, tc Case[App]) (stdout, stderr string, err error) {
	stdin := tc.Stdin
	if stdin == nil {
		stdin = strings.NewReader("")
	}
	var outBuf, errBuf bytes.Buffer
	env := &cli.Env{
		Args:   tc.Args,
		Getenv: func(name string) string { return tc.Env[name] },
		Stdin:  stdin,
		Stdout: &outBuf,
		Stderr: &errBuf,
	}
	err = cli.Run(cli.WithEnv(t.Context(), env), app)
	return outBuf.String(), errBuf.String(), err
}
