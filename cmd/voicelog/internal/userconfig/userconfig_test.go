// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package userconfig

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"go.astrophena.name/voicelog/internal/store"
	"go.astrophena.name/voicelog/internal/testutil"
)

func TestGetMissing(t *testing.T) {
	t.Parallel()
	c, err := New(store.NewMemStore(), nil).Get(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, c, Config{})
}

func TestGetCorrupt(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	kv := store.NewMemStore()
	if err := kv.Set(ctx, Key(1), []byte("]")); err != nil {
		t.Fatal(err)
	}
	s := New(kv, nil)

	c, err := s.Get(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, c, Config{})

	// A corrupt config is overwritten by the next update.
	if err := s.SetWaiting(ctx, 1, true); err != nil {
		t.Fatal(err)
	}
	c, err = s.Get(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, c, Config{WaitingForChannelID: true})
}

func TestTransitions(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		steps []func(ctx context.Context, s *Store) error
		want  Config
	}{
		"set channel": {
			steps: []func(context.Context, *Store) error{
				func(ctx context.Context, s *Store) error { return s.SetChannelID(ctx, 1, "-100123") },
			},
			want: Config{ChannelID: "-100123"},
		},
		"set channel clears waiting": {
			steps: []func(context.Context, *Store) error{
				func(ctx context.Context, s *Store) error { return s.SetWaiting(ctx, 1, true) },
				func(ctx context.Context, s *Store) error { return s.SetChannelID(ctx, 1, "@mylog") },
			},
			want: Config{ChannelID: "@mylog"},
		},
		"waiting keeps channel": {
			steps: []func(context.Context, *Store) error{
				func(ctx context.Context, s *Store) error { return s.SetChannelID(ctx, 1, "-100123") },
				func(ctx context.Context, s *Store) error { return s.SetWaiting(ctx, 1, true) },
			},
			want: Config{ChannelID: "-100123", WaitingForChannelID: true},
		},
		"remove channel": {
			steps: []func(context.Context, *Store) error{
				func(ctx context.Context, s *Store) error { return s.SetChannelID(ctx, 1, "-100123") },
				func(ctx context.Context, s *Store) error { return s.RemoveChannel(ctx, 1) },
			},
			want: Config{WaitingForChannelID: true},
		},
		"partial update": {
			steps: []func(context.Context, *Store) error{
				func(ctx context.Context, s *Store) error { return s.SetChannelID(ctx, 1, "-100123") },
				func(ctx context.Context, s *Store) error { return s.Set(ctx, 1, Update{}) },
			},
			want: Config{ChannelID: "-100123"},
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			s := New(store.NewMemStore(), nil)
			for _, step := range tc.steps {
				if err := step(ctx, s); err != nil {
					t.Fatal(err)
				}
			}
			got, err := s.Get(ctx, 1)
			if err != nil {
				t.Fatal(err)
			}
			testutil.AssertEqual(t, got, tc.want)

			other, err := s.Get(ctx, 2)
			if err != nil {
				t.Fatal(err)
			}
			testutil.AssertEqual(t, other, Config{})
		})
	}
}

func TestConcurrentUpdates(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, err := store.NewJSONFile(filepath.Join(t.TempDir(), "state.json"))
	if err != nil {
		t.Fatal(err)
	}
	cfg := New(s, nil)

	var wg sync.WaitGroup
	for i := range 10 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			ch := fmt.Sprintf("-100%d", i)
			if err := cfg.Set(ctx, int64(i), Update{ChannelID: &ch}); err != nil {
				t.Error(err)
			}
		}()
		go func() {
			defer wg.Done()
			if err := cfg.SetWaiting(ctx, int64(i), true); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	for i := range 10 {
		c, err := cfg.Get(ctx, int64(i))
		if err != nil {
			t.Fatal(err)
		}
		// Neither of the two updates is lost, whatever their order.
		testutil.AssertEqual(t, c, Config{ChannelID: fmt.Sprintf("-100%d", i), WaitingForChannelID: true})
	}
}

type failingStore struct{ store.Store }

var errBroken = errors.New("store is broken")

func (failingStore) Get(context.Context, string) ([]byte, error) { return nil, errBroken }

func TestGetError(t *testing.T) {
	t.Parallel()
	if _, err := New(failingStore{store.NewMemStore()}, nil).Get(context.Background(), 1); !errors.Is(err, errBroken) {
		t.Fatalf("Get() error = %v, want %v", err, errBroken)
	}
}
