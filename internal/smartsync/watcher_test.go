package smartsync

import (
	"context"
	"testing"
	"time"

	"apikb/internal/generator"
	"apikb/internal/manifest"
)

func TestWatcherSyncsOnChange(t *testing.T) {
	root := t.TempDir()
	seedProject(t, root)
	s := newTestSyncer(t, root)

	if _, _, err := s.Sync(context.Background()); err != nil {
		t.Fatalf("initial Sync failed: %v", err)
	}

	synced := make(chan *manifest.ProjectKnowledge, 1)
	w, err := NewWatcher(s, WatchConfig{DebounceMs: 50}, func(pk *manifest.ProjectKnowledge, stats *generator.Stats) {
		select {
		case synced <- pk:
		default:
		}
	}, testLogger())
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop() //nolint:errcheck

	if got := s.State(); got != StateWatching {
		t.Errorf("state after Start = %q, want watching", got)
	}

	writeFile(t, root, "users/api.py", `
@app.get("/users/{user_id}")
def get_user(user_id: int):
    ...
`)

	select {
	case pk := <-synced:
		users := pk.Service("users")
		if users == nil || users.Endpoints[0].Path != "/users/{user_id}" {
			t.Errorf("synced manifest not updated: %+v", users)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for watch-triggered sync")
	}
}

func TestWatcherIgnoresEditorNoise(t *testing.T) {
	root := t.TempDir()
	seedProject(t, root)
	s := newTestSyncer(t, root)
	if _, _, err := s.Sync(context.Background()); err != nil {
		t.Fatal(err)
	}

	synced := make(chan struct{}, 1)
	w, err := NewWatcher(s, WatchConfig{DebounceMs: 30}, func(pk *manifest.ProjectKnowledge, stats *generator.Stats) {
		select {
		case synced <- struct{}{}:
		default:
		}
	}, testLogger())
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop() //nolint:errcheck

	writeFile(t, root, "users/api.py~", "backup")
	writeFile(t, root, "users/.api.py.swp", "swap")

	select {
	case <-synced:
		t.Error("editor noise should not trigger a sync")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestIgnoredPath(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/p/users/api.py", false},
		{"/p/users/api.py~", true},
		{"/p/users/.api.py.swp", true},
		{"/p/users/upload.tmp", true},
		{"/p/node_modules/dep/index.js", true},
		{"/p/.git/HEAD", true},
		{"/p/__pycache__/m.pyc", true},
		{"/p/build/out.js", true},
	}
	for _, tt := range tests {
		if got := ignoredPath(tt.path); got != tt.want {
			t.Errorf("ignoredPath(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}
