package build

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/starford/quire/internal/testutil"
)

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func startWatch(t *testing.T, root string) *atomic.Int32 {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	var calls atomic.Int32
	go Watch(ctx, root, 50*time.Millisecond, testutil.Logger(), func(context.Context) {
		calls.Add(1)
	})
	time.Sleep(100 * time.Millisecond)
	return &calls
}

func TestWatch_NewFileTriggersRebuild(t *testing.T) {
	root := t.TempDir()
	calls := startWatch(t, root)

	_ = os.WriteFile(filepath.Join(root, "2014-06-12-new.html"), []byte("---\ntitle: New\n---\n"), 0o644)

	eventually(t, 5*time.Second, 25*time.Millisecond, func() bool {
		return calls.Load() > 0
	}, "write did not trigger a rebuild")
}

func TestWatch_BurstIsDebounced(t *testing.T) {
	root := t.TempDir()
	calls := startWatch(t, root)

	for i := range 5 {
		_ = os.WriteFile(filepath.Join(root, "a.html"), []byte{byte('a' + i)}, 0o644)
	}

	eventually(t, 5*time.Second, 25*time.Millisecond, func() bool {
		return calls.Load() > 0
	}, "burst did not trigger a rebuild")
	time.Sleep(200 * time.Millisecond)
	if n := calls.Load(); n != 1 {
		t.Errorf("rebuilds = %d, want 1", n)
	}
}

func TestWatch_NewSubdirWatched(t *testing.T) {
	root := t.TempDir()
	calls := startWatch(t, root)

	sub := filepath.Join(root, "drafts")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	eventually(t, 5*time.Second, 25*time.Millisecond, func() bool {
		return calls.Load() > 0
	}, "mkdir did not trigger a rebuild")
	before := calls.Load()
	time.Sleep(150 * time.Millisecond)

	_ = os.WriteFile(filepath.Join(sub, "post.md"), []byte("# post"), 0o644)
	eventually(t, 5*time.Second, 25*time.Millisecond, func() bool {
		return calls.Load() > before
	}, "write in new subdir did not trigger a rebuild")
}

func TestIsHidden(t *testing.T) {
	root := "/content"
	cases := map[string]bool{
		"/content/a.html":              false,
		"/content/.a.html.swp":         true,
		"/content/.git/HEAD":           true,
		"/content/sub/.quire-tmp-1234": true,
		"/content/sub/post.md":         false,
	}
	for path, want := range cases {
		if got := isHidden(root, path); got != want {
			t.Errorf("isHidden(%q) = %v, want %v", path, got, want)
		}
	}
}
