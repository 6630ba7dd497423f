package filewatcher

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"wanx-studio/app/logger"

	"github.com/fsnotify/fsnotify"
)

func TestIsRelevant(t *testing.T) {
	root := filepath.Join("data", "assets")
	cases := []struct {
		path string
		want bool
	}{
		{filepath.Join(root, "t1"), true},
		{filepath.Join(root, "t1", "task-info.json"), true},
		{filepath.Join(root, "t1", "image_1.png"), true},
		{filepath.Join(root, "t1", "notes.txt"), false},
		{filepath.Join(root, "t1", "sub", "image_1.png"), false},
		{filepath.Join("data", "other", "t1"), false},
	}
	for _, c := range cases {
		if got := isRelevant(root, c.path); got != c.want {
			t.Errorf("isRelevant(%s)=%v, want %v", c.path, got, c.want)
		}
	}
}

func TestHandleEvent_IgnoresTempFiles(t *testing.T) {
	root := t.TempDir()
	var calls atomic.Int32
	w, err := NewAssetsWatcher(root, func() { calls.Add(1) }, logger.NewNop())
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	defer w.watcher.Close()

	w.handleEvent(fsnotify.Event{Name: filepath.Join(root, "t1", ".task-info.json.123.tmp"), Op: fsnotify.Write})
	if w.timer != nil {
		t.Fatalf("temp file must not schedule a notification")
	}
}

func TestAssetsWatcher_NotifiesOnNewTask(t *testing.T) {
	root := filepath.Join(t.TempDir(), "assets")
	changed := make(chan struct{}, 8)
	w, err := NewAssetsWatcher(root, func() { changed <- struct{}{} }, logger.NewNop())
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	w.debounce = 20 * time.Millisecond

	if err := w.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer w.Stop()

	dir := filepath.Join(root, "t1")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "task-info.json"), []byte(`{}`), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case <-changed:
	case <-time.After(5 * time.Second):
		t.Fatalf("expected change notification")
	}
}

func TestAssetsWatcher_StartTwice(t *testing.T) {
	w, err := NewAssetsWatcher(t.TempDir(), func() {}, logger.NewNop())
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := w.Start(); err == nil {
		t.Fatalf("second start must fail")
	}
	if err := w.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
}
