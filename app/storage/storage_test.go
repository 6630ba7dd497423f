package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"wanx-studio/app/logger"
	"wanx-studio/app/model"
)

type stubFetcher struct {
	mu     sync.Mutex
	bodies map[string][]byte
	status map[string]int
	fail   map[string]error
	calls  []string
}

func newStubFetcher() *stubFetcher {
	return &stubFetcher{
		bodies: map[string][]byte{},
		status: map[string]int{},
		fail:   map[string]error{},
	}
}

func (f *stubFetcher) Fetch(ctx context.Context, url string) ([]byte, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, url)
	if err, ok := f.fail[url]; ok {
		return nil, 0, err
	}
	if st, ok := f.status[url]; ok {
		return nil, st, nil
	}
	return f.bodies[url], 200, nil
}

func (f *stubFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestArtifactStore_DownloadsOnMiss(t *testing.T) {
	root := t.TempDir()
	f := newStubFetcher()
	f.bodies["http://x/a.png"] = []byte("png-bytes")
	s := NewArtifactStore(root, f, logger.NewNop())

	p, err := s.Fetch(context.Background(), "http://x/a.png", "t1", 0)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	want := filepath.Join(root, "t1", "image_1.png")
	if p != want {
		t.Fatalf("expected %s, got %s", want, p)
	}
	got, err := os.ReadFile(p)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, []byte("png-bytes")) {
		t.Fatalf("unexpected content %q", got)
	}
	if names := listDir(t, filepath.Join(root, "t1")); len(names) != 1 {
		t.Fatalf("expected only the image in task dir, got %v", names)
	}
}

func TestArtifactStore_CacheHitSkipsNetwork(t *testing.T) {
	root := t.TempDir()
	f := newStubFetcher()
	s := NewArtifactStore(root, f, logger.NewNop())

	dir := filepath.Join(root, "t1")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "image_2.png"), []byte("cached"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	p, err := s.Fetch(context.Background(), "http://x/other.png", "t1", 1)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if p != filepath.Join(dir, "image_2.png") {
		t.Fatalf("unexpected path %s", p)
	}
	if f.callCount() != 0 {
		t.Fatalf("expected no network access, got %d calls", f.callCount())
	}
}

func TestArtifactStore_NonSuccessStatus(t *testing.T) {
	root := t.TempDir()
	f := newStubFetcher()
	f.status["http://x/missing.png"] = 404
	s := NewArtifactStore(root, f, logger.NewNop())

	_, err := s.Fetch(context.Background(), "http://x/missing.png", "t1", 0)
	var de *DownloadError
	if !errors.As(err, &de) {
		t.Fatalf("expected DownloadError, got %v", err)
	}
	if de.StatusCode != 404 {
		t.Fatalf("expected status 404, got %d", de.StatusCode)
	}
	if _, err := os.Stat(s.PathFor("t1", 0)); !os.IsNotExist(err) {
		t.Fatalf("expected no file after failed download")
	}
	// 目录已创建且没有残留临时文件
	if names := listDir(t, filepath.Join(root, "t1")); len(names) != 0 {
		t.Fatalf("expected empty task dir, got %v", names)
	}
}

func TestArtifactStore_TransportError(t *testing.T) {
	f := newStubFetcher()
	f.fail["http://x/a.png"] = errors.New("connection reset")
	s := NewArtifactStore(t.TempDir(), f, logger.NewNop())

	_, err := s.Fetch(context.Background(), "http://x/a.png", "t1", 0)
	var de *DownloadError
	if !errors.As(err, &de) {
		t.Fatalf("expected DownloadError, got %v", err)
	}
	if de.StatusCode != 0 || de.Err == nil {
		t.Fatalf("expected transport error, got %+v", de)
	}
}

func TestArtifactStore_EmptyBodyIsRetried(t *testing.T) {
	f := newStubFetcher()
	f.bodies["http://x/a.png"] = []byte{}
	s := NewArtifactStore(t.TempDir(), f, logger.NewNop())

	_, err := s.Fetch(context.Background(), "http://x/a.png", "t1", 0)
	var de *DownloadError
	if !errors.As(err, &de) || !errors.Is(err, ErrEmptyBody) {
		t.Fatalf("expected empty body DownloadError, got %v", err)
	}
	if s.Exists(s.PathFor("t1", 0)) {
		t.Fatalf("no file must be written for an empty body")
	}

	// 下次同步重新下载
	f.bodies["http://x/a.png"] = []byte("png")
	p, err := s.Fetch(context.Background(), "http://x/a.png", "t1", 0)
	if err != nil || p != s.PathFor("t1", 0) {
		t.Fatalf("retry failed: %q %v", p, err)
	}
	if f.callCount() != 2 {
		t.Fatalf("expected 2 fetches, got %d", f.callCount())
	}
}

func TestArtifactStore_ZeroByteFileIsRedownloaded(t *testing.T) {
	root := t.TempDir()
	f := newStubFetcher()
	f.bodies["http://x/a.png"] = []byte("png")
	s := NewArtifactStore(root, f, logger.NewNop())

	dir := filepath.Join(root, "t1")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "image_1.png"), nil, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if _, err := s.Fetch(context.Background(), "http://x/a.png", "t1", 0); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if f.callCount() != 1 {
		t.Fatalf("expected zero-byte file to be re-downloaded")
	}
	data, _ := os.ReadFile(filepath.Join(dir, "image_1.png"))
	if string(data) != "png" {
		t.Fatalf("unexpected content %q", data)
	}
}

func TestArtifactStore_RejectsTraversal(t *testing.T) {
	s := NewArtifactStore(t.TempDir(), newStubFetcher(), logger.NewNop())
	for _, id := range []string{"", "..", "../etc", "a/b", `a\b`} {
		if _, err := s.Fetch(context.Background(), "http://x/a.png", id, 0); !errors.Is(err, ErrInvalidTaskID) {
			t.Fatalf("task id %q: expected ErrInvalidTaskID, got %v", id, err)
		}
	}
}

func sampleRecord(id string, created time.Time) *model.TaskRecord {
	return &model.TaskRecord{
		TaskID:    id,
		Prompt:    "cat",
		CreatedAt: created,
		Status:    model.TaskStatusPending,
		Images:    []model.ArtifactRef{},
	}
}

func TestTaskDirectory_LoadMissingReturnsNil(t *testing.T) {
	d := NewTaskDirectory(t.TempDir(), logger.NewNop())
	if rec := d.Load("nope"); rec != nil {
		t.Fatalf("expected nil, got %+v", rec)
	}
}

func TestTaskDirectory_SaveAndLoad(t *testing.T) {
	root := t.TempDir()
	d := NewTaskDirectory(root, logger.NewNop())

	submit := "2025-01-01 10:00:00.000"
	rec := sampleRecord("t1", time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC))
	rec.SubmitTime = &submit
	rec.Images = []model.ArtifactRef{{URL: "http://x/a.png", LocalPath: "p", OrigPrompt: "cat", ActualPrompt: "a cat"}}
	rec.TaskStatus = json.RawMessage(`{"task_status":"PENDING"}`)

	if err := d.Save("t1", rec); err != nil {
		t.Fatalf("save: %v", err)
	}

	got := d.Load("t1")
	if got == nil {
		t.Fatalf("expected record")
	}
	if got.TaskID != "t1" || got.Prompt != "cat" || got.Status != model.TaskStatusPending {
		t.Fatalf("unexpected record: %+v", got)
	}
	if got.SubmitTime == nil || *got.SubmitTime != submit {
		t.Fatalf("submit time lost: %v", got.SubmitTime)
	}
	if len(got.Images) != 1 || got.Images[0].LocalPath != "p" {
		t.Fatalf("images lost: %+v", got.Images)
	}
	if got.RemoteTaskStatus() != "PENDING" {
		t.Fatalf("raw status lost: %s", got.TaskStatus)
	}
	if names := listDir(t, filepath.Join(root, "t1")); len(names) != 1 || names[0] != TaskInfoFile {
		t.Fatalf("expected only %s, got %v", TaskInfoFile, names)
	}
}

func TestTaskDirectory_CorruptRecordIsAbsent(t *testing.T) {
	root := t.TempDir()
	d := NewTaskDirectory(root, logger.NewNop())

	dir := filepath.Join(root, "bad")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, TaskInfoFile), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if rec := d.Load("bad"); rec != nil {
		t.Fatalf("expected nil for corrupt record")
	}
	_, err := d.read("bad")
	var re *StorageReadError
	if !errors.As(err, &re) {
		t.Fatalf("expected StorageReadError, got %v", err)
	}
}

func TestTaskDirectory_ScanAllSkipsCorrupt(t *testing.T) {
	root := t.TempDir()
	d := NewTaskDirectory(root, logger.NewNop())

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		if err := d.Save(id, sampleRecord(id, base.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
	}
	if err := os.MkdirAll(filepath.Join(root, "broken"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "broken", TaskInfoFile), []byte("]["), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	// 没有任务信息的目录和普通文件都会被跳过
	if err := os.MkdirAll(filepath.Join(root, "empty"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "stray.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	recs := d.ScanAll()
	if len(recs) != 3 {
		t.Fatalf("expected 3 records, got %d", len(recs))
	}
	for i, id := range []string{"a", "b", "c"} {
		if recs[i].TaskID != id {
			t.Fatalf("record %d: expected %s, got %s", i, id, recs[i].TaskID)
		}
	}
}

func TestTaskDirectory_ScanAllMissingRoot(t *testing.T) {
	d := NewTaskDirectory(filepath.Join(t.TempDir(), "missing"), logger.NewNop())
	if recs := d.ScanAll(); len(recs) != 0 {
		t.Fatalf("expected no records, got %d", len(recs))
	}
}

func TestTaskDirectory_SaveRejectsInvalidID(t *testing.T) {
	d := NewTaskDirectory(t.TempDir(), logger.NewNop())
	err := d.Save("../x", sampleRecord("x", time.Now()))
	var we *StorageWriteError
	if !errors.As(err, &we) {
		t.Fatalf("expected StorageWriteError, got %v", err)
	}
	if !errors.Is(err, ErrInvalidTaskID) {
		t.Fatalf("expected ErrInvalidTaskID in chain, got %v", err)
	}
}

func TestIsTempFile(t *testing.T) {
	if !IsTempFile(".task-info.json.123.tmp") {
		t.Fatalf("expected temp file")
	}
	if IsTempFile("task-info.json") || IsTempFile("image_1.png") {
		t.Fatalf("unexpected temp file match")
	}
}
