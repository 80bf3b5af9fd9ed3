package ingest

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/technosupport/sentinel/internal/clip"
)

type fakeIngester struct {
	mu   sync.Mutex
	ids  []string
	errs map[string]error
}

func (f *fakeIngester) Ingest(_ context.Context, c *clip.Clip) (Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[c.ID]; err != nil {
		return Receipt{}, &IngestionError{Op: "claim", ClipID: c.ID, Err: err}
	}
	f.ids = append(f.ids, c.ID)
	return Receipt{ClipID: c.ID}, nil
}

func (f *fakeIngester) ingested() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ids...)
}

func writeSpooled(t *testing.T, dir, id string) string {
	t.Helper()
	path := filepath.Join(dir, id+clip.Ext)
	require.NoError(t, clip.WriteFile(path, testClip(id, nil)))
	return path
}

func TestSpoolWatcher_Scan(t *testing.T) {
	dir := t.TempDir()
	writeSpooled(t, dir, "b")
	writeSpooled(t, dir, "a")
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".tmp-c.clip-123"), []byte("partial"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600))

	garbage := filepath.Join(dir, "garbage"+clip.Ext)
	require.NoError(t, os.WriteFile(garbage, []byte("not a clip"), 0o600))
	old := time.Now().Add(-time.Minute)
	require.NoError(t, os.Chtimes(garbage, old, old))

	ing := &fakeIngester{}
	w := NewSpoolWatcher(dir, ing, time.Hour, nil)

	assert.Equal(t, 2, w.Scan(context.Background()))
	assert.Equal(t, []string{"a", "b"}, ing.ingested())

	assert.NoFileExists(t, filepath.Join(dir, "a"+clip.Ext))
	assert.NoFileExists(t, filepath.Join(dir, "b"+clip.Ext))
	assert.NoFileExists(t, garbage)
	assert.FileExists(t, garbage+rejectedExt)
	assert.FileExists(t, filepath.Join(dir, ".tmp-c.clip-123"))
	assert.FileExists(t, filepath.Join(dir, "notes.txt"))
}

func TestSpoolWatcher_FreshCorruptFileWaits(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "copying"+clip.Ext)
	require.NoError(t, os.WriteFile(path, []byte("SNT"), 0o600))

	w := NewSpoolWatcher(dir, &fakeIngester{}, time.Hour, nil)
	assert.Equal(t, 0, w.Scan(context.Background()))
	assert.FileExists(t, path)
}

func TestSpoolWatcher_DuplicateRemovedCapacityKept(t *testing.T) {
	dir := t.TempDir()
	dup := writeSpooled(t, dir, "dup")
	busy := writeSpooled(t, dir, "busy")

	ing := &fakeIngester{errs: map[string]error{
		"dup":  ErrDuplicateClip,
		"busy": ErrQueueFull,
	}}
	w := NewSpoolWatcher(dir, ing, time.Hour, nil)

	assert.Equal(t, 0, w.Scan(context.Background()))
	assert.NoFileExists(t, dup)
	assert.FileExists(t, busy)

	ing.mu.Lock()
	delete(ing.errs, "busy")
	ing.mu.Unlock()

	assert.Equal(t, 1, w.Scan(context.Background()))
	assert.NoFileExists(t, busy)
}

func TestSpoolWatcher_RunPicksUpNewFiles(t *testing.T) {
	dir := t.TempDir()
	writeSpooled(t, dir, "before")

	ing := &fakeIngester{}
	w := NewSpoolWatcher(dir, ing, 50*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool { return len(ing.ingested()) == 1 }, 2*time.Second, 10*time.Millisecond)

	after := writeSpooled(t, dir, "after")
	require.Eventually(t, func() bool { return len(ing.ingested()) == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool {
		_, err := os.Stat(after)
		return os.IsNotExist(err)
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("spool watcher did not stop")
	}
	assert.Equal(t, []string{"before", "after"}, ing.ingested())
}
