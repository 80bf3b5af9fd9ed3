package ingest

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/technosupport/sentinel/internal/clip"
)

type backend struct {
	mu       sync.Mutex
	status   int
	received []*clip.Clip
	fields   []map[string]string
}

func (b *backend) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, ClipsPath, r.URL.Path)
		f, _, err := r.FormFile(FieldClip)
		if !assert.NoError(t, err) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		c, err := clip.Unmarshal(data)
		if !assert.NoError(t, err) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		b.mu.Lock()
		b.received = append(b.received, c)
		b.fields = append(b.fields, map[string]string{
			FieldClipID:    r.FormValue(FieldClipID),
			FieldTriggerAt: r.FormValue(FieldTriggerAt),
			FieldLocation:  r.FormValue(FieldLocation),
		})
		status := b.status
		b.mu.Unlock()

		w.WriteHeader(status)
	}
}

func (b *backend) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.received)
}

func newUploader(t *testing.T, status int, queueSize int) (*Uploader, *backend, string) {
	t.Helper()
	b := &backend{status: status}
	srv := httptest.NewServer(b.handler(t))
	t.Cleanup(srv.Close)

	spool := t.TempDir()
	u := NewUploader(UploaderConfig{
		BackendURL: srv.URL + "/",
		SpoolDir:   spool,
		QueueSize:  queueSize,
		Timeout:    5 * time.Second,
	}, nil)
	return u, b, spool
}

func spooled(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestUploader_Delivers(t *testing.T) {
	u, b, spool := newUploader(t, http.StatusAccepted, 4)
	u.Start(context.Background())

	require.NoError(t, u.Submit(context.Background(), testClip("up-1", []byte("RIFF"))))
	u.Close()

	require.Equal(t, 1, b.count())
	assert.Equal(t, "up-1", b.received[0].ID)
	assert.Equal(t, []byte("RIFF"), b.received[0].Audio)
	assert.Equal(t, "up-1", b.fields[0][FieldClipID])
	assert.Equal(t, "Loading dock", b.fields[0][FieldLocation])
	assert.Equal(t, t0.Add(time.Second).Format(time.RFC3339Nano), b.fields[0][FieldTriggerAt])
	assert.Empty(t, spooled(t, spool))
}

func TestUploader_BackendFailureSpools(t *testing.T) {
	u, b, spool := newUploader(t, http.StatusServiceUnavailable, 4)
	u.Start(context.Background())

	require.NoError(t, u.Submit(context.Background(), testClip("up-2", nil)))
	u.Close()

	assert.Equal(t, 1, b.count())
	require.Equal(t, []string{"up-2" + clip.Ext}, spooled(t, spool))

	c, err := clip.ReadFile(filepath.Join(spool, "up-2"+clip.Ext))
	require.NoError(t, err)
	assert.Equal(t, "up-2", c.ID)
}

func TestUploader_ConflictIsDelivered(t *testing.T) {
	u, b, spool := newUploader(t, http.StatusConflict, 4)
	u.Start(context.Background())

	require.NoError(t, u.Submit(context.Background(), testClip("up-3", nil)))
	u.Close()

	assert.Equal(t, 1, b.count())
	assert.Empty(t, spooled(t, spool))
}

func TestUploader_BadRequestNotSpooled(t *testing.T) {
	u, _, spool := newUploader(t, http.StatusBadRequest, 4)
	u.Start(context.Background())

	require.NoError(t, u.Submit(context.Background(), testClip("up-4", nil)))
	u.Close()

	assert.Empty(t, spooled(t, spool))
}

func TestUploader_UnreachableBackendSpools(t *testing.T) {
	spool := t.TempDir()
	u := NewUploader(UploaderConfig{BackendURL: "http://127.0.0.1:1", SpoolDir: spool, Timeout: time.Second}, nil)
	u.Start(context.Background())

	require.NoError(t, u.Submit(context.Background(), testClip("up-5", nil)))
	u.Close()

	assert.Equal(t, []string{"up-5" + clip.Ext}, spooled(t, spool))
}

func TestUploader_FullQueueSpoolsWithoutBlocking(t *testing.T) {
	u, b, spool := newUploader(t, http.StatusAccepted, 1)

	// No worker yet: the first clip fills the queue, the second overflows.
	require.NoError(t, u.Submit(context.Background(), testClip("q-1", nil)))
	require.NoError(t, u.Submit(context.Background(), testClip("q-2", nil)))
	assert.Equal(t, []string{"q-2" + clip.Ext}, spooled(t, spool))

	u.Close()
	assert.Equal(t, 0, b.count())
	assert.ElementsMatch(t, []string{"q-1" + clip.Ext, "q-2" + clip.Ext}, spooled(t, spool))

	// After Close everything goes to the spool.
	require.NoError(t, u.Submit(context.Background(), testClip("q-3", nil)))
	assert.Len(t, spooled(t, spool), 3)
}

func TestUploader_RejectsInvalidClip(t *testing.T) {
	u, _, spool := newUploader(t, http.StatusAccepted, 1)
	defer u.Close()

	err := u.Submit(context.Background(), &clip.Clip{ID: "x"})
	assert.ErrorIs(t, err, ErrInvalidClip)
	assert.Empty(t, spooled(t, spool))
}
