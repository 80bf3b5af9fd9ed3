package housekeeping

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/technosupport/sentinel/internal/clip"
	"github.com/technosupport/sentinel/internal/platform/paths"
)

func setup(t *testing.T) (clip.Store, *Housekeeper) {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, paths.EnsureDirs(root))
	store := clip.NewStore(root)
	return store, New(store, nil)
}

func plant(t *testing.T, store clip.Store, id string) {
	t.Helper()
	artifact, err := store.ArtifactPath(id)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(artifact, []byte("artifact"), 0o600))

	work, err := store.WorkDir(id)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(work, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(work, "kf_00.jpg"), []byte("jpg"), 0o600))
}

func count(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	return len(entries)
}

func TestClean_ExactlyOnce(t *testing.T) {
	store, h := setup(t)
	plant(t, store, "c1")

	removed, err := h.Clean("c1")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = h.Clean("c1")
	require.NoError(t, err)
	assert.False(t, removed)

	assert.Equal(t, 0, count(t, store.EvidenceDir))
	assert.Equal(t, 0, count(t, store.TempDir))
}

func TestClean_MissingFilesIsNotAnError(t *testing.T) {
	_, h := setup(t)
	removed, err := h.Clean("never-written")
	require.NoError(t, err)
	assert.True(t, removed)
}

func TestClean_RejectsTraversal(t *testing.T) {
	store, h := setup(t)
	plant(t, store, "other")

	for _, id := range []string{"../../etc", ".", "..", "x/../other", ""} {
		_, err := h.Clean(id)
		assert.ErrorIs(t, err, clip.ErrInvalidClip, id)
	}
	assert.Equal(t, 1, count(t, store.EvidenceDir))
	assert.Equal(t, 1, count(t, store.TempDir))
}

func TestClean_ReplantedArtifactIsRemoved(t *testing.T) {
	store, h := setup(t)
	plant(t, store, "c1")
	removed, err := h.Clean("c1")
	require.NoError(t, err)
	require.True(t, removed)

	plant(t, store, "c1")
	removed, err = h.Clean("c1")
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Equal(t, 0, count(t, store.EvidenceDir))
	assert.Equal(t, 0, count(t, store.TempDir))
}

func TestAnalyzed_SurvivesRestart(t *testing.T) {
	store, h := setup(t)
	assert.False(t, h.Analyzed("c1"))

	plant(t, store, "c1")
	_, err := h.Clean("c1")
	require.NoError(t, err)
	assert.True(t, h.Analyzed("c1"))

	restarted := New(store, nil)
	assert.True(t, restarted.Analyzed("c1"))
	assert.False(t, restarted.Analyzed("c2"))
	assert.False(t, restarted.Analyzed("../c1"))
}

func TestAnalyzed_MemoryOnlyWithoutDoneDir(t *testing.T) {
	store, _ := setup(t)
	store.DoneDir = ""
	h := New(store, nil)

	_, err := h.Clean("c1")
	require.NoError(t, err)
	assert.True(t, h.Analyzed("c1"))
	assert.False(t, New(store, nil).Analyzed("c1"))
}

func TestSweep_RemovesOnlyOldInactive(t *testing.T) {
	store, h := setup(t)
	plant(t, store, "old")
	plant(t, store, "busy")
	plant(t, store, "fresh")

	past := time.Now().Add(-2 * time.Hour)
	for _, id := range []string{"old", "busy"} {
		a, _ := store.ArtifactPath(id)
		w, _ := store.WorkDir(id)
		require.NoError(t, os.Chtimes(a, past, past))
		require.NoError(t, os.Chtimes(w, past, past))
	}

	h.SetActive(func(id string) bool { return id == "busy" })

	n, err := h.Sweep(time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = os.Stat(filepath.Join(store.EvidenceDir, "old"+clip.Ext))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(store.EvidenceDir, "busy"+clip.Ext))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(store.TempDir, "fresh"))
	assert.NoError(t, err)
}
