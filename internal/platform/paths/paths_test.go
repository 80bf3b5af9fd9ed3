package paths

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveDataRoot(t *testing.T) {
	t.Setenv("SENTINEL_DATA_ROOT", "")
	assert.Equal(t, DefaultDataRoot, ResolveDataRoot())

	t.Setenv("SENTINEL_DATA_ROOT", "/srv/sentinel")
	assert.Equal(t, "/srv/sentinel", ResolveDataRoot())
}

func TestResolveConfigPath(t *testing.T) {
	assert.Equal(t, filepath.Join("/data", "config", "sentinel.yaml"), ResolveConfigPath("/data", ""))
	assert.Equal(t, "custom.yaml", ResolveConfigPath("/data", "custom.yaml"))
}

func TestSafeJoin(t *testing.T) {
	base := t.TempDir()

	cases := []struct {
		name     string
		elements []string
		valid    bool
	}{
		{"normal", []string{"evidence", "clip.clip"}, true},
		{"parent", []string{"..", "other"}, false},
		{"nested_parent", []string{"evidence", "..", "..", "secrets"}, false},
		{"absolute", []string{"/etc/passwd"}, false},
		{"sibling_prefix", []string{"..", filepath.Base(base) + "-evil", "x"}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := SafeJoin(base, tc.elements...)
			if tc.valid {
				assert.NoError(t, err)
				assert.Contains(t, res, base)
			} else {
				if assert.Error(t, err) {
					assert.Contains(t, err.Error(), "traversal")
				}
			}
		})
	}
}

func TestEnsureDirs(t *testing.T) {
	tmpRoot := filepath.Join(t.TempDir(), "sentinel_data")

	err := EnsureDirs(tmpRoot)
	assert.NoError(t, err)

	subdirs := []string{"config", "evidence", "tmp", "spool", "analyzed"}
	for _, sub := range subdirs {
		_, err := os.Stat(filepath.Join(tmpRoot, sub))
		assert.NoError(t, err, "subdirectory %s should exist", sub)
	}
}

func TestFreeBytes(t *testing.T) {
	free, err := FreeBytes(t.TempDir())
	if err == ErrFreeSpaceUnsupported {
		t.Skip("statfs unavailable")
	}
	assert.NoError(t, err)
	assert.Greater(t, free, uint64(0))
}
