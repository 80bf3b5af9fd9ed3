package clip

import (
	"path/filepath"

	"github.com/technosupport/sentinel/internal/platform/paths"
)

// Store maps clip ids to their on-disk locations.
type Store struct {
	EvidenceDir string
	TempDir     string
	// DoneDir holds one marker per analyzed clip. Empty disables the record.
	DoneDir string
}

func NewStore(dataRoot string) Store {
	return Store{
		EvidenceDir: paths.EvidenceDir(dataRoot),
		TempDir:     paths.TempDir(dataRoot),
		DoneDir:     paths.DoneDir(dataRoot),
	}
}

// ArtifactPath is where the persisted artifact for id lives.
func (s Store) ArtifactPath(id string) (string, error) {
	if err := checkName(id); err != nil {
		return "", err
	}
	return paths.SafeJoin(s.EvidenceDir, id+Ext)
}

// WorkDir holds files derived from the clip during analysis.
func (s Store) WorkDir(id string) (string, error) {
	if err := checkName(id); err != nil {
		return "", err
	}
	return paths.SafeJoin(s.TempDir, id)
}

// DoneMarker is the file recording that id finished analysis.
func (s Store) DoneMarker(id string) (string, error) {
	if err := checkName(id); err != nil {
		return "", err
	}
	return paths.SafeJoin(s.DoneDir, id)
}

func checkName(id string) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	if filepath.Base(id) != id || id == "." || id == ".." {
		return ErrInvalidClip
	}
	return nil
}
