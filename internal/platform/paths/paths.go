package paths

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	DefaultDataRoot = "/var/lib/sentinel"

	EvidenceSubdir = "evidence"
	TempSubdir     = "tmp"
	SpoolSubdir    = "spool"
	DoneSubdir     = "analyzed"
	ConfigSubdir   = "config"
)

// ErrFreeSpaceUnsupported is returned by FreeBytes on platforms without statfs.
var ErrFreeSpaceUnsupported = errors.New("free space check not supported on this platform")

// ResolveDataRoot returns the absolute path to the sentinel data directory.
func ResolveDataRoot() string {
	root := os.Getenv("SENTINEL_DATA_ROOT")
	if root == "" {
		root = DefaultDataRoot
	}
	return root
}

// ResolveConfigPath returns the configuration file path under the data root
// unless a custom path is given.
func ResolveConfigPath(dataRoot, customPath string) string {
	if customPath != "" {
		return customPath
	}
	return filepath.Join(dataRoot, ConfigSubdir, "sentinel.yaml")
}

func EvidenceDir(dataRoot string) string { return filepath.Join(dataRoot, EvidenceSubdir) }
func TempDir(dataRoot string) string     { return filepath.Join(dataRoot, TempSubdir) }
func SpoolDir(dataRoot string) string    { return filepath.Join(dataRoot, SpoolSubdir) }
func DoneDir(dataRoot string) string     { return filepath.Join(dataRoot, DoneSubdir) }

// EnsureDirs creates the standard data subdirectories if they don't exist.
func EnsureDirs(dataRoot string) error {
	subdirs := []string{
		ConfigSubdir,
		EvidenceSubdir,
		TempSubdir,
		SpoolSubdir,
		DoneSubdir,
	}

	for _, sub := range subdirs {
		path := filepath.Join(dataRoot, sub)
		if err := os.MkdirAll(path, 0750); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", path, err)
		}
	}
	return nil
}

// SafeJoin joins path elements and ensures the result is within the base directory (no traversal).
func SafeJoin(base string, elements ...string) (string, error) {
	for _, el := range elements {
		if filepath.IsAbs(el) || strings.HasPrefix(el, `\\`) {
			return "", fmt.Errorf("path traversal attempt detected: absolute path not allowed in elements: %s", el)
		}
	}
	joined := filepath.Join(append([]string{base}, elements...)...)

	absBase, err := filepath.Abs(base)
	if err != nil {
		return "", err
	}

	absJoined, err := filepath.Abs(joined)
	if err != nil {
		return "", err
	}

	if absJoined != absBase && !strings.HasPrefix(absJoined, absBase+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal attempt detected: %s is outside %s", absJoined, absBase)
	}

	return absJoined, nil
}
