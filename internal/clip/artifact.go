package clip

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vmihailenco/msgpack/v5"
)

// Artifact layout: 4 byte magic, 1 byte version, msgpack body.
const (
	artifactMagic   = "SNTL"
	artifactVersion = 1

	// Ext is the file extension used for clip artifacts on disk.
	Ext = ".clip"
)

var ErrBadArtifact = errors.New("bad clip artifact")

func Marshal(c *Clip) ([]byte, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.WriteString(artifactMagic)
	buf.WriteByte(artifactVersion)
	if err := msgpack.NewEncoder(&buf).Encode(c); err != nil {
		return nil, fmt.Errorf("encode clip %s: %w", c.ID, err)
	}
	return buf.Bytes(), nil
}

func Unmarshal(data []byte) (*Clip, error) {
	if len(data) < len(artifactMagic)+1 || string(data[:len(artifactMagic)]) != artifactMagic {
		return nil, fmt.Errorf("%w: missing header", ErrBadArtifact)
	}
	if v := data[len(artifactMagic)]; v != artifactVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrBadArtifact, v)
	}

	var c Clip
	if err := msgpack.Unmarshal(data[len(artifactMagic)+1:], &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadArtifact, err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// WriteFile persists the clip atomically: readers never observe a partial artifact.
func WriteFile(path string, c *Clip) error {
	data, err := Marshal(c)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("create temp artifact: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write artifact: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close artifact: %w", err)
	}
	if err := os.Chmod(tmpName, 0o640); err != nil {
		return fmt.Errorf("chmod artifact: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename artifact: %w", err)
	}
	return nil
}

func ReadFile(path string) (*Clip, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Unmarshal(data)
}
