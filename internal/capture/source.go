package capture

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/technosupport/sentinel/internal/clip"
)

// FrameSource yields frames in timestamp order. Next returns io.EOF when the
// stream has ended.
type FrameSource interface {
	Next(ctx context.Context) (clip.Frame, error)
}

// DirSource replays a directory of JPEG stills as a stream. Files are played
// in lexical order with timestamps synthesized at a fixed frame interval.
type DirSource struct {
	files    []string
	interval time.Duration
	start    time.Time
	realtime bool

	next     int
	lastEmit time.Time
}

// NewDirSource lists the JPEG files under dir. When realtime is set Next
// paces frames at the frame interval.
func NewDirSource(dir string, interval time.Duration, start time.Time, realtime bool) (*DirSource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read frame dir: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".jpg", ".jpeg":
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	if len(files) == 0 {
		return nil, fmt.Errorf("no jpeg frames in %s", dir)
	}

	return &DirSource{
		files:    files,
		interval: interval,
		start:    start,
		realtime: realtime,
	}, nil
}

func (s *DirSource) Next(ctx context.Context) (clip.Frame, error) {
	if err := ctx.Err(); err != nil {
		return clip.Frame{}, err
	}
	if s.next >= len(s.files) {
		return clip.Frame{}, io.EOF
	}

	if s.realtime && !s.lastEmit.IsZero() {
		wait := time.Until(s.lastEmit.Add(s.interval))
		if wait > 0 {
			t := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				t.Stop()
				return clip.Frame{}, ctx.Err()
			case <-t.C:
			}
		}
	}

	i := s.next
	data, err := os.ReadFile(s.files[i])
	if err != nil {
		return clip.Frame{}, fmt.Errorf("read %s: %w", filepath.Base(s.files[i]), err)
	}
	f, err := clip.JPEGFrame(uint64(i), s.start.Add(time.Duration(i)*s.interval), data)
	if err != nil {
		return clip.Frame{}, fmt.Errorf("decode %s: %w", filepath.Base(s.files[i]), err)
	}

	s.next++
	s.lastEmit = time.Now()
	return f, nil
}

func (s *DirSource) Len() int { return len(s.files) }
