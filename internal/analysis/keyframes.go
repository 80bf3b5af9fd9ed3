package analysis

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/technosupport/sentinel/internal/clip"
)

const keyframeQuality = 85

// SelectKeyframes picks n frames evenly spaced across the clip, index
// i*len/n for i in [0,n). Short clips return every frame.
func SelectKeyframes(frames []clip.Frame, n int) []clip.Frame {
	total := len(frames)
	if n <= 0 || total == 0 {
		return nil
	}
	if n >= total {
		return append([]clip.Frame(nil), frames...)
	}
	out := make([]clip.Frame, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, frames[i*total/n])
	}
	return out
}

// WriteKeyframes encodes frames as JPEG into dir and returns the encoded
// images along with their file paths.
func WriteKeyframes(dir string, frames []clip.Frame) ([][]byte, []string, error) {
	images := make([][]byte, 0, len(frames))
	files := make([]string, 0, len(frames))

	for i, f := range frames {
		data, err := f.JPEG(keyframeQuality)
		if err != nil {
			return nil, nil, err
		}
		path := filepath.Join(dir, fmt.Sprintf("keyframe_%02d.jpg", i))
		if err := os.WriteFile(path, data, 0o640); err != nil {
			return nil, nil, fmt.Errorf("write keyframe: %w", err)
		}
		images = append(images, data)
		files = append(files, path)
	}
	return images, files, nil
}
