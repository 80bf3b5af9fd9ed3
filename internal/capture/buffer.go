package capture

import (
	"time"

	"github.com/technosupport/sentinel/internal/clip"
)

// RollingBuffer keeps the most recent frames within a time window so a clip
// can include footage from before its trigger.
type RollingBuffer struct {
	window time.Duration
	frames []clip.Frame
}

func NewRollingBuffer(window time.Duration) *RollingBuffer {
	return &RollingBuffer{window: window}
}

// Push appends a frame and evicts frames older than newest-window.
// Frames must arrive in timestamp order.
func (b *RollingBuffer) Push(f clip.Frame) {
	b.frames = append(b.frames, f)

	cutoff := f.Timestamp.Add(-b.window)
	drop := 0
	for drop < len(b.frames) && b.frames[drop].Timestamp.Before(cutoff) {
		drop++
	}
	if drop == 0 {
		return
	}
	// Compact in place so the backing array doesn't grow without bound.
	n := copy(b.frames, b.frames[drop:])
	clear(b.frames[n:])
	b.frames = b.frames[:n]
}

// Snapshot returns a copy of the buffered frames, oldest first.
// Frame payloads are shared, never copied.
func (b *RollingBuffer) Snapshot() []clip.Frame {
	out := make([]clip.Frame, len(b.frames))
	copy(out, b.frames)
	return out
}

func (b *RollingBuffer) Len() int { return len(b.frames) }

func (b *RollingBuffer) Window() time.Duration { return b.window }
