package capture

import (
	"time"

	"github.com/google/uuid"

	"github.com/technosupport/sentinel/internal/clip"
)

type assemblerState int

const (
	stateIdle assemblerState = iota
	stateAssembling
)

// ClipAssembler turns a trigger plus the pre-event buffer into a clip,
// collecting frames until the post window closes. There is at most one
// clip in progress; motion while assembling pushes the deadline out.
type ClipAssembler struct {
	post     time.Duration
	location string
	newID    func() string

	state    assemblerState
	current  *clip.Clip
	deadline time.Time
}

func NewClipAssembler(post time.Duration, location string) *ClipAssembler {
	return &ClipAssembler{
		post:     post,
		location: location,
		newID:    uuid.NewString,
	}
}

func (a *ClipAssembler) Assembling() bool { return a.state == stateAssembling }

// Deadline is the timestamp at or after which the current clip finalizes.
func (a *ClipAssembler) Deadline() time.Time { return a.deadline }

// Start opens a clip from a snapshot of the buffer. The snapshot must
// already contain the trigger frame as its last element.
func (a *ClipAssembler) Start(pre []clip.Frame, trigger clip.Frame) string {
	a.current = &clip.Clip{
		ID:        a.newID(),
		TriggerAt: trigger.Timestamp,
		Location:  a.location,
		Frames:    pre,
		Status:    clip.StatusAssembling,
	}
	a.deadline = trigger.Timestamp.Add(a.post)
	a.state = stateAssembling
	return a.current.ID
}

// Add appends a post-trigger frame. It returns the finalized clip once a
// frame at or past the deadline arrives; that frame is part of the clip.
func (a *ClipAssembler) Add(f clip.Frame, motion bool) *clip.Clip {
	if a.state != stateAssembling {
		return nil
	}
	a.current.Frames = append(a.current.Frames, f)

	if motion {
		if ext := f.Timestamp.Add(a.post); ext.After(a.deadline) {
			a.deadline = ext
		}
	}
	if f.Timestamp.Before(a.deadline) {
		return nil
	}
	return a.finalize()
}

// Flush finalizes the clip in progress, if any.
func (a *ClipAssembler) Flush() *clip.Clip {
	if a.state != stateAssembling {
		return nil
	}
	return a.finalize()
}

func (a *ClipAssembler) finalize() *clip.Clip {
	c := a.current
	c.Status = clip.StatusFinalized
	a.current = nil
	a.deadline = time.Time{}
	a.state = stateIdle
	return c
}
