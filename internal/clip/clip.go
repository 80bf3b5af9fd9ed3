package clip

import (
	"errors"
	"fmt"
	"regexp"
	"time"
)

// Status is the lifecycle state of a clip.
type Status string

const (
	StatusAssembling     Status = "ASSEMBLING"
	StatusFinalized      Status = "FINALIZED"
	StatusSubmitted      Status = "SUBMITTED"
	StatusAnalyzing      Status = "ANALYZING"
	StatusDecidedAlert   Status = "DECIDED_ALERT"
	StatusDecidedNoAlert Status = "DECIDED_NO_ALERT"
	StatusFailed         Status = "FAILED"
	StatusCleaned        Status = "CLEANED"
)

// Terminal reports whether analysis is over for a clip in this state.
func (s Status) Terminal() bool {
	switch s {
	case StatusDecidedAlert, StatusDecidedNoAlert, StatusFailed, StatusCleaned:
		return true
	}
	return false
}

var ErrInvalidClip = errors.New("invalid clip")

// Clip ids name files and claim keys, so they are restricted to a single
// path element. Assembler ids are uuids.
var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidateID rejects ids that are empty, too long or not a plain name.
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidClip)
	}
	if !idPattern.MatchString(id) {
		return fmt.Errorf("%w: id %q must be 1-64 letters, digits, '-' or '_'", ErrInvalidClip, id)
	}
	return nil
}

// Clip is a bounded, timestamp-ordered run of frames around a motion trigger.
type Clip struct {
	ID        string    `msgpack:"id"`
	TriggerAt time.Time `msgpack:"trigger_at"`
	Location  string    `msgpack:"location,omitempty"`
	Frames    []Frame   `msgpack:"frames"`
	// Audio is an optional audio extract, passed verbatim to the transcriber.
	Audio       []byte `msgpack:"audio,omitempty"`
	AudioFormat string `msgpack:"audio_format,omitempty"`
	Status      Status `msgpack:"-"`
}

func (c *Clip) Start() time.Time {
	if len(c.Frames) == 0 {
		return time.Time{}
	}
	return c.Frames[0].Timestamp
}

func (c *Clip) End() time.Time {
	if len(c.Frames) == 0 {
		return time.Time{}
	}
	return c.Frames[len(c.Frames)-1].Timestamp
}

func (c *Clip) Duration() time.Duration { return c.End().Sub(c.Start()) }

func (c *Clip) HasAudio() bool { return len(c.Audio) > 0 }

// Validate checks the invariants every persisted clip must hold.
func (c *Clip) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: nil clip", ErrInvalidClip)
	}
	if err := ValidateID(c.ID); err != nil {
		return err
	}
	if len(c.Frames) == 0 {
		return fmt.Errorf("%w: %s has no frames", ErrInvalidClip, c.ID)
	}
	for i := 1; i < len(c.Frames); i++ {
		if c.Frames[i].Timestamp.Before(c.Frames[i-1].Timestamp) {
			return fmt.Errorf("%w: %s frame %d out of order", ErrInvalidClip, c.ID, c.Frames[i].Seq)
		}
	}
	return nil
}
