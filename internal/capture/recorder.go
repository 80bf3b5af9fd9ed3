package capture

import (
	"time"

	"github.com/technosupport/sentinel/internal/clip"
	"github.com/technosupport/sentinel/internal/metrics"
)

// RecorderConfig holds the capture-side tuning knobs.
type RecorderConfig struct {
	Motion   MotionConfig
	Pre      time.Duration
	Post     time.Duration
	Location string
}

// Recorder wires the rolling buffer, motion detector and clip assembler for
// a single stream. It is not safe for concurrent use; the capture loop owns it.
type Recorder struct {
	buffer    *RollingBuffer
	detector  *MotionDetector
	assembler *ClipAssembler
	tracker   *clip.Tracker
}

func NewRecorder(cfg RecorderConfig, tracker *clip.Tracker) *Recorder {
	return &Recorder{
		buffer:    NewRollingBuffer(cfg.Pre),
		detector:  NewMotionDetector(cfg.Motion),
		assembler: NewClipAssembler(cfg.Post, cfg.Location),
		tracker:   tracker,
	}
}

// Observe feeds one frame through the pipeline. A non-nil clip is returned
// when a clip finalizes on this frame.
func (r *Recorder) Observe(f clip.Frame) (Observation, *clip.Clip, error) {
	obs, err := r.detector.Observe(f)
	if err != nil {
		return Observation{}, nil, err
	}
	r.buffer.Push(f)

	if r.assembler.Assembling() {
		c := r.assembler.Add(f, obs.Motion)
		if c != nil {
			r.finalized(c, "deadline")
		}
		return obs, c, nil
	}

	if obs.Signal == SignalTriggered {
		id := r.assembler.Start(r.buffer.Snapshot(), f)
		metrics.RecordTrigger()
		r.track(id, clip.StatusAssembling)
	}
	return obs, nil, nil
}

// Flush finalizes an in-progress clip at end of stream.
func (r *Recorder) Flush() *clip.Clip {
	c := r.assembler.Flush()
	if c != nil {
		r.finalized(c, "flush")
	}
	return c
}

func (r *Recorder) finalized(c *clip.Clip, reason string) {
	metrics.RecordClipFinalized(reason, c.Duration().Seconds())
	r.track(c.ID, clip.StatusFinalized)
}

func (r *Recorder) track(id string, s clip.Status) {
	if r.tracker != nil {
		_ = r.tracker.Advance(id, s)
	}
}
