package capture

import (
	"time"

	"github.com/technosupport/sentinel/internal/clip"
)

type Signal int

const (
	SignalIdle Signal = iota
	SignalTriggered
)

func (s Signal) String() string {
	if s == SignalTriggered {
		return "TRIGGERED"
	}
	return "IDLE"
}

// MotionConfig controls the frame-difference detector.
type MotionConfig struct {
	// Threshold is the fraction of sampled pixels that must change, in [0,1].
	Threshold float64
	// PixelDelta is the luma difference above which a pixel counts as changed.
	PixelDelta int
	// Stride samples every Nth pixel on both axes.
	Stride int
	// MinFrames consecutive over-threshold frames are needed before triggering.
	MinFrames int
	// Cooldown suppresses re-triggering, measured on frame timestamps.
	Cooldown time.Duration
}

// Observation is the detector's verdict for one frame.
type Observation struct {
	Signal Signal
	Score  float64
	// Motion is true when Score exceeded the threshold, even while cooling down.
	Motion bool
}

// MotionDetector compares each frame with its predecessor. Output depends
// only on the frame sequence, never on wall time.
type MotionDetector struct {
	cfg MotionConfig

	prev        []byte
	prevW       int
	prevH       int
	hasPrev     bool
	streak      int
	lastTrigger time.Time
	fired       bool
}

func NewMotionDetector(cfg MotionConfig) *MotionDetector {
	if cfg.Stride <= 0 {
		cfg.Stride = 2
	}
	if cfg.MinFrames <= 0 {
		cfg.MinFrames = 1
	}
	return &MotionDetector{cfg: cfg}
}

func (d *MotionDetector) Observe(f clip.Frame) (Observation, error) {
	luma, err := f.Luma()
	if err != nil {
		return Observation{}, err
	}

	if !d.hasPrev {
		d.remember(luma, f)
		return Observation{Signal: SignalIdle}, nil
	}

	score := Score(d.prev, d.prevW, d.prevH, luma, f.Width, f.Height, d.cfg.Stride, d.cfg.PixelDelta)
	d.remember(luma, f)

	obs := Observation{Signal: SignalIdle, Score: score, Motion: score > d.cfg.Threshold}
	if !obs.Motion {
		d.streak = 0
		return obs, nil
	}

	d.streak++
	if d.streak < d.cfg.MinFrames {
		return obs, nil
	}
	if d.fired && f.Timestamp.Sub(d.lastTrigger) < d.cfg.Cooldown {
		return obs, nil
	}

	d.fired = true
	d.lastTrigger = f.Timestamp
	obs.Signal = SignalTriggered
	return obs, nil
}

func (d *MotionDetector) remember(luma []byte, f clip.Frame) {
	d.prev = luma
	d.prevW = f.Width
	d.prevH = f.Height
	d.hasPrev = true
}

// Score returns the fraction of grid-sampled pixels whose luma changed by
// more than delta. Planes of different dimensions, or planes shorter than
// their dimensions claim, score 1.
func Score(prev []byte, pw, ph int, cur []byte, cw, ch int, stride, delta int) float64 {
	if pw != cw || ph != ch || len(prev) < pw*ph || len(cur) < cw*ch {
		return 1
	}
	if stride <= 0 {
		stride = 1
	}

	var changed, sampled int
	for y := 0; y < ch; y += stride {
		row := y * cw
		for x := 0; x < cw; x += stride {
			diff := int(prev[row+x]) - int(cur[row+x])
			if diff < 0 {
				diff = -diff
			}
			if diff > delta {
				changed++
			}
			sampled++
		}
	}
	if sampled == 0 {
		return 0
	}
	return float64(changed) / float64(sampled)
}
