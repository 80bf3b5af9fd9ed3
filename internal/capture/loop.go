package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/technosupport/sentinel/internal/clip"
	"github.com/technosupport/sentinel/internal/metrics"
	"github.com/technosupport/sentinel/internal/platform/logger"
)

// Sink accepts finalized clips. Implementations must return quickly: the
// capture loop calls Submit inline between frames.
type Sink interface {
	Submit(ctx context.Context, c *clip.Clip) error
}

// CaptureError is fatal to the capture loop.
type CaptureError struct {
	Seq uint64
	Op  string
	Err error
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("capture %s (frame %d): %v", e.Op, e.Seq, e.Err)
}

func (e *CaptureError) Unwrap() error { return e.Err }

// flushTimeout bounds the hand-off of the last clip after cancellation.
const flushTimeout = 5 * time.Second

// Loop is the single sequential capture path: read a frame, observe it,
// hand finished clips to the sink.
type Loop struct {
	src  FrameSource
	rec  *Recorder
	sink Sink
	log  *slog.Logger

	frames uint64
	clips  int
}

func NewLoop(src FrameSource, rec *Recorder, sink Sink, log *slog.Logger) *Loop {
	return &Loop{src: src, rec: rec, sink: sink, log: logger.Component(log, "capture")}
}

// Run blocks until the source is exhausted, ctx is cancelled or a frame
// cannot be read. Sink failures are logged and counted; they never stop capture.
func (l *Loop) Run(ctx context.Context) error {
	l.log.Info("capture loop started")
	defer func() {
		l.log.Info("capture loop stopped", "frames", l.frames, "clips", l.clips)
	}()

	var lastSeq uint64
	for {
		f, err := l.src.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				l.flush(ctx)
				return nil
			}
			return &CaptureError{Seq: lastSeq, Op: "read", Err: err}
		}
		lastSeq = f.Seq
		l.frames++

		obs, c, err := l.rec.Observe(f)
		if err != nil {
			return &CaptureError{Seq: f.Seq, Op: "observe", Err: err}
		}
		if obs.Signal == SignalTriggered {
			l.log.Info("motion triggered", "seq", f.Seq, "score", obs.Score, "ts", f.Timestamp)
		}
		if c != nil {
			l.submit(ctx, c)
		}
	}
}

func (l *Loop) flush(ctx context.Context) {
	c := l.rec.Flush()
	if c == nil {
		return
	}
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
	defer cancel()
	l.submit(fctx, c)
}

func (l *Loop) submit(ctx context.Context, c *clip.Clip) {
	l.clips++
	l.log.Info("clip finalized",
		"clip_id", c.ID,
		"frames", len(c.Frames),
		"start", c.Start(),
		"end", c.End(),
	)
	if err := l.sink.Submit(ctx, c); err != nil {
		metrics.RecordSinkError()
		l.log.Error("clip submission failed", "clip_id", c.ID, "error", err)
	}
}
