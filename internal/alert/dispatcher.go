package alert

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/technosupport/sentinel/internal/decision"
	"github.com/technosupport/sentinel/internal/metrics"
	"github.com/technosupport/sentinel/internal/platform/logger"
)

// Channel delivers a job over one medium. Send returns a *TransportError
// (possibly joined, one per recipient) when any delivery failed.
type Channel interface {
	Name() string
	Send(ctx context.Context, j Job) error
}

// TransportError is a failed delivery to one recipient.
type TransportError struct {
	Channel   string
	Recipient string
	Err       error
}

func (e *TransportError) Error() string {
	if e.Recipient != "" {
		return fmt.Sprintf("%s to %s: %v", e.Channel, e.Recipient, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Channel, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

type ChannelResult struct {
	Channel string
	Err     error
}

// Report lists the outcome of every channel for one dispatch.
type Report struct {
	Job     Job
	Results []ChannelResult
}

// Failed returns the channels that reported an error.
func (r Report) Failed() []string {
	var out []string
	for _, res := range r.Results {
		if res.Err != nil {
			out = append(out, res.Channel)
		}
	}
	return out
}

// Dispatcher fans an alert out to its channels. Channels run independently:
// one failing or hanging never prevents the others from sending.
type Dispatcher struct {
	channels []Channel
	locator  *Locator
	log      *slog.Logger
	now      func() time.Time
}

func NewDispatcher(locator *Locator, log *slog.Logger, channels ...Channel) *Dispatcher {
	return &Dispatcher{
		channels: channels,
		locator:  locator,
		log:      logger.Component(log, "alert"),
		now:      time.Now,
	}
}

func (d *Dispatcher) Channels() []string {
	names := make([]string, 0, len(d.channels))
	for _, ch := range d.channels {
		names = append(names, ch.Name())
	}
	return names
}

// Dispatch never returns an error; failures are logged, counted and
// reported per channel.
func (d *Dispatcher) Dispatch(ctx context.Context, v decision.Verdict, inc Incident) Report {
	location := inc.Location
	if location == "" && d.locator != nil {
		location = d.locator.Resolve(ctx)
	}
	if location == "" {
		location = FallbackLocation
	}

	job := NewJob(v, inc, location, d.now())
	report := Report{Job: job, Results: make([]ChannelResult, len(d.channels))}

	if len(d.channels) == 0 {
		d.log.Warn("alert raised but no channels are configured", "clip_id", v.ClipID, "severity", v.Severity)
		return report
	}

	var wg sync.WaitGroup
	for i, ch := range d.channels {
		wg.Add(1)
		go func(i int, ch Channel) {
			defer wg.Done()
			err := send(ctx, ch, job)
			report.Results[i] = ChannelResult{Channel: ch.Name(), Err: err}
			if err != nil {
				metrics.RecordDelivery(ch.Name(), "failed")
				d.log.Error("alert delivery failed", "channel", ch.Name(), "clip_id", job.ClipID, "error", err)
				return
			}
			metrics.RecordDelivery(ch.Name(), "sent")
			d.log.Info("alert delivered", "channel", ch.Name(), "clip_id", job.ClipID)
		}(i, ch)
	}
	wg.Wait()
	return report
}

// send turns a panicking channel into a TransportError so the other
// channels and the caller's cleanup still run.
func send(ctx context.Context, ch Channel, j Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &TransportError{Channel: ch.Name(), Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	return ch.Send(ctx, j)
}

// retry calls fn up to limit+1 times, backing off linearly between attempts.
func retry(ctx context.Context, limit int, fn func() error) error {
	var err error
	for i := 0; i <= limit; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i == limit {
			break
		}
		t := time.NewTimer(time.Duration(i+1) * 100 * time.Millisecond)
		select {
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("%w (gave up: %v)", err, ctx.Err())
		case <-t.C:
		}
	}
	return err
}
