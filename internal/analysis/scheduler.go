package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/technosupport/sentinel/internal/alert"
	"github.com/technosupport/sentinel/internal/clip"
	"github.com/technosupport/sentinel/internal/decision"
	"github.com/technosupport/sentinel/internal/metrics"
	"github.com/technosupport/sentinel/internal/platform/logger"
)

// Job is one accepted clip waiting for analysis.
type Job struct {
	ClipID       string
	ArtifactPath string
	SubmittedAt  time.Time
}

// Outcome is reported once per job after cleanup.
type Outcome struct {
	ClipID  string
	Verdict *decision.Verdict
	Err     error
	Cleaned bool
}

// Dispatcher sends alerts for positive verdicts.
type Dispatcher interface {
	Dispatch(ctx context.Context, v decision.Verdict, inc alert.Incident) alert.Report
}

// Cleaner removes a clip's files once it reaches a terminal state.
type Cleaner interface {
	Clean(clipID string) (bool, error)
}

// History remembers clips whose analysis already finished, beyond the
// lifetime of their claim.
type History interface {
	Analyzed(clipID string) bool
}

// SchedulerConfig defines parameters
type SchedulerConfig struct {
	Workers         int
	QueueSize       int
	Timeout         time.Duration
	RetryLimit      int
	RetryBackoff    time.Duration
	KeyframeCount   int
	DispatchTimeout time.Duration
}

// Deps are the collaborators a Scheduler calls. Transcriber, Dispatcher
// and History may be nil.
type Deps struct {
	Claims      ClaimStore
	Classifier  Classifier
	Transcriber Transcriber
	Engine      *decision.Engine
	Dispatcher  Dispatcher
	Cleaner     Cleaner
	History     History
	Tracker     *clip.Tracker
	Store       clip.Store
	Log         *slog.Logger
}

// Scheduler runs analyses on a fixed pool of workers fed by a bounded
// queue. A clip id is analyzed at most once: Reserve claims it, Enqueue
// hands it to the pool.
type Scheduler struct {
	config SchedulerConfig
	deps   Deps
	log    *slog.Logger

	jobs chan Job
	wg   sync.WaitGroup

	mu       sync.Mutex
	reserved map[string]struct{}
	active   map[string]struct{}
	started  bool
	stopped  bool
	onDone   func(Outcome)
}

func NewScheduler(cfg SchedulerConfig, deps Deps) *Scheduler {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	if cfg.KeyframeCount <= 0 {
		cfg.KeyframeCount = 10
	}
	if cfg.DispatchTimeout <= 0 {
		cfg.DispatchTimeout = 30 * time.Second
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 500 * time.Millisecond
	}
	return &Scheduler{
		config:   cfg,
		deps:     deps,
		log:      logger.Component(deps.Log, "analysis"),
		jobs:     make(chan Job, cfg.QueueSize),
		reserved: make(map[string]struct{}),
		active:   make(map[string]struct{}),
	}
}

// OnDone registers a callback invoked after each job is cleaned up.
// It must be set before Start.
func (s *Scheduler) OnDone(fn func(Outcome)) {
	s.onDone = fn
}

// Reserve claims a clip id. It fails with ErrAlreadyClaimed if the id has
// been seen before.
func (s *Scheduler) Reserve(ctx context.Context, clipID string) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrStopped
	}
	if _, ok := s.reserved[clipID]; ok {
		s.mu.Unlock()
		return ErrAlreadyClaimed
	}
	if _, ok := s.active[clipID]; ok {
		s.mu.Unlock()
		return ErrAlreadyClaimed
	}
	if s.deps.History != nil && s.deps.History.Analyzed(clipID) {
		s.mu.Unlock()
		return ErrAlreadyClaimed
	}
	// Hold the local reservation while asking the shared store so two
	// concurrent callers in this process can't both reach it.
	s.reserved[clipID] = struct{}{}
	s.mu.Unlock()

	ok, err := s.deps.Claims.Claim(ctx, clipID)
	if err != nil || !ok {
		s.mu.Lock()
		delete(s.reserved, clipID)
		s.mu.Unlock()
		if err != nil {
			return fmt.Errorf("claim %s: %w", clipID, err)
		}
		return ErrAlreadyClaimed
	}
	return nil
}

// Release gives back a reservation that was never enqueued.
func (s *Scheduler) Release(ctx context.Context, clipID string) {
	s.mu.Lock()
	_, ok := s.reserved[clipID]
	delete(s.reserved, clipID)
	s.mu.Unlock()

	if !ok {
		return
	}
	if err := s.deps.Claims.Release(ctx, clipID); err != nil {
		s.log.Warn("claim release failed", "clip_id", clipID, "error", err)
	}
}

// Enqueue hands a reserved clip to the worker pool without blocking.
func (s *Scheduler) Enqueue(job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrStopped
	}
	if _, ok := s.reserved[job.ClipID]; !ok {
		return ErrNotReserved
	}

	select {
	case s.jobs <- job:
		delete(s.reserved, job.ClipID)
		s.active[job.ClipID] = struct{}{}
		metrics.SetQueueDepth(len(s.jobs))
		return nil
	default:
		return ErrQueueFull
	}
}

// IsActive reports whether the clip is reserved, queued or running.
func (s *Scheduler) IsActive(clipID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, r := s.reserved[clipID]
	_, a := s.active[clipID]
	return r || a
}

func (s *Scheduler) QueueDepth() int { return len(s.jobs) }

// Start launches the workers.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	for i := 0; i < s.config.Workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}
	s.log.Info("analysis workers started", "workers", s.config.Workers, "queue", s.config.QueueSize)
}

// Stop refuses new work, lets the workers drain the queue and waits for
// them or for ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.stopped {
		s.stopped = true
		close(s.jobs)
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) worker() {
	defer s.wg.Done()
	for job := range s.jobs {
		metrics.SetQueueDepth(len(s.jobs))
		s.process(job)
	}
}

func (s *Scheduler) process(job Job) {
	start := time.Now()
	metrics.AnalysesInFlight.Inc()
	defer metrics.AnalysesInFlight.Dec()

	out := Outcome{ClipID: job.ClipID}
	defer func() {
		out.Cleaned = s.cleanup(job.ClipID)

		s.mu.Lock()
		delete(s.active, job.ClipID)
		s.mu.Unlock()

		label := "failed"
		if out.Verdict != nil {
			label = "no_alert"
			if out.Verdict.IsAlert {
				label = "alert"
			}
		}
		metrics.RecordAnalysis(label, time.Since(start).Seconds())

		if s.onDone != nil {
			s.onDone(out)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), s.config.Timeout)
	defer cancel()

	v, keyframe, err := s.analyze(ctx, job)
	if err != nil {
		out.Err = err
		s.advance(job.ClipID, clip.StatusFailed)
		s.log.Error("analysis failed", "clip_id", job.ClipID, "error", err, "elapsed", time.Since(start))
		return
	}
	out.Verdict = &v

	if v.IsAlert {
		s.advance(job.ClipID, clip.StatusDecidedAlert)
	} else {
		s.advance(job.ClipID, clip.StatusDecidedNoAlert)
	}
	metrics.RecordVerdict(v.IsAlert, v.Trigger())
	s.log.Info("verdict",
		"clip_id", v.ClipID,
		"alert", v.IsAlert,
		"severity", v.Severity,
		"reason", v.Reason,
		"elapsed", time.Since(start),
	)

	if v.IsAlert && s.deps.Dispatcher != nil {
		dctx, dcancel := context.WithTimeout(context.Background(), s.config.DispatchTimeout)
		defer dcancel()
		report := s.deps.Dispatcher.Dispatch(dctx, v, alert.Incident{
			ClipID:         job.ClipID,
			TriggerAt:      keyframe.triggerAt,
			Location:       keyframe.location,
			AttachmentPath: keyframe.path,
		})
		if failed := report.Failed(); len(failed) > 0 {
			s.log.Warn("alert partially delivered", "clip_id", job.ClipID, "failed_channels", failed)
		}
	}
}

// clipContext is what dispatch needs from the analyzed clip.
type clipContext struct {
	triggerAt time.Time
	location  string
	path      string
}

// analyze produces a verdict or an error; never a partial verdict.
func (s *Scheduler) analyze(ctx context.Context, job Job) (decision.Verdict, clipContext, error) {
	s.advance(job.ClipID, clip.StatusAnalyzing)

	c, err := clip.ReadFile(job.ArtifactPath)
	if err != nil {
		return decision.Verdict{}, clipContext{}, fmt.Errorf("load artifact: %w", err)
	}
	cc := clipContext{triggerAt: c.TriggerAt, location: c.Location}

	work, err := s.deps.Store.WorkDir(job.ClipID)
	if err != nil {
		return decision.Verdict{}, cc, err
	}
	if err := os.MkdirAll(work, 0o750); err != nil {
		return decision.Verdict{}, cc, fmt.Errorf("create work dir: %w", err)
	}

	images, files, err := WriteKeyframes(work, SelectKeyframes(c.Frames, s.config.KeyframeCount))
	if err != nil {
		return decision.Verdict{}, cc, fmt.Errorf("keyframes: %w", err)
	}
	if len(files) > 0 {
		cc.path = files[len(files)/2]
	}

	transcript := s.transcribe(ctx, c, work)

	res, err := s.classify(ctx, images, transcript)
	if err != nil {
		return decision.Verdict{}, cc, err
	}
	if err := ctx.Err(); err != nil {
		return decision.Verdict{}, cc, fmt.Errorf("analysis deadline: %w", err)
	}
	res.Transcript = transcript

	return s.deps.Engine.Decide(job.ClipID, res), cc, nil
}

func (s *Scheduler) transcribe(ctx context.Context, c *clip.Clip, work string) string {
	if !c.HasAudio() || s.deps.Transcriber == nil {
		return ""
	}
	name := "audio"
	if c.AudioFormat != "" {
		name += "." + c.AudioFormat
	}
	path := filepath.Join(work, filepath.Base(name))
	if err := os.WriteFile(path, c.Audio, 0o640); err != nil {
		s.log.Warn("audio extract failed", "clip_id", c.ID, "error", err)
		return ""
	}
	text, err := s.deps.Transcriber.Transcribe(ctx, path)
	if err != nil {
		s.log.Warn("transcription failed, continuing without transcript", "clip_id", c.ID, "error", err)
		return ""
	}
	return text
}

// classify retries classifier failures with exponential backoff until the
// retry limit or the job deadline.
func (s *Scheduler) classify(ctx context.Context, images [][]byte, transcript string) (decision.AnalysisResult, error) {
	var lastErr error
	attempts := s.config.RetryLimit + 1

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			backoff := s.config.RetryBackoff << (attempt - 1)
			t := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				t.Stop()
				return decision.AnalysisResult{}, fmt.Errorf("classification abandoned after %d attempts: %w", attempt, errors.Join(lastErr, ctx.Err()))
			case <-t.C:
			}
		}

		res, err := s.deps.Classifier.Classify(ctx, images, transcript)
		if err == nil {
			metrics.RecordClassifierAttempt("ok")
			return res.Clamp(), nil
		}

		kind := KindOf(err)
		metrics.RecordClassifierAttempt(string(kind))
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		s.log.Warn("classifier attempt failed", "attempt", attempt+1, "of", attempts, "kind", kind, "error", err)
	}
	return decision.AnalysisResult{}, fmt.Errorf("classification failed: %w", lastErr)
}

func (s *Scheduler) cleanup(clipID string) bool {
	if s.deps.Cleaner == nil {
		return false
	}
	removed, err := s.deps.Cleaner.Clean(clipID)
	if err != nil {
		s.log.Error("cleanup failed", "clip_id", clipID, "error", err)
		return false
	}
	if removed {
		s.advance(clipID, clip.StatusCleaned)
	}
	return removed
}

func (s *Scheduler) advance(clipID string, to clip.Status) {
	if s.deps.Tracker == nil {
		return
	}
	if err := s.deps.Tracker.Advance(clipID, to); err != nil {
		s.log.Debug("status not recorded", "clip_id", clipID, "error", err)
	}
}
