package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"syscall"
	"time"

	"github.com/technosupport/sentinel/internal/analysis"
	"github.com/technosupport/sentinel/internal/clip"
	"github.com/technosupport/sentinel/internal/metrics"
	"github.com/technosupport/sentinel/internal/platform/logger"
	"github.com/technosupport/sentinel/internal/platform/paths"
)

// Queue is the part of the analysis scheduler the gateway hands clips to.
type Queue interface {
	Reserve(ctx context.Context, clipID string) error
	Release(ctx context.Context, clipID string)
	Enqueue(job analysis.Job) error
}

// Receipt describes an accepted clip.
type Receipt struct {
	ClipID       string `json:"clip_id"`
	EvidencePath string `json:"evidence_path"`
	AudioFound   bool   `json:"audio_found"`
}

// Gateway is the boundary between capture and analysis. Ingest persists the
// artifact synchronously and returns before analysis starts.
type Gateway struct {
	queue        Queue
	store        clip.Store
	tracker      *clip.Tracker
	minFreeBytes uint64
	log          *slog.Logger

	freeBytes func(dir string) (uint64, error)
	now       func() time.Time
}

// NewGateway wires a gateway. tracker may be nil. A zero minFreeBytes
// disables the free space precheck.
func NewGateway(queue Queue, store clip.Store, tracker *clip.Tracker, minFreeBytes uint64, log *slog.Logger) *Gateway {
	return &Gateway{
		queue:        queue,
		store:        store,
		tracker:      tracker,
		minFreeBytes: minFreeBytes,
		log:          logger.Component(log, "ingest"),
		freeBytes:    paths.FreeBytes,
		now:          time.Now,
	}
}

// Submit lets the in-process capture loop use the gateway as its sink.
func (g *Gateway) Submit(ctx context.Context, c *clip.Clip) error {
	_, err := g.Ingest(ctx, c)
	return err
}

// Ingest claims the clip id, writes the artifact and queues the analysis.
// On any failure every step already taken is undone.
func (g *Gateway) Ingest(ctx context.Context, c *clip.Clip) (Receipt, error) {
	rec, err := g.ingest(ctx, c)
	metrics.RecordIngest(resultLabel(err))
	if err != nil {
		id := ""
		if c != nil {
			id = c.ID
		}
		g.log.Warn("clip rejected", "clip_id", id, "error", err)
		return Receipt{}, err
	}
	g.log.Info("clip accepted",
		"clip_id", rec.ClipID,
		"frames", len(c.Frames),
		"duration", c.Duration(),
		"audio", rec.AudioFound,
	)
	return rec, nil
}

func (g *Gateway) ingest(ctx context.Context, c *clip.Clip) (Receipt, error) {
	if err := c.Validate(); err != nil {
		return Receipt{}, &IngestionError{Op: "validate", Err: err}
	}
	id := c.ID

	path, err := g.store.ArtifactPath(id)
	if err != nil {
		return Receipt{}, &IngestionError{Op: "validate", ClipID: id, Err: fmt.Errorf("%w: %v", ErrInvalidClip, err)}
	}

	if err := g.queue.Reserve(ctx, id); err != nil {
		return Receipt{}, &IngestionError{Op: "claim", ClipID: id, Err: err}
	}

	if err := g.checkSpace(); err != nil {
		g.queue.Release(ctx, id)
		return Receipt{}, &IngestionError{Op: "persist", ClipID: id, Err: err}
	}

	if err := clip.WriteFile(path, c); err != nil {
		g.queue.Release(ctx, id)
		if errors.Is(err, syscall.ENOSPC) {
			err = fmt.Errorf("%w: %v", ErrInsufficientSpace, err)
		}
		return Receipt{}, &IngestionError{Op: "persist", ClipID: id, Err: err}
	}

	if g.tracker != nil {
		if err := g.tracker.Advance(id, clip.StatusSubmitted); err != nil {
			g.log.Warn("status not recorded", "clip_id", id, "error", err)
		}
	}

	job := analysis.Job{ClipID: id, ArtifactPath: path, SubmittedAt: g.now()}
	if err := g.queue.Enqueue(job); err != nil {
		g.rollback(ctx, id, path)
		return Receipt{}, &IngestionError{Op: "enqueue", ClipID: id, Err: err}
	}

	return Receipt{ClipID: id, EvidencePath: path, AudioFound: c.HasAudio()}, nil
}

func (g *Gateway) checkSpace() error {
	if g.minFreeBytes == 0 {
		return nil
	}
	free, err := g.freeBytes(g.store.EvidenceDir)
	if errors.Is(err, paths.ErrFreeSpaceUnsupported) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("check free space: %w", err)
	}
	if free < g.minFreeBytes {
		return fmt.Errorf("%w: %d bytes free, %d required", ErrInsufficientSpace, free, g.minFreeBytes)
	}
	return nil
}

func (g *Gateway) rollback(ctx context.Context, id, path string) {
	g.queue.Release(ctx, id)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		g.log.Error("rollback: artifact not removed", "clip_id", id, "path", path, "error", err)
	}
	if g.tracker != nil {
		g.tracker.Forget(id)
	}
}
