package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/technosupport/sentinel/internal/clip"
	"github.com/technosupport/sentinel/internal/metrics"
	"github.com/technosupport/sentinel/internal/platform/logger"
	"github.com/technosupport/sentinel/internal/platform/paths"
)

// ClipsPath is the backend route clips are posted to.
const ClipsPath = "/api/v1/clips"

// Form fields of the clip upload.
const (
	FieldClip      = "clip"
	FieldClipID    = "clip_id"
	FieldTriggerAt = "trigger_timestamp"
	FieldLocation  = "location"
)

// errRejected marks a clip the backend will never accept.
var errRejected = errors.New("backend rejected clip")

type UploaderConfig struct {
	BackendURL string
	SpoolDir   string
	QueueSize  int
	Timeout    time.Duration
}

// Uploader is the remote capture sink: clips are posted to the backend
// from a background goroutine. Clips that cannot be delivered are written to
// the spool directory for the backend's spool watcher.
type Uploader struct {
	endpoint string
	spoolDir string
	client   *http.Client
	log      *slog.Logger

	queue chan *clip.Clip
	wg    sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

func NewUploader(cfg UploaderConfig, log *slog.Logger) *Uploader {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 8
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Uploader{
		endpoint: strings.TrimRight(cfg.BackendURL, "/") + ClipsPath,
		spoolDir: cfg.SpoolDir,
		client:   &http.Client{Timeout: cfg.Timeout},
		log:      logger.Component(log, "uploader"),
		queue:    make(chan *clip.Clip, cfg.QueueSize),
	}
}

// Start launches the delivery goroutine. Cancelling ctx aborts in-flight
// posts; their clips are spooled.
func (u *Uploader) Start(ctx context.Context) {
	u.wg.Add(1)
	go func() {
		defer u.wg.Done()
		for c := range u.queue {
			u.deliver(ctx, c)
		}
	}()
}

// Submit never blocks on the network. When the queue is full or the
// uploader is closed the clip goes straight to the spool.
func (u *Uploader) Submit(_ context.Context, c *clip.Clip) error {
	if err := c.Validate(); err != nil {
		return &IngestionError{Op: "validate", Err: err}
	}

	u.mu.Lock()
	if !u.closed {
		select {
		case u.queue <- c:
			u.mu.Unlock()
			return nil
		default:
		}
	}
	u.mu.Unlock()

	u.log.Warn("upload queue unavailable, spooling clip", "clip_id", c.ID)
	if err := u.spool(c); err != nil {
		metrics.RecordUpload("dropped")
		return &IngestionError{Op: "spool", ClipID: c.ID, Err: err}
	}
	metrics.RecordUpload("spooled")
	return nil
}

// Close stops accepting clips and waits for queued ones to be delivered
// or spooled.
func (u *Uploader) Close() {
	u.mu.Lock()
	if !u.closed {
		u.closed = true
		close(u.queue)
	}
	u.mu.Unlock()
	u.wg.Wait()

	// Left over when Start was never called.
	for c := range u.queue {
		if err := u.spool(c); err != nil {
			metrics.RecordUpload("dropped")
			u.log.Error("clip lost: spool failed", "clip_id", c.ID, "error", err)
			continue
		}
		metrics.RecordUpload("spooled")
	}
}

func (u *Uploader) deliver(ctx context.Context, c *clip.Clip) {
	err := u.post(ctx, c)
	switch {
	case err == nil:
		metrics.RecordUpload("sent")
		u.log.Info("clip uploaded", "clip_id", c.ID, "frames", len(c.Frames))
		return
	case errors.Is(err, errRejected):
		metrics.RecordUpload("dropped")
		u.log.Error("clip rejected by backend", "clip_id", c.ID, "error", err)
		return
	}

	u.log.Warn("upload failed, spooling clip", "clip_id", c.ID, "error", err)
	if serr := u.spool(c); serr != nil {
		metrics.RecordUpload("dropped")
		u.log.Error("clip lost: spool failed", "clip_id", c.ID, "error", serr)
		return
	}
	metrics.RecordUpload("spooled")
}

func (u *Uploader) post(ctx context.Context, c *clip.Clip) error {
	data, err := clip.Marshal(c)
	if err != nil {
		return fmt.Errorf("%w: %v", errRejected, err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fields := map[string]string{
		FieldClipID:    c.ID,
		FieldTriggerAt: c.TriggerAt.UTC().Format(time.RFC3339Nano),
		FieldLocation:  c.Location,
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return err
		}
	}
	part, err := mw.CreateFormFile(FieldClip, c.ID+clip.Ext)
	if err != nil {
		return err
	}
	if _, err := part.Write(data); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.endpoint, &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := u.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	sample, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

	switch {
	case resp.StatusCode == http.StatusAccepted || resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusConflict:
		// Already accepted on an earlier attempt.
		u.log.Info("backend already has clip", "clip_id", c.ID)
		return nil
	case resp.StatusCode == http.StatusBadRequest:
		return fmt.Errorf("%w: status=%d body=%s", errRejected, resp.StatusCode, sample)
	default:
		return fmt.Errorf("backend error: status=%d body=%s", resp.StatusCode, sample)
	}
}

func (u *Uploader) spool(c *clip.Clip) error {
	if u.spoolDir == "" {
		return errors.New("no spool directory configured")
	}
	path, err := paths.SafeJoin(u.spoolDir, c.ID+clip.Ext)
	if err != nil {
		return err
	}
	return clip.WriteFile(path, c)
}
