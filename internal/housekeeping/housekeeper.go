package housekeeping

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/technosupport/sentinel/internal/clip"
	"github.com/technosupport/sentinel/internal/metrics"
	"github.com/technosupport/sentinel/internal/platform/logger"
)

// ActiveFunc reports whether a clip is still queued or being analyzed.
type ActiveFunc func(clipID string) bool

// Housekeeper deletes clip artifacts and derived temp files once a clip
// reaches a terminal state, and sweeps up leftovers from crashed runs.
type Housekeeper struct {
	store clip.Store
	log   *slog.Logger
	now   func() time.Time

	mu      sync.Mutex
	cleaned *lru.Cache[string, struct{}]
	active  ActiveFunc
}

func New(store clip.Store, log *slog.Logger) *Housekeeper {
	c, _ := lru.New[string, struct{}](8192)
	return &Housekeeper{
		store:   store,
		log:     logger.Component(log, "housekeeping"),
		now:     time.Now,
		cleaned: c,
	}
}

// SetActive installs the check the sweeper uses to skip clips still in the pipeline.
func (h *Housekeeper) SetActive(fn ActiveFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.active = fn
}

// Clean removes the artifact and work directory of a clip and records the
// clip as analyzed. It reports removed=true on the first successful call
// and on any later call that still found files. A failed removal is not
// remembered so the next call retries.
func (h *Housekeeper) Clean(clipID string) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	artifact, err := h.store.ArtifactPath(clipID)
	if err != nil {
		return false, err
	}
	work, err := h.store.WorkDir(clipID)
	if err != nil {
		return false, err
	}

	found := false
	var errs []error
	switch err := os.Remove(artifact); {
	case err == nil:
		found = true
	case !errors.Is(err, fs.ErrNotExist):
		errs = append(errs, fmt.Errorf("remove artifact: %w", err))
	}
	if _, err := os.Lstat(work); err == nil {
		found = true
	}
	if err := os.RemoveAll(work); err != nil {
		errs = append(errs, fmt.Errorf("remove work dir: %w", err))
	}
	if err := errors.Join(errs...); err != nil {
		h.log.Error("cleanup failed", "clip_id", clipID, "error", err)
		return false, err
	}

	first := !h.cleaned.Contains(clipID)
	h.cleaned.Add(clipID, struct{}{})
	h.markDone(clipID)
	if !first && !found {
		return false, nil
	}

	metrics.RecordRemoval("cleanup", 1)
	h.log.Debug("clip cleaned", "clip_id", clipID)
	return true, nil
}

// Analyzed reports whether the clip has already been through analysis and
// cleanup. The marker on disk survives restarts and claim expiry.
func (h *Housekeeper) Analyzed(clipID string) bool {
	h.mu.Lock()
	seen := h.cleaned.Contains(clipID)
	h.mu.Unlock()
	if seen || h.store.DoneDir == "" {
		return seen
	}

	marker, err := h.store.DoneMarker(clipID)
	if err != nil {
		return false
	}
	_, err = os.Stat(marker)
	return err == nil
}

func (h *Housekeeper) markDone(clipID string) {
	if h.store.DoneDir == "" {
		return
	}
	marker, err := h.store.DoneMarker(clipID)
	if err == nil {
		err = os.WriteFile(marker, []byte(h.now().UTC().Format(time.RFC3339)), 0o640)
	}
	if err != nil {
		h.log.Warn("analyzed marker not written", "clip_id", clipID, "error", err)
	}
}

// Sweep removes artifacts and work directories older than ttl that no
// running job owns. It returns the number of entries removed.
func (h *Housekeeper) Sweep(ttl time.Duration) (int, error) {
	h.mu.Lock()
	active := h.active
	h.mu.Unlock()

	cutoff := h.now().Add(-ttl)
	removed := 0
	var errs []error

	for _, dir := range []string{h.store.EvidenceDir, h.store.TempDir} {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			errs = append(errs, err)
			continue
		}

		for _, e := range entries {
			id := clipIDFromEntry(e.Name())
			if active != nil && active(id) {
				continue
			}
			info, err := e.Info()
			if err != nil || !info.ModTime().Before(cutoff) {
				continue
			}
			if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
				errs = append(errs, err)
				continue
			}
			removed++
			h.log.Info("orphan removed", "path", filepath.Join(dir, e.Name()))
		}
	}

	if removed > 0 {
		metrics.RecordRemoval("orphan", removed)
	}
	return removed, errors.Join(errs...)
}

func clipIDFromEntry(name string) string {
	return strings.TrimSuffix(name, clip.Ext)
}

// Start runs Sweep every interval until ctx is done.
func (h *Housekeeper) Start(ctx context.Context, interval, ttl time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := h.Sweep(ttl); err != nil {
					h.log.Warn("orphan sweep incomplete", "error", err)
				}
			}
		}
	}()
}
