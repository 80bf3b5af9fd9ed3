package ingest

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/technosupport/sentinel/internal/clip"
	"github.com/technosupport/sentinel/internal/platform/logger"
)

// rejectedExt is appended to spool files that can never be ingested.
const rejectedExt = ".rejected"

var settleTime = 2 * time.Second

// Ingester accepts a clip; *Gateway implements it.
type Ingester interface {
	Ingest(ctx context.Context, c *clip.Clip) (Receipt, error)
}

// SpoolWatcher submits clip artifacts that appear in the spool directory.
// Ingested and duplicate clips are removed from the spool; clips refused
// for capacity reasons stay for the next scan.
type SpoolWatcher struct {
	dir      string
	ingester Ingester
	interval time.Duration
	log      *slog.Logger
}

func NewSpoolWatcher(dir string, ingester Ingester, interval time.Duration, log *slog.Logger) *SpoolWatcher {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &SpoolWatcher{
		dir:      dir,
		ingester: ingester,
		interval: interval,
		log:      logger.Component(log, "spool"),
	}
}

// Run scans once, then reacts to fsnotify events with a polling ticker as a
// safety net. Everything runs on one goroutine so a file is never handled
// twice at once. It returns when ctx is done.
func (w *SpoolWatcher) Run(ctx context.Context) error {
	var events <-chan fsnotify.Event
	var errs <-chan error

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.log.Warn("fsnotify unavailable, polling only", "error", err)
	} else {
		defer watcher.Close()
		if err := watcher.Add(w.dir); err != nil {
			w.log.Warn("cannot watch spool dir, polling only", "dir", w.dir, "error", err)
		} else {
			events = watcher.Events
			errs = watcher.Errors
		}
	}

	w.Scan(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Rename|fsnotify.Write) != 0 && isSpooled(ev.Name) {
				w.handle(ctx, ev.Name)
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			w.log.Warn("spool watcher error", "error", err)
		case <-ticker.C:
			w.Scan(ctx)
		}
	}
}

// Scan handles every spooled artifact in name order and returns how many
// were ingested.
func (w *SpoolWatcher) Scan(ctx context.Context) int {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.log.Warn("spool scan failed", "dir", w.dir, "error", err)
		return 0
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && isSpooled(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	n := 0
	for _, name := range names {
		if ctx.Err() != nil {
			break
		}
		if w.handle(ctx, filepath.Join(w.dir, name)) {
			n++
		}
	}
	return n
}

func (w *SpoolWatcher) handle(ctx context.Context, path string) bool {
	c, err := clip.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return false
	}
	if err != nil {
		// A file still being copied in looks corrupt; give it time to settle.
		if st, serr := os.Stat(path); serr == nil && time.Since(st.ModTime()) < settleTime {
			return false
		}
		w.reject(path, err)
		return false
	}

	_, err = w.ingester.Ingest(ctx, c)
	switch {
	case err == nil:
		w.remove(path)
		return true
	case errors.Is(err, ErrDuplicateClip):
		w.log.Info("spooled clip already ingested", "clip_id", c.ID)
		w.remove(path)
	case errors.Is(err, ErrInvalidClip):
		w.reject(path, err)
	default:
		// Queue full, no space or a claim store outage: retry on the next scan.
		w.log.Warn("spooled clip deferred", "clip_id", c.ID, "error", err)
	}
	return false
}

func (w *SpoolWatcher) remove(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		w.log.Error("spool file not removed", "path", path, "error", err)
	}
}

func (w *SpoolWatcher) reject(path string, cause error) {
	w.log.Error("unreadable spool file set aside", "path", path, "error", cause)
	if err := os.Rename(path, path+rejectedExt); err != nil && !os.IsNotExist(err) {
		w.log.Error("spool file not set aside", "path", path, "error", err)
	}
}

// isSpooled ignores hidden temp files written by clip.WriteFile.
func isSpooled(name string) bool {
	base := filepath.Base(name)
	return strings.HasSuffix(base, clip.Ext) && !strings.HasPrefix(base, ".")
}
