package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/technosupport/sentinel/internal/capture"
	"github.com/technosupport/sentinel/internal/clip"
	"github.com/technosupport/sentinel/internal/config"
	"github.com/technosupport/sentinel/internal/ingest"
	"github.com/technosupport/sentinel/internal/platform/logger"
	"github.com/technosupport/sentinel/internal/platform/paths"
)

func newCaptureCmd(load configLoader) *cobra.Command {
	var (
		source     string
		backendURL string
		realtime   bool
	)

	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Run motion capture over a frame source",
		Long: `Reads frames from a directory of JPEG images, detects motion and assembles clips.
With a backend URL clips are uploaded; otherwise they are analyzed in-process.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if source != "" {
				cfg.Capture.SourceDir = source
			}
			if backendURL != "" {
				cfg.Server.BackendURL = backendURL
			}
			if cmd.Flags().Changed("realtime") {
				cfg.Capture.Realtime = realtime
			}
			log := logger.New(cfg.Log.Level, cfg.Log.Format)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runCapture(ctx, cfg, log)
		},
	}
	cmd.Flags().StringVar(&source, "source", "", "directory of JPEG frames (overrides FRAME_SOURCE_DIR)")
	cmd.Flags().StringVar(&backendURL, "backend", "", "backend base URL (overrides BACKEND_URL)")
	cmd.Flags().BoolVar(&realtime, "realtime", false, "pace frames at FRAME_RATE")
	return cmd
}

func recorderConfig(c config.CaptureConfig) capture.RecorderConfig {
	return capture.RecorderConfig{
		Motion: capture.MotionConfig{
			Threshold:  c.MotionThreshold,
			PixelDelta: c.PixelDeltaThreshold,
			Stride:     c.SampleStride,
			MinFrames:  c.MinMotionFrames,
			Cooldown:   c.Cooldown(),
		},
		Pre:      c.PreWindow(),
		Post:     c.PostWindow(),
		Location: c.Location,
	}
}

func runCapture(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	if cfg.Capture.SourceDir == "" {
		return errors.New("no frame source: set FRAME_SOURCE_DIR or --source")
	}
	src, err := capture.NewDirSource(cfg.Capture.SourceDir, cfg.Capture.FrameInterval(), time.Now(), cfg.Capture.Realtime)
	if err != nil {
		return err
	}
	log.Info("capture starting",
		"source", cfg.Capture.SourceDir,
		"frames", src.Len(),
		"pre", cfg.Capture.PreWindow(),
		"post", cfg.Capture.PostWindow(),
		"threshold", cfg.Capture.MotionThreshold,
	)

	if cfg.Server.BackendURL != "" {
		return captureRemote(ctx, cfg, src, log)
	}
	return captureLocal(ctx, cfg, src, log)
}

// captureRemote uploads clips; undeliverable ones land in the local spool.
func captureRemote(ctx context.Context, cfg config.Config, src capture.FrameSource, log *slog.Logger) error {
	if err := paths.EnsureDirs(cfg.DataRoot); err != nil {
		return err
	}
	up := ingest.NewUploader(ingest.UploaderConfig{
		BackendURL: cfg.Server.BackendURL,
		SpoolDir:   paths.SpoolDir(cfg.DataRoot),
		QueueSize:  cfg.Capture.UploadQueueSize,
	}, log)
	// Queued uploads finish even after capture is interrupted.
	up.Start(context.WithoutCancel(ctx))

	rec := capture.NewRecorder(recorderConfig(cfg.Capture), clip.NewTracker(cfg.Storage.TrackerSize))
	err := capture.NewLoop(src, rec, up, log).Run(ctx)
	up.Close()
	return err
}

// captureLocal runs the whole pipeline in this process and waits for every
// accepted clip to be analyzed before returning.
func captureLocal(ctx context.Context, cfg config.Config, src capture.FrameSource, log *slog.Logger) error {
	b, err := buildBackend(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer b.Close()

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	b.Start(runCtx)

	rec := capture.NewRecorder(recorderConfig(cfg.Capture), b.tracker)
	loopErr := capture.NewLoop(src, rec, b.gateway, log).Run(ctx)
	cancelRun()

	drainCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Analysis.MaxQueued+1)*(cfg.Analysis.Timeout()+cfg.Alert.Timeout()))
	defer cancel()
	if err := b.Stop(drainCtx); err != nil {
		return errors.Join(loopErr, fmt.Errorf("analysis queue not drained: %w", err))
	}
	return loopErr
}
