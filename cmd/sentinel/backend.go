package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"github.com/technosupport/sentinel/internal/alert"
	"github.com/technosupport/sentinel/internal/analysis"
	"github.com/technosupport/sentinel/internal/clip"
	"github.com/technosupport/sentinel/internal/config"
	"github.com/technosupport/sentinel/internal/decision"
	"github.com/technosupport/sentinel/internal/housekeeping"
	"github.com/technosupport/sentinel/internal/ingest"
	"github.com/technosupport/sentinel/internal/platform/paths"
)

const serviceName = "sentinel"

// backend is everything behind the ingestion gateway.
type backend struct {
	cfg config.Config
	log *slog.Logger

	store       clip.Store
	tracker     *clip.Tracker
	sched       *analysis.Scheduler
	gateway     *ingest.Gateway
	housekeeper *housekeeping.Housekeeper
	spool       *ingest.SpoolWatcher

	nc  *nats.Conn
	rdb *redis.Client
	bg  sync.WaitGroup
}

func buildBackend(ctx context.Context, cfg config.Config, log *slog.Logger) (*backend, error) {
	if cfg.Analysis.ClassifierURL == "" {
		return nil, errors.New("CLASSIFIER_URL is required to run analysis")
	}
	if err := paths.EnsureDirs(cfg.DataRoot); err != nil {
		return nil, err
	}

	b := &backend{
		cfg:     cfg,
		log:     log,
		store:   clip.NewStore(cfg.DataRoot),
		tracker: clip.NewTracker(cfg.Storage.TrackerSize),
	}

	claims, err := b.claimStore(ctx)
	if err != nil {
		return nil, err
	}

	var transcriber analysis.Transcriber
	if cfg.Analysis.TranscriberURL != "" {
		transcriber = analysis.NewHTTPTranscriber(cfg.Analysis.TranscriberURL, cfg.Analysis.TranscriberAPIKey, cfg.Analysis.Timeout())
	} else {
		log.Info("no TRANSCRIBER_URL, clips are analyzed without audio")
	}

	var pub alert.Publisher
	if cfg.Alert.NATSURL != "" {
		nc, err := nats.Connect(cfg.Alert.NATSURL, nats.Name(serviceName))
		if err != nil {
			log.Warn("NATS connect failed, alert channel disabled", "url", cfg.Alert.NATSURL, "error", err)
		} else {
			b.nc = nc
			pub = nc
		}
	}

	channels := alert.ChannelsFromConfig(cfg.Alert, pub, log)
	dispatcher := alert.NewDispatcher(alert.NewLocator(cfg.Alert.Location, cfg.Alert.IPInfoURL), log, channels...)
	if len(channels) == 0 {
		log.Warn("no alert channel configured, positive verdicts are only logged")
	}

	b.housekeeper = housekeeping.New(b.store, log)
	b.sched = analysis.NewScheduler(analysis.SchedulerConfig{
		Workers:         cfg.Analysis.MaxConcurrent,
		QueueSize:       cfg.Analysis.MaxQueued,
		Timeout:         cfg.Analysis.Timeout(),
		RetryLimit:      cfg.Analysis.RetryLimit,
		RetryBackoff:    cfg.Analysis.RetryBackoff(),
		KeyframeCount:   cfg.Analysis.KeyframeCount,
		DispatchTimeout: cfg.Alert.Timeout(),
	}, analysis.Deps{
		Claims:      claims,
		Classifier:  analysis.NewHTTPClassifier(cfg.Analysis.ClassifierURL, cfg.Analysis.ClassifierAPIKey, cfg.Analysis.Timeout()),
		Transcriber: transcriber,
		Engine:      engineFromConfig(cfg.Decision),
		Dispatcher:  dispatcher,
		Cleaner:     b.housekeeper,
		History:     b.housekeeper,
		Tracker:     b.tracker,
		Store:       b.store,
		Log:         log,
	})
	b.housekeeper.SetActive(b.sched.IsActive)

	b.gateway = ingest.NewGateway(b.sched, b.store, b.tracker, cfg.Storage.MinFreeBytes(), log)
	b.spool = ingest.NewSpoolWatcher(paths.SpoolDir(cfg.DataRoot), b.gateway, 0, log)
	return b, nil
}

func (b *backend) claimStore(ctx context.Context) (analysis.ClaimStore, error) {
	a := b.cfg.Analysis
	if a.RedisAddr == "" {
		return analysis.NewMemoryClaims(a.ClaimCacheSize, a.ClaimTTL()), nil
	}

	rdb := redis.NewClient(&redis.Options{Addr: a.RedisAddr})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis %s: %w", a.RedisAddr, err)
	}
	b.rdb = rdb
	b.log.Info("using redis claim store", "addr", a.RedisAddr)
	return analysis.NewRedisClaims(rdb, a.ClaimTTL()), nil
}

func engineFromConfig(d config.DecisionConfig) *decision.Engine {
	return decision.NewEngine(decision.Config{
		ThreatThreshold: d.ThreatScoreThreshold,
		Keywords:        d.AlertKeywords,
		KeywordSeverity: d.KeywordSeverity,
	})
}

// Start launches the analysis workers and the orphan sweep. Leftovers from
// a previous run are swept once up front.
func (b *backend) Start(ctx context.Context) {
	b.sched.Start()
	if n, err := b.housekeeper.Sweep(b.cfg.Storage.OrphanTTL()); err != nil {
		b.log.Warn("startup sweep incomplete", "error", err)
	} else if n > 0 {
		b.log.Info("startup sweep removed orphans", "count", n)
	}
	b.housekeeper.Start(ctx, b.cfg.Storage.SweepInterval(), b.cfg.Storage.OrphanTTL())
}

// StartSpool picks up clips left in the spool directory by offline captures.
func (b *backend) StartSpool(ctx context.Context) {
	b.bg.Add(1)
	go func() {
		defer b.bg.Done()
		b.spool.Run(ctx)
	}()
}

// Stop waits for the spool watcher (whose ctx must already be done) and
// drains the analysis queue.
func (b *backend) Stop(ctx context.Context) error {
	b.bg.Wait()
	return b.sched.Stop(ctx)
}

func (b *backend) Close() {
	if b.nc != nil {
		b.nc.Close()
	}
	if b.rdb != nil {
		b.rdb.Close()
	}
}
