package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/technosupport/sentinel/internal/platform/paths"
)

// Config is built once at startup and passed by value to every component.
type Config struct {
	DataRoot string         `yaml:"data_root"`
	Log      LogConfig      `yaml:"log"`
	Server   ServerConfig   `yaml:"server"`
	Capture  CaptureConfig  `yaml:"capture"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Decision DecisionConfig `yaml:"decision"`
	Alert    AlertConfig    `yaml:"alert"`
	Storage  StorageConfig  `yaml:"storage"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
	// BackendURL is where a remote capture process posts clips. Empty means
	// the capture loop submits in-process.
	BackendURL string `yaml:"backend_url"`
}

type CaptureConfig struct {
	SourceDir               string  `yaml:"source_dir"`
	FrameRate               float64 `yaml:"frame_rate"`
	Realtime                bool    `yaml:"realtime"`
	Location                string  `yaml:"location"`
	MotionThreshold         float64 `yaml:"motion_threshold"`
	PixelDeltaThreshold     int     `yaml:"pixel_delta_threshold"`
	SampleStride            int     `yaml:"sample_stride"`
	MinMotionFrames         int     `yaml:"min_motion_frames"`
	PreMotionBufferSeconds  float64 `yaml:"pre_motion_buffer_seconds"`
	PostMotionRecordSeconds float64 `yaml:"post_motion_record_seconds"`
	// MotionCooldownSeconds of 0 means "same as the post window".
	MotionCooldownSeconds float64 `yaml:"motion_cooldown_seconds"`
	UploadQueueSize       int     `yaml:"upload_queue_size"`
}

type AnalysisConfig struct {
	MaxConcurrent     int     `yaml:"max_concurrent"`
	MaxQueued         int     `yaml:"max_queued"`
	TimeoutSeconds    float64 `yaml:"timeout_seconds"`
	RetryLimit        int     `yaml:"retry_limit"`
	RetryBackoffMs    int     `yaml:"retry_backoff_ms"`
	KeyframeCount     int     `yaml:"keyframe_count"`
	ClassifierURL     string  `yaml:"classifier_url"`
	ClassifierAPIKey  string  `yaml:"classifier_api_key"`
	TranscriberURL    string  `yaml:"transcriber_url"`
	TranscriberAPIKey string  `yaml:"transcriber_api_key"`
	RedisAddr         string  `yaml:"redis_addr"`
	ClaimTTLSeconds   int     `yaml:"claim_ttl_seconds"`
	ClaimCacheSize    int     `yaml:"claim_cache_size"`
}

type DecisionConfig struct {
	ThreatScoreThreshold int      `yaml:"threat_score_threshold"`
	AlertKeywords        []string `yaml:"alert_keywords"`
	KeywordSeverity      int      `yaml:"keyword_severity"`
}

type AlertConfig struct {
	TwilioAccountSID      string   `yaml:"twilio_account_sid"`
	TwilioAuthToken       string   `yaml:"twilio_auth_token"`
	TwilioPhoneNumber     string   `yaml:"twilio_phone_number"`
	RecipientPhoneNumbers []string `yaml:"recipient_phone_numbers"`
	SendGridAPIKey        string   `yaml:"sendgrid_api_key"`
	FromEmail             string   `yaml:"from_email"`
	ToEmails              []string `yaml:"to_emails"`
	NATSURL               string   `yaml:"nats_url"`
	NATSSubject           string   `yaml:"nats_subject"`
	RetryLimit            int      `yaml:"retry_limit"`
	TimeoutSeconds        float64  `yaml:"timeout_seconds"`
	Location              string   `yaml:"location"`
	IPInfoURL             string   `yaml:"ipinfo_url"`
}

type StorageConfig struct {
	MinFreeDiskMB        int     `yaml:"min_free_disk_mb"`
	OrphanTTLSeconds     float64 `yaml:"orphan_ttl_seconds"`
	SweepIntervalSeconds float64 `yaml:"sweep_interval_seconds"`
	TrackerSize          int     `yaml:"tracker_size"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		DataRoot: paths.ResolveDataRoot(),
		Log:      LogConfig{Level: "info", Format: "json"},
		Server:   ServerConfig{Addr: ":8000"},
		Capture: CaptureConfig{
			FrameRate:               10,
			MotionThreshold:         0.02,
			PixelDeltaThreshold:     25,
			SampleStride:            2,
			MinMotionFrames:         1,
			PreMotionBufferSeconds:  5,
			PostMotionRecordSeconds: 10,
			UploadQueueSize:         8,
		},
		Analysis: AnalysisConfig{
			MaxConcurrent:   2,
			MaxQueued:       64,
			TimeoutSeconds:  120,
			RetryLimit:      2,
			RetryBackoffMs:  500,
			KeyframeCount:   10,
			ClaimTTLSeconds: 86400,
			ClaimCacheSize:  10000,
		},
		Decision: DecisionConfig{
			ThreatScoreThreshold: 7,
			AlertKeywords:        []string{"help", "stop", "get away", "danger", "assault", "kidnap"},
			KeywordSeverity:      8,
		},
		Alert: AlertConfig{
			NATSSubject:    "sentinel.alerts",
			RetryLimit:     1,
			TimeoutSeconds: 30,
			IPInfoURL:      "https://ipinfo.io/json",
		},
		Storage: StorageConfig{
			MinFreeDiskMB:        100,
			OrphanTTLSeconds:     3600,
			SweepIntervalSeconds: 300,
			TrackerSize:          4096,
		},
	}
}

// Load builds the configuration: defaults, then the YAML file, then a .env
// file in the working directory, then the process environment.
// An explicit path that does not exist is an error; the default path is optional.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = os.Getenv("SENTINEL_CONFIG")
		explicit = path != ""
	}
	if !explicit {
		path = paths.ResolveConfigPath(cfg.DataRoot, "")
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects values the pipeline cannot run with.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.DataRoot != "", "data_root must be set")
	check(c.Capture.MotionThreshold >= 0 && c.Capture.MotionThreshold <= 1,
		"MOTION_THRESHOLD must be within [0,1], got %v", c.Capture.MotionThreshold)
	check(c.Capture.PixelDeltaThreshold >= 0 && c.Capture.PixelDeltaThreshold <= 255,
		"PIXEL_DELTA_THRESHOLD must be within [0,255], got %d", c.Capture.PixelDeltaThreshold)
	check(c.Capture.SampleStride > 0, "MOTION_SAMPLE_STRIDE must be positive")
	check(c.Capture.MinMotionFrames > 0, "MIN_MOTION_FRAMES must be positive")
	check(c.Capture.FrameRate > 0, "FRAME_RATE must be positive")
	check(c.Capture.PreMotionBufferSeconds >= 0, "PRE_MOTION_BUFFER_SECONDS must not be negative")
	check(c.Capture.PostMotionRecordSeconds > 0, "POST_MOTION_RECORD_SECONDS must be positive")
	check(c.Capture.MotionCooldownSeconds >= 0, "MOTION_COOLDOWN_SECONDS must not be negative")
	check(c.Capture.UploadQueueSize > 0, "UPLOAD_QUEUE_SIZE must be positive")

	check(c.Analysis.MaxConcurrent > 0, "MAX_CONCURRENT_ANALYSES must be positive")
	check(c.Analysis.MaxQueued > 0, "MAX_QUEUED_ANALYSES must be positive")
	check(c.Analysis.TimeoutSeconds > 0, "ANALYSIS_TIMEOUT_SECONDS must be positive")
	check(c.Analysis.RetryLimit >= 0, "ANALYSIS_RETRY_LIMIT must not be negative")
	check(c.Analysis.KeyframeCount > 0, "KEYFRAME_COUNT must be positive")
	check(c.Analysis.ClaimTTLSeconds > 0, "CLAIM_TTL_SECONDS must be positive")
	check(c.Analysis.ClaimCacheSize > 0, "claim_cache_size must be positive")

	check(c.Decision.ThreatScoreThreshold >= 0 && c.Decision.ThreatScoreThreshold <= 10,
		"THREAT_SCORE_THRESHOLD must be within [0,10], got %d", c.Decision.ThreatScoreThreshold)
	check(c.Decision.KeywordSeverity >= 0 && c.Decision.KeywordSeverity <= 10,
		"KEYWORD_SEVERITY must be within [0,10], got %d", c.Decision.KeywordSeverity)

	check(c.Alert.RetryLimit >= 0, "ALERT_RETRY_LIMIT must not be negative")
	check(c.Alert.TimeoutSeconds > 0, "alert timeout must be positive")

	check(c.Storage.MinFreeDiskMB >= 0, "MIN_FREE_DISK_MB must not be negative")
	check(c.Storage.OrphanTTLSeconds > 0, "ORPHAN_TTL_SECONDS must be positive")
	check(c.Storage.SweepIntervalSeconds > 0, "sweep interval must be positive")
	check(c.Storage.TrackerSize > 0, "tracker_size must be positive")

	return errors.Join(errs...)
}

func seconds(s float64) time.Duration {
	return time.Duration(math.Round(s * float64(time.Second)))
}

func (c CaptureConfig) PreWindow() time.Duration  { return seconds(c.PreMotionBufferSeconds) }
func (c CaptureConfig) PostWindow() time.Duration { return seconds(c.PostMotionRecordSeconds) }

// Cooldown falls back to the post window when unset.
func (c CaptureConfig) Cooldown() time.Duration {
	if c.MotionCooldownSeconds <= 0 {
		return c.PostWindow()
	}
	return seconds(c.MotionCooldownSeconds)
}

func (c CaptureConfig) FrameInterval() time.Duration {
	return seconds(1 / c.FrameRate)
}

func (c AnalysisConfig) Timeout() time.Duration { return seconds(c.TimeoutSeconds) }
func (c AnalysisConfig) RetryBackoff() time.Duration {
	return time.Duration(c.RetryBackoffMs) * time.Millisecond
}
func (c AnalysisConfig) ClaimTTL() time.Duration {
	return time.Duration(c.ClaimTTLSeconds) * time.Second
}

func (c AlertConfig) Timeout() time.Duration { return seconds(c.TimeoutSeconds) }

func (c StorageConfig) OrphanTTL() time.Duration     { return seconds(c.OrphanTTLSeconds) }
func (c StorageConfig) SweepInterval() time.Duration { return seconds(c.SweepIntervalSeconds) }
func (c StorageConfig) MinFreeBytes() uint64 {
	return uint64(c.MinFreeDiskMB) * 1024 * 1024
}
