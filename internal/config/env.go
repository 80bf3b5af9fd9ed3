package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// envReader applies environment overrides and keeps the first parse error.
type envReader struct {
	err error
}

func (r *envReader) fail(key, value string, err error) {
	if r.err == nil {
		r.err = fmt.Errorf("invalid %s=%q: %w", key, value, err)
	}
}

func (r *envReader) str(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func (r *envReader) integer(key string, dst *int) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		r.fail(key, v, err)
		return
	}
	*dst = n
}

func (r *envReader) float(key string, dst *float64) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		r.fail(key, v, err)
		return
	}
	*dst = f
}

func (r *envReader) boolean(key string, dst *bool) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		r.fail(key, v, err)
		return
	}
	*dst = b
}

// list reads a comma separated value, dropping blanks.
func (r *envReader) list(key string, dst *[]string) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return
	}
	*dst = SplitList(v)
}

// SplitList splits a comma separated list and trims each entry.
func SplitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func applyEnv(c *Config) error {
	r := &envReader{}

	r.str("SENTINEL_DATA_ROOT", &c.DataRoot)
	r.str("LOG_LEVEL", &c.Log.Level)
	r.str("LOG_FORMAT", &c.Log.Format)

	r.str("HTTP_ADDR", &c.Server.Addr)
	r.str("BACKEND_URL", &c.Server.BackendURL)

	r.str("FRAME_SOURCE_DIR", &c.Capture.SourceDir)
	r.float("FRAME_RATE", &c.Capture.FrameRate)
	r.boolean("FRAME_REALTIME", &c.Capture.Realtime)
	r.str("CAPTURE_LOCATION", &c.Capture.Location)
	r.float("MOTION_THRESHOLD", &c.Capture.MotionThreshold)
	r.integer("PIXEL_DELTA_THRESHOLD", &c.Capture.PixelDeltaThreshold)
	r.integer("MOTION_SAMPLE_STRIDE", &c.Capture.SampleStride)
	r.integer("MIN_MOTION_FRAMES", &c.Capture.MinMotionFrames)
	r.float("PRE_MOTION_BUFFER_SECONDS", &c.Capture.PreMotionBufferSeconds)
	r.float("POST_MOTION_RECORD_SECONDS", &c.Capture.PostMotionRecordSeconds)
	r.float("MOTION_COOLDOWN_SECONDS", &c.Capture.MotionCooldownSeconds)
	r.integer("UPLOAD_QUEUE_SIZE", &c.Capture.UploadQueueSize)

	r.integer("MAX_CONCURRENT_ANALYSES", &c.Analysis.MaxConcurrent)
	r.integer("MAX_QUEUED_ANALYSES", &c.Analysis.MaxQueued)
	r.float("ANALYSIS_TIMEOUT_SECONDS", &c.Analysis.TimeoutSeconds)
	r.integer("ANALYSIS_RETRY_LIMIT", &c.Analysis.RetryLimit)
	r.integer("ANALYSIS_RETRY_BACKOFF_MS", &c.Analysis.RetryBackoffMs)
	r.integer("KEYFRAME_COUNT", &c.Analysis.KeyframeCount)
	r.str("CLASSIFIER_URL", &c.Analysis.ClassifierURL)
	r.str("CLASSIFIER_API_KEY", &c.Analysis.ClassifierAPIKey)
	r.str("TRANSCRIBER_URL", &c.Analysis.TranscriberURL)
	r.str("TRANSCRIBER_API_KEY", &c.Analysis.TranscriberAPIKey)
	r.str("REDIS_ADDR", &c.Analysis.RedisAddr)
	r.integer("CLAIM_TTL_SECONDS", &c.Analysis.ClaimTTLSeconds)

	r.integer("THREAT_SCORE_THRESHOLD", &c.Decision.ThreatScoreThreshold)
	r.list("ALERT_KEYWORDS", &c.Decision.AlertKeywords)
	r.integer("KEYWORD_SEVERITY", &c.Decision.KeywordSeverity)

	r.str("TWILIO_ACCOUNT_SID", &c.Alert.TwilioAccountSID)
	r.str("TWILIO_AUTH_TOKEN", &c.Alert.TwilioAuthToken)
	r.str("TWILIO_PHONE_NUMBER", &c.Alert.TwilioPhoneNumber)
	r.list("RECIPIENT_PHONE_NUMBERS", &c.Alert.RecipientPhoneNumbers)
	r.str("SENDGRID_API_KEY", &c.Alert.SendGridAPIKey)
	r.str("FROM_EMAIL", &c.Alert.FromEmail)
	r.list("TO_EMAILS", &c.Alert.ToEmails)
	r.str("NATS_URL", &c.Alert.NATSURL)
	r.str("NATS_ALERT_SUBJECT", &c.Alert.NATSSubject)
	r.integer("ALERT_RETRY_LIMIT", &c.Alert.RetryLimit)
	r.str("LOCATION", &c.Alert.Location)
	r.str("IPINFO_URL", &c.Alert.IPInfoURL)

	r.integer("MIN_FREE_DISK_MB", &c.Storage.MinFreeDiskMB)
	r.float("ORPHAN_TTL_SECONDS", &c.Storage.OrphanTTLSeconds)

	return r.err
}
