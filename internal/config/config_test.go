package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdirTemp keeps a stray .env in the repo from leaking into the test.
func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 7, cfg.Decision.ThreatScoreThreshold)
	assert.Equal(t, 2, cfg.Analysis.MaxConcurrent)
	assert.Equal(t, 10, cfg.Analysis.KeyframeCount)
	assert.Equal(t, cfg.Capture.PostWindow(), cfg.Capture.Cooldown())
	assert.Equal(t, 100*time.Millisecond, cfg.Capture.FrameInterval())
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	dir := chdirTemp(t)
	t.Setenv("SENTINEL_DATA_ROOT", dir)
	t.Setenv("SENTINEL_CONFIG", "")

	path := filepath.Join(dir, "sentinel.yaml")
	yml := `
capture:
  motion_threshold: 0.1
  pre_motion_buffer_seconds: 3
  post_motion_record_seconds: 4
decision:
  threat_score_threshold: 5
  alert_keywords: ["fire"]
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o600))

	t.Setenv("THREAT_SCORE_THRESHOLD", "6")
	t.Setenv("ALERT_KEYWORDS", " help , , stop ")
	t.Setenv("RECIPIENT_PHONE_NUMBERS", "+15550001,+15550002")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.DataRoot)
	assert.InDelta(t, 0.1, cfg.Capture.MotionThreshold, 1e-9)
	assert.Equal(t, 3*time.Second, cfg.Capture.PreWindow())
	assert.Equal(t, 4*time.Second, cfg.Capture.PostWindow())
	assert.Equal(t, 6, cfg.Decision.ThreatScoreThreshold)
	assert.Equal(t, []string{"help", "stop"}, cfg.Decision.AlertKeywords)
	assert.Equal(t, []string{"+15550001", "+15550002"}, cfg.Alert.RecipientPhoneNumbers)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := chdirTemp(t)
	t.Setenv("SENTINEL_DATA_ROOT", dir)
	t.Setenv("SENTINEL_CONFIG", "")
	require.NoError(t, os.Unsetenv("KEYFRAME_COUNT"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("KEYFRAME_COUNT=4\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("KEYFRAME_COUNT") })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Analysis.KeyframeCount)
}

func TestLoad_MissingDefaultFileIsFine(t *testing.T) {
	dir := chdirTemp(t)
	t.Setenv("SENTINEL_DATA_ROOT", dir)
	t.Setenv("SENTINEL_CONFIG", "")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":8000", cfg.Server.Addr)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	dir := chdirTemp(t)
	_, err := Load(filepath.Join(dir, "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_BadEnvNamesKey(t *testing.T) {
	dir := chdirTemp(t)
	t.Setenv("SENTINEL_DATA_ROOT", dir)
	t.Setenv("SENTINEL_CONFIG", "")
	t.Setenv("MAX_CONCURRENT_ANALYSES", "many")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MAX_CONCURRENT_ANALYSES")
}

func TestValidate_Rejects(t *testing.T) {
	cases := map[string]func(*Config){
		"motion threshold": func(c *Config) { c.Capture.MotionThreshold = 1.5 },
		"post window":      func(c *Config) { c.Capture.PostMotionRecordSeconds = 0 },
		"concurrency":      func(c *Config) { c.Analysis.MaxConcurrent = 0 },
		"threat threshold": func(c *Config) { c.Decision.ThreatScoreThreshold = 11 },
		"timeout":          func(c *Config) { c.Analysis.TimeoutSeconds = -1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b c"}, SplitList("a, b c ,,"))
	assert.Nil(t, SplitList(" , "))
}
