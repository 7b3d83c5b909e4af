package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestHome points HOME at a temp dir for the duration of the test.
func setupTestHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	return home
}

func writeConfig(t *testing.T, home, content string, perm os.FileMode) string {
	t.Helper()
	dir := filepath.Join(home, ".config", "stackprobe")
	require.NoError(t, os.MkdirAll(dir, 0700))
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), perm))
	return path
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.False(t, cfg.Detection.Production)
	assert.Equal(t, 1500*time.Millisecond, cfg.Detection.FallbackDelay.Duration())
	assert.Equal(t, DefaultSessionKey, cfg.Session.Key)
	assert.Equal(t, BackendMemory, cfg.Session.Backend)
	assert.Equal(t, SinkLog, cfg.Sink.Kind)
}

func TestLoadWithFile_MissingFileUsesDefaults(t *testing.T) {
	setupTestHome(t)

	cfg, err := LoadWithFile("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadWithFile_ValidYAML(t *testing.T) {
	home := setupTestHome(t)
	path := writeConfig(t, home, `detection:
  production: true
  idle_timeout: 2s
session:
  backend: file
  dir: /tmp/stackprobe-session
sink:
  kind: nats
  nats_url: nats://127.0.0.1:4222
  subject_prefix: analytics
  rate_limit: 2
  burst: 3
`, 0600)

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)

	assert.True(t, cfg.Detection.Production)
	assert.Equal(t, 2*time.Second, cfg.Detection.IdleTimeout.Duration())
	// Untouched keys keep their defaults
	assert.Equal(t, 1500*time.Millisecond, cfg.Detection.FallbackDelay.Duration())
	assert.Equal(t, BackendFile, cfg.Session.Backend)
	assert.Equal(t, "/tmp/stackprobe-session", cfg.Session.Dir)
	assert.Equal(t, SinkNATS, cfg.Sink.Kind)
	assert.Equal(t, "analytics", cfg.Sink.SubjectPrefix)
	assert.Equal(t, 3, cfg.Sink.Burst)
}

func TestLoadWithFile_EnvOverridesFile(t *testing.T) {
	home := setupTestHome(t)
	path := writeConfig(t, home, "detection:\n  production: false\n", 0600)

	t.Setenv("STACKPROBE_DETECTION_PRODUCTION", "true")
	t.Setenv("STACKPROBE_SESSION_TTL", "45m")
	t.Setenv("STACKPROBE_SINK_DISTINCT_ID", "visitor-1")

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)
	assert.True(t, cfg.Detection.Production)
	assert.Equal(t, 45*time.Minute, cfg.Session.TTL.Duration())
	assert.Equal(t, "visitor-1", cfg.Sink.DistinctID)
}

func TestLoadWithFile_TelemetryAndServerEnv(t *testing.T) {
	setupTestHome(t)
	t.Setenv("STACKPROBE_TELEMETRY_METRICS", "true")
	t.Setenv("STACKPROBE_TELEMETRY_METRICS_INTERVAL", "10s")
	t.Setenv("STACKPROBE_SERVER_HTTP_HOST", "0.0.0.0")
	t.Setenv("STACKPROBE_SESSION_ID", "tab-42")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.Telemetry.Metrics)
	assert.Equal(t, 10*time.Second, cfg.Telemetry.MetricsInterval.Duration())
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "tab-42", cfg.Session.ID)
}

func TestLoadWithFile_RejectsOutsideAllowedDirs(t *testing.T) {
	setupTestHome(t)
	other := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(other, []byte("{}"), 0600))

	_, err := LoadWithFile(other)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "path validation")
}

func TestLoadWithFile_RejectsInsecurePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission model differs on windows")
	}
	home := setupTestHome(t)
	path := writeConfig(t, home, "detection:\n  production: true\n", 0644)

	_, err := LoadWithFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insecure config file permissions")
}

func TestLoadWithFile_InvalidValues(t *testing.T) {
	home := setupTestHome(t)
	path := writeConfig(t, home, "session:\n  backend: redis\n", 0600)

	_, err := LoadWithFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session.backend")
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"defaults", func(c *Config) {}, ""},
		{"zero fallback delay", func(c *Config) { c.Detection.FallbackDelay = 0 }, "fallback_delay"},
		{"file backend without dir", func(c *Config) {
			c.Session.Backend = BackendFile
			c.Session.Dir = ""
		}, "session.dir"},
		{"nats backend without bucket", func(c *Config) {
			c.Session.Backend = BackendNATS
			c.Session.Bucket = ""
		}, "session.bucket"},
		{"empty key", func(c *Config) { c.Session.Key = "" }, "session.key"},
		{"unknown sink", func(c *Config) { c.Sink.Kind = "kafka" }, "sink.kind"},
		{"nats sink zero burst", func(c *Config) {
			c.Sink.Kind = SinkNATS
			c.Sink.Burst = 0
		}, "burst"},
		{"telemetry bad rate", func(c *Config) {
			c.Telemetry.Enabled = true
			c.Telemetry.SampleRate = 2
		}, "sample_rate"},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "invalid server port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "detection.production", envKey("STACKPROBE_DETECTION_PRODUCTION"))
	assert.Equal(t, "sink.nats_url", envKey("STACKPROBE_SINK_NATS_URL"))
	assert.Equal(t, "server.http_port", envKey("STACKPROBE_SERVER_HTTP_PORT"))
}

func TestSecret_NeverPrints(t *testing.T) {
	s := Secret("s3cr3t-token")

	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%v", s))
	assert.Equal(t, "Secret([REDACTED])", fmt.Sprintf("%#v", s))
	assert.Equal(t, "s3cr3t-token", s.Value())

	data, err := json.Marshal(struct{ Token Secret }{s})
	require.NoError(t, err)
	assert.NotContains(t, string(data), "s3cr3t")
}

func TestDuration_UnmarshalText(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("1500ms")))
	assert.Equal(t, 1500*time.Millisecond, d.Duration())

	assert.Error(t, d.UnmarshalText([]byte("-1s")))
	assert.Error(t, d.UnmarshalText([]byte("soon")))
}

func TestExpandHome(t *testing.T) {
	home := setupTestHome(t)

	got, err := ExpandHome("~/.config/stackprobe/session")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".config", "stackprobe", "session"), got)

	got, err = ExpandHome("/var/lib/stackprobe")
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/stackprobe", got)
}
