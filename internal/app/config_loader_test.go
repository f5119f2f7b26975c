package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giserh/videolectures-dl/internal/domain"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadConfig_FileOverridesDefaults(t *testing.T) {
	path := writeConfigFile(t, `
download:
  use_title: true
  output_dir: /tmp/lectures
  max_retries: 2
rtmpdump:
  binary: /opt/bin/rtmpdump
  poll_interval: 500ms
server:
  port: 9090
`)

	config, err := LoadConfig(path)
	require.NoError(t, err)

	assert.True(t, config.Download.UseTitle)
	assert.Equal(t, "/tmp/lectures", config.Download.OutputDir)
	assert.Equal(t, 2, config.Download.MaxRetries)
	assert.Equal(t, "/opt/bin/rtmpdump", config.RTMPDump.Binary)
	assert.Equal(t, 500*time.Millisecond, config.RTMPDump.PollInterval)
	assert.Equal(t, 9090, config.Server.Port)

	// untouched values keep their defaults
	assert.Equal(t, 100*time.Millisecond, config.RTMPDump.FileWaitInterval)
	assert.Equal(t, 60*time.Second, config.Fetch.Timeout)
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	path := writeConfigFile(t, "download:\n  output_dir: /tmp/from-file\n")
	t.Setenv("VLDL_DOWNLOAD_OUTPUT_DIR", "/tmp/from-env")
	t.Setenv("VLDL_RTMPDUMP_BINARY", "rtmpdump-2.4")

	config, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/from-env", config.Download.OutputDir)
	assert.Equal(t, "rtmpdump-2.4", config.RTMPDump.Binary)
}

func TestLoadConfig_ExpandsHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	path := writeConfigFile(t, "download:\n  logs_dir: ~/vl/logs\nqueue:\n  database_path: $HOME/vl/history.db\n")

	config, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, "vl", "logs"), config.Download.LogsDir)
	assert.Equal(t, filepath.Join(home, "vl", "history.db"), config.Queue.DatabasePath)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errText string
	}{
		{name: "bad port", content: "server:\n  port: 70000\n", errText: "invalid server port"},
		{name: "negative retries", content: "download:\n  max_retries: -1\n", errText: "max retries"},
		{name: "zero concurrency", content: "download:\n  concurrent_limit: 0\n", errText: "concurrent limit"},
		{name: "empty binary", content: "rtmpdump:\n  binary: \"\"\n", errText: "binary not configured"},
		{name: "zero poll interval", content: "rtmpdump:\n  poll_interval: 0s\n", errText: "poll interval"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfigFile(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errText)
		})
	}
}

func TestLoadConfig_MissingExplicitFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	config := domain.DefaultConfig()
	config.Download.OutputDir = "/tmp/saved"
	config.Download.Overwrite = true
	config.RTMPDump.PollInterval = 3 * time.Second
	config.Notification.Enabled = true

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, SaveConfig(config, path))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/saved", loaded.Download.OutputDir)
	assert.True(t, loaded.Download.Overwrite)
	assert.Equal(t, 3*time.Second, loaded.RTMPDump.PollInterval)
	assert.True(t, loaded.Notification.Enabled)
	assert.Equal(t, config.Fetch.UserAgent, loaded.Fetch.UserAgent)
}
