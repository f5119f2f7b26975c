package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/giserh/videolectures-dl/internal/domain"
)

// EnvPrefix prefixes every environment variable read by LoadConfig
const EnvPrefix = "VLDL"

// LoadConfig loads configuration from file and environment. An optional
// .env file in the working directory is loaded first.
func LoadConfig(configPath string) (*domain.Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	config := domain.DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.videolectures-dl")
		v.AddConfigPath("/etc/videolectures-dl")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvKeys(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config = expandPaths(config)

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// bindEnvKeys registers every config key so AutomaticEnv sees variables
// for keys that are absent from the config file
func bindEnvKeys(v *viper.Viper) {
	for key := range configValues(domain.DefaultConfig()) {
		_ = v.BindEnv(key)
	}
}

// configValues flattens config into dotted viper keys. Durations are
// written in their string form.
func configValues(config *domain.Config) map[string]interface{} {
	return map[string]interface{}{
		"server.host": config.Server.Host,
		"server.port": config.Server.Port,

		"download.use_title":          config.Download.UseTitle,
		"download.use_literal_title":  config.Download.UseLiteralTitle,
		"download.overwrite":          config.Download.Overwrite,
		"download.output_dir":         config.Download.OutputDir,
		"download.logs_dir":           config.Download.LogsDir,
		"download.max_retries":        config.Download.MaxRetries,
		"download.retry_delay":        config.Download.RetryDelay.String(),
		"download.concurrent_limit":   config.Download.ConcurrentLimit,
		"download.auto_start_workers": config.Download.AutoStartWorkers,

		"fetch.timeout":    config.Fetch.Timeout.String(),
		"fetch.user_agent": config.Fetch.UserAgent,

		"rtmpdump.binary":             config.RTMPDump.Binary,
		"rtmpdump.poll_interval":      config.RTMPDump.PollInterval.String(),
		"rtmpdump.file_wait_interval": config.RTMPDump.FileWaitInterval.String(),
		"rtmpdump.max_poll_duration":  config.RTMPDump.MaxPollDuration.String(),
		"rtmpdump.terminate_grace":    config.RTMPDump.TerminateGrace.String(),

		"queue.database_path":      config.Queue.DatabasePath,
		"queue.record_history":     config.Queue.RecordHistory,
		"queue.check_interval":     config.Queue.CheckInterval.String(),
		"queue.auto_exit_on_empty": config.Queue.AutoExitOnEmpty,
		"queue.empty_wait_time":    config.Queue.EmptyWaitTime.String(),

		"notification.enabled": config.Notification.Enabled,
		"notification.method":  config.Notification.Method,

		"logging.level":       config.Logging.Level,
		"logging.format":      config.Logging.Format,
		"logging.output_path": config.Logging.OutputPath,
	}
}

// expandPaths expands environment variables in path configurations
func expandPaths(config *domain.Config) *domain.Config {
	config.Download.OutputDir = expandPath(config.Download.OutputDir)
	config.Download.LogsDir = expandPath(config.Download.LogsDir)
	config.Queue.DatabasePath = expandPath(config.Queue.DatabasePath)

	if config.Logging.OutputPath != "stdout" && config.Logging.OutputPath != "stderr" {
		config.Logging.OutputPath = expandPath(config.Logging.OutputPath)
	}

	return config
}

// expandPath expands environment variables and ~ in paths
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[2:])
		}
	}

	if strings.Contains(path, "$HOME") {
		if home, err := os.UserHomeDir(); err == nil {
			path = strings.ReplaceAll(path, "$HOME", home)
		}
	}

	return os.ExpandEnv(path)
}

// validateConfig validates the configuration
func validateConfig(config *domain.Config) error {
	if config.Server.Port < 1 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Download.OutputDir == "" {
		return fmt.Errorf("download output directory not configured")
	}

	if config.Download.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}

	if config.Download.ConcurrentLimit < 1 {
		return fmt.Errorf("concurrent limit must be at least 1")
	}

	if config.RTMPDump.Binary == "" {
		return fmt.Errorf("rtmpdump binary not configured")
	}

	if config.RTMPDump.PollInterval <= 0 {
		return fmt.Errorf("rtmpdump poll interval must be positive")
	}

	if config.RTMPDump.FileWaitInterval <= 0 {
		return fmt.Errorf("rtmpdump file wait interval must be positive")
	}

	if config.RTMPDump.MaxPollDuration < 0 {
		return fmt.Errorf("rtmpdump max poll duration cannot be negative")
	}

	if config.Queue.RecordHistory && config.Queue.DatabasePath == "" {
		return fmt.Errorf("history database path not configured")
	}

	if config.Queue.CheckInterval <= 0 {
		return fmt.Errorf("queue check interval must be positive")
	}

	if config.Logging.Level == "" {
		config.Logging.Level = "warn"
	}

	return nil
}

// SaveConfig saves configuration to file
func SaveConfig(config *domain.Config, path string) error {
	v := viper.New()
	v.SetConfigType("yaml")

	for key, value := range configValues(config) {
		v.Set(key, value)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
