package domain

import "time"

// Config represents the application configuration
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Download     DownloadConfig     `mapstructure:"download"`
	Fetch        FetchConfig        `mapstructure:"fetch"`
	RTMPDump     RTMPDumpConfig     `mapstructure:"rtmpdump"`
	Queue        QueueConfig        `mapstructure:"queue"`
	Notification NotificationConfig `mapstructure:"notification"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// ServerConfig contains configuration for serve mode
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// DownloadConfig controls how a single download is named and written.
// UseTitle and UseLiteralTitle currently select the same filename source.
type DownloadConfig struct {
	UseTitle         bool          `mapstructure:"use_title"`
	UseLiteralTitle  bool          `mapstructure:"use_literal_title"`
	Overwrite        bool          `mapstructure:"overwrite"`
	OutputDir        string        `mapstructure:"output_dir"`
	LogsDir          string        `mapstructure:"logs_dir"`
	MaxRetries       int           `mapstructure:"max_retries"`
	RetryDelay       time.Duration `mapstructure:"retry_delay"`
	ConcurrentLimit  int           `mapstructure:"concurrent_limit"`
	AutoStartWorkers bool          `mapstructure:"auto_start_workers"`
}

// FetchConfig contains page fetch configuration
type FetchConfig struct {
	Timeout   time.Duration `mapstructure:"timeout"`
	UserAgent string        `mapstructure:"user_agent"`
}

// RTMPDumpConfig contains configuration of the external download tool
type RTMPDumpConfig struct {
	Binary           string        `mapstructure:"binary"`
	PollInterval     time.Duration `mapstructure:"poll_interval"`
	FileWaitInterval time.Duration `mapstructure:"file_wait_interval"`
	MaxPollDuration  time.Duration `mapstructure:"max_poll_duration"` // 0 disables the cap
	TerminateGrace   time.Duration `mapstructure:"terminate_grace"`
}

// QueueConfig contains history database and serve-mode queue configuration
type QueueConfig struct {
	DatabasePath    string        `mapstructure:"database_path"`
	RecordHistory   bool          `mapstructure:"record_history"`
	CheckInterval   time.Duration `mapstructure:"check_interval"`
	AutoExitOnEmpty bool          `mapstructure:"auto_exit_on_empty"`
	EmptyWaitTime   time.Duration `mapstructure:"empty_wait_time"`
}

// NotificationConfig contains notification-related configuration
type NotificationConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Method  string `mapstructure:"method"` // osascript, notify-send
}

// LoggingConfig contains logging-related configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`      // json, console
	OutputPath string `mapstructure:"output_path"` // stdout, stderr, or file path
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "localhost",
			Port: 8080,
		},
		Download: DownloadConfig{
			OutputDir:        ".",
			LogsDir:          "$HOME/.videolectures-dl/logs",
			MaxRetries:       0,
			RetryDelay:       30 * time.Second,
			ConcurrentLimit:  1,
			AutoStartWorkers: true,
		},
		Fetch: FetchConfig{
			Timeout:   60 * time.Second,
			UserAgent: "videolectures-dl/" + Version,
		},
		RTMPDump: RTMPDumpConfig{
			Binary:           "rtmpdump",
			PollInterval:     2 * time.Second,
			FileWaitInterval: 100 * time.Millisecond,
			MaxPollDuration:  6 * time.Hour,
			TerminateGrace:   2 * time.Second,
		},
		Queue: QueueConfig{
			DatabasePath:    "$HOME/.videolectures-dl/history.db",
			RecordHistory:   true,
			CheckInterval:   10 * time.Second,
			AutoExitOnEmpty: false,
			EmptyWaitTime:   5 * time.Minute,
		},
		Notification: NotificationConfig{
			Enabled: false,
			Method:  "notify-send",
		},
		Logging: LoggingConfig{
			Level:      "warn",
			Format:     "console",
			OutputPath: "stderr",
		},
	}
}

// Version is the program version reported by --version and the API
const Version = "2011.03.30-go"
