package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/giserh/videolectures-dl/internal/app"
	"github.com/giserh/videolectures-dl/internal/domain"
	"github.com/giserh/videolectures-dl/internal/extractor"
	"github.com/giserh/videolectures-dl/internal/infrastructure"
	"github.com/giserh/videolectures-dl/pkg/logger"
)

// errReported is returned by commands whose failure was already shown to
// the user
var errReported = errors.New("failure already reported")

var (
	configPath   string
	useTitle     bool
	literalTitle bool
	overwrite    bool
	outputDir    string
	rtmpdumpPath string
	noHistory    bool

	rootCmd = &cobra.Command{
		Use:   "videolectures-dl [flags] video_url",
		Short: "Download videos from videolectures.net",
		Long: `Fetches a videolectures.net page, extracts the RTMP stream location
and saves the stream to an .flv file with rtmpdump.`,
		Args:          cobra.MaximumNArgs(1),
		Version:       domain.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE:          runDownload,
	}
)

func init() {
	rootCmd.SetVersionTemplate("{{.Version}}\n")

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: ./configs/config.yaml or $HOME/.videolectures-dl/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&rtmpdumpPath, "rtmpdump", "", "Path to the rtmpdump binary")

	rootCmd.Flags().BoolVarP(&useTitle, "title", "t", false, "Use the lecture title in the file name")
	rootCmd.Flags().BoolVarP(&literalTitle, "literal", "l", false, "Use the literal lecture title in the file name")
	rootCmd.Flags().BoolVarP(&overwrite, "overwrite", "w", false, "Overwrite an existing file")
	rootCmd.Flags().StringVarP(&outputDir, "output-dir", "o", "", "Directory to save the video in")
	rootCmd.Flags().BoolVar(&noHistory, "no-history", false, "Do not record the download in the history database")
	rootCmd.Flags().BoolP("version", "v", false, "Print the program version and exit")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(configCmd)
}

// loadConfig reads the configuration and applies command-line overrides
func loadConfig(cmd *cobra.Command) (*domain.Config, error) {
	cfg, err := app.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if useTitle {
		cfg.Download.UseTitle = true
	}
	if literalTitle {
		cfg.Download.UseLiteralTitle = true
	}
	if overwrite {
		cfg.Download.Overwrite = true
	}
	if flags.Changed("output-dir") {
		cfg.Download.OutputDir = outputDir
	}
	if rtmpdumpPath != "" {
		cfg.RTMPDump.Binary = rtmpdumpPath
	}
	if noHistory {
		cfg.Queue.RecordHistory = false
	}

	return cfg, nil
}

// openHistory opens the history database, creating its directory if needed
func openHistory(cfg *domain.Config) (*infrastructure.SQLiteDownloadRepository, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Queue.DatabasePath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	return infrastructure.NewSQLiteDownloadRepository(cfg.Queue.DatabasePath)
}

func runDownload(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		_ = cmd.Help()
		return errReported
	}
	url := args[0]

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	log, err := logger.New(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: cfg.Logging.OutputPath,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	reporter := infrastructure.NewConsoleReporter(os.Stdout, os.Stderr)
	ext := extractor.NewVideoLecturesExtractor(&cfg.Fetch, reporter, log)
	if err := ext.Validate(url); err != nil {
		reporter.Error(err.Error())
		return errReported
	}
	downloader := infrastructure.NewRTMPDownloader(&cfg.RTMPDump, cfg.Download.LogsDir, reporter, log)
	notifier := infrastructure.NewNotificationService(&cfg.Notification, log)

	download := domain.NewDownload(url)

	var repo domain.DownloadRepository
	if cfg.Queue.RecordHistory {
		history, err := openHistory(cfg)
		if err != nil {
			log.Warn("History disabled", zap.Error(err))
		} else {
			defer history.Close()
			if err := history.Create(download); err != nil {
				log.Warn("Failed to record download", zap.Error(err))
			} else {
				repo = history
			}
		}
	}

	downloadMgr := app.NewDownloadManager(repo, ext, downloader, reporter, notifier, &cfg.Download, log)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// failures have already been written to the reporter
	if _, err := downloadMgr.ProcessDownload(ctx, download); err != nil {
		log.Debug("Download failed", zap.Error(err))
		return errReported
	}

	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		}
		os.Exit(1)
	}
}
