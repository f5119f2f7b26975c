package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/alessio/shellescape"
	"go.uber.org/zap"

	"github.com/giserh/videolectures-dl/internal/domain"
	"github.com/giserh/videolectures-dl/pkg/logger"
)

// Verification values the videolectures.net streaming servers check
const (
	PlayerURL      = "http://media.videolectures.net/jw-player/player.swf"
	PlayerChecksum = "e2436d6201f4265a0a0ad974165a3b26a6f302ba8e7cfebd6dfad2cac28105e1"
)

const flvExtension = ".flv"

// downloadState names the phases of one Run call
type downloadState string

const (
	stateIdle                    downloadState = "idle"
	stateToolAvailabilityChecked downloadState = "tool_availability_checked"
	stateSubprocessLaunched      downloadState = "subprocess_launched"
	statePolling                 downloadState = "polling"
	stateFinalizing              downloadState = "finalizing"
)

// RTMPDownloader implements domain.StreamDownloader on top of rtmpdump
type RTMPDownloader struct {
	config   *domain.RTMPDumpConfig
	logsDir  string
	reporter domain.ProgressReporter
	logger   *zap.Logger

	start    func(binary string, args []string, output io.Writer, grace time.Duration) (toolProcess, error)
	probe    func(ctx context.Context, binary string) error
	fileSize func(path string) (int64, bool)
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewRTMPDownloader creates a new rtmpdump downloader. Raw tool output is
// appended to the daily download log in logsDir, or to stderr if logsDir is empty.
func NewRTMPDownloader(config *domain.RTMPDumpConfig, logsDir string, reporter domain.ProgressReporter, logger *zap.Logger) *RTMPDownloader {
	if reporter == nil {
		reporter = NopReporter{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RTMPDownloader{
		config:   config,
		logsDir:  logsDir,
		reporter: reporter,
		logger:   logger,
		start:    startExecProcess,
		probe:    probeTool,
		fileSize: statFileSize,
		sleep:    sleepContext,
	}
}

// ResolveFilename returns the output filename for meta. Either title flag
// selects the page title, otherwise the slug is used. When the selected
// source is empty the basename of the resource path is used instead.
func ResolveFilename(meta *domain.PageMetadata, config domain.DownloadConfig) string {
	name := meta.Slug
	if config.UseTitle || config.UseLiteralTitle {
		name = meta.DisplayTitle
	}
	if name == "" {
		name = meta.BaseFilename
	}
	return name + flvExtension
}

// CheckToolAvailable verifies that rtmpdump can be started
func (d *RTMPDownloader) CheckToolAvailable(ctx context.Context) error {
	if err := d.probe(ctx, d.config.Binary); err != nil {
		d.logger.Error("rtmpdump could not be started",
			zap.String("binary", d.config.Binary),
			zap.Error(err))
		return fmt.Errorf("%w: %v", domain.ErrToolUnavailable, err)
	}
	return nil
}

// Run downloads the stream described by meta and classifies the result
func (d *RTMPDownloader) Run(ctx context.Context, meta *domain.PageMetadata, config domain.DownloadConfig) (domain.DownloadOutcome, error) {
	if meta == nil || !meta.Extracted {
		d.reporter.Error(domain.ErrExtractionFailed.Error())
		return domain.DownloadOutcome{Kind: domain.OutcomeExtractionFailed}, domain.ErrExtractionFailed
	}

	log := d.logger.With(zap.String("url", meta.PageURL))
	d.enter(log, stateIdle)

	filename := filepath.Join(config.OutputDir, ResolveFilename(meta, config))
	d.reporter.Destination(filename)

	if err := d.CheckToolAvailable(ctx); err != nil {
		d.reporter.Error(err.Error())
		return domain.DownloadOutcome{Kind: domain.OutcomeToolUnavailable, FilePath: filename}, err
	}
	d.enter(log, stateToolAvailabilityChecked)

	if err := prepareDestination(filename, config.Overwrite); err != nil {
		d.reporter.Error(err.Error())
		return domain.DownloadOutcome{Kind: domain.OutcomeDestinationExists, FilePath: filename}, err
	}

	args := buildArgs(meta, filename)
	cmdLine := shellescape.QuoteCommand(append([]string{d.config.Binary}, args...))

	output, closeOutput, err := d.openOutput()
	if err != nil {
		return domain.DownloadOutcome{Kind: domain.OutcomeToolFailed, FilePath: filename, ExitCode: -1},
			fmt.Errorf("failed to open log file: %w", err)
	}
	defer closeOutput()
	writeLogHeader(output, meta.PageURL, cmdLine)

	proc, err := d.start(d.config.Binary, args, output, d.config.TerminateGrace)
	if err != nil {
		err = fmt.Errorf("%w: %v", domain.ErrToolUnavailable, err)
		writeLogFooter(output, false, err.Error())
		d.reporter.Error(err.Error())
		return domain.DownloadOutcome{Kind: domain.OutcomeToolUnavailable, FilePath: filename}, err
	}
	d.enter(log, stateSubprocessLaunched)
	log.Info("rtmpdump started", zap.String("command", cmdLine))

	d.enter(log, statePolling)
	stalled := d.poll(ctx, proc, filename, log)

	d.enter(log, stateFinalizing)
	code, waitErr := proc.Wait(ctx)
	log.Info("rtmpdump exited", zap.Int("exit_code", code), zap.Bool("stall_break", stalled))

	if waitErr != nil {
		if ctx.Err() != nil {
			waitErr = fmt.Errorf("download interrupted: %w", waitErr)
		} else {
			waitErr = fmt.Errorf("failed to wait for rtmpdump: %w", waitErr)
		}
		writeLogFooter(output, false, waitErr.Error())
		d.reporter.Error(waitErr.Error())
		return domain.DownloadOutcome{Kind: domain.OutcomeToolFailed, FilePath: filename, ExitCode: code}, waitErr
	}

	if code != 0 {
		toolErr := &domain.ToolFailedError{ExitCode: code}
		writeLogFooter(output, false, toolErr.Error())
		d.reporter.Error(toolErr.Error())
		return domain.DownloadOutcome{Kind: domain.OutcomeToolFailed, FilePath: filename, ExitCode: code}, toolErr
	}

	size, _ := d.fileSize(filename)
	writeLogFooter(output, true, fmt.Sprintf("Downloaded: %s (%d bytes)", filename, size))
	d.reporter.Done(size)
	d.reporter.Complete()

	return domain.DownloadOutcome{Kind: domain.OutcomeSuccess, FilePath: filename, BytesWritten: size}, nil
}

// poll watches the output file until the tool exits or the file stops
// growing. It returns true when it stopped because of a stall.
func (d *RTMPDownloader) poll(ctx context.Context, proc toolProcess, filename string, log *zap.Logger) bool {
	var elapsed time.Duration

	for {
		if proc.Exited() || ctx.Err() != nil {
			return false
		}
		if d.config.MaxPollDuration > 0 && elapsed >= d.config.MaxPollDuration {
			log.Warn("rtmpdump exceeded maximum download duration, terminating",
				zap.Duration("max_poll_duration", d.config.MaxPollDuration))
			proc.Terminate()
			return false
		}

		prevSize, exists := d.fileSize(filename)
		if !exists {
			// rtmpdump has not created the file yet. Unlike an immediate
			// re-check, this consumes one FileWaitInterval sleep.
			if err := d.sleep(ctx, d.config.FileWaitInterval); err != nil {
				return false
			}
			elapsed += d.config.FileWaitInterval
			continue
		}

		d.reporter.Progress(prevSize)
		if err := d.sleep(ctx, d.config.PollInterval); err != nil {
			return false
		}
		elapsed += d.config.PollInterval

		curSize, _ := d.fileSize(filename)
		if prevSize != 0 && prevSize == curSize {
			log.Debug("Output file stopped growing", zap.Int64("bytes", curSize))
			return true
		}
	}
}

func (d *RTMPDownloader) enter(log *zap.Logger, state downloadState) {
	log.Debug("Download state", zap.String("state", string(state)))
}

// openOutput opens the destination for raw rtmpdump output
func (d *RTMPDownloader) openOutput() (io.Writer, func(), error) {
	if d.logsDir == "" {
		return os.Stderr, func() {}, nil
	}
	file, err := openDownloadLog(d.logsDir)
	if err != nil {
		return nil, nil, err
	}
	return file, func() { file.Close() }, nil
}

// buildArgs returns the rtmpdump argument list
func buildArgs(meta *domain.PageMetadata, filename string) []string {
	return []string{
		"-q",
		"-r", meta.StreamServer,
		"-y", meta.ResourcePath,
		"-a", "video",
		"-s", PlayerURL,
		"-w", PlayerChecksum,
		"-o", filename,
	}
}

// prepareDestination refuses to clobber an existing file unless overwrite is set
func prepareDestination(filename string, overwrite bool) error {
	if !fileExists(filename) {
		return os.MkdirAll(filepath.Dir(filename), 0755)
	}
	if !overwrite {
		return fmt.Errorf("%w: %s", domain.ErrDestinationExists, filename)
	}
	if err := os.Remove(filename); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove existing file: %w", err)
	}
	return nil
}

// openDownloadLog opens the download log file for today
func openDownloadLog(logsDir string) (*os.File, error) {
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create logs directory: %w", err)
	}

	downloadPath := logger.CategoryLogPath(logsDir, logger.CategoryDownload, time.Now())
	return os.OpenFile(downloadPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
}

// writeLogHeader writes the download start marker
func writeLogHeader(w io.Writer, pageURL, cmdLine string) {
	timestamp := time.Now().Format("2006-01-02 15:04:05")
	fmt.Fprintf(w, "\n=== [%s] Download: %s ===\n", timestamp, pageURL)
	fmt.Fprintf(w, "$ %s\n", cmdLine)
}

// writeLogFooter writes the download end marker
func writeLogFooter(w io.Writer, success bool, message string) {
	timestamp := time.Now().Format("2006-01-02 15:04:05")
	status := "SUCCESS"
	if !success {
		status = "FAILED"
	}
	fmt.Fprintf(w, "[%s] %s: %s\n", timestamp, status, message)
	fmt.Fprint(w, "=== END ===\n\n")
}

// statFileSize returns the size of path and whether it exists
func statFileSize(path string) (int64, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, false
	}
	return info.Size(), true
}

// sleepContext sleeps for d or until ctx is done
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// fileExists checks if a file exists
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
