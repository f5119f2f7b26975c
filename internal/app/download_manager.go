package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/giserh/videolectures-dl/internal/domain"
	"github.com/giserh/videolectures-dl/internal/infrastructure"
)

var errCancelledByUser = errors.New("download cancelled")

// DownloadManager runs the fetch and download pipeline for one download at
// a time per semaphore slot and records the result in the history
type DownloadManager struct {
	repo       domain.DownloadRepository // nil disables history
	extractor  domain.PageExtractor
	downloader domain.StreamDownloader
	reporter   domain.ProgressReporter
	notifier   *infrastructure.NotificationService
	config     *domain.DownloadConfig
	logger     *zap.Logger
	semaphore  chan struct{}
	mu         sync.Mutex
	active     map[string]context.CancelCauseFunc
}

// NewDownloadManager creates a new download manager
func NewDownloadManager(
	repo domain.DownloadRepository,
	extractor domain.PageExtractor,
	downloader domain.StreamDownloader,
	reporter domain.ProgressReporter,
	notifier *infrastructure.NotificationService,
	config *domain.DownloadConfig,
	logger *zap.Logger,
) *DownloadManager {
	if reporter == nil {
		reporter = infrastructure.NopReporter{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := config.ConcurrentLimit
	if limit < 1 {
		limit = 1
	}

	return &DownloadManager{
		repo:       repo,
		extractor:  extractor,
		downloader: downloader,
		reporter:   reporter,
		notifier:   notifier,
		config:     config,
		logger:     logger,
		semaphore:  make(chan struct{}, limit),
		active:     make(map[string]context.CancelCauseFunc),
	}
}

// ProcessDownload fetches the page of a download and saves its stream.
// Retryable failures are repeated up to MaxRetries times.
func (dm *DownloadManager) ProcessDownload(ctx context.Context, download *domain.Download) (domain.DownloadOutcome, error) {
	select {
	case dm.semaphore <- struct{}{}:
		defer func() { <-dm.semaphore }()
	case <-ctx.Done():
		return domain.DownloadOutcome{}, ctx.Err()
	}

	dlCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	// it may have been cancelled while waiting for a slot
	if !dm.trackUnlessCancelled(download.ID, cancel) {
		return domain.DownloadOutcome{}, errCancelledByUser
	}
	defer dm.untrack(download.ID)

	log := dm.logger.With(zap.String("id", download.ID), zap.String("url", download.URL))
	log.Info("Processing download")

	download.MarkProcessing()
	dm.save(download)
	if dm.notifier != nil {
		dm.notifier.NotifyDownloadStarted(download)
	}

	var outcome domain.DownloadOutcome
	var lastErr error
	for attempt := 0; attempt <= dm.config.MaxRetries; attempt++ {
		if attempt > 0 {
			log.Info("Retrying download",
				zap.Int("attempt", attempt),
				zap.Int("max_retries", dm.config.MaxRetries))

			select {
			case <-time.After(dm.config.RetryDelay):
			case <-dlCtx.Done():
			}
			if dlCtx.Err() != nil {
				break
			}

			download.IncrementRetry()
			dm.save(download)

			if outcome.Kind == domain.OutcomeToolFailed {
				removePartialFile(outcome.FilePath, log)
			}
		}

		outcome, lastErr = dm.attempt(dlCtx, download)
		if lastErr == nil {
			download.MarkCompleted(outcome.FilePath, outcome.BytesWritten)
			dm.save(download)

			log.Info("Download completed",
				zap.String("file", outcome.FilePath),
				zap.Int64("bytes", outcome.BytesWritten))
			if dm.notifier != nil {
				dm.notifier.NotifyDownloadCompleted(download)
			}
			return outcome, nil
		}

		log.Warn("Download attempt failed", zap.Int("attempt", attempt), zap.Error(lastErr))
		if dlCtx.Err() != nil || !domain.IsRetryable(lastErr) {
			break
		}
	}

	if errors.Is(context.Cause(dlCtx), errCancelledByUser) {
		download.MarkCancelled()
		dm.save(download)
		log.Info("Download cancelled")
		return outcome, errCancelledByUser
	}

	if lastErr == nil {
		lastErr = dlCtx.Err()
	}
	download.MarkFailed(lastErr)
	dm.save(download)

	log.Error("Download failed", zap.String("outcome", string(outcome.Kind)), zap.Error(lastErr))
	if dm.notifier != nil {
		dm.notifier.NotifyDownloadFailed(download, lastErr)
	}
	return outcome, lastErr
}

// attempt runs one fetch and one download
func (dm *DownloadManager) attempt(ctx context.Context, download *domain.Download) (domain.DownloadOutcome, error) {
	meta, err := dm.extractor.Fetch(ctx, download.URL)
	if err != nil {
		dm.reporter.Error(err.Error())
		return domain.DownloadOutcome{}, err
	}
	download.ApplyMetadata(meta)

	outcome, err := dm.downloader.Run(ctx, meta, *dm.config)
	download.ApplyOutcome(outcome)
	return outcome, err
}

// CancelDownload cancels a queued or running download
func (dm *DownloadManager) CancelDownload(id string) error {
	// held until the record is updated so ProcessDownload cannot pick it up in between
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if cancel, running := dm.active[id]; running {
		cancel(errCancelledByUser)
		dm.logger.Info("Cancelling running download", zap.String("id", id))
		return nil
	}

	if dm.repo == nil {
		return fmt.Errorf("%w: %s", domain.ErrDownloadNotFound, id)
	}

	download, err := dm.repo.FindByID(id)
	if err != nil || download == nil {
		return fmt.Errorf("%w: %s", domain.ErrDownloadNotFound, id)
	}

	if download.IsTerminal() {
		return fmt.Errorf("download already in terminal state: %s", download.Status)
	}

	download.MarkCancelled()
	if err := dm.repo.Update(download); err != nil {
		return fmt.Errorf("failed to update download: %w", err)
	}

	dm.logger.Info("Download cancelled", zap.String("id", id))
	return nil
}

// RetryDownload puts a failed or cancelled download back in the queue
func (dm *DownloadManager) RetryDownload(id string) (*domain.Download, error) {
	if dm.repo == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrDownloadNotFound, id)
	}
	download, err := dm.repo.FindByID(id)
	if err != nil || download == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrDownloadNotFound, id)
	}

	previous := domain.DownloadOutcome{Kind: download.Outcome, FilePath: download.FilePath}
	if err := download.ResetForRetry(); err != nil {
		return nil, err
	}
	// a failed rtmpdump run leaves its partial file behind
	if previous.Kind == domain.OutcomeToolFailed {
		removePartialFile(previous.FilePath, dm.logger.With(zap.String("id", id)))
	}

	if err := dm.repo.Update(download); err != nil {
		return nil, fmt.Errorf("failed to update download: %w", err)
	}

	dm.logger.Info("Download queued for retry", zap.String("id", id))
	return download, nil
}

// IsActive reports whether a download is currently being processed
func (dm *DownloadManager) IsActive(id string) bool {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	_, ok := dm.active[id]
	return ok
}

// trackUnlessCancelled registers cancel for id. It returns false without
// registering when the stored record is already cancelled.
func (dm *DownloadManager) trackUnlessCancelled(id string, cancel context.CancelCauseFunc) bool {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if dm.repo != nil {
		if current, err := dm.repo.FindByID(id); err == nil && current != nil && current.Status == domain.StatusCancelled {
			return false
		}
	}
	dm.active[id] = cancel
	return true
}

func (dm *DownloadManager) untrack(id string) {
	dm.mu.Lock()
	delete(dm.active, id)
	dm.mu.Unlock()
}

// save persists the download when history is enabled
func (dm *DownloadManager) save(download *domain.Download) {
	if dm.repo == nil {
		return
	}
	if err := dm.repo.Update(download); err != nil {
		dm.logger.Error("Failed to update download status",
			zap.String("id", download.ID),
			zap.Error(err))
	}
}

// removePartialFile deletes the output of a failed attempt so the next one
// is not refused as an existing destination
func removePartialFile(path string, log *zap.Logger) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("Failed to remove partial file", zap.String("file", path), zap.Error(err))
		return
	}
	log.Debug("Removed partial file", zap.String("file", path))
}
