package app

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/giserh/videolectures-dl/internal/domain"
	"github.com/giserh/videolectures-dl/pkg/logger"
)

// QueueManager feeds queued downloads from the history database to the
// download manager in serve mode
type QueueManager struct {
	repo        domain.DownloadRepository
	downloadMgr *DownloadManager
	extractor   domain.PageExtractor
	config      *domain.QueueConfig
	multiLogger *logger.MultiLogger

	mu         sync.Mutex
	running    bool
	cancel     context.CancelFunc
	dispatched map[string]bool
	wake       chan struct{}
	exited     chan struct{}
	workerWg   sync.WaitGroup
}

// NewQueueManager creates a new queue manager
func NewQueueManager(
	repo domain.DownloadRepository,
	downloadMgr *DownloadManager,
	extractor domain.PageExtractor,
	config *domain.QueueConfig,
	multiLogger *logger.MultiLogger,
) *QueueManager {
	return &QueueManager{
		repo:        repo,
		downloadMgr: downloadMgr,
		extractor:   extractor,
		config:      config,
		multiLogger: multiLogger,
		dispatched:  make(map[string]bool),
		wake:        make(chan struct{}, 1),
		exited:      make(chan struct{}),
	}
}

// Start requeues orphaned downloads and starts the queue processor
func (qm *QueueManager) Start(ctx context.Context) error {
	qm.mu.Lock()
	if qm.running {
		qm.mu.Unlock()
		return fmt.Errorf("queue manager already running")
	}
	qm.running = true
	ctx, qm.cancel = context.WithCancel(ctx)
	qm.mu.Unlock()

	reset, err := qm.repo.ResetOrphanedProcessing()
	if err != nil {
		qm.logError("Failed to reset orphaned downloads", zap.Error(err))
	} else if reset > 0 {
		qm.logEvent("orphaned_downloads_requeued", zap.Int64("count", reset))
	}

	qm.logEvent("queue_started")

	qm.workerWg.Add(1)
	go qm.processQueue(ctx)

	return nil
}

// Stop stops the queue processor and cancels running downloads
func (qm *QueueManager) Stop() error {
	qm.mu.Lock()
	if !qm.running {
		qm.mu.Unlock()
		return fmt.Errorf("queue manager not running")
	}
	qm.running = false
	cancel := qm.cancel
	qm.mu.Unlock()

	qm.logEvent("queue_stopped")
	cancel()
	qm.workerWg.Wait()

	return nil
}

// IsRunning returns whether the queue manager is running
func (qm *QueueManager) IsRunning() bool {
	qm.mu.Lock()
	defer qm.mu.Unlock()
	return qm.running
}

// WaitForExit returns a channel that is closed when the processor exits on
// its own because the queue stayed empty
func (qm *QueueManager) WaitForExit() <-chan struct{} {
	return qm.exited
}

// AddDownload validates url and queues it. A URL that is already queued,
// processing, or completed with its file still on disk returns the
// existing record.
func (qm *QueueManager) AddDownload(url string, priority int) (*domain.Download, error) {
	if err := qm.extractor.Validate(url); err != nil {
		return nil, err
	}

	existing, err := qm.repo.FindByURL(url, []domain.DownloadStatus{
		domain.StatusQueued,
		domain.StatusProcessing,
		domain.StatusCompleted,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to check existing downloads: %w", err)
	}
	if existing != nil {
		if existing.Status != domain.StatusCompleted || fileExists(existing.FilePath) {
			qm.logEvent("download_duplicate",
				zap.String("id", existing.ID),
				zap.String("url", url),
				zap.String("status", string(existing.Status)))
			return existing, nil
		}
	}

	download := domain.NewDownload(url)
	download.Priority = priority

	if err := qm.repo.Create(download); err != nil {
		return nil, fmt.Errorf("failed to create download: %w", err)
	}

	qm.logEvent("download_added",
		zap.String("id", download.ID),
		zap.String("url", url))
	if qm.downloadMgr != nil && qm.downloadMgr.notifier != nil {
		qm.downloadMgr.notifier.NotifyDownloadQueued(url)
	}
	qm.Wake()

	return download, nil
}

// Wake makes the processor check the queue without waiting for the next tick
func (qm *QueueManager) Wake() {
	select {
	case qm.wake <- struct{}{}:
	default:
	}
}

// GetDownload retrieves a download by ID
func (qm *QueueManager) GetDownload(id string) (*domain.Download, error) {
	download, err := qm.repo.FindByID(id)
	if err != nil || download == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrDownloadNotFound, id)
	}
	return download, nil
}

// ListDownloads lists all downloads with optional filters
func (qm *QueueManager) ListDownloads(filters map[string]interface{}) ([]*domain.Download, error) {
	return qm.repo.FindAll(filters)
}

// DeleteDownload removes a download that is not currently running
func (qm *QueueManager) DeleteDownload(id string) error {
	download, err := qm.repo.FindByID(id)
	if err != nil || download == nil {
		return fmt.Errorf("%w: %s", domain.ErrDownloadNotFound, id)
	}
	if download.IsProcessing() {
		return fmt.Errorf("download is currently processing")
	}
	if err := qm.repo.Delete(id); err != nil {
		return fmt.Errorf("failed to delete download: %w", err)
	}
	qm.logEvent("download_deleted", zap.String("id", id))
	return nil
}

// GetStats returns queue statistics
func (qm *QueueManager) GetStats() (*domain.DownloadStats, error) {
	return qm.repo.GetStats()
}

// processQueue dispatches pending downloads until stopped
func (qm *QueueManager) processQueue(ctx context.Context) {
	defer qm.workerWg.Done()

	ticker := time.NewTicker(qm.config.CheckInterval)
	defer ticker.Stop()

	emptySince := time.Time{}

	for {
		select {
		case <-ctx.Done():
			qm.logEvent("queue_processor_stopped", zap.String("reason", "context_cancelled"))
			return
		case <-ticker.C:
		case <-qm.wake:
		}

		pending, err := qm.repo.FindPending()
		if err != nil {
			qm.logError("Failed to fetch pending downloads", zap.Error(err))
			continue
		}

		if len(pending) == 0 && qm.inFlight() == 0 {
			if emptySince.IsZero() {
				emptySince = time.Now()
				qm.logEvent("queue_empty")
				if qm.downloadMgr != nil && qm.downloadMgr.notifier != nil {
					qm.downloadMgr.notifier.NotifyQueueEmpty()
				}
			} else if qm.config.AutoExitOnEmpty && time.Since(emptySince) > qm.config.EmptyWaitTime {
				qm.logEvent("queue_auto_exit", zap.String("reason", "empty_timeout"))
				close(qm.exited)
				return
			}
			continue
		}
		emptySince = time.Time{}

		for _, download := range pending {
			if !qm.markDispatched(download.ID) {
				continue
			}

			qm.logEvent("download_started",
				zap.String("id", download.ID),
				zap.String("url", download.URL))

			// the semaphore in DownloadManager bounds actual concurrency
			qm.workerWg.Add(1)
			go func(download *domain.Download) {
				defer qm.workerWg.Done()
				defer qm.clearDispatched(download.ID)

				if _, err := qm.downloadMgr.ProcessDownload(ctx, download); err != nil {
					qm.logEvent("download_failed",
						zap.String("id", download.ID),
						zap.String("status", string(download.Status)),
						zap.Error(err))
					qm.logError("Failed to process download",
						zap.String("id", download.ID),
						zap.Error(err))
					return
				}
				qm.logEvent("download_completed",
					zap.String("id", download.ID),
					zap.String("file_path", download.FilePath),
					zap.Int64("bytes", download.BytesWritten))
			}(download)
		}
	}
}

// markDispatched records id as handed to a worker. It returns false if it
// already was.
func (qm *QueueManager) markDispatched(id string) bool {
	qm.mu.Lock()
	defer qm.mu.Unlock()
	if qm.dispatched[id] {
		return false
	}
	qm.dispatched[id] = true
	return true
}

func (qm *QueueManager) clearDispatched(id string) {
	qm.mu.Lock()
	delete(qm.dispatched, id)
	qm.mu.Unlock()
}

func (qm *QueueManager) inFlight() int {
	qm.mu.Lock()
	defer qm.mu.Unlock()
	return len(qm.dispatched)
}

func (qm *QueueManager) logEvent(event string, fields ...zap.Field) {
	if qm.multiLogger != nil {
		qm.multiLogger.LogQueueEvent(event, fields...)
	}
}

func (qm *QueueManager) logError(msg string, fields ...zap.Field) {
	if qm.multiLogger != nil {
		qm.multiLogger.LogAppError(msg, fields...)
	}
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}
