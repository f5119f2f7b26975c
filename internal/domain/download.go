package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DownloadStatus represents the current status of a download
type DownloadStatus string

const (
	StatusQueued     DownloadStatus = "queued"
	StatusProcessing DownloadStatus = "processing"
	StatusCompleted  DownloadStatus = "completed"
	StatusFailed     DownloadStatus = "failed"
	StatusCancelled  DownloadStatus = "cancelled"
)

// Download is the persisted history record of one requested video
type Download struct {
	ID           string         `json:"id" gorm:"primaryKey"`
	URL          string         `json:"url" gorm:"not null;index"`
	Status       DownloadStatus `json:"status" gorm:"not null;index"`
	Title        string         `json:"title,omitempty"`
	Slug         string         `json:"slug,omitempty"`
	FilePath     string         `json:"file_path,omitempty"`
	Outcome      OutcomeKind    `json:"outcome,omitempty"`
	BytesWritten int64          `json:"bytes_written"`
	ExitCode     int            `json:"exit_code"`
	Priority     int            `json:"priority" gorm:"default:0;index"`
	RetryCount   int            `json:"retry_count" gorm:"default:0"`
	ErrorMessage string         `json:"error_message,omitempty"`
	CreatedAt    time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt    time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	StartedAt    *time.Time     `json:"started_at,omitempty"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
}

// NewDownload creates a new download record
func NewDownload(url string) *Download {
	return &Download{
		ID:        uuid.New().String(),
		URL:       url,
		Status:    StatusQueued,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
}

// MarkProcessing marks the download as processing
func (d *Download) MarkProcessing() {
	d.Status = StatusProcessing
	now := time.Now()
	d.StartedAt = &now
	d.UpdatedAt = now
}

// ApplyMetadata copies the user-visible parts of the page metadata
func (d *Download) ApplyMetadata(meta *PageMetadata) {
	if meta == nil {
		return
	}
	d.Title = meta.DisplayTitle
	d.Slug = meta.Slug
}

// ApplyOutcome records the classified result of a download attempt
func (d *Download) ApplyOutcome(outcome DownloadOutcome) {
	d.Outcome = outcome.Kind
	d.ExitCode = outcome.ExitCode
	if outcome.FilePath != "" {
		d.FilePath = outcome.FilePath
	}
	if outcome.BytesWritten > 0 {
		d.BytesWritten = outcome.BytesWritten
	}
}

// MarkCompleted marks the download as completed
func (d *Download) MarkCompleted(filePath string, bytesWritten int64) {
	d.Status = StatusCompleted
	d.FilePath = filePath
	d.BytesWritten = bytesWritten
	d.ErrorMessage = ""
	now := time.Now()
	d.CompletedAt = &now
	d.UpdatedAt = now
}

// MarkFailed marks the download as failed
func (d *Download) MarkFailed(err error) {
	d.Status = StatusFailed
	d.ErrorMessage = err.Error()
	d.UpdatedAt = time.Now()
}

// MarkCancelled marks the download as cancelled
func (d *Download) MarkCancelled() {
	d.Status = StatusCancelled
	d.UpdatedAt = time.Now()
}

// ResetForRetry puts a failed or cancelled download back in the queue
func (d *Download) ResetForRetry() error {
	switch d.Status {
	case StatusQueued:
		return errors.New("download is already queued")
	case StatusProcessing:
		return errors.New("download is currently processing")
	case StatusCompleted:
		return errors.New("download already completed")
	}
	d.Status = StatusQueued
	d.RetryCount = 0
	d.ErrorMessage = ""
	d.Outcome = ""
	d.ExitCode = 0
	d.StartedAt = nil
	d.CompletedAt = nil
	d.UpdatedAt = time.Now()
	return nil
}

// IncrementRetry increments the retry count
func (d *Download) IncrementRetry() {
	d.RetryCount++
	d.UpdatedAt = time.Now()
}

// CanRetry checks if the download can be retried
func (d *Download) CanRetry(maxRetries int) bool {
	return d.RetryCount < maxRetries && d.Status == StatusFailed
}

// IsTerminal checks if the download is in a terminal state
func (d *Download) IsTerminal() bool {
	return d.Status == StatusCompleted || d.Status == StatusCancelled
}

// IsPending checks if the download is pending
func (d *Download) IsPending() bool {
	return d.Status == StatusQueued
}

// IsProcessing checks if the download is currently processing
func (d *Download) IsProcessing() bool {
	return d.Status == StatusProcessing
}

// ValidateStatus checks if a status filter value is known
func ValidateStatus(status string) bool {
	switch DownloadStatus(strings.ToLower(status)) {
	case StatusQueued, StatusProcessing, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}
