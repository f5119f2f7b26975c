package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDownload(t *testing.T) {
	url := "http://videolectures.net/some_lecture/"

	download := NewDownload(url)

	assert.NotEmpty(t, download.ID)
	assert.Equal(t, url, download.URL)
	assert.Equal(t, StatusQueued, download.Status)
	assert.Equal(t, 0, download.Priority)
	assert.Equal(t, 0, download.RetryCount)
}

func TestDownload_MarkProcessing(t *testing.T) {
	download := NewDownload("http://videolectures.net/test/")

	download.MarkProcessing()

	assert.Equal(t, StatusProcessing, download.Status)
	assert.NotNil(t, download.StartedAt)
}

func TestDownload_MarkCompleted(t *testing.T) {
	download := NewDownload("http://videolectures.net/test/")
	download.ErrorMessage = "previous attempt failed"

	download.MarkCompleted("/videos/My Talk.flv", 250)

	assert.Equal(t, StatusCompleted, download.Status)
	assert.Equal(t, "/videos/My Talk.flv", download.FilePath)
	assert.Equal(t, int64(250), download.BytesWritten)
	assert.Empty(t, download.ErrorMessage)
	assert.NotNil(t, download.CompletedAt)
}

func TestDownload_MarkFailed(t *testing.T) {
	download := NewDownload("http://videolectures.net/test/")

	download.MarkFailed(errors.New("download failed"))

	assert.Equal(t, StatusFailed, download.Status)
	assert.Equal(t, "download failed", download.ErrorMessage)
}

func TestDownload_ApplyMetadataAndOutcome(t *testing.T) {
	download := NewDownload("http://videolectures.net/test/")

	download.ApplyMetadata(&PageMetadata{DisplayTitle: "My Talk", Slug: "xyz123"})
	download.ApplyOutcome(DownloadOutcome{Kind: OutcomeToolFailed, FilePath: "My Talk.flv", ExitCode: 2})

	assert.Equal(t, "My Talk", download.Title)
	assert.Equal(t, "xyz123", download.Slug)
	assert.Equal(t, OutcomeToolFailed, download.Outcome)
	assert.Equal(t, 2, download.ExitCode)
	assert.Equal(t, "My Talk.flv", download.FilePath)

	download.ApplyMetadata(nil)
	assert.Equal(t, "My Talk", download.Title)
}

func TestDownload_ResetForRetry(t *testing.T) {
	tests := []struct {
		status  DownloadStatus
		wantErr string
	}{
		{StatusFailed, ""},
		{StatusCancelled, ""},
		{StatusQueued, "already queued"},
		{StatusProcessing, "currently processing"},
		{StatusCompleted, "already completed"},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			download := NewDownload("http://videolectures.net/test/")
			download.Status = tt.status
			download.RetryCount = 2
			download.ErrorMessage = "boom"

			err := download.ResetForRetry()
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, StatusQueued, download.Status)
			assert.Equal(t, 0, download.RetryCount)
			assert.Empty(t, download.ErrorMessage)
			assert.Nil(t, download.StartedAt)
		})
	}
}

func TestDownload_CanRetry(t *testing.T) {
	download := NewDownload("http://videolectures.net/test/")
	download.Status = StatusFailed

	assert.True(t, download.CanRetry(3))

	download.RetryCount = 3
	assert.False(t, download.CanRetry(3))

	download.RetryCount = 0
	download.Status = StatusCompleted
	assert.False(t, download.CanRetry(3))
}

func TestDownload_IsTerminal(t *testing.T) {
	download := NewDownload("http://videolectures.net/test/")

	assert.False(t, download.IsTerminal())

	download.Status = StatusCompleted
	assert.True(t, download.IsTerminal())

	download.Status = StatusCancelled
	assert.True(t, download.IsTerminal())

	download.Status = StatusFailed
	assert.False(t, download.IsTerminal())
}

func TestValidateStatus(t *testing.T) {
	assert.True(t, ValidateStatus("queued"))
	assert.True(t, ValidateStatus("Completed"))
	assert.False(t, ValidateStatus("paused"))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(&FetchError{URL: "http://videolectures.net/x/", Err: errors.New("timeout")}))
	assert.True(t, IsRetryable(fmt.Errorf("attempt: %w", &ToolFailedError{ExitCode: 2})))
	assert.False(t, IsRetryable(ErrExtractionFailed))
	assert.False(t, IsRetryable(ErrToolUnavailable))
	assert.False(t, IsRetryable(ErrInvalidURL))
}

func TestToolFailedError(t *testing.T) {
	err := fmt.Errorf("run: %w", &ToolFailedError{ExitCode: 1})

	var toolErr *ToolFailedError
	require.True(t, errors.As(err, &toolErr))
	assert.Equal(t, 1, toolErr.ExitCode)
	assert.Contains(t, err.Error(), "exited with code 1")
}
