package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidURL is returned for URLs outside the supported host
	ErrInvalidURL = errors.New("unsupported video page URL")

	// ErrExtractionFailed is returned when the stream locator did not match
	ErrExtractionFailed = errors.New("no video information is extracted")

	// ErrToolUnavailable is returned when rtmpdump cannot be started at all
	ErrToolUnavailable = errors.New("rtmpdump could not be run, please check the binary path")

	// ErrDestinationExists is returned when the output file exists and overwrite is off
	ErrDestinationExists = errors.New("destination file already exists")

	// ErrDownloadNotFound is returned for unknown history record IDs
	ErrDownloadNotFound = errors.New("download not found")
)

// FetchError wraps a failure to retrieve the video page
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// ToolFailedError reports a non-zero rtmpdump exit status
type ToolFailedError struct {
	ExitCode int
}

func (e *ToolFailedError) Error() string {
	return fmt.Sprintf("download may be incomplete, rtmpdump exited with code %d", e.ExitCode)
}

// IsRetryable reports whether a failed attempt may be repeated.
// Configuration and page-content errors never heal on their own.
func IsRetryable(err error) bool {
	var fetchErr *FetchError
	var toolErr *ToolFailedError
	return errors.As(err, &fetchErr) || errors.As(err, &toolErr)
}
