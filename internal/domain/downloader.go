package domain

import "context"

// PageExtractor turns a video page URL into PageMetadata
type PageExtractor interface {
	// Validate checks the URL against the supported host before any network access
	Validate(url string) error

	// Fetch retrieves the page and extracts its metadata
	Fetch(ctx context.Context, url string) (*PageMetadata, error)
}

// StreamDownloader saves the stream described by PageMetadata to disk
type StreamDownloader interface {
	// CheckToolAvailable verifies the external download tool can be started
	CheckToolAvailable(ctx context.Context) error

	// Run performs one download attempt and classifies its outcome
	Run(ctx context.Context, meta *PageMetadata, config DownloadConfig) (DownloadOutcome, error)
}

// ProgressReporter is the user-facing sink for pipeline events
type ProgressReporter interface {
	// Title announces the scraped title, even when empty
	Title(title string)

	// Destination announces the output file before the tool is launched
	Destination(path string)

	// Progress updates the in-place progress line
	Progress(bytes int64)

	// Done writes the final progress line
	Done(bytes int64)

	// Complete announces a finished download
	Complete()

	// Error reports a fatal condition
	Error(msg string)
}
