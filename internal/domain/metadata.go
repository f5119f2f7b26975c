package domain

// PageMetadata holds what was scraped from one video page. It is created
// once per fetch and never modified afterwards.
type PageMetadata struct {
	PageURL      string `json:"page_url"`
	StreamServer string `json:"stream_server,omitempty"`
	ResourcePath string `json:"resource_path,omitempty"`
	DisplayTitle string `json:"display_title"`
	Slug         string `json:"slug"`
	BaseFilename string `json:"base_filename,omitempty"`

	// Extracted is true only when both StreamServer and ResourcePath were
	// located. It is the only field that gates a download.
	Extracted bool `json:"extracted"`
}

// OutcomeKind classifies the terminal result of a download attempt
type OutcomeKind string

const (
	OutcomeSuccess           OutcomeKind = "success"
	OutcomeExtractionFailed  OutcomeKind = "extraction_failed"
	OutcomeToolUnavailable   OutcomeKind = "tool_unavailable"
	OutcomeToolFailed        OutcomeKind = "tool_failed"
	OutcomeDestinationExists OutcomeKind = "destination_exists"
)

// DownloadOutcome is the terminal result of one RTMPDownloader.Run call.
// BytesWritten is set for OutcomeSuccess, ExitCode for OutcomeToolFailed.
type DownloadOutcome struct {
	Kind         OutcomeKind `json:"kind"`
	FilePath     string      `json:"file_path,omitempty"`
	BytesWritten int64       `json:"bytes_written,omitempty"`
	ExitCode     int         `json:"exit_code,omitempty"`
}

// Succeeded reports whether the outcome is a successful download
func (o DownloadOutcome) Succeeded() bool {
	return o.Kind == OutcomeSuccess
}
