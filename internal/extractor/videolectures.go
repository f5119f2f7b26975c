// Package extractor locates the streaming metadata embedded in
// videolectures.net video pages.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"regexp"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/giserh/videolectures-dl/internal/domain"
)

const (
	validURLPattern     = `^https?://videolectures\.net(/|$)`
	streamPattern       = `var flashvars = \{\s+?streamer:\s"(rtmp://[^"]+)",\s+?file:\s"([^\.]+)\.\w+?"`
	titlePattern        = `<meta name="title" content="\s*([^"]*?)\s*" />`
	slugPattern         = `<link rel="image_src" href="/?([^/]+)/thumb\.jpg" />`
	baseFilenamePattern = `([^/]+)$`

	// maxPageSize bounds how much of a response body is read
	maxPageSize = 8 << 20
)

var errPageTooLarge = errors.New("page too large")

var (
	validURLRe     = regexp.MustCompile(validURLPattern)
	streamRe       = regexp.MustCompile(streamPattern)
	titleRe        = regexp.MustCompile(titlePattern)
	slugRe         = regexp.MustCompile(slugPattern)
	baseFilenameRe = regexp.MustCompile(baseFilenamePattern)
)

// VideoLecturesExtractor implements domain.PageExtractor for videolectures.net
type VideoLecturesExtractor struct {
	config   *domain.FetchConfig
	client   *http.Client
	reporter domain.ProgressReporter
	logger   *zap.Logger
}

// NewVideoLecturesExtractor creates a new extractor
func NewVideoLecturesExtractor(config *domain.FetchConfig, reporter domain.ProgressReporter, logger *zap.Logger) *VideoLecturesExtractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VideoLecturesExtractor{
		config:   config,
		client:   &http.Client{Timeout: config.Timeout},
		reporter: reporter,
		logger:   logger,
	}
}

// SetHTTPClient replaces the client used for page fetches
func (e *VideoLecturesExtractor) SetHTTPClient(client *http.Client) {
	e.client = client
}

// Validate validates if the extractor can handle the given URL
func (e *VideoLecturesExtractor) Validate(url string) error {
	if !validURLRe.MatchString(url) {
		return fmt.Errorf("%w: %s", domain.ErrInvalidURL, url)
	}
	return nil
}

// Fetch downloads the page with a single GET and extracts its metadata.
// The title is announced to the reporter exactly once per successful call.
func (e *VideoLecturesExtractor) Fetch(ctx context.Context, url string) (*domain.PageMetadata, error) {
	if err := e.Validate(url); err != nil {
		return nil, err
	}

	body, err := e.get(ctx, url)
	if err != nil {
		e.logger.Warn("Page fetch failed", zap.String("url", url), zap.Error(err))
		return nil, &domain.FetchError{URL: url, Err: err}
	}

	meta := Extract(body)
	meta.PageURL = url

	e.logger.Debug("Page metadata extracted",
		zap.String("url", url),
		zap.Bool("extracted", meta.Extracted),
		zap.String("server", meta.StreamServer),
		zap.String("path", meta.ResourcePath),
		zap.String("slug", meta.Slug))

	if e.reporter != nil {
		e.reporter.Title(meta.DisplayTitle)
	}
	return meta, nil
}

// get performs the page request and returns the decoded body
func (e *VideoLecturesExtractor) get(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	if e.config != nil && e.config.UserAgent != "" {
		req.Header.Set("User-Agent", e.config.UserAgent)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !isTextContent(ct) {
		return "", fmt.Errorf("unexpected content type: %s", ct)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPageSize+1))
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}
	if len(data) > maxPageSize {
		return "", fmt.Errorf("%w: larger than %d bytes", errPageTooLarge, maxPageSize)
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("response body is not valid UTF-8")
	}
	return string(data), nil
}

// isTextContent reports whether a Content-Type header denotes a text document.
// A missing header is accepted.
func isTextContent(contentType string) bool {
	if contentType == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	if strings.HasPrefix(mediaType, "text/") {
		return true
	}
	switch mediaType {
	case "application/xhtml+xml", "application/xml":
		return true
	}
	return false
}

// Extract runs the four locators against a page body. None of them depends
// on another succeeding, except that the base filename is derived from the
// resource path.
func Extract(body string) *domain.PageMetadata {
	meta := &domain.PageMetadata{}

	if server, path, ok := locateStream(body); ok {
		meta.StreamServer = server
		meta.ResourcePath = path
		meta.Extracted = true
	}
	if title, ok := locateTitle(body); ok {
		meta.DisplayTitle = title
	}
	if slug, ok := locateSlug(body); ok {
		meta.Slug = slug
	}
	if base, ok := locateBaseFilename(meta.ResourcePath); ok {
		meta.BaseFilename = base
	}

	return meta
}

// locateStream finds the flashvars block. Both streamer and file must match.
func locateStream(body string) (server, path string, ok bool) {
	m := streamRe.FindStringSubmatch(body)
	if m == nil || m[1] == "" || m[2] == "" {
		return "", "", false
	}
	return m[1], m[2], true
}

func locateTitle(body string) (string, bool) {
	m := titleRe.FindStringSubmatch(body)
	if m == nil {
		return "", false
	}
	return strings.TrimSpace(m[1]), true
}

func locateSlug(body string) (string, bool) {
	m := slugRe.FindStringSubmatch(body)
	if m == nil {
		return "", false
	}
	return m[1], true
}

func locateBaseFilename(resourcePath string) (string, bool) {
	m := baseFilenameRe.FindStringSubmatch(resourcePath)
	if m == nil {
		return "", false
	}
	return m[1], true
}
