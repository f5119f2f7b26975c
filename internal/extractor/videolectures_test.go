package extractor

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giserh/videolectures-dl/internal/domain"
)

const samplePage = `<html>
<head>
<meta name="title" content=" Foo Bar " />
<link rel="image_src" href="/xyz123/thumb.jpg" />
</head>
<body>
<script type="text/javascript">
var flashvars = {
    streamer: "rtmp://x/y",
    file: "abc.mp4",
    autostart: true
};
</script>
</body>
</html>`

// recordingReporter captures reporter events
type recordingReporter struct {
	titles []string
}

func (r *recordingReporter) Title(title string)      { r.titles = append(r.titles, title) }
func (r *recordingReporter) Destination(path string) {}
func (r *recordingReporter) Progress(bytes int64)    {}
func (r *recordingReporter) Done(bytes int64)        {}
func (r *recordingReporter) Complete()               {}
func (r *recordingReporter) Error(msg string)        {}

type roundTripFunc func(req *http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func newTestExtractor(reporter domain.ProgressReporter, rt roundTripFunc) *VideoLecturesExtractor {
	e := NewVideoLecturesExtractor(&domain.FetchConfig{Timeout: 5 * time.Second, UserAgent: "test-agent"}, reporter, nil)
	e.SetHTTPClient(&http.Client{Transport: rt})
	return e
}

func textResponse(status int, contentType, body string) *http.Response {
	header := http.Header{}
	if contentType != "" {
		header.Set("Content-Type", contentType)
	}
	return &http.Response{
		StatusCode: status,
		Header:     header,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestVideoLecturesExtractor_Validate(t *testing.T) {
	e := NewVideoLecturesExtractor(&domain.FetchConfig{}, nil, nil)

	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{name: "http lecture page", url: "http://videolectures.net/some_lecture/", wantErr: false},
		{name: "https lecture page", url: "https://videolectures.net/some_lecture/", wantErr: false},
		{name: "bare host", url: "http://videolectures.net", wantErr: false},
		{name: "other domain", url: "http://example.com/video", wantErr: true},
		{name: "lookalike host", url: "http://videolectures.network/video", wantErr: true},
		{name: "host in path", url: "http://example.com/http://videolectures.net/", wantErr: true},
		{name: "empty", url: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := e.Validate(tt.url)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, domain.ErrInvalidURL)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestExtract_FullPage(t *testing.T) {
	meta := Extract(samplePage)

	assert.True(t, meta.Extracted)
	assert.Equal(t, "rtmp://x/y", meta.StreamServer)
	assert.Equal(t, "abc", meta.ResourcePath)
	assert.Equal(t, "Foo Bar", meta.DisplayTitle)
	assert.Equal(t, "xyz123", meta.Slug)
	assert.Equal(t, "abc", meta.BaseFilename)
}

func TestExtract_MissingPlayerConfig(t *testing.T) {
	body := `<meta name="title" content="Lecture" />
<link rel="image_src" href="/slug1/thumb.jpg" />`

	meta := Extract(body)

	assert.False(t, meta.Extracted)
	assert.Empty(t, meta.StreamServer)
	assert.Empty(t, meta.ResourcePath)
	assert.Empty(t, meta.BaseFilename)
	assert.Equal(t, "Lecture", meta.DisplayTitle)
	assert.Equal(t, "slug1", meta.Slug)
}

func TestExtract_StreamerWithoutFile(t *testing.T) {
	body := "var flashvars = {\n  streamer: \"rtmp://x/y\",\n  autostart: true\n};"

	meta := Extract(body)

	assert.False(t, meta.Extracted)
	assert.Empty(t, meta.StreamServer)
}

func TestExtract_NestedResourcePath(t *testing.T) {
	body := "var flashvars = {\n\tstreamer: \"rtmp://media.example/vod\",\n\tfile: \"v005/2d/lecture_intro.flv\"\n};"

	meta := Extract(body)

	require.True(t, meta.Extracted)
	assert.Equal(t, "rtmp://media.example/vod", meta.StreamServer)
	assert.Equal(t, "v005/2d/lecture_intro", meta.ResourcePath)
	assert.Equal(t, "lecture_intro", meta.BaseFilename)
	assert.Empty(t, meta.DisplayTitle)
	assert.Empty(t, meta.Slug)
}

func TestLocateTitle_TrimsWhitespace(t *testing.T) {
	title, ok := locateTitle(`<meta name="title" content="   Deep   Learning  " />`)

	require.True(t, ok)
	assert.Equal(t, "Deep   Learning", title)
}

func TestLocateSlug(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
		ok   bool
	}{
		{name: "leading slash", body: `<link rel="image_src" href="/xyz123/thumb.jpg" />`, want: "xyz123", ok: true},
		{name: "no leading slash", body: `<link rel="image_src" href="abc_def/thumb.jpg" />`, want: "abc_def", ok: true},
		{name: "other image", body: `<link rel="image_src" href="/xyz123/poster.png" />`, ok: false},
		{name: "missing", body: `<link rel="stylesheet" href="/a.css" />`, ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			slug, ok := locateSlug(tt.body)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, slug)
		})
	}
}

func TestFetch_Success(t *testing.T) {
	reporter := &recordingReporter{}
	var gotAgent string
	e := newTestExtractor(reporter, func(req *http.Request) (*http.Response, error) {
		gotAgent = req.Header.Get("User-Agent")
		return textResponse(http.StatusOK, "text/html; charset=utf-8", samplePage), nil
	})

	meta, err := e.Fetch(context.Background(), "http://videolectures.net/some_lecture/")
	require.NoError(t, err)

	assert.True(t, meta.Extracted)
	assert.Equal(t, "http://videolectures.net/some_lecture/", meta.PageURL)
	assert.Equal(t, "test-agent", gotAgent)
	assert.Equal(t, []string{"Foo Bar"}, reporter.titles)
}

func TestFetch_ReportsEmptyTitleOnce(t *testing.T) {
	reporter := &recordingReporter{}
	e := newTestExtractor(reporter, func(req *http.Request) (*http.Response, error) {
		return textResponse(http.StatusOK, "", "<html>nothing here</html>"), nil
	})

	meta, err := e.Fetch(context.Background(), "http://videolectures.net/empty/")
	require.NoError(t, err)

	assert.False(t, meta.Extracted)
	assert.Equal(t, []string{""}, reporter.titles)
}

func TestFetch_InvalidURLMakesNoRequest(t *testing.T) {
	calls := 0
	reporter := &recordingReporter{}
	e := newTestExtractor(reporter, func(req *http.Request) (*http.Response, error) {
		calls++
		return textResponse(http.StatusOK, "text/html", samplePage), nil
	})

	for _, url := range []string{"http://example.com/", "ftp://videolectures.net/x", "not a url"} {
		meta, err := e.Fetch(context.Background(), url)
		assert.Nil(t, meta)
		assert.ErrorIs(t, err, domain.ErrInvalidURL)
	}
	assert.Equal(t, 0, calls)
	assert.Empty(t, reporter.titles)
}

func TestFetch_Failures(t *testing.T) {
	tests := []struct {
		name    string
		rt      roundTripFunc
		errText string
	}{
		{
			name: "transport error",
			rt: func(req *http.Request) (*http.Response, error) {
				return nil, errors.New("connection refused")
			},
			errText: "connection refused",
		},
		{
			name: "not found",
			rt: func(req *http.Request) (*http.Response, error) {
				return textResponse(http.StatusNotFound, "text/html", "gone"), nil
			},
			errText: "unexpected status code: 404",
		},
		{
			name: "binary content",
			rt: func(req *http.Request) (*http.Response, error) {
				return textResponse(http.StatusOK, "video/x-flv", "FLV"), nil
			},
			errText: "unexpected content type",
		},
		{
			name: "invalid utf-8",
			rt: func(req *http.Request) (*http.Response, error) {
				return textResponse(http.StatusOK, "text/html", "caf\xe9"), nil
			},
			errText: "not valid UTF-8",
		},
		{
			name: "oversized page split inside a rune",
			rt: func(req *http.Request) (*http.Response, error) {
				return textResponse(http.StatusOK, "text/html", strings.Repeat("a", maxPageSize-1)+"\u00e9"), nil
			},
			errText: "page too large",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reporter := &recordingReporter{}
			e := newTestExtractor(reporter, tt.rt)

			meta, err := e.Fetch(context.Background(), "http://videolectures.net/some_lecture/")
			require.Error(t, err)
			assert.Nil(t, meta)

			var fetchErr *domain.FetchError
			require.True(t, errors.As(err, &fetchErr))
			assert.Equal(t, "http://videolectures.net/some_lecture/", fetchErr.URL)
			assert.Contains(t, err.Error(), tt.errText)
			assert.Empty(t, reporter.titles)
		})
	}
}

func TestIsTextContent(t *testing.T) {
	assert.True(t, isTextContent(""))
	assert.True(t, isTextContent("text/html"))
	assert.True(t, isTextContent("text/plain; charset=utf-8"))
	assert.True(t, isTextContent("application/xhtml+xml"))
	assert.False(t, isTextContent("application/octet-stream"))
	assert.False(t, isTextContent("image/jpeg"))
	assert.False(t, isTextContent(";;;"))
}

func TestFetch_PageAtSizeLimit(t *testing.T) {
	e := newTestExtractor(&recordingReporter{}, func(req *http.Request) (*http.Response, error) {
		return textResponse(http.StatusOK, "text/html", strings.Repeat("a", maxPageSize)), nil
	})

	meta, err := e.Fetch(context.Background(), "http://videolectures.net/some_lecture/")
	require.NoError(t, err)
	assert.False(t, meta.Extracted)
}
