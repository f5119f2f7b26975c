package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/giserh/videolectures-dl/internal/app"
	"github.com/giserh/videolectures-dl/internal/domain"
	"github.com/giserh/videolectures-dl/internal/infrastructure"
	"github.com/giserh/videolectures-dl/pkg/logger"
)

const lectureURL = "http://videolectures.net/lecture_a/"

type stubExtractor struct{}

func (stubExtractor) Validate(url string) error {
	if !strings.HasPrefix(url, "http://videolectures.net/") {
		return fmt.Errorf("%w: %s", domain.ErrInvalidURL, url)
	}
	return nil
}

func (stubExtractor) Fetch(ctx context.Context, url string) (*domain.PageMetadata, error) {
	return nil, domain.ErrExtractionFailed
}

type stubTool struct {
	err error
}

func (s stubTool) CheckToolAvailable(ctx context.Context) error {
	return s.err
}

func (s stubTool) Run(ctx context.Context, meta *domain.PageMetadata, config domain.DownloadConfig) (domain.DownloadOutcome, error) {
	return domain.DownloadOutcome{}, errors.New("not used")
}

type testServer struct {
	router  *gin.Engine
	repo    *infrastructure.SQLiteDownloadRepository
	logsDir string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	tmpDir := t.TempDir()
	repo, err := infrastructure.NewSQLiteDownloadRepository(filepath.Join(tmpDir, "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	cfg := domain.DefaultConfig()
	tool := stubTool{}
	downloadMgr := app.NewDownloadManager(repo, stubExtractor{}, tool, nil, nil, &cfg.Download, zap.NewNop())
	queueMgr := app.NewQueueManager(repo, downloadMgr, stubExtractor{}, &cfg.Queue, nil)

	logsDir := filepath.Join(tmpDir, "logs")
	return &testServer{
		router:  SetupRouter(queueMgr, downloadMgr, tool, zap.NewNop(), logsDir),
		repo:    repo,
		logsDir: logsDir,
	}
}

func (s *testServer) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) addDownload(t *testing.T) domain.Download {
	t.Helper()
	w := s.do(http.MethodPost, "/api/v1/downloads", map[string]interface{}{"url": lectureURL})
	require.Equal(t, http.StatusCreated, w.Code)

	var dl domain.Download
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &dl))
	return dl
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
	assert.Equal(t, domain.Version, resp["version"])
}

func TestReady_QueueNotRunning(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "queue manager not running")
}

func TestAddDownload(t *testing.T) {
	s := newTestServer(t)

	dl := s.addDownload(t)
	assert.NotEmpty(t, dl.ID)
	assert.Equal(t, lectureURL, dl.URL)
	assert.Equal(t, domain.StatusQueued, dl.Status)

	stored, err := s.repo.FindByID(dl.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusQueued, stored.Status)
}

func TestAddDownload_DuplicateReturnsExisting(t *testing.T) {
	s := newTestServer(t)

	first := s.addDownload(t)
	second := s.addDownload(t)
	assert.Equal(t, first.ID, second.ID)
}

func TestAddDownload_InvalidURL(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodPost, "/api/v1/downloads", map[string]interface{}{"url": "http://example.com/video"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAddDownload_MissingURL(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodPost, "/api/v1/downloads", map[string]interface{}{"priority": 1})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetDownload(t *testing.T) {
	s := newTestServer(t)
	dl := s.addDownload(t)

	w := s.do(http.MethodGet, "/api/v1/downloads/"+dl.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), dl.ID)

	w = s.do(http.MethodGet, "/api/v1/downloads/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListDownloads(t *testing.T) {
	s := newTestServer(t)
	s.addDownload(t)

	w := s.do(http.MethodGet, "/api/v1/downloads?status=queued", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var downloads []domain.Download
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &downloads))
	assert.Len(t, downloads, 1)

	w = s.do(http.MethodGet, "/api/v1/downloads?status=completed", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &downloads))
	assert.Empty(t, downloads)
}

func TestListDownloads_InvalidStatus(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodGet, "/api/v1/downloads?status=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetStats(t *testing.T) {
	s := newTestServer(t)
	s.addDownload(t)

	w := s.do(http.MethodGet, "/api/v1/downloads/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var stats domain.DownloadStats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, int64(1), stats.Total)
	assert.Equal(t, int64(1), stats.Queued)
}

func TestCancelAndRetryDownload(t *testing.T) {
	s := newTestServer(t)
	dl := s.addDownload(t)

	w := s.do(http.MethodPost, "/api/v1/downloads/"+dl.ID+"/cancel", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	stored, err := s.repo.FindByID(dl.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, stored.Status)

	w = s.do(http.MethodPost, "/api/v1/downloads/"+dl.ID+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(http.MethodPost, "/api/v1/downloads/"+dl.ID+"/retry", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	stored, err = s.repo.FindByID(dl.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusQueued, stored.Status)

	w = s.do(http.MethodPost, "/api/v1/downloads/"+dl.ID+"/retry", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestCancelDownload_NotFound(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodPost, "/api/v1/downloads/missing/cancel", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(http.MethodPost, "/api/v1/downloads/missing/retry", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteDownload(t *testing.T) {
	s := newTestServer(t)
	dl := s.addDownload(t)

	w := s.do(http.MethodDelete, "/api/v1/downloads/"+dl.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(http.MethodDelete, "/api/v1/downloads/"+dl.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestLogCategories(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodGet, "/api/v1/logs/categories", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "download")
	assert.Contains(t, w.Body.String(), "queue")
}

func TestGetLogs(t *testing.T) {
	s := newTestServer(t)

	logPath := logger.CategoryLogPath(s.logsDir, logger.CategoryQueue, time.Now())
	require.NoError(t, os.MkdirAll(filepath.Dir(logPath), 0755))
	content := `{"level":"info","ts":"2011-03-30T10:00:00.000Z","msg":"queue_started"}` + "\n" +
		`{"level":"info","ts":"2011-03-30T10:00:01.000Z","msg":"download_added","id":"abc"}` + "\n"
	require.NoError(t, os.WriteFile(logPath, []byte(content), 0644))

	w := s.do(http.MethodGet, "/api/v1/logs/queue", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Count   int               `json:"count"`
		Entries []logger.LogEntry `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)

	w = s.do(http.MethodGet, "/api/v1/logs/queue/search?q=download_added", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)

	w = s.do(http.MethodGet, "/api/v1/logs/queue/export", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "queue_started")
}

func TestGetLogs_BadRequests(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodGet, "/api/v1/logs/web", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodGet, "/api/v1/logs/queue?date=30-03-2011", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodGet, "/api/v1/logs/queue/search", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExportLogs_MissingFile(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodGet, "/api/v1/logs/download/export?date=2011-03-30", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestNoRoute(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodGet, "/api/v2/unknown", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "not found")
}
