package router_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pazars/grabeklis/internal/archive"
	"github.com/pazars/grabeklis/internal/delivery/http/handler"
	"github.com/pazars/grabeklis/internal/delivery/http/response"
	"github.com/pazars/grabeklis/internal/delivery/http/router"
	"github.com/pazars/grabeklis/internal/entity"
	"github.com/pazars/grabeklis/internal/usecase"
	"github.com/pazars/grabeklis/pkg/metrics"
	"github.com/pazars/grabeklis/pkg/utils"
)

const articleURL = "https://www.lsm.lv/raksts/zinas/latvija/a1.a1/"

type stubRuns struct {
	mu        sync.Mutex
	submitted []usecase.RunRequest
	err       error
}

func (s *stubRuns) Submit(_ context.Context, req usecase.RunRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.submitted = append(s.submitted, req)
	return nil
}

func (s *stubRuns) RunNow(context.Context, usecase.RunRequest) (entity.RunStats, error) {
	return entity.RunStats{}, nil
}

func (s *stubRuns) State() usecase.RunState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return usecase.RunState{Running: len(s.submitted) > 0}
}

func (s *stubRuns) Shutdown(context.Context) error { return nil }

func newServer(t *testing.T, runs usecase.RunController) (*httptest.Server, *metrics.Metrics) {
	t.Helper()
	dir := t.TempDir()
	store := archive.NewStore(dir, archive.PolicyKeepExisting, zap.NewNop())

	published := time.Date(2024, 3, 1, 12, 0, 0, 0, entity.SiteLocation)
	articles := []entity.ArticleRecord{{
		ID:          "a1",
		URL:         articleURL,
		PublishedAt: entity.NewDatums(published),
		DateForm:    entity.DateAbsolute,
		Category:    "Latvijā",
		Title:       "Virsraksts",
		Body:        "Teksts",
	}}
	failures := []entity.FailureRecord{{URL: "https://www.lsm.lv/raksts/x/", Error: "no information"}}
	require.NoError(t, utils.WriteJSONAtomic(store.Path(archive.ItemsFile), articles, true))
	require.NoError(t, utils.WriteJSONAtomic(store.Path(archive.FailedFile), failures, true))

	m := metrics.New()
	h := handler.NewHandler(usecase.NewArchiveManager(store, nil, zap.NewNop()), runs, zap.NewNop())
	srv := httptest.NewServer(router.New(h, m, zap.NewNop()))
	t.Cleanup(srv.Close)
	return srv, m
}

func getJSON(t *testing.T, target string, out any) int {
	t.Helper()
	resp, err := http.Get(target)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestRouter_ArchiveEndpoints(t *testing.T) {
	srv, _ := newServer(t, nil)

	var health map[string]string
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/health", &health))
	assert.Equal(t, "ok", health["status"])

	var summary entity.ArchiveSummary
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/summary", &summary))
	assert.Equal(t, entity.ArchiveSummary{NumArticlesOK: 1, NumArticlesFailed: 1}, summary)

	var stats response.ArchiveStatsResponse
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/stats", &stats))
	assert.Equal(t, 1, stats.Articles)
	assert.Equal(t, 1, stats.Failures)
	require.Len(t, stats.Categories, 1)
	assert.Equal(t, "Latvijā", stats.Categories[0].Category)
}

func TestRouter_ArticleStatus(t *testing.T) {
	srv, _ := newServer(t, nil)

	tests := []struct {
		name   string
		query  string
		code   int
		status string
	}{
		{name: "archived", query: articleURL, code: http.StatusOK, status: usecase.StatusArchived},
		{name: "failed", query: "https://www.lsm.lv/raksts/x/", code: http.StatusOK, status: usecase.StatusFailed},
		{name: "unknown", query: "https://www.lsm.lv/raksts/none/", code: http.StatusNotFound},
		{name: "missing", query: "", code: http.StatusBadRequest},
		{name: "invalid", query: "not a url", code: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := srv.URL + "/api/status"
			if tt.query != "" {
				target += "?url=" + url.QueryEscape(tt.query)
			}
			var body usecase.ArticleStatus
			assert.Equal(t, tt.code, getJSON(t, target, &body))
			if tt.status != "" {
				assert.Equal(t, tt.status, body.Status)
			}
		})
	}
}

func TestRouter_TriggerCrawl(t *testing.T) {
	runs := &stubRuns{}
	srv, _ := newServer(t, runs)

	resp, err := http.Post(srv.URL+"/api/crawl", "application/json", strings.NewReader(`{"max_items": 5, "dry_run": true}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	runs.mu.Lock()
	require.Len(t, runs.submitted, 1)
	assert.Equal(t, usecase.RunRequest{MaxItems: 5, DryRun: true}, runs.submitted[0])
	runs.mu.Unlock()

	resp, err = http.Post(srv.URL+"/api/crawl", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/api/crawl", "application/json", strings.NewReader(`{`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var state usecase.RunState
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/crawl", &state))
	assert.True(t, state.Running)

	runs.mu.Lock()
	runs.err = usecase.ErrRunInProgress
	runs.mu.Unlock()
	resp, err = http.Post(srv.URL+"/api/crawl", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestRouter_CrawlDisabled(t *testing.T) {
	srv, _ := newServer(t, nil)
	resp, err := http.Post(srv.URL+"/api/crawl", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)
}

func TestRouter_MetricsUseRoutePatterns(t *testing.T) {
	srv, _ := newServer(t, nil)

	getJSON(t, srv.URL+"/api/status?url="+url.QueryEscape(articleURL), nil)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	var sb strings.Builder
	_, err = io.Copy(&sb, resp.Body)
	require.NoError(t, err)

	body := sb.String()
	assert.Contains(t, body, `http_requests_total{method="GET",path="/api/status",status="200"} 1`)
	assert.NotContains(t, body, "a1.a1")
}
