package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/assert/v2"

	"github.com/LJTian/TickerNews/internal/collector"
	"github.com/LJTian/TickerNews/internal/pipeline"
	"github.com/LJTian/TickerNews/internal/storage"
	"github.com/LJTian/TickerNews/internal/summarizer"
	"github.com/LJTian/TickerNews/internal/ticker"
)

type fakeNews struct {
	res     *pipeline.CuratedResult
	sum     *summarizer.Summary
	err     error
	sumErr  error
	lastQry pipeline.Query
}

func (f *fakeNews) Curated(ctx context.Context, q pipeline.Query) (*pipeline.CuratedResult, error) {
	f.lastQry = q
	if f.err != nil {
		return nil, f.err
	}
	return f.res, nil
}

func (f *fakeNews) Summarize(ctx context.Context, q pipeline.Query) (*summarizer.Summary, *pipeline.CuratedResult, error) {
	f.lastQry = q
	if f.err != nil {
		return nil, nil, f.err
	}
	if f.sumErr != nil {
		return nil, f.res, f.sumErr
	}
	return f.sum, f.res, nil
}

func sampleResult() *pipeline.CuratedResult {
	return &pipeline.CuratedResult{
		Ticker:     "AAPL",
		Timeframe:  "7d",
		TotalFound: 3,
		Articles: []collector.Article{
			{Title: "Apple earnings", URL: "https://a.com/1", Source: "Reuters", RelevanceScore: 0.9},
		},
	}
}

func newTestRouter(news NewsService, wl storage.Watchlist) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewServer(news, wl).RegisterRoutes(r)
	return r
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	r.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode body %q: %v", w.Body.String(), err)
	}
	return env
}

func TestHealth(t *testing.T) {
	r := newTestRouter(&fakeNews{}, storage.NewMemoryWatchlist(nil))
	w := do(r, "GET", "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestListNews(t *testing.T) {
	news := &fakeNews{res: sampleResult()}
	r := newTestRouter(news, storage.NewMemoryWatchlist(nil))

	w := do(r, "GET", "/api/v1/news?ticker=aapl&timeframe=24h&limit=5", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode(t, w).Code)
	assert.Equal(t, "aapl", news.lastQry.Ticker)
	assert.Equal(t, collector.Timeframe24h, news.lastQry.Timeframe)
	assert.Equal(t, 5, news.lastQry.Limit)

	var res pipeline.CuratedResult
	_ = json.Unmarshal(decode(t, w).Data, &res)
	assert.Equal(t, 1, len(res.Articles))
	assert.Equal(t, "https://a.com/1", res.Articles[0].URL)
}

func TestListNewsDefaults(t *testing.T) {
	news := &fakeNews{res: sampleResult()}
	r := newTestRouter(news, storage.NewMemoryWatchlist(nil))

	w := do(r, "GET", "/api/v1/news?ticker=AAPL&limit=abc", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, collector.DefaultTimeframe, news.lastQry.Timeframe)
	assert.Equal(t, pipeline.DefaultLimit, news.lastQry.Limit)
}

func TestListNewsErrors(t *testing.T) {
	cases := []struct {
		name string
		path string
		err  error
		code int
		body string
	}{
		{"bad timeframe", "/api/v1/news?ticker=AAPL&timeframe=1y", nil, http.StatusBadRequest, "invalid_timeframe"},
		{"bad ticker", "/api/v1/news?ticker=12", fmt.Errorf("%w: %q", ticker.ErrInvalid, "12"), http.StatusBadRequest, "invalid_ticker"},
		{"no articles", "/api/v1/news?ticker=ZZZZ", pipeline.ErrNoArticlesFound, http.StatusNotFound, "no_articles"},
		{"internal", "/api/v1/news?ticker=AAPL", fmt.Errorf("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newTestRouter(&fakeNews{err: tc.err, res: sampleResult()}, storage.NewMemoryWatchlist(nil))
			w := do(r, "GET", tc.path, "")
			assert.Equal(t, tc.code, w.Code)
			assert.Equal(t, tc.body, decode(t, w).Code)
		})
	}
}

func TestSummary(t *testing.T) {
	news := &fakeNews{res: sampleResult(), sum: &summarizer.Summary{Ticker: "AAPL", Text: "Strong quarter."}}
	r := newTestRouter(news, storage.NewMemoryWatchlist(nil))

	w := do(r, "GET", "/api/v1/summary?ticker=AAPL", "")
	assert.Equal(t, http.StatusOK, w.Code)

	var data struct {
		Summary  summarizer.Summary  `json:"summary"`
		Articles []collector.Article `json:"articles"`
	}
	_ = json.Unmarshal(decode(t, w).Data, &data)
	assert.Equal(t, "Strong quarter.", data.Summary.Text)
	assert.Equal(t, 1, len(data.Articles))
}

func TestSummaryFailureFallsBackToList(t *testing.T) {
	news := &fakeNews{res: sampleResult(), sumErr: fmt.Errorf("%w: timeout", summarizer.ErrSummarizationFailed)}
	r := newTestRouter(news, storage.NewMemoryWatchlist(nil))

	w := do(r, "GET", "/api/v1/summary?ticker=AAPL", "")
	assert.Equal(t, http.StatusBadGateway, w.Code)

	env := decode(t, w)
	assert.Equal(t, "summarization_failed", env.Code)
	var res pipeline.CuratedResult
	_ = json.Unmarshal(env.Data, &res)
	assert.Equal(t, "AAPL", res.Ticker)
}

func TestWatchlistRoutes(t *testing.T) {
	r := newTestRouter(&fakeNews{}, storage.NewMemoryWatchlist([]string{"AAPL"}))

	w := do(r, "POST", "/api/v1/watchlist", `{"symbol":"msft"}`)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(r, "POST", "/api/v1/watchlist", `{"symbol":"not valid"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, "POST", "/api/v1/watchlist", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, "GET", "/api/v1/watchlist", "")
	var list []string
	_ = json.Unmarshal(decode(t, w).Data, &list)
	assert.Equal(t, []string{"AAPL", "MSFT"}, list)

	w = do(r, "DELETE", "/api/v1/watchlist/aapl", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(r, "GET", "/api/v1/watchlist", "")
	_ = json.Unmarshal(decode(t, w).Data, &list)
	assert.Equal(t, []string{"MSFT"}, list)
}

func TestBasicAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(BasicAuth("admin", "secret"))
	NewServer(&fakeNews{res: sampleResult()}, storage.NewMemoryWatchlist(nil)).RegisterRoutes(r)

	w := do(r, "GET", "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(r, "GET", "/api/v1/news?ticker=AAPL", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/v1/news?ticker=AAPL", nil)
	req.SetBasicAuth("admin", "secret")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
