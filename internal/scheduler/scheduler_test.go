package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/LJTian/TickerNews/internal/collector"
	"github.com/LJTian/TickerNews/internal/pipeline"
	"github.com/LJTian/TickerNews/internal/storage"
	"github.com/LJTian/TickerNews/internal/summarizer"
)

type recordingWarmer struct {
	mu         sync.Mutex
	curated    []pipeline.Query
	summarized []pipeline.Query
	inFlight   int
	maxFlight  int
	fail       map[string]error
}

func (r *recordingWarmer) enter() func() {
	r.mu.Lock()
	r.inFlight++
	if r.inFlight > r.maxFlight {
		r.maxFlight = r.inFlight
	}
	r.mu.Unlock()
	return func() {
		r.mu.Lock()
		r.inFlight--
		r.mu.Unlock()
	}
}

func (r *recordingWarmer) Curated(ctx context.Context, q pipeline.Query) (*pipeline.CuratedResult, error) {
	defer r.enter()()
	time.Sleep(time.Millisecond)
	r.mu.Lock()
	r.curated = append(r.curated, q)
	r.mu.Unlock()
	if err := r.fail[q.Ticker]; err != nil {
		return nil, err
	}
	return &pipeline.CuratedResult{Ticker: q.Ticker}, nil
}

func (r *recordingWarmer) Summarize(ctx context.Context, q pipeline.Query) (*summarizer.Summary, *pipeline.CuratedResult, error) {
	r.mu.Lock()
	r.summarized = append(r.summarized, q)
	r.mu.Unlock()
	return &summarizer.Summary{Ticker: q.Ticker}, nil, nil
}

func TestRunOnceWarmsSequentially(t *testing.T) {
	w := &recordingWarmer{fail: map[string]error{"TSLA": pipeline.ErrNoArticlesFound}}
	wl := storage.NewMemoryWatchlist([]string{"AAPL", "TSLA", "MSFT"})
	s, err := New("0 */4 * * *", wl, w, Options{Timeframes: []collector.Timeframe{collector.Timeframe7d}, Limit: 5})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ok := s.RunOnce(context.Background())
	if ok != 2 {
		t.Fatalf("RunOnce = %d, want 2", ok)
	}
	if len(w.curated) != 3 || w.curated[0].Ticker != "AAPL" || w.curated[2].Ticker != "MSFT" {
		t.Fatalf("curated calls = %+v", w.curated)
	}
	if w.curated[0].Limit != 5 || w.curated[0].Timeframe != collector.Timeframe7d {
		t.Fatalf("query = %+v", w.curated[0])
	}
	if w.maxFlight != 1 {
		t.Fatalf("tickers warmed concurrently (max in flight %d)", w.maxFlight)
	}
}

func TestRunOnceSummarizeMode(t *testing.T) {
	w := &recordingWarmer{}
	s, err := New("@hourly", storage.NewMemoryWatchlist([]string{"NVDA"}), w, Options{Summarize: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if ok := s.RunOnce(context.Background()); ok != 1 {
		t.Fatalf("RunOnce = %d", ok)
	}
	// 默认预热 24h 与 7d 两个窗口
	if len(w.summarized) != 2 || len(w.curated) != 0 {
		t.Fatalf("summarized = %d, curated = %d", len(w.summarized), len(w.curated))
	}
}

func TestRunOnceOtherErrors(t *testing.T) {
	w := &recordingWarmer{fail: map[string]error{"AAPL": errors.New("boom")}}
	s, _ := New("@hourly", storage.NewMemoryWatchlist([]string{"AAPL"}), w, Options{})
	if ok := s.RunOnce(context.Background()); ok != 0 {
		t.Fatalf("RunOnce = %d, want 0", ok)
	}
}

func TestNewRejectsBadCronExpr(t *testing.T) {
	if _, err := New("not a cron spec", storage.NewMemoryWatchlist(nil), &recordingWarmer{}, Options{}); err == nil {
		t.Fatalf("expected error for invalid cron spec")
	}
}
