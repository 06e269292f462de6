package collector

import (
	"context"
	"errors"
	"reflect"
	"sync/atomic"
	"testing"
	"time"
)

type stubFetcher struct {
	name  string
	items []Article
	err   error
	delay time.Duration
	calls int32
}

func (s *stubFetcher) Name() string { return s.name }

func (s *stubFetcher) Fetch(ctx context.Context, symbol string) ([]Article, error) {
	atomic.AddInt32(&s.calls, 1)
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.items, s.err
}

var aggNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestAggregator(primary, fallback []Fetcher) *Aggregator {
	return NewAggregator(primary, fallback, AggregatorOptions{
		Timeout:     200 * time.Millisecond,
		FallbackMin: 5,
		Now:         func() time.Time { return aggNow },
	})
}

func TestAggregatorMergesAndSkipsFailures(t *testing.T) {
	ok := &stubFetcher{name: "ok", items: []Article{
		{Title: "AAPL up", URL: "https://a.com/1", PublishedAt: aggNow.Add(-time.Hour)},
		{Title: "AAPL up again", URL: "https://a.com/1/", PublishedAt: aggNow.Add(-2 * time.Hour)},
		{Title: "", URL: "https://a.com/bad"},
		{Title: "old", URL: "https://a.com/old", PublishedAt: aggNow.Add(-10 * 24 * time.Hour)},
		{Title: "no time", URL: "https://a.com/0"},
	}}
	broken := &stubFetcher{name: "broken", err: errors.New("boom")}
	slow := &stubFetcher{name: "slow", delay: time.Second, items: []Article{{Title: "late", URL: "https://s.com/late"}}}

	agg := NewAggregator([]Fetcher{ok, broken, slow}, nil, AggregatorOptions{
		Timeout: 50 * time.Millisecond,
		Now:     func() time.Time { return aggNow },
	})
	got := agg.Fetch(context.Background(), "aapl", Timeframe7d)

	if len(got) != 2 {
		t.Fatalf("Fetch returned %d articles, want 2: %+v", len(got), got)
	}
	// 规范化 URL 排序
	if got[0].URL != "https://a.com/0" {
		t.Fatalf("first article = %q", got[0].URL)
	}
	// 同 URL 保留发布时间更早的一条
	if got[1].Title != "AAPL up again" {
		t.Fatalf("duplicate URL kept %q, want earliest", got[1].Title)
	}
	for _, a := range got {
		if a.Ticker != "AAPL" {
			t.Fatalf("Ticker = %q, want AAPL", a.Ticker)
		}
	}
}

func TestAggregatorAllSourcesFail(t *testing.T) {
	agg := newTestAggregator([]Fetcher{
		&stubFetcher{name: "a", err: errors.New("down")},
		&stubFetcher{name: "b", err: errors.New("down")},
	}, nil)
	got := agg.Fetch(context.Background(), "TSLA", Timeframe24h)
	if got == nil || len(got) != 0 {
		t.Fatalf("Fetch = %#v, want empty non-nil slice", got)
	}
}

func TestAggregatorOrderIndependent(t *testing.T) {
	x := &stubFetcher{name: "x", items: []Article{
		{Title: "NVDA one", URL: "https://n.com/1", Snippet: "short"},
		{Title: "NVDA two", URL: "https://n.com/2"},
	}}
	y := &stubFetcher{name: "y", items: []Article{
		{Title: "NVDA one (copy)", URL: "https://n.com/1", Snippet: "a longer snippet"},
		{Title: "NVDA three", URL: "https://n.com/3"},
	}}

	first := newTestAggregator([]Fetcher{x, y}, nil).Fetch(context.Background(), "NVDA", Timeframe7d)
	second := newTestAggregator([]Fetcher{y, x}, nil).Fetch(context.Background(), "NVDA", Timeframe7d)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("merge depends on source order:\n%+v\n%+v", first, second)
	}
	if first[0].Snippet != "a longer snippet" {
		t.Fatalf("expected the longer snippet to win, got %q", first[0].Snippet)
	}
}

func TestAggregatorFallbackOnlyWhenFew(t *testing.T) {
	many := make([]Article, 0, 6)
	for i := 0; i < 6; i++ {
		many = append(many, Article{Title: "AMD news", URL: "https://m.com/" + string(rune('a'+i))})
	}
	primary := &stubFetcher{name: "rss", items: many}
	scraper := &stubFetcher{name: "scrape", items: []Article{{Title: "AMD scraped", URL: "https://s.com/1"}}}

	newTestAggregator([]Fetcher{primary}, []Fetcher{scraper}).Fetch(context.Background(), "AMD", Timeframe7d)
	if scraper.calls != 0 {
		t.Fatalf("scraper called %d times with enough primary results", scraper.calls)
	}

	primary.items = many[:2]
	got := newTestAggregator([]Fetcher{primary}, []Fetcher{scraper}).Fetch(context.Background(), "AMD", Timeframe7d)
	if scraper.calls != 1 {
		t.Fatalf("scraper calls = %d, want 1", scraper.calls)
	}
	if len(got) != 3 {
		t.Fatalf("Fetch returned %d, want 3", len(got))
	}
}

func TestAggregatorSources(t *testing.T) {
	agg := newTestAggregator(
		[]Fetcher{&stubFetcher{name: "b"}, &stubFetcher{name: "a"}},
		[]Fetcher{&stubFetcher{name: "c"}},
	)
	want := []string{"a", "b", "fallback:c"}
	if got := agg.Sources(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Sources() = %v, want %v", got, want)
	}
}

func TestLimiterSpacesCalls(t *testing.T) {
	l := NewLimiter(40 * time.Millisecond)
	ctx := context.Background()
	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := l.Wait(ctx, "feed"); err != nil {
			t.Fatalf("Wait error: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed < 70*time.Millisecond {
		t.Fatalf("3 calls took %s, want >= ~80ms", elapsed)
	}

	// 不同数据源互不影响
	start = time.Now()
	_ = l.Wait(ctx, "other")
	if time.Since(start) > 20*time.Millisecond {
		t.Fatalf("independent source was throttled")
	}
}
