package collector

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/LJTian/TickerNews/internal/logger"
	"github.com/LJTian/TickerNews/internal/ticker"
)

// AggregatorOptions 聚合器参数
type AggregatorOptions struct {
	// Timeout 单个数据源一次调用的上限
	Timeout time.Duration
	// FallbackMin 主数据源少于这个数量时才启用兜底抓取
	FallbackMin int
	Limiter     *Limiter
	Enricher    *Enricher
	Now         func() time.Time
}

// Aggregator 并发调用所有数据源，按 URL 精确去重后合并。
// 单个数据源失败只记日志；全部失败返回空集合
type Aggregator struct {
	primary  []Fetcher
	fallback []Fetcher
	opts     AggregatorOptions
}

func NewAggregator(primary, fallback []Fetcher, opts AggregatorOptions) *Aggregator {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	return &Aggregator{primary: primary, fallback: fallback, opts: opts}
}

// Sources 已配置的数据源名称（排序后），用于缓存键
func (a *Aggregator) Sources() []string {
	names := make([]string, 0, len(a.primary)+len(a.fallback))
	for _, f := range a.primary {
		names = append(names, f.Name())
	}
	for _, f := range a.fallback {
		names = append(names, "fallback:"+f.Name())
	}
	sort.Strings(names)
	return names
}

// Fetch 返回 timeframe 内的候选文章，按规范化 URL 排序
func (a *Aggregator) Fetch(ctx context.Context, symbol string, tf Timeframe) []Article {
	symbol = ticker.Normalize(symbol)
	now := a.opts.Now()
	merged := make(map[string]Article)

	a.collect(ctx, a.primary, symbol, tf, now, merged)
	if len(merged) < a.opts.FallbackMin && len(a.fallback) > 0 {
		logger.Log.Infof("primary sources returned %d articles for %s, trying scrapers", len(merged), symbol)
		a.collect(ctx, a.fallback, symbol, tf, now, merged)
	}

	out := make([]Article, 0, len(merged))
	for _, art := range merged {
		out = append(out, art)
	}
	sort.Slice(out, func(i, j int) bool {
		return NormalizeURL(out[i].URL) < NormalizeURL(out[j].URL)
	})

	a.opts.Enricher.Enrich(ctx, out)

	logger.Log.Infof("aggregated %d articles for %s (%s)", len(out), symbol, tf)
	return out
}

func (a *Aggregator) collect(ctx context.Context, fetchers []Fetcher, symbol string, tf Timeframe, now time.Time, merged map[string]Article) {
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)

	for _, f := range fetchers {
		wg.Add(1)
		go func(f Fetcher) {
			defer wg.Done()

			items, err := a.fetchOne(ctx, f, symbol)
			if err != nil {
				logger.Log.Warnf("source %s failed: %v", f.Name(), err)
				return
			}

			mu.Lock()
			defer mu.Unlock()
			kept := 0
			for _, it := range items {
				if err := it.Validate(now); err != nil {
					logger.Log.Debugf("drop article from %s: %v (url=%q)", f.Name(), err, it.URL)
					continue
				}
				if !tf.Contains(it.PublishedAt, now) {
					continue
				}
				it.Ticker = symbol
				it.RelevanceScore = 0
				key := it.Key()
				if prev, ok := merged[key]; !ok || preferArticle(it, prev) {
					merged[key] = it
				}
				kept++
			}
			logger.Log.Debugf("source %s: %d fetched, %d kept", f.Name(), len(items), kept)
		}(f)
	}
	wg.Wait()
}

func (a *Aggregator) fetchOne(ctx context.Context, f Fetcher, symbol string) ([]Article, error) {
	if err := a.opts.Limiter.Wait(ctx, f.Name()); err != nil {
		return nil, err
	}
	cctx, cancel := context.WithTimeout(ctx, a.opts.Timeout)
	defer cancel()
	return f.Fetch(cctx, symbol)
}

// preferArticle 同一 URL 的两条记录取哪条，全序保证合并结果与到达顺序无关
func preferArticle(x, y Article) bool {
	if x.HasTime() != y.HasTime() {
		return x.HasTime()
	}
	if x.HasTime() && !x.PublishedAt.Equal(y.PublishedAt) {
		return x.PublishedAt.Before(y.PublishedAt)
	}
	if len(x.Snippet) != len(y.Snippet) {
		return len(x.Snippet) > len(y.Snippet)
	}
	if x.Source != y.Source {
		return x.Source < y.Source
	}
	if x.Title != y.Title {
		return x.Title < y.Title
	}
	if x.URL != y.URL {
		return x.URL < y.URL
	}
	return x.Snippet < y.Snippet
}
