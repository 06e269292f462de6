package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/LJTian/TickerNews/internal/collector"
	"github.com/LJTian/TickerNews/internal/logger"
	"github.com/LJTian/TickerNews/internal/processor"
	"github.com/LJTian/TickerNews/internal/storage"
	"github.com/LJTian/TickerNews/internal/summarizer"
	"github.com/LJTian/TickerNews/internal/ticker"
)

// ErrNoArticlesFound 所有数据源都没有返回该代码在时间窗口内的文章
var ErrNoArticlesFound = errors.New("no articles found")

// DefaultLimit 精选列表默认条数
const DefaultLimit = 10

// Source 文章来源，通常是 *collector.Aggregator
type Source interface {
	Fetch(ctx context.Context, symbol string, tf collector.Timeframe) []collector.Article
	Sources() []string
}

// Query 一次请求的参数
type Query struct {
	Ticker    string
	Timeframe collector.Timeframe
	Limit     int
}

// CuratedResult 精选列表
type CuratedResult struct {
	Ticker      string              `json:"ticker"`
	Timeframe   string              `json:"timeframe"`
	Articles    []collector.Article `json:"articles"`
	TotalFound  int                 `json:"total_found"`
	GeneratedAt time.Time           `json:"generated_at"`
	FromCache   bool                `json:"-"`
}

// Service 抓取 -> 去重 -> 打分 -> 排序，摘要与列表共用同一条上游管道
type Service struct {
	source     Source
	processor  *processor.Processor
	cache      *storage.Cache
	summarizer *summarizer.Summarizer
	now        func() time.Time
}

func NewService(source Source, proc *processor.Processor, cache *storage.Cache, sum *summarizer.Summarizer) *Service {
	return &Service{
		source:     source,
		processor:  proc,
		cache:      cache,
		summarizer: sum,
		now:        time.Now,
	}
}

// WithClock 测试用
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) normalize(q Query) (Query, error) {
	sym := ticker.Normalize(q.Ticker)
	if !ticker.Valid(sym) {
		return q, fmt.Errorf("%w: %q", ticker.ErrInvalid, q.Ticker)
	}
	q.Ticker = sym
	if q.Timeframe == "" {
		q.Timeframe = collector.DefaultTimeframe
	}
	if q.Limit <= 0 {
		q.Limit = DefaultLimit
	}
	return q, nil
}

func (s *Service) sourcesParam() string {
	return "sources=" + strings.Join(s.source.Sources(), ",")
}

// curationParam 排序结果依赖的打分与去重配置
func (s *Service) curationParam() string {
	return "curation=" + s.processor.Fingerprint()
}

// Curated 先查精选缓存，再查原始文章缓存，最后才真正抓取
func (s *Service) Curated(ctx context.Context, q Query) (*CuratedResult, error) {
	q, err := s.normalize(q)
	if err != nil {
		return nil, err
	}
	tf := q.Timeframe.String()

	curatedKey := storage.Fingerprint(storage.KindCurated, q.Ticker, tf, "limit="+strconv.Itoa(q.Limit), s.sourcesParam(), s.curationParam())
	var cached CuratedResult
	if s.cache.Get(ctx, curatedKey, storage.KindCurated, &cached) && len(cached.Articles) > 0 {
		cached.FromCache = true
		logger.Log.Infof("curated list for %s (%s) served from cache", q.Ticker, tf)
		return &cached, nil
	}

	raw := s.rawArticles(ctx, q)
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w for %s in the last %s", ErrNoArticlesFound, q.Ticker, tf)
	}

	now := s.now()
	res := &CuratedResult{
		Ticker:      q.Ticker,
		Timeframe:   tf,
		Articles:    s.processor.Curate(raw, q.Ticker, q.Limit, now),
		TotalFound:  len(raw),
		GeneratedAt: now.UTC(),
	}
	s.cache.Put(ctx, curatedKey, storage.KindCurated, res, 0)
	return res, nil
}

func (s *Service) rawArticles(ctx context.Context, q Query) []collector.Article {
	tf := q.Timeframe.String()
	// 别名表会影响综合源的过滤，原始文章键同样带上 curation
	key := storage.Fingerprint(storage.KindArticles, q.Ticker, tf, s.sourcesParam(), s.curationParam())
	if raw, ok := s.cache.GetArticles(ctx, key, storage.KindArticles); ok && len(raw) > 0 {
		logger.Log.Debugf("raw articles for %s (%s) served from cache", q.Ticker, tf)
		return raw
	}

	raw := s.source.Fetch(ctx, q.Ticker, q.Timeframe)
	// 空结果不缓存，下次运行重新抓取
	if len(raw) > 0 {
		s.cache.PutArticles(ctx, key, storage.KindArticles, raw)
	}
	return raw
}

// Summarize 在精选列表基础上生成摘要。精选列表同时返回，摘要失败时调用方可以退回展示列表
func (s *Service) Summarize(ctx context.Context, q Query) (*summarizer.Summary, *CuratedResult, error) {
	if s.summarizer == nil {
		return nil, nil, fmt.Errorf("%w: summarizer not configured", summarizer.ErrSummarizationFailed)
	}

	res, err := s.Curated(ctx, q)
	if err != nil {
		return nil, nil, err
	}
	q, _ = s.normalize(q)

	key := storage.Fingerprint(storage.KindSummary, res.Ticker, res.Timeframe,
		"limit="+strconv.Itoa(q.Limit), "provider="+s.summarizer.Provider(), s.sourcesParam(), s.curationParam())
	var cached summarizer.Summary
	if s.cache.Get(ctx, key, storage.KindSummary, &cached) {
		logger.Log.Infof("summary for %s (%s) served from cache", res.Ticker, res.Timeframe)
		return &cached, res, nil
	}

	sum, err := s.summarizer.Summarize(ctx, res.Articles, res.Ticker, res.Timeframe)
	if err != nil {
		return nil, res, err
	}
	s.cache.Put(ctx, key, storage.KindSummary, sum, 0)
	return sum, res, nil
}
