package pipeline

import (
	"context"
	"net/http"
	"sort"

	"github.com/LJTian/TickerNews/internal/collector"
	"github.com/LJTian/TickerNews/internal/config"
	"github.com/LJTian/TickerNews/internal/logger"
	"github.com/LJTian/TickerNews/internal/processor"
	"github.com/LJTian/TickerNews/internal/storage"
	"github.com/LJTian/TickerNews/internal/summarizer"
)

// NewAggregator 按配置组装数据源：按代码订阅的 RSS、综合 RSS、Finnhub，以及 HTML 兜底
func NewAggregator(cfg *config.Config) *collector.Aggregator {
	src := cfg.Sources
	rssOpts := collector.RSSOptions{
		UserAgent: src.UserAgent,
		MaxItems:  src.MaxArticlesPerSource,
		Aliases:   cfg.TickerAliases,
		Client:    &http.Client{Timeout: src.Timeout},
	}

	primary := collector.DefaultTickerFeeds(rssOpts)

	names := make([]string, 0, len(src.RSSFeeds))
	for name := range src.RSSFeeds {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		primary = append(primary, collector.NewMarketFeed(name, src.RSSFeeds[name], rssOpts))
	}

	if src.FinnhubAPIKey != "" {
		primary = append(primary, collector.NewFinnhubFetcher(src.FinnhubAPIKey, src.MaxArticlesPerSource))
	}

	var fallback []collector.Fetcher
	if !src.DisableScraping {
		fallback = collector.DefaultScrapers(collector.ScrapeOptions{
			UserAgent: src.UserAgent,
			Timeout:   src.Timeout,
			MaxItems:  src.MaxArticlesPerSource,
		})
	}

	limiter := collector.NewLimiter(src.MinInterval)
	var enricher *collector.Enricher
	if !src.DisableScraping {
		enricher = collector.NewEnricher(src.BrowserScraperURL, limiter)
	}

	return collector.NewAggregator(primary, fallback, collector.AggregatorOptions{
		Timeout:     src.Timeout,
		FallbackMin: src.ScrapeFallbackMin,
		Limiter:     limiter,
		Enricher:    enricher,
	})
}

// NewProcessor 把打分配置映射为 Processor
func NewProcessor(cfg *config.Config) *processor.Processor {
	s := cfg.Scoring
	w := processor.Weights{
		TitleMention:   s.TitleMention,
		SnippetMention: s.SnippetMention,
		LeadBonus:      s.LeadBonus,
		MentionShare:   s.MentionShare,
		RecencyShare:   s.RecencyShare,
		UnknownRecency: s.UnknownRecency,
		HalfLife:       s.HalfLife,
		SourceTrust:    s.SourceTrust,
	}
	d := processor.DedupeOptions{TitleSimilarity: s.TitleSimilarity, Window: s.DedupWindow}
	return processor.NewProcessor(w, d, cfg.TickerAliases)
}

// OpenCache 打开缓存；失败时记录警告并在无缓存模式下继续
func OpenCache(cfg config.CacheConfig, bypass bool) *storage.Cache {
	b, err := storage.OpenBackend(cfg)
	if err != nil {
		logger.Log.Warnf("cache unavailable, running without cache: %v", err)
		return nil
	}
	return storage.NewCache(b, cfg.TTL, storage.WithBypass(bypass))
}

// FromConfig 组装完整的服务。needLLM 为 false 时不创建摘要器（只输出精选列表）
func FromConfig(ctx context.Context, cfg *config.Config, bypass, needLLM bool) (*Service, error) {
	var sum *summarizer.Summarizer
	if needLLM {
		gen, err := summarizer.NewGenerator(ctx, cfg.LLM)
		if err != nil {
			return nil, err
		}
		sum = summarizer.New(gen, summarizer.OptionsFromConfig(cfg.LLM))
		logger.Log.Infof("summarizer ready: %s", gen.Name())
	}

	return NewService(NewAggregator(cfg), NewProcessor(cfg), OpenCache(cfg.Cache, bypass), sum), nil
}

// Close 释放缓存连接
func (s *Service) Close() error {
	return s.cache.Close()
}
