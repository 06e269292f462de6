package collector

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/LJTian/TickerNews/internal/logger"
	"github.com/LJTian/TickerNews/internal/ticker"
)

// ScrapeOptions HTML 兜底抓取参数
type ScrapeOptions struct {
	UserAgent string
	Timeout   time.Duration
	MaxItems  int
}

// ScrapeFetcher 用 colly 解析行情页的新闻列表，只在 RSS 结果不足时调用。
// 页面结构可能调整，解析是尽力而为；发布时间拿不到，统一记为未知
type ScrapeFetcher struct {
	name        string
	template    string
	selector    string
	minTitleLen int
	opts        ScrapeOptions
}

func NewScrapeFetcher(name, template, selector string, minTitleLen int, opts ScrapeOptions) *ScrapeFetcher {
	return &ScrapeFetcher{
		name:        name,
		template:    template,
		selector:    selector,
		minTitleLen: minTitleLen,
		opts:        opts,
	}
}

// DefaultScrapers Yahoo Finance / MarketWatch 行情页
func DefaultScrapers(opts ScrapeOptions) []Fetcher {
	return []Fetcher{
		NewScrapeFetcher("Yahoo Finance", "https://finance.yahoo.com/quote/{SYMBOL}/news", "h3 a", 0, opts),
		NewScrapeFetcher("MarketWatch", "https://www.marketwatch.com/investing/stock/{symbol}", "a.link", 10, opts),
	}
}

func (s *ScrapeFetcher) Name() string {
	return s.name
}

func (s *ScrapeFetcher) Fetch(ctx context.Context, symbol string) ([]Article, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	symbol = ticker.Normalize(symbol)
	page := strings.NewReplacer("{SYMBOL}", symbol, "{symbol}", strings.ToLower(symbol)).Replace(s.template)
	logger.Log.Debugf("scrape %s: %s", s.name, page)

	c := colly.NewCollector(colly.MaxDepth(1))
	if s.opts.UserAgent != "" {
		c.UserAgent = s.opts.UserAgent
	}
	c.IgnoreRobotsTxt = false
	timeout := s.opts.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); timeout <= 0 || left < timeout {
			timeout = left
		}
	}
	if timeout > 0 {
		c.SetRequestTimeout(timeout)
	}

	results := make([]Article, 0, 10)
	seen := make(map[string]struct{})

	c.OnHTML(s.selector, func(e *colly.HTMLElement) {
		if s.opts.MaxItems > 0 && len(results) >= s.opts.MaxItems {
			return
		}
		title := collapseSpaces(e.Text)
		if title == "" || len([]rune(title)) < s.minTitleLen {
			return
		}
		link := e.Request.AbsoluteURL(e.Attr("href"))
		if link == "" {
			return
		}
		if _, ok := seen[link]; ok {
			return
		}
		seen[link] = struct{}{}

		results = append(results, Article{
			Title:  title,
			URL:    link,
			Source: s.name,
			Ticker: symbol,
		})
	})

	var fetchErr error
	c.OnError(func(r *colly.Response, err error) {
		fetchErr = fmt.Errorf("%s: status %d: %w", s.name, r.StatusCode, err)
	})

	if err := c.Visit(page); err != nil {
		return nil, fmt.Errorf("%s: visit: %w", s.name, err)
	}
	c.Wait()

	if fetchErr != nil {
		return nil, fetchErr
	}
	logger.Log.Debugf("scraped %d articles from %s", len(results), s.name)
	return results, nil
}
