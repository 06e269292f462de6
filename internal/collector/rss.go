package collector

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/mmcdole/gofeed"

	"github.com/LJTian/TickerNews/internal/logger"
	"github.com/LJTian/TickerNews/internal/ticker"
)

// 按代码订阅的 RSS 源，{SYMBOL} 为大写代码，{symbol} 为小写
var tickerFeeds = []struct {
	name     string
	template string
}{
	{"Yahoo Finance", "https://finance.yahoo.com/rss/headline?s={SYMBOL}"},
	{"MarketWatch", "https://www.marketwatch.com/rss/topics/{symbol}"},
	{"Seeking Alpha", "https://seekingalpha.com/api/sa/combined/{SYMBOL}.xml"},
}

// RSSOptions 所有 RSS 源共用的抓取参数
type RSSOptions struct {
	UserAgent string
	MaxItems  int
	Aliases   map[string][]string
	Client    *http.Client
}

// RSSFetcher 基于 gofeed 解析 RSS/Atom。filter 为 true 的综合源只保留提及代码的条目
type RSSFetcher struct {
	name     string
	template string
	filter   bool
	opts     RSSOptions
	parser   *gofeed.Parser
}

// NewTickerFeed 按代码拼接 URL 的源
func NewTickerFeed(name, template string, opts RSSOptions) *RSSFetcher {
	return newRSSFetcher(name, template, false, opts)
}

// NewMarketFeed 不区分代码的综合源
func NewMarketFeed(name, feedURL string, opts RSSOptions) *RSSFetcher {
	return newRSSFetcher(name, feedURL, true, opts)
}

// DefaultTickerFeeds Yahoo Finance / MarketWatch / Seeking Alpha 的按代码订阅
func DefaultTickerFeeds(opts RSSOptions) []Fetcher {
	out := make([]Fetcher, 0, len(tickerFeeds))
	for _, f := range tickerFeeds {
		out = append(out, NewTickerFeed(f.name, f.template, opts))
	}
	return out
}

func newRSSFetcher(name, template string, filter bool, opts RSSOptions) *RSSFetcher {
	p := gofeed.NewParser()
	if opts.UserAgent != "" {
		p.UserAgent = opts.UserAgent
	}
	if opts.Client != nil {
		p.Client = opts.Client
	}
	return &RSSFetcher{name: name, template: template, filter: filter, opts: opts, parser: p}
}

func (f *RSSFetcher) Name() string {
	return f.name
}

func (f *RSSFetcher) feedURL(symbol string) string {
	r := strings.NewReplacer("{SYMBOL}", strings.ToUpper(symbol), "{symbol}", strings.ToLower(symbol))
	return r.Replace(f.template)
}

func (f *RSSFetcher) Fetch(ctx context.Context, symbol string) ([]Article, error) {
	u := f.feedURL(symbol)
	logger.Log.Debugf("fetch rss %s: %s", f.name, u)

	feed, err := f.parser.ParseURLWithContext(u, ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: parse feed: %w", f.name, err)
	}

	matcher := ticker.NewMatcher(symbol, f.opts.Aliases)
	results := make([]Article, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item == nil {
			continue
		}

		desc := item.Description
		if desc == "" {
			desc = item.Content
		}
		a := Article{
			Title:   stripHTML(item.Title),
			URL:     strings.TrimSpace(item.Link),
			Source:  f.name,
			Snippet: cleanSnippet(desc),
			Ticker:  matcher.Symbol(),
		}
		if item.PublishedParsed != nil {
			a.PublishedAt = item.PublishedParsed.UTC()
		} else if item.UpdatedParsed != nil {
			a.PublishedAt = item.UpdatedParsed.UTC()
		}

		if f.filter && !matcher.Mentions(a.Title+" "+a.Snippet) {
			continue
		}

		results = append(results, a)
		if f.opts.MaxItems > 0 && len(results) >= f.opts.MaxItems {
			break
		}
	}

	logger.Log.Debugf("%s: %d items for %s", f.name, len(results), matcher.Symbol())
	return results, nil
}
