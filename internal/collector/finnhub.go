package collector

import (
	"context"
	"fmt"
	"time"

	finnhub "github.com/Finnhub-Stock-API/finnhub-go/v2"

	"github.com/LJTian/TickerNews/internal/logger"
	"github.com/LJTian/TickerNews/internal/ticker"
)

const finnhubLookback = 30 * 24 * time.Hour

// FinnhubFetcher 公司新闻接口，配置了 FINNHUB_API_KEY 才启用
type FinnhubFetcher struct {
	client   *finnhub.DefaultApiService
	maxItems int
	now      func() time.Time
}

func NewFinnhubFetcher(apiKey string, maxItems int) *FinnhubFetcher {
	cfg := finnhub.NewConfiguration()
	cfg.AddDefaultHeader("X-Finnhub-Token", apiKey)
	client := finnhub.NewAPIClient(cfg).DefaultApi
	return &FinnhubFetcher{client: client, maxItems: maxItems, now: time.Now}
}

func (f *FinnhubFetcher) Name() string {
	return "Finnhub"
}

func (f *FinnhubFetcher) Fetch(ctx context.Context, symbol string) ([]Article, error) {
	symbol = ticker.Normalize(symbol)
	to := f.now().UTC()
	from := to.Add(-finnhubLookback)

	res, _, err := f.client.CompanyNews(ctx).
		Symbol(symbol).
		From(from.Format("2006-01-02")).
		To(to.Format("2006-01-02")).
		Execute()
	if err != nil {
		return nil, fmt.Errorf("finnhub: company news %s: %w", symbol, err)
	}

	var articles []Article
	for _, news := range res {
		a := Article{Source: f.Name(), Ticker: symbol}

		if news.Headline != nil {
			a.Title = collapseSpaces(*news.Headline)
		}
		if news.Url != nil {
			a.URL = *news.Url
		}
		if news.Summary != nil {
			a.Snippet = cleanSnippet(*news.Summary)
		}
		if news.Datetime != nil && *news.Datetime > 0 {
			a.PublishedAt = time.Unix(*news.Datetime, 0).UTC()
		}
		// 用原始出版方计算来源权重
		if news.Source != nil && *news.Source != "" {
			a.Source = *news.Source
		}

		articles = append(articles, a)
		if f.maxItems > 0 && len(articles) >= f.maxItems {
			break
		}
	}

	logger.Log.Debugf("finnhub: %d items for %s", len(articles), symbol)
	return articles, nil
}
