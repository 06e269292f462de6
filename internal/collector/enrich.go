package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	readability "github.com/go-shiori/go-readability"

	"github.com/LJTian/TickerNews/internal/logger"
)

const (
	enrichConcurrency = 3
	enrichMaxItems    = 10
	enrichTimeout     = 15 * time.Second
	// enrichBudget 整轮补正文的上限
	enrichBudget = 45 * time.Second
)

// ExtractRequest / ExtractResponse browser-scraper 的 /extract 协议
type ExtractRequest struct {
	URL      string `json:"url"`
	MaxChars int    `json:"maxChars"`
}

type ExtractResponse struct {
	OK    bool   `json:"ok"`
	Text  string `json:"text,omitempty"`
	Error string `json:"error,omitempty"`
}

// Enricher 为没有摘要片段的文章补正文：先 readability，失败再走 headless 浏览器服务
// 正文页和列表页来自同一站点，与聚合器共用一个 Limiter
type Enricher struct {
	browserURL string
	client     *http.Client
	limiter    *Limiter
	readable   func(ctx context.Context, pageURL string) (string, error)
	budget     time.Duration
}

// NewEnricher browserURL 为空时只用 readability
func NewEnricher(browserURL string, limiter *Limiter) *Enricher {
	e := &Enricher{
		browserURL: strings.TrimRight(browserURL, "/"),
		client:     &http.Client{Timeout: enrichTimeout + 5*time.Second},
		limiter:    limiter,
		budget:     enrichBudget,
	}
	e.readable = e.readabilityText
	return e
}

func (e *Enricher) readabilityText(ctx context.Context, pageURL string) (string, error) {
	u, err := url.ParseRequestURI(pageURL)
	if err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(ctx, enrichTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	article, err := readability.FromReader(resp.Body, u)
	if err != nil {
		return "", err
	}
	if article.Excerpt != "" {
		return article.Excerpt, nil
	}
	return article.TextContent, nil
}

// Enrich 原地填充 Snippet，最多处理 enrichMaxItems 篇；失败保持原样
func (e *Enricher) Enrich(ctx context.Context, articles []Article) {
	if e == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, e.budget)
	defer cancel()

	var (
		wg  sync.WaitGroup
		sem = make(chan struct{}, enrichConcurrency)
		n   int
	)
	for i := range articles {
		if articles[i].Snippet != "" {
			continue
		}
		if n >= enrichMaxItems || ctx.Err() != nil {
			break
		}
		n++

		wg.Add(1)
		sem <- struct{}{}
		go func(a *Article) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := e.limiter.Wait(ctx, limiterKey(a)); err != nil {
				logger.Log.Debugf("enrich %s skipped: %v", a.URL, err)
				return
			}
			text, err := e.extract(ctx, a.URL)
			if err != nil {
				logger.Log.Debugf("enrich %s: %v", a.URL, err)
				return
			}
			a.Snippet = cleanSnippet(text)
		}(&articles[i])
	}
	wg.Wait()
}

// limiterKey 按来源名限速，与抓取列表时使用同一个键；没有来源名时退回域名
func limiterKey(a *Article) string {
	if a.Source != "" {
		return a.Source
	}
	if u, err := url.Parse(a.URL); err == nil && u.Host != "" {
		return strings.ToLower(u.Host)
	}
	return a.URL
}

func (e *Enricher) extract(ctx context.Context, pageURL string) (string, error) {
	if e.readable != nil {
		text, err := e.readable(ctx, pageURL)
		if err == nil && strings.TrimSpace(text) != "" {
			return text, nil
		}
	}
	if e.browserURL == "" {
		return "", fmt.Errorf("no extractor succeeded")
	}
	return e.extractWithBrowser(ctx, pageURL)
}

func (e *Enricher) extractWithBrowser(ctx context.Context, pageURL string) (string, error) {
	body, err := json.Marshal(ExtractRequest{URL: pageURL, MaxChars: MaxSnippetRunes * 2})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.browserURL+"/extract", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("browser-scraper: %w", err)
	}
	defer resp.Body.Close()

	var out ExtractResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("browser-scraper: decode: %w", err)
	}
	if !out.OK {
		return "", fmt.Errorf("browser-scraper: %s", out.Error)
	}
	return out.Text, nil
}
