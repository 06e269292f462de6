package summarizer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/LJTian/TickerNews/internal/collector"
	"github.com/LJTian/TickerNews/internal/logger"
)

// ErrSummarizationFailed 摘要服务不可用、超时或返回错误
var ErrSummarizationFailed = errors.New("summarization failed")

// Generator 外部文本生成服务
type Generator interface {
	// Name 形如 "openai:gpt-4o-mini"，参与缓存键
	Name() string
	Generate(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// Summary 一次摘要的结果
type Summary struct {
	Ticker       string    `json:"ticker"`
	Timeframe    string    `json:"timeframe"`
	Text         string    `json:"summary"`
	KeyPoints    []string  `json:"key_points"`
	Sentiment    string    `json:"sentiment"`
	Confidence   string    `json:"confidence"`
	Sources      []string  `json:"sources"`
	ArticleCount int       `json:"article_count"`
	Provider     string    `json:"provider"`
	GeneratedAt  time.Time `json:"generated_at"`
}

type Options struct {
	// MaxInputChars prompt 字符预算
	MaxInputChars int
	MaxTokens     int
	Timeout       time.Duration
	// RPM 每分钟最多请求数，<= 0 不限
	RPM        int
	MaxRetries int
	RetryDelay time.Duration
}

func DefaultOptions() Options {
	return Options{
		MaxInputChars: 12000,
		MaxTokens:     1024,
		Timeout:       90 * time.Second,
		RPM:           30,
		MaxRetries:    3,
		RetryDelay:    2 * time.Second,
	}
}

type Summarizer struct {
	gen     Generator
	opts    Options
	limiter *rate.Limiter
	now     func() time.Time
}

func New(gen Generator, opts Options) *Summarizer {
	s := &Summarizer{gen: gen, opts: opts, now: time.Now}
	if opts.RPM > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(float64(opts.RPM)/60.0), 1)
	}
	return s
}

// Provider 生成服务标识
func (s *Summarizer) Provider() string {
	return s.gen.Name()
}

// Summarize 对已排序的文章生成摘要。任何生成失败都包装为 ErrSummarizationFailed
func (s *Summarizer) Summarize(ctx context.Context, articles []collector.Article, symbol, timeframe string) (*Summary, error) {
	if len(articles) == 0 {
		return nil, fmt.Errorf("%w: no articles to summarize", ErrSummarizationFailed)
	}

	prompt, used := BuildPrompt(articles, symbol, timeframe, s.opts.MaxInputChars)
	if used < len(articles) {
		logger.Log.Infof("prompt budget: kept %d of %d articles", used, len(articles))
	}

	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	logger.Log.Infof("generating summary for %s using %s", symbol, s.gen.Name())
	text, err := s.generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSummarizationFailed, s.gen.Name(), err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: %s returned an empty response", ErrSummarizationFailed, s.gen.Name())
	}

	parsed := parseResponse(text)
	sum := &Summary{
		Ticker:       strings.ToUpper(symbol),
		Timeframe:    timeframe,
		Text:         parsed.Summary,
		KeyPoints:    parsed.KeyPoints,
		Sentiment:    parsed.Sentiment,
		Confidence:   parsed.Confidence,
		ArticleCount: used,
		Provider:     s.gen.Name(),
		GeneratedAt:  s.now().UTC(),
	}
	for _, a := range promptOrder(articles)[:used] {
		sum.Sources = append(sum.Sources, a.URL)
	}
	return sum, nil
}

// generate 遇到 429 时指数退避重试
func (s *Summarizer) generate(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	for i := 0; i <= s.opts.MaxRetries; i++ {
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				return "", err
			}
		}

		text, err := s.gen.Generate(ctx, prompt, s.opts.MaxTokens)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !isRateLimited(err) || i == s.opts.MaxRetries {
			break
		}

		delay := s.opts.RetryDelay * time.Duration(1<<i)
		logger.Log.Warnf("rate limited by %s, retrying in %s", s.gen.Name(), delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return "", lastErr
}

func isRateLimited(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") || strings.Contains(msg, "too many requests")
}
