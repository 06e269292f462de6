package summarizer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/LJTian/TickerNews/internal/collector"
	"github.com/LJTian/TickerNews/internal/config"
)

type fakeGenerator struct {
	reply   string
	err     error
	errs    []error
	block   bool
	calls   int
	prompts []string
}

func (f *fakeGenerator) Name() string { return "fake:test" }

func (f *fakeGenerator) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	f.calls++
	f.prompts = append(f.prompts, prompt)
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return "", err
	}
	return f.reply, f.err
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.RPM = 0
	opts.RetryDelay = time.Millisecond
	return opts
}

func curated() []collector.Article {
	return []collector.Article{
		{Title: "Apple Q3 earnings beat estimates", URL: "https://a.com/1", Source: "Reuters",
			PublishedAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), Snippet: "Revenue rose.", RelevanceScore: 0.9},
		{Title: "AAPL supplier news", URL: "https://b.com/2", Source: "MarketWatch", RelevanceScore: 0.4},
	}
}

func TestSummarizeParsesJSON(t *testing.T) {
	gen := &fakeGenerator{reply: "Sure! ```json\n{\"summary\":\"Apple had a strong quarter.\",\"key_points\":[\"Beat estimates\"],\"sentiment\":\"Positive\",\"confidence\":\"HIGH\"}\n```"}
	s := New(gen, testOptions())

	sum, err := s.Summarize(context.Background(), curated(), "aapl", "7d")
	if err != nil {
		t.Fatalf("Summarize error: %v", err)
	}
	if sum.Text != "Apple had a strong quarter." || sum.Sentiment != "positive" || sum.Confidence != "high" {
		t.Fatalf("unexpected summary: %+v", sum)
	}
	if len(sum.KeyPoints) != 1 || sum.Ticker != "AAPL" || sum.Provider != "fake:test" {
		t.Fatalf("unexpected summary: %+v", sum)
	}
	if len(sum.Sources) != 2 || sum.Sources[0] != "https://a.com/1" {
		t.Fatalf("Sources = %v", sum.Sources)
	}
	if !strings.Contains(gen.prompts[0], "Title: Apple Q3 earnings beat estimates") {
		t.Fatalf("prompt missing article block:\n%s", gen.prompts[0])
	}
}

func TestSummarizeFallsBackToRawText(t *testing.T) {
	gen := &fakeGenerator{reply: "Apple shares rallied on strong results."}
	sum, err := New(gen, testOptions()).Summarize(context.Background(), curated(), "AAPL", "24h")
	if err != nil {
		t.Fatalf("Summarize error: %v", err)
	}
	if sum.Text != "Apple shares rallied on strong results." || sum.Sentiment != "neutral" || sum.Confidence != "low" {
		t.Fatalf("fallback summary = %+v", sum)
	}
}

func TestSummarizeTimeout(t *testing.T) {
	gen := &fakeGenerator{block: true}
	opts := testOptions()
	opts.Timeout = 20 * time.Millisecond

	_, err := New(gen, opts).Summarize(context.Background(), curated(), "AAPL", "7d")
	if !errors.Is(err, ErrSummarizationFailed) {
		t.Fatalf("err = %v, want ErrSummarizationFailed", err)
	}
}

func TestSummarizeServiceError(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("connection refused")}
	_, err := New(gen, testOptions()).Summarize(context.Background(), curated(), "AAPL", "7d")
	if !errors.Is(err, ErrSummarizationFailed) {
		t.Fatalf("err = %v, want ErrSummarizationFailed", err)
	}
	if gen.calls != 1 {
		t.Fatalf("non rate-limit errors should not be retried, calls = %d", gen.calls)
	}
}

func TestSummarizeEmptyResponse(t *testing.T) {
	gen := &fakeGenerator{reply: "   "}
	if _, err := New(gen, testOptions()).Summarize(context.Background(), curated(), "AAPL", "7d"); !errors.Is(err, ErrSummarizationFailed) {
		t.Fatalf("err = %v, want ErrSummarizationFailed", err)
	}
}

func TestSummarizeNoArticles(t *testing.T) {
	gen := &fakeGenerator{reply: "x"}
	if _, err := New(gen, testOptions()).Summarize(context.Background(), nil, "AAPL", "7d"); !errors.Is(err, ErrSummarizationFailed) {
		t.Fatalf("err = %v, want ErrSummarizationFailed", err)
	}
	if gen.calls != 0 {
		t.Fatalf("generator should not be called without articles")
	}
}

func TestSummarizeRetriesOnRateLimit(t *testing.T) {
	gen := &fakeGenerator{
		errs:  []error{errors.New("status 429: Too Many Requests"), errors.New("429")},
		reply: `{"summary":"ok","key_points":[],"sentiment":"neutral","confidence":"medium"}`,
	}
	sum, err := New(gen, testOptions()).Summarize(context.Background(), curated(), "AAPL", "7d")
	if err != nil {
		t.Fatalf("Summarize error: %v", err)
	}
	if gen.calls != 3 || sum.Text != "ok" {
		t.Fatalf("calls = %d, summary = %+v", gen.calls, sum)
	}
}

func TestBuildPromptDropsLowestRelevanceWholeArticles(t *testing.T) {
	var articles []collector.Article
	for i := 0; i < 10; i++ {
		articles = append(articles, collector.Article{
			Title:          fmt.Sprintf("Story %d", i),
			URL:            fmt.Sprintf("https://x.com/%d", i),
			Snippet:        strings.Repeat("word ", 40),
			RelevanceScore: float64(i) / 10,
		})
	}

	full, n := BuildPrompt(articles, "TSLA", "7d", 0)
	if n != 10 {
		t.Fatalf("unbounded prompt used %d articles", n)
	}

	budget := len([]rune(full)) / 2
	prompt, used := BuildPrompt(articles, "TSLA", "7d", budget)
	if used >= 10 || used < 1 {
		t.Fatalf("used = %d, want fewer than 10", used)
	}
	if len([]rune(prompt)) > budget {
		t.Fatalf("prompt length %d exceeds budget %d", len([]rune(prompt)), budget)
	}
	// 保留的都是相关性最高的，且每篇完整
	if !strings.Contains(prompt, "Title: Story 9") {
		t.Fatalf("highest relevance article dropped")
	}
	if strings.Contains(prompt, "Title: Story 0\n") {
		t.Fatalf("lowest relevance article kept")
	}
	if strings.Count(prompt, "URL: ") != used {
		t.Fatalf("article blocks were cut mid-way")
	}

	one, used := BuildPrompt(articles, "TSLA", "7d", 10)
	if used != 1 || !strings.Contains(one, "Title: Story 9") {
		t.Fatalf("tiny budget should keep the single best article, used = %d", used)
	}
}

func TestParseResponse(t *testing.T) {
	r := parseResponse(`{"summary": "", "key_points": []}`)
	if r.Summary == "" || r.Confidence != "low" {
		t.Fatalf("empty JSON summary should fall back to raw text: %+v", r)
	}
	r = parseResponse(`{"summary":"fine"}`)
	if r.Summary != "fine" || r.Sentiment != "neutral" {
		t.Fatalf("parseResponse = %+v", r)
	}
}

type fakeChatModel struct {
	gotMaxTokens int
	gotMessages  []*schema.Message
}

func (f *fakeChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	f.gotMessages = input
	if o := model.GetCommonOptions(nil, opts...); o.MaxTokens != nil {
		f.gotMaxTokens = *o.MaxTokens
	}
	return &schema.Message{Role: schema.Assistant, Content: "  hello  "}, nil
}

func (f *fakeChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not implemented")
}

func (f *fakeChatModel) BindTools(tools []*schema.ToolInfo) error {
	return nil
}

func TestEinoGenerator(t *testing.T) {
	cm := &fakeChatModel{}
	g := NewEinoGeneratorWithModel(cm, "ollama:llama3.2")

	out, err := g.Generate(context.Background(), "prompt text", 256)
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if out != "hello" || cm.gotMaxTokens != 256 {
		t.Fatalf("out = %q, maxTokens = %d", out, cm.gotMaxTokens)
	}
	if len(cm.gotMessages) != 2 || cm.gotMessages[1].Content != "prompt text" {
		t.Fatalf("messages = %+v", cm.gotMessages)
	}
	if g.Name() != "ollama:llama3.2" {
		t.Fatalf("Name() = %q", g.Name())
	}
}

func TestNewGeneratorProviders(t *testing.T) {
	ctx := context.Background()

	g, err := NewGenerator(ctx, config.LLMConfig{
		Provider:      "gemini",
		GeminiAPIKey:  "gm-test",
		GeminiBaseURL: "https://generativelanguage.googleapis.com/v1beta/openai/",
	})
	if err != nil {
		t.Fatalf("gemini generator: %v", err)
	}
	if g.Name() != "gemini:"+defaultGeminiModel {
		t.Fatalf("Name() = %q", g.Name())
	}

	g, err = NewGenerator(ctx, config.LLMConfig{Provider: "ollama", OllamaBaseURL: "http://localhost:11434"})
	if err != nil || g.Name() != "ollama:"+defaultOllamaModel {
		t.Fatalf("ollama generator: %v", err)
	}

	if _, err := NewGenerator(ctx, config.LLMConfig{Provider: "bard"}); !errors.Is(err, config.ErrConfiguration) {
		t.Fatalf("unknown provider: err = %v", err)
	}
}
