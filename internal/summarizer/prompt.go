package summarizer

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/LJTian/TickerNews/internal/collector"
)

const systemPrompt = "You are a financial analyst assistant. Reply with a single JSON object and nothing else."

const summaryTemplate = `Analyze the following news articles about %[1]s and provide a comprehensive summary.

Articles:
%[3]s

Instructions:
1. Provide a 300-500 word summary of the key financial news and trends for %[1]s within the %[2]s timeframe
2. Focus on material events, financial performance, market sentiment and notable developments
3. Extract 3-5 key bullet points highlighting the most important takeaways
4. Assess the overall sentiment (positive, negative, or neutral) based on the news
5. Be factual and grounded in the provided articles; do not invent information
6. If articles contain contradictory information, acknowledge it

Format your response as JSON:
{
    "summary": "Your comprehensive summary here...",
    "key_points": ["Point 1", "Point 2", "Point 3"],
    "sentiment": "positive/negative/neutral",
    "confidence": "high/medium/low"
}
`

// BuildPrompt 生成不超过 budget 个字符的 prompt，返回实际使用的文章数。
// 超出预算时从相关性最低的文章开始整篇丢弃，至少保留一篇
func BuildPrompt(articles []collector.Article, symbol, timeframe string, budget int) (string, int) {
	ordered := promptOrder(articles)
	symbol = strings.ToUpper(symbol)

	n := len(ordered)
	prompt := renderPrompt(ordered[:n], symbol, timeframe)
	for budget > 0 && n > 1 && utf8.RuneCountInString(prompt) > budget {
		n--
		prompt = renderPrompt(ordered[:n], symbol, timeframe)
	}
	return prompt, n
}

// promptOrder 按相关性降序的副本
func promptOrder(articles []collector.Article) []collector.Article {
	out := append([]collector.Article(nil), articles...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RelevanceScore > out[j].RelevanceScore
	})
	return out
}

func renderPrompt(articles []collector.Article, symbol, timeframe string) string {
	blocks := make([]string, 0, len(articles))
	for i, a := range articles {
		blocks = append(blocks, articleBlock(i+1, a))
	}
	return fmt.Sprintf(summaryTemplate, symbol, timeframe, strings.Join(blocks, "\n---\n"))
}

func articleBlock(n int, a collector.Article) string {
	date := "unknown"
	if a.HasTime() {
		date = a.PublishedAt.Format("2006-01-02")
	}
	content := a.Snippet
	if content == "" {
		content = "(no excerpt)"
	}
	return fmt.Sprintf("Article %d:\nTitle: %s\nSource: %s\nDate: %s\nContent: %s\nURL: %s\n",
		n, a.Title, a.Source, date, content, a.URL)
}

type llmResponse struct {
	Summary    string   `json:"summary"`
	KeyPoints  []string `json:"key_points"`
	Sentiment  string   `json:"sentiment"`
	Confidence string   `json:"confidence"`
}

// parseResponse 解析模型返回的 JSON；不是 JSON 时整段作为摘要正文
func parseResponse(text string) llmResponse {
	fallback := llmResponse{Summary: strings.TrimSpace(text), Sentiment: "neutral", Confidence: "low"}

	content := cleanJSONResponse(text)
	if !strings.HasPrefix(content, "{") {
		return fallback
	}
	var parsed llmResponse
	if err := json.Unmarshal([]byte(content), &parsed); err != nil || strings.TrimSpace(parsed.Summary) == "" {
		return fallback
	}
	parsed.Sentiment = strings.ToLower(strings.TrimSpace(parsed.Sentiment))
	if parsed.Sentiment == "" {
		parsed.Sentiment = "neutral"
	}
	parsed.Confidence = strings.ToLower(strings.TrimSpace(parsed.Confidence))
	return parsed
}

func cleanJSONResponse(content string) string {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	// 有的模型会在 JSON 前后加说明文字
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start >= 0 && end > start {
		content = content[start : end+1]
	}
	return content
}
