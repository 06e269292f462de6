package report

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/LJTian/TickerNews/internal/pipeline"
	"github.com/LJTian/TickerNews/internal/summarizer"
)

const titleWidth = 70

// Curated 终端表格形式的精选列表
func Curated(w io.Writer, res *pipeline.CuratedResult) {
	fmt.Fprintf(w, "Curated news for %s (last %s): %d of %d articles\n\n",
		res.Ticker, res.Timeframe, len(res.Articles), res.TotalFound)

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"#", "Score", "Published", "Source", "Title"})
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	for i, a := range res.Articles {
		table.Append([]string{
			fmt.Sprintf("%d", i+1),
			fmt.Sprintf("%.2f", a.RelevanceScore),
			publishedLabel(a.PublishedAt),
			a.Source,
			shorten(a.Title, titleWidth),
		})
	}
	table.Render()

	fmt.Fprintln(w)
	for i, a := range res.Articles {
		fmt.Fprintf(w, "[%d] %s\n", i+1, a.URL)
	}
}

// CuratedText 写入文件用的纯文本格式，保留完整标题与摘要片段
func CuratedText(w io.Writer, res *pipeline.CuratedResult) {
	fmt.Fprintf(w, "Curated news for %s\n", res.Ticker)
	fmt.Fprintf(w, "Timeframe: %s\n", res.Timeframe)
	fmt.Fprintf(w, "Generated: %s\n", res.GeneratedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "Articles: %d of %d found\n", len(res.Articles), res.TotalFound)
	fmt.Fprintln(w, strings.Repeat("=", 60))

	for i, a := range res.Articles {
		fmt.Fprintf(w, "\n%d. %s\n", i+1, a.Title)
		fmt.Fprintf(w, "   Source: %s | Published: %s | Relevance: %.2f\n", a.Source, publishedLabel(a.PublishedAt), a.RelevanceScore)
		fmt.Fprintf(w, "   URL: %s\n", a.URL)
		if a.Snippet != "" {
			fmt.Fprintf(w, "   %s\n", a.Snippet)
		}
	}
}

// Summary 终端与文件共用的摘要格式
func Summary(w io.Writer, sum *summarizer.Summary) {
	fmt.Fprintf(w, "AI summary for %s (last %s)\n", sum.Ticker, sum.Timeframe)
	fmt.Fprintf(w, "Provider: %s | Articles analyzed: %d | Generated: %s\n",
		sum.Provider, sum.ArticleCount, sum.GeneratedAt.Format(time.RFC3339))
	fmt.Fprintln(w, strings.Repeat("=", 60))
	fmt.Fprintf(w, "\n%s\n", sum.Text)

	if len(sum.KeyPoints) > 0 {
		fmt.Fprintln(w, "\nKey points:")
		for _, p := range sum.KeyPoints {
			fmt.Fprintf(w, "  - %s\n", p)
		}
	}
	fmt.Fprintf(w, "\nSentiment: %s | Confidence: %s\n", sum.Sentiment, sum.Confidence)

	if len(sum.Sources) > 0 {
		fmt.Fprintln(w, "\nSources:")
		for i, u := range sum.Sources {
			fmt.Fprintf(w, "  [%d] %s\n", i+1, u)
		}
	}
}

// WriteFile 渲染到内存后一次性写入 path，必要时创建目录
func WriteFile(path string, render func(io.Writer)) error {
	var buf bytes.Buffer
	render(&buf)

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}

func publishedLabel(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	return t.UTC().Format("2006-01-02 15:04")
}

func shorten(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit-1]) + "…"
}
