package processor

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/LJTian/TickerNews/internal/collector"
	"github.com/LJTian/TickerNews/internal/logger"
	"github.com/LJTian/TickerNews/internal/ticker"
)

// MinTitleRunes 标题短于此长度的文章视为低质量，不参与排序
const MinTitleRunes = 10

// Processor 去重 + 打分 + 排序 + 截断。输入是未打分的原始文章
type Processor struct {
	scorer *Scorer
	dedupe DedupeOptions
}

func NewProcessor(w Weights, d DedupeOptions, aliases map[string][]string) *Processor {
	return &Processor{scorer: NewScorer(w, aliases), dedupe: d}
}

// Curate 返回排好序的前 limit 篇（limit <= 0 表示不截断）。
// 返回的是副本，不会修改入参
func (p *Processor) Curate(articles []collector.Article, symbol string, limit int, now time.Time) []collector.Article {
	symbol = ticker.Normalize(symbol)
	unique := Dedupe(dropShortTitles(articles), p.dedupe)

	m := ticker.NewMatcher(symbol, p.scorer.aliases)
	for i := range unique {
		unique[i].RelevanceScore = p.scorer.score(m, unique[i], now)
	}
	Rank(unique)

	logger.Log.Debugf("curate %s: %d in, %d after dedupe", symbol, len(articles), len(unique))
	if limit > 0 && len(unique) > limit {
		unique = unique[:limit]
	}
	return unique
}

func dropShortTitles(articles []collector.Article) []collector.Article {
	out := make([]collector.Article, 0, len(articles))
	for _, a := range articles {
		if utf8.RuneCountInString(strings.TrimSpace(a.Title)) < MinTitleRunes {
			continue
		}
		out = append(out, a)
	}
	return out
}

// Fingerprint 打分权重、去重参数与别名表的摘要。任何一项变化都会得到不同的值，
// 用作缓存键参数
func (p *Processor) Fingerprint() string {
	h := sha256.New()
	w := p.scorer.weights
	fmt.Fprintf(h, "w:%g,%g,%g,%g,%g,%g,%d;", w.TitleMention, w.SnippetMention, w.LeadBonus,
		w.MentionShare, w.RecencyShare, w.UnknownRecency, w.HalfLife)
	for _, name := range sortedKeys(w.SourceTrust) {
		fmt.Fprintf(h, "t:%d:%s=%g;", len(name), name, w.SourceTrust[name])
	}
	fmt.Fprintf(h, "d:%g,%d;", p.dedupe.TitleSimilarity, p.dedupe.Window)

	// nil 表示内置别名表，与空表区分开
	if p.scorer.aliases == nil {
		fmt.Fprint(h, "a:builtin;")
	}
	for _, sym := range sortedKeys(p.scorer.aliases) {
		names := append([]string(nil), p.scorer.aliases[sym]...)
		sort.Strings(names)
		fmt.Fprintf(h, "a:%d:%s=", len(sym), sym)
		for _, n := range names {
			fmt.Fprintf(h, "%d:%s,", len(n), n)
		}
		fmt.Fprint(h, ";")
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Rank 得分降序；同分时较新的在前（时间未知的最后），再按标题、URL
func Rank(articles []collector.Article) {
	sort.SliceStable(articles, func(i, j int) bool {
		a, b := articles[i], articles[j]
		if a.RelevanceScore != b.RelevanceScore {
			return a.RelevanceScore > b.RelevanceScore
		}
		if a.HasTime() != b.HasTime() {
			return a.HasTime()
		}
		if !a.PublishedAt.Equal(b.PublishedAt) {
			return a.PublishedAt.After(b.PublishedAt)
		}
		if a.Title != b.Title {
			return a.Title < b.Title
		}
		return a.URL < b.URL
	})
}
