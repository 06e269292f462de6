package processor

import (
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/LJTian/TickerNews/internal/collector"
)

// DedupeOptions 近似去重参数
type DedupeOptions struct {
	// TitleSimilarity 规范化标题的 Jaccard 词重合率阈值
	TitleSimilarity float64
	// Window 两篇发布时间相差在此范围内才可能是同一事件
	Window time.Duration
}

func DefaultDedupeOptions() DedupeOptions {
	return DedupeOptions{TitleSimilarity: 0.8, Window: 48 * time.Hour}
}

// Dedupe 每个事件只保留一篇代表文章。
// 对所有两两组合做并查集聚类，结果与输入顺序无关，且 Dedupe(Dedupe(x)) == Dedupe(x)
func Dedupe(articles []collector.Article, opts DedupeOptions) []collector.Article {
	n := len(articles)
	if n == 0 {
		return []collector.Article{}
	}

	items := make([]dedupeItem, n)
	for i, a := range articles {
		items[i] = dedupeItem{article: a, key: a.Key(), tokens: titleTokens(a.Title)}
	}

	uf := newUnionFind(n)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if sameStory(&items[i], &items[j], opts) {
				uf.union(i, j)
			}
		}
	}

	reps := make(map[int]int, n)
	for i := range items {
		root := uf.find(i)
		cur, ok := reps[root]
		if !ok || betterRepresentative(items[i].article, items[cur].article) {
			reps[root] = i
		}
	}

	out := make([]collector.Article, 0, len(reps))
	for _, idx := range reps {
		out = append(out, items[idx].article)
	}
	sortCanonical(out)
	return out
}

type dedupeItem struct {
	article collector.Article
	key     string
	tokens  map[string]struct{}
}

// sameStory URL 相同，或标题足够相似且发布时间接近。任一方时间未知时只看标题
func sameStory(a, b *dedupeItem, opts DedupeOptions) bool {
	if a.key == b.key {
		return true
	}
	if jaccard(a.tokens, b.tokens) < opts.TitleSimilarity {
		return false
	}
	if !a.article.HasTime() || !b.article.HasTime() {
		return true
	}
	diff := a.article.PublishedAt.Sub(b.article.PublishedAt)
	if diff < 0 {
		diff = -diff
	}
	return diff <= opts.Window
}

// betterRepresentative 最早发布的优先；时间都未知时取摘要更长的
func betterRepresentative(x, y collector.Article) bool {
	if x.HasTime() != y.HasTime() {
		return x.HasTime()
	}
	if x.HasTime() && !x.PublishedAt.Equal(y.PublishedAt) {
		return x.PublishedAt.Before(y.PublishedAt)
	}
	if len(x.Snippet) != len(y.Snippet) {
		return len(x.Snippet) > len(y.Snippet)
	}
	return canonicalLess(x, y)
}

func sortCanonical(articles []collector.Article) {
	sort.Slice(articles, func(i, j int) bool {
		return canonicalLess(articles[i], articles[j])
	})
}

func canonicalLess(x, y collector.Article) bool {
	if ux, uy := collector.NormalizeURL(x.URL), collector.NormalizeURL(y.URL); ux != uy {
		return ux < uy
	}
	if x.URL != y.URL {
		return x.URL < y.URL
	}
	if x.Title != y.Title {
		return x.Title < y.Title
	}
	if x.Source != y.Source {
		return x.Source < y.Source
	}
	if !x.PublishedAt.Equal(y.PublishedAt) {
		return x.PublishedAt.Before(y.PublishedAt)
	}
	return x.Snippet < y.Snippet
}

// normalizeTitle 小写、去标点、压缩空白
func normalizeTitle(title string) string {
	mapped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, title)
	return strings.Join(strings.Fields(mapped), " ")
}

func titleTokens(title string) map[string]struct{} {
	fields := strings.Fields(normalizeTitle(title))
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

// jaccard 两个空集合视为不相似
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for t := range a {
		if _, ok := b[t]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

type unionFind struct {
	parent []int
	rank   []int
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{parent: make([]int, n), rank: make([]int, n)}
	for i := range uf.parent {
		uf.parent[i] = i
	}
	return uf
}

func (u *unionFind) find(x int) int {
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	switch {
	case u.rank[ra] < u.rank[rb]:
		u.parent[ra] = rb
	case u.rank[ra] > u.rank[rb]:
		u.parent[rb] = ra
	default:
		u.parent[rb] = ra
		u.rank[ra]++
	}
}
