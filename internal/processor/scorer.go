package processor

import (
	"math"
	"time"

	"github.com/LJTian/TickerNews/internal/collector"
	"github.com/LJTian/TickerNews/internal/ticker"
)

// Weights 相关性打分参数，全部可通过配置调整
type Weights struct {
	// 标题 / 摘要中每次提及的得分
	TitleMention   float64
	SnippetMention float64
	// LeadBonus 代码出现在标题前半段时的额外得分
	LeadBonus float64

	// 最终得分 = 提及分 * (MentionShare + RecencyShare*时效分) * 来源权重
	MentionShare float64
	RecencyShare float64
	// UnknownRecency 发布时间未知时的时效分
	UnknownRecency float64
	// HalfLife 时效分衰减到一半所需的时间
	HalfLife time.Duration

	// SourceTrust 未列出的来源为 1.0
	SourceTrust map[string]float64
}

func DefaultWeights() Weights {
	return Weights{
		TitleMention:   0.6,
		SnippetMention: 0.15,
		LeadBonus:      0.2,
		MentionShare:   0.7,
		RecencyShare:   0.3,
		UnknownRecency: 0.25,
		HalfLife:       48 * time.Hour,
	}
}

// Scorer 纯函数打分：结果只取决于文章、代码、now 与权重
type Scorer struct {
	weights Weights
	aliases map[string][]string
}

// NewScorer aliases 为 nil 时使用内置公司名表
func NewScorer(w Weights, aliases map[string][]string) *Scorer {
	return &Scorer{weights: w, aliases: aliases}
}

// Score 返回 [0,1] 内的相关性
func (s *Scorer) Score(a collector.Article, symbol string, now time.Time) float64 {
	return s.score(ticker.NewMatcher(symbol, s.aliases), a, now)
}

func (s *Scorer) score(m *ticker.Matcher, a collector.Article, now time.Time) float64 {
	w := s.weights

	mention := s.mention(m, a)
	if mention <= 0 {
		return 0
	}

	recency := w.UnknownRecency
	if a.HasTime() {
		recency = s.recency(now.Sub(a.PublishedAt))
	}

	trust := 1.0
	if v, ok := w.SourceTrust[a.Source]; ok {
		trust = v
	}

	return clamp01(mention * (w.MentionShare + w.RecencyShare*recency) * trust)
}

func (s *Scorer) mention(m *ticker.Matcher, a collector.Article) float64 {
	w := s.weights
	t := m.Count(a.Title)
	sn := m.Count(a.Snippet)
	if t == 0 && sn == 0 {
		return 0
	}

	v := w.TitleMention*float64(t) + w.SnippetMention*float64(sn)
	if idx := m.FirstIndex(a.Title); idx >= 0 && idx < len(a.Title)/2 {
		v += w.LeadBonus
	}
	return math.Min(1, v)
}

// recency 指数衰减；未来时间（时钟偏差内）按 0 计
func (s *Scorer) recency(age time.Duration) float64 {
	if age < 0 {
		age = 0
	}
	if s.weights.HalfLife <= 0 {
		return 1
	}
	return math.Exp2(-float64(age) / float64(s.weights.HalfLife))
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
