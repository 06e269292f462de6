package collector

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"net/url"
	"strings"
	"time"
)

// ClockSkew 允许的发布时间超前量，超过的记录在入口处丢弃
const ClockSkew = 5 * time.Minute

// Article 管道中流转的统一新闻结构。PublishedAt 为零值表示发布时间未知
type Article struct {
	Title          string    `json:"title"`
	URL            string    `json:"url"`
	Source         string    `json:"source"`
	PublishedAt    time.Time `json:"published_at"`
	Snippet        string    `json:"summary_snippet"`
	Ticker         string    `json:"ticker"`
	RelevanceScore float64   `json:"relevance_score"`
}

// HasTime 发布时间是否已知
func (a Article) HasTime() bool {
	return !a.PublishedAt.IsZero()
}

// Key 用规范化 URL 的 sha1 作为精确去重键
func (a Article) Key() string {
	return hashURL(NormalizeURL(a.URL))
}

var (
	errEmptyTitle = errors.New("empty title")
	errEmptyURL   = errors.New("empty url")
	errFuture     = errors.New("published in the future")
)

// Validate 入口校验：标题、URL 非空，发布时间不晚于 now+ClockSkew
func (a Article) Validate(now time.Time) error {
	if strings.TrimSpace(a.Title) == "" {
		return errEmptyTitle
	}
	if strings.TrimSpace(a.URL) == "" {
		return errEmptyURL
	}
	if a.HasTime() && a.PublishedAt.After(now.Add(ClockSkew)) {
		return errFuture
	}
	return nil
}

// Fetcher 抽象每一个数据源，按代码抓取
type Fetcher interface {
	Name() string
	Fetch(ctx context.Context, symbol string) ([]Article, error)
}

// NormalizeURL 小写 scheme/host，去掉 fragment、utm 参数和末尾斜杠
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	if u.RawQuery != "" {
		q := u.Query()
		for k := range q {
			if strings.HasPrefix(strings.ToLower(k), "utm_") {
				q.Del(k)
			}
		}
		u.RawQuery = q.Encode()
	}
	if len(u.Path) > 1 {
		u.Path = strings.TrimRight(u.Path, "/")
	} else if u.Path == "/" {
		u.Path = ""
	}
	return u.String()
}

func hashURL(u string) string {
	h := sha1.New()
	h.Write([]byte(u))
	return hex.EncodeToString(h.Sum(nil))
}
