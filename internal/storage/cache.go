package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/LJTian/TickerNews/internal/collector"
	"github.com/LJTian/TickerNews/internal/logger"
)

// ErrMiss 后端中不存在该键
var ErrMiss = errors.New("cache miss")

// 缓存条目的阶段
const (
	KindArticles = "articles"
	KindCurated  = "curated"
	KindSummary  = "summary"
)

// Entry 一条缓存记录；Payload 为 JSON
type Entry struct {
	Key       string          `json:"key"`
	Kind      string          `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
	TTL       time.Duration   `json:"ttl"`
}

// Valid now - CreatedAt < TTL
func (e *Entry) Valid(now time.Time) bool {
	return now.Sub(e.CreatedAt) < e.TTL
}

// Backend 具体的存储介质。Load 在键不存在时返回 ErrMiss；Save 对同一键是覆盖写
type Backend interface {
	Load(ctx context.Context, key string) (*Entry, error)
	Save(ctx context.Context, e *Entry) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Fingerprint 由阶段、代码、时间窗口及其他参数生成确定性的缓存键。
// 每个字段带长度前缀，("ab","c") 与 ("a","bc") 不会冲突
func Fingerprint(stage, symbol, timeframe string, params ...string) string {
	h := sha256.New()
	fields := append([]string{stage, strings.ToUpper(strings.TrimSpace(symbol)), timeframe}, params...)
	for _, f := range fields {
		fmt.Fprintf(h, "%d:%s;", len(f), f)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Option Cache 可选项
type Option func(*Cache)

// WithClock 注入时钟，测试用
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithBypass 读取总是 miss，写入照常
func WithBypass(bypass bool) Option {
	return func(c *Cache) { c.bypass = bypass }
}

// Cache 调用方使用的缓存层。读失败一律视为 miss；写失败后本次运行不再写入
type Cache struct {
	backend    Backend
	ttl        time.Duration
	bypass     bool
	now        func() time.Time
	writesDown atomic.Bool
}

func NewCache(b Backend, ttl time.Duration, opts ...Option) *Cache {
	c := &Cache{backend: b, ttl: ttl, now: time.Now}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Get 命中且未过期时把 payload 解码到 dst 并返回 true
func (c *Cache) Get(ctx context.Context, key, kind string, dst any) bool {
	if c == nil || c.backend == nil || c.bypass {
		return false
	}

	e, err := c.backend.Load(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			logger.Log.Warnf("cache read %s failed: %v", shortKey(key), err)
		}
		return false
	}
	if e.Kind != kind || !e.Valid(c.now()) {
		return false
	}
	if err := json.Unmarshal(e.Payload, dst); err != nil {
		logger.Log.Debugf("cache entry %s is corrupted: %v", shortKey(key), err)
		return false
	}
	logger.Log.Debugf("cache hit %s (%s)", shortKey(key), kind)
	return true
}

// Put 覆盖写入；ttl <= 0 时使用默认有效期
func (c *Cache) Put(ctx context.Context, key, kind string, payload any, ttl time.Duration) {
	if c == nil || c.backend == nil || c.writesDown.Load() {
		return
	}
	if ttl <= 0 {
		ttl = c.ttl
	}

	data, err := json.Marshal(payload)
	if err != nil {
		logger.Log.Warnf("cache encode %s failed: %v", shortKey(key), err)
		return
	}

	e := &Entry{Key: key, Kind: kind, Payload: data, CreatedAt: c.now(), TTL: ttl}
	if err := c.backend.Save(ctx, e); err != nil {
		logger.Log.Warnf("cache write failed, caching disabled for this run: %v", err)
		c.writesDown.Store(true)
	}
}

// Invalidate 删除某个键，失败只记日志
func (c *Cache) Invalidate(ctx context.Context, key string) {
	if c == nil || c.backend == nil {
		return
	}
	if err := c.backend.Delete(ctx, key); err != nil && !errors.Is(err, ErrMiss) {
		logger.Log.Warnf("cache invalidate %s failed: %v", shortKey(key), err)
	}
}

// GetArticles / PutArticles 文章列表 payload
func (c *Cache) GetArticles(ctx context.Context, key, kind string) ([]collector.Article, bool) {
	var out []collector.Article
	if !c.Get(ctx, key, kind, &out) {
		return nil, false
	}
	return out, true
}

func (c *Cache) PutArticles(ctx context.Context, key, kind string, articles []collector.Article) {
	c.Put(ctx, key, kind, articles, 0)
}

// GetText / PutText 字符串 payload
func (c *Cache) GetText(ctx context.Context, key, kind string) (string, bool) {
	var out string
	if !c.Get(ctx, key, kind, &out) {
		return "", false
	}
	return out, true
}

func (c *Cache) PutText(ctx context.Context, key, kind, text string) {
	c.Put(ctx, key, kind, text, 0)
}

func (c *Cache) Close() error {
	if c == nil || c.backend == nil {
		return nil
	}
	return c.backend.Close()
}

func shortKey(key string) string {
	if len(key) > 12 {
		return key[:12]
	}
	return key
}
