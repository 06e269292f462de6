package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/LJTian/TickerNews/internal/logger"
)

// ErrConfiguration 启动期配置错误，必须在任何抓取之前暴露
var ErrConfiguration = errors.New("configuration error")

type Config struct {
	AppPort       string
	BasicAuthUser string
	BasicAuthPass string
	CronSpec      string
	Watchlist     []string

	LLM     LLMConfig
	Cache   CacheConfig
	Sources SourceConfig
	Scoring ScoringConfig
	Log     LogConfig

	// TickerAliases 代码 -> 公司名，为空时使用内置表
	TickerAliases map[string][]string
}

type LLMConfig struct {
	Provider        string // ollama / gemini / openai / anthropic
	OllamaBaseURL   string
	Model           string
	GeminiAPIKey    string
	GeminiBaseURL   string
	OpenAIAPIKey    string
	AnthropicAPIKey string
	MaxTokens       int
	// MaxInputChars prompt 的字符预算，约等于 token 预算 * 4
	MaxInputChars int
	Timeout       time.Duration
	RPM           int
}

type CacheConfig struct {
	Backend     string // sqlite / redis / postgres / memory
	Dir         string
	TTL         time.Duration
	RedisAddr   string
	PostgresDSN string
}

type SourceConfig struct {
	UserAgent            string
	MaxArticlesPerSource int
	Timeout              time.Duration
	MinInterval          time.Duration
	ScrapeFallbackMin    int
	RSSFeeds             map[string]string
	FinnhubAPIKey        string
	BrowserScraperURL    string
	DisableScraping      bool
}

// ScoringConfig 打分与去重的可调参数
type ScoringConfig struct {
	TitleMention    float64
	SnippetMention  float64
	LeadBonus       float64
	MentionShare    float64
	RecencyShare    float64
	UnknownRecency  float64
	HalfLife        time.Duration
	SourceTrust     map[string]float64
	TitleSimilarity float64
	DedupWindow     time.Duration
}

type LogConfig struct {
	Level string
	File  string
}

// DefaultRSSFeeds 不区分代码的综合财经源，抓取后按代码提及过滤
var DefaultRSSFeeds = map[string]string{
	"MarketWatch":   "https://www.marketwatch.com/rss/topstories",
	"Seeking Alpha": "https://seekingalpha.com/feed.xml",
	"Investing.com": "https://www.investing.com/rss/news.rss",
}

// DefaultSourceTrust 未列出的来源权重为 1.0
var DefaultSourceTrust = map[string]float64{
	"MarketWatch":         1.0,
	"Yahoo Finance":       0.9,
	"Seeking Alpha":       0.95,
	"CNBC":                1.0,
	"Reuters":             1.0,
	"Bloomberg":           1.0,
	"Wall Street Journal": 1.0,
	"Investing.com":       0.85,
}

// Load 读取 .env、环境变量，以及可选的 YAML 覆盖文件（CONFIG_FILE）
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Log.Warnf("load .env failed: %v", err)
	}

	cfg := &Config{
		AppPort:       getEnv("APP_PORT", "9000"),
		BasicAuthUser: getEnv("APP_BASIC_USER", ""),
		BasicAuthPass: getEnv("APP_BASIC_PASS", ""),
		CronSpec:      getEnv("CRON_SPEC", "0 */4 * * *"),
		Watchlist:     splitList(getEnv("WATCHLIST", "")),
		LLM: LLMConfig{
			Provider:        strings.ToLower(getEnv("LLM_PROVIDER", "ollama")),
			OllamaBaseURL:   getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
			Model:           getEnv("LLM_MODEL", ""),
			GeminiAPIKey:    getEnv("GEMINI_API_KEY", ""),
			GeminiBaseURL:   getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta/openai"),
			OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
			AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
			MaxTokens:       getInt("LLM_MAX_TOKENS", 1024),
			MaxInputChars:   getInt("LLM_MAX_INPUT_CHARS", 12000),
			Timeout:         getDuration("LLM_TIMEOUT", 90*time.Second),
			RPM:             getInt("LLM_RPM", 30),
		},
		Cache: CacheConfig{
			Backend:     strings.ToLower(getEnv("CACHE_BACKEND", "sqlite")),
			Dir:         getEnv("CACHE_DIR", ".cache"),
			TTL:         time.Duration(getInt("CACHE_TTL_HOURS", 4)) * time.Hour,
			RedisAddr:   getEnv("REDIS_ADDR", "localhost:6379"),
			PostgresDSN: getEnv("POSTGRES_DSN", ""),
		},
		Sources: SourceConfig{
			UserAgent:            getEnv("USER_AGENT", "TickerNews/1.0 (Educational)"),
			MaxArticlesPerSource: getInt("MAX_ARTICLES_PER_SOURCE", 20),
			Timeout:              getDuration("SOURCE_TIMEOUT", 15*time.Second),
			MinInterval:          getDuration("SOURCE_MIN_INTERVAL", time.Second),
			ScrapeFallbackMin:    getInt("SCRAPE_FALLBACK_MIN", 5),
			RSSFeeds:             copyFeeds(DefaultRSSFeeds),
			FinnhubAPIKey:        getEnv("FINNHUB_API_KEY", ""),
			BrowserScraperURL:    getEnv("BROWSER_SCRAPER_URL", ""),
			DisableScraping:      getBool("DISABLE_SCRAPING", false),
		},
		Scoring: ScoringConfig{
			TitleMention:    getFloat("SCORE_TITLE_MENTION", 0.6),
			SnippetMention:  getFloat("SCORE_SNIPPET_MENTION", 0.15),
			LeadBonus:       getFloat("SCORE_LEAD_BONUS", 0.2),
			MentionShare:    getFloat("SCORE_MENTION_SHARE", 0.7),
			RecencyShare:    getFloat("SCORE_RECENCY_SHARE", 0.3),
			UnknownRecency:  getFloat("SCORE_UNKNOWN_RECENCY", 0.25),
			HalfLife:        getDuration("SCORE_HALF_LIFE", 48*time.Hour),
			SourceTrust:     copyTrust(DefaultSourceTrust),
			TitleSimilarity: getFloat("DEDUP_TITLE_SIMILARITY", 0.8),
			DedupWindow:     getDuration("DEDUP_WINDOW", 48*time.Hour),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
			File:  getEnv("LOG_FILE", ""),
		},
	}

	if path := getEnv("CONFIG_FILE", ""); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}

	logger.Log.Debugf("config loaded: provider=%s cache=%s ttl=%s", cfg.LLM.Provider, cfg.Cache.Backend, cfg.Cache.TTL)
	return cfg, nil
}

// Validate 检查配置；needLLM 为 true 时同时校验摘要服务所需的密钥
func (c *Config) Validate(needLLM bool) error {
	switch c.Cache.Backend {
	case "sqlite", "memory", "redis":
	case "postgres":
		if c.Cache.PostgresDSN == "" {
			return fmt.Errorf("%w: POSTGRES_DSN is required for postgres cache", ErrConfiguration)
		}
	default:
		return fmt.Errorf("%w: unknown cache backend %q", ErrConfiguration, c.Cache.Backend)
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("%w: CACHE_TTL_HOURS must be positive", ErrConfiguration)
	}

	if !needLLM {
		return nil
	}
	switch c.LLM.Provider {
	case "ollama":
		if c.LLM.OllamaBaseURL == "" {
			return fmt.Errorf("%w: OLLAMA_BASE_URL is empty", ErrConfiguration)
		}
	case "gemini":
		if c.LLM.GeminiAPIKey == "" {
			return fmt.Errorf("%w: GEMINI_API_KEY not set", ErrConfiguration)
		}
	case "openai":
		if c.LLM.OpenAIAPIKey == "" {
			return fmt.Errorf("%w: OPENAI_API_KEY not set", ErrConfiguration)
		}
	case "anthropic":
		if c.LLM.AnthropicAPIKey == "" {
			return fmt.Errorf("%w: ANTHROPIC_API_KEY not set", ErrConfiguration)
		}
	default:
		return fmt.Errorf("%w: unknown LLM provider %q", ErrConfiguration, c.LLM.Provider)
	}
	return nil
}

// fileConfig YAML 覆盖文件，只覆盖出现的字段
type fileConfig struct {
	RSSFeeds      map[string]string   `yaml:"rss_feeds"`
	SourceTrust   map[string]float64  `yaml:"source_trust"`
	TickerAliases map[string][]string `yaml:"ticker_aliases"`
	Watchlist     []string            `yaml:"watchlist"`
	Scoring       struct {
		TitleMention    *float64 `yaml:"title_mention"`
		SnippetMention  *float64 `yaml:"snippet_mention"`
		LeadBonus       *float64 `yaml:"lead_bonus"`
		MentionShare    *float64 `yaml:"mention_share"`
		RecencyShare    *float64 `yaml:"recency_share"`
		UnknownRecency  *float64 `yaml:"unknown_recency"`
		HalfLife        string   `yaml:"half_life"`
		TitleSimilarity *float64 `yaml:"title_similarity"`
		DedupWindow     string   `yaml:"dedup_window"`
	} `yaml:"scoring"`
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: read %s: %v", ErrConfiguration, path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("%w: parse %s: %v", ErrConfiguration, path, err)
	}

	if len(fc.RSSFeeds) > 0 {
		c.Sources.RSSFeeds = fc.RSSFeeds
	}
	for name, w := range fc.SourceTrust {
		c.Scoring.SourceTrust[name] = w
	}
	if len(fc.TickerAliases) > 0 {
		c.TickerAliases = fc.TickerAliases
	}
	if len(fc.Watchlist) > 0 {
		c.Watchlist = fc.Watchlist
	}

	s := fc.Scoring
	setFloat(&c.Scoring.TitleMention, s.TitleMention)
	setFloat(&c.Scoring.SnippetMention, s.SnippetMention)
	setFloat(&c.Scoring.LeadBonus, s.LeadBonus)
	setFloat(&c.Scoring.MentionShare, s.MentionShare)
	setFloat(&c.Scoring.RecencyShare, s.RecencyShare)
	setFloat(&c.Scoring.UnknownRecency, s.UnknownRecency)
	setFloat(&c.Scoring.TitleSimilarity, s.TitleSimilarity)
	if s.HalfLife != "" {
		d, err := time.ParseDuration(s.HalfLife)
		if err != nil {
			return fmt.Errorf("%w: scoring.half_life: %v", ErrConfiguration, err)
		}
		c.Scoring.HalfLife = d
	}
	if s.DedupWindow != "" {
		d, err := time.ParseDuration(s.DedupWindow)
		if err != nil {
			return fmt.Errorf("%w: scoring.dedup_window: %v", ErrConfiguration, err)
		}
		c.Scoring.DedupWindow = d
	}
	return nil
}

func setFloat(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		logger.Log.Warnf("invalid %s=%q, using default %d", key, v, def)
		return def
	}
	return n
}

func getFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		logger.Log.Warnf("invalid %s=%q, using default %v", key, v, def)
		return def
	}
	return f
}

func getBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return b
}

func getDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		logger.Log.Warnf("invalid %s=%q, using default %s", key, v, def)
		return def
	}
	return d
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func copyFeeds(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyTrust(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
