package summarizer

import (
	"context"
	"fmt"
	"strings"

	"github.com/LJTian/TickerNews/internal/config"
)

const (
	defaultOllamaModel = "llama3.2"
	defaultGeminiModel = "gemini-2.0-flash"
)

// NewGenerator 按 LLM_PROVIDER 创建生成服务
func NewGenerator(ctx context.Context, cfg config.LLMConfig) (Generator, error) {
	switch cfg.Provider {
	case "ollama", "":
		modelName := cfg.Model
		if modelName == "" {
			modelName = defaultOllamaModel
		}
		baseURL := strings.TrimRight(cfg.OllamaBaseURL, "/")
		if !strings.HasSuffix(baseURL, "/v1") {
			baseURL += "/v1"
		}
		// Ollama 不校验 key，但 OpenAI 兼容客户端要求非空
		return NewEinoGenerator(ctx, "ollama", baseURL, "ollama", modelName)
	case "gemini":
		modelName := cfg.Model
		if modelName == "" {
			modelName = defaultGeminiModel
		}
		// Gemini 提供 OpenAI 兼容端点
		return NewEinoGenerator(ctx, "gemini", strings.TrimRight(cfg.GeminiBaseURL, "/"), cfg.GeminiAPIKey, modelName)
	case "openai":
		return NewOpenAIGenerator(cfg.OpenAIAPIKey, cfg.Model), nil
	case "anthropic":
		return NewAnthropicGenerator(cfg.AnthropicAPIKey, cfg.Model), nil
	default:
		return nil, fmt.Errorf("%w: unknown LLM provider %q", config.ErrConfiguration, cfg.Provider)
	}
}

// OptionsFromConfig 把 LLM 配置映射为 Summarizer 参数
func OptionsFromConfig(cfg config.LLMConfig) Options {
	opts := DefaultOptions()
	if cfg.MaxInputChars > 0 {
		opts.MaxInputChars = cfg.MaxInputChars
	}
	if cfg.MaxTokens > 0 {
		opts.MaxTokens = cfg.MaxTokens
	}
	if cfg.Timeout > 0 {
		opts.Timeout = cfg.Timeout
	}
	opts.RPM = cfg.RPM
	return opts
}
