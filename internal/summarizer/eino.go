package summarizer

import (
	"context"
	"fmt"
	"strings"

	einoopenai "github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// EinoGenerator 走 OpenAI 兼容协议，用于本地 Ollama 等服务
type EinoGenerator struct {
	cm   model.ChatModel
	name string
}

// NewEinoGenerator baseURL 例如 http://localhost:11434/v1
func NewEinoGenerator(ctx context.Context, provider, baseURL, apiKey, modelName string) (*EinoGenerator, error) {
	cm, err := einoopenai.NewChatModel(ctx, &einoopenai.ChatModelConfig{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Model:   modelName,
	})
	if err != nil {
		return nil, fmt.Errorf("init %s chat model: %w", provider, err)
	}
	return NewEinoGeneratorWithModel(cm, provider+":"+modelName), nil
}

// NewEinoGeneratorWithModel 直接使用现成的 ChatModel
func NewEinoGeneratorWithModel(cm model.ChatModel, name string) *EinoGenerator {
	return &EinoGenerator{cm: cm, name: name}
}

func (g *EinoGenerator) Name() string {
	return g.name
}

func (g *EinoGenerator) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	messages := []*schema.Message{
		{Role: schema.System, Content: systemPrompt},
		{Role: schema.User, Content: prompt},
	}

	var opts []model.Option
	if maxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(maxTokens))
	}
	resp, err := g.cm.Generate(ctx, messages, opts...)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Content), nil
}
