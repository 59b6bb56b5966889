package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/cloudwego/eino-ext/components/model/deepseek"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"
)

type chatModelFactory func(ctx context.Context, modelName string) (model.BaseChatModel, error)

// ChatModelBackend serves any eino chat model, one instance per model name.
type ChatModelBackend struct {
	name    string
	factory chatModelFactory
	mu      sync.Mutex
	models  map[string]model.BaseChatModel
}

func newChatModelBackend(name string, factory chatModelFactory) *ChatModelBackend {
	return &ChatModelBackend{name: name, factory: factory, models: make(map[string]model.BaseChatModel)}
}

// NewOpenAICompatBackend covers OpenAI and any OpenAI-compatible endpoint such as Groq.
func NewOpenAICompatBackend(name, baseURL, apiKey string) *ChatModelBackend {
	return newChatModelBackend(name, func(ctx context.Context, modelName string) (model.BaseChatModel, error) {
		return openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL: baseURL,
			APIKey:  apiKey,
			Model:   modelName,
		})
	})
}

func NewDeepSeekBackend(apiKey string) *ChatModelBackend {
	return newChatModelBackend("deepseek", func(ctx context.Context, modelName string) (model.BaseChatModel, error) {
		return deepseek.NewChatModel(ctx, &deepseek.ChatModelConfig{
			APIKey:    apiKey,
			Model:     modelName,
			MaxTokens: 4000,
		})
	})
}

func (b *ChatModelBackend) chatModel(ctx context.Context, modelName string) (model.BaseChatModel, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cm, ok := b.models[modelName]; ok {
		return cm, nil
	}
	cm, err := b.factory(ctx, modelName)
	if err != nil {
		return nil, fmt.Errorf("create %s model %s: %w", b.name, modelName, err)
	}
	b.models[modelName] = cm
	return cm, nil
}

func (b *ChatModelBackend) Generate(ctx context.Context, modelName string, msgs []*schema.Message, opts Options) (string, error) {
	cm, err := b.chatModel(ctx, modelName)
	if err != nil {
		return "", err
	}
	var callOpts []model.Option
	if opts.MaxTokens > 0 {
		callOpts = append(callOpts, model.WithMaxTokens(opts.MaxTokens))
	}
	if opts.Temperature > 0 {
		callOpts = append(callOpts, model.WithTemperature(opts.Temperature))
	}
	resp, err := cm.Generate(ctx, msgs, callOpts...)
	if err != nil {
		return "", err
	}
	if resp == nil {
		return "", nil
	}
	return resp.Content, nil
}

// GeminiBackend calls the Gemini API through the genai SDK.
type GeminiBackend struct {
	client *genai.Client
}

func NewGeminiBackend(ctx context.Context, apiKey string) (*GeminiBackend, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiBackend{client: client}, nil
}

func (g *GeminiBackend) Generate(ctx context.Context, modelName string, msgs []*schema.Message, opts Options) (string, error) {
	system, contents := toGenaiContents(msgs)
	cfg := &genai.GenerateContentConfig{}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if opts.Temperature > 0 {
		cfg.Temperature = genai.Ptr(opts.Temperature)
	}
	if opts.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(opts.MaxTokens)
	}
	resp, err := g.client.Models.GenerateContent(ctx, modelName, contents, cfg)
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}

// toGenaiContents folds system messages into one instruction and maps the
// remaining roles onto user/model turns.
func toGenaiContents(msgs []*schema.Message) (string, []*genai.Content) {
	var system []string
	contents := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		if m == nil {
			continue
		}
		switch m.Role {
		case schema.System:
			system = append(system, m.Content)
		case schema.Assistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	return strings.Join(system, "\n\n"), contents
}
