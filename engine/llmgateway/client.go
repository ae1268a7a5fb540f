package llmgateway

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/openai"
)

// Client is the minimal surface the gateway needs from a provider adapter,
// grounded on the teacher's llmadapter.LLMClient interface.
type Client interface {
	GenerateContent(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
	// CreateEmbedding returns one embedding vector per input text, used by
	// the resolver's semantic-similarity signal. Providers without
	// embedding support return an error.
	CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error)
}

// embedder is implemented by langchaingo provider clients that support
// embeddings (notably *openai.LLM); asserted against at construction time
// rather than per-call.
type embedder interface {
	CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error)
}

// langchainClient adapts langchaingo's llms.Model to Client, following the
// shape of the teacher's LangChainAdapter.
type langchainClient struct {
	model    llms.Model
	embedder embedder
}

// NewClient builds a provider adapter from cfg. Supported providers are
// "openai" and "anthropic"; any other value is a configuration error caught
// at startup rather than on first request.
func NewClient(cfg Config) (Client, error) {
	var model llms.Model
	var err error
	switch cfg.Provider {
	case "openai", "":
		model, err = openai.New(openai.WithModel(cfg.Model), openai.WithToken(cfg.APIKey), openai.WithEmbeddingModel(cfg.EmbeddingModel))
	case "anthropic":
		model, err = anthropic.New(anthropic.WithModel(cfg.Model), anthropic.WithToken(cfg.APIKey))
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("creating llm model: %w", err)
	}
	client := &langchainClient{model: model}
	if e, ok := model.(embedder); ok {
		client.embedder = e
	}
	return client, nil
}

func (c *langchainClient) GenerateContent(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	messages := make([]llms.MessageContent, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, req.SystemPrompt))
	}
	for _, m := range req.Messages {
		messages = append(messages, llms.TextParts(mapRole(m.Role), m.Content))
	}

	var opts []llms.CallOption
	if req.Temperature > 0 {
		opts = append(opts, llms.WithTemperature(req.Temperature))
	}
	if req.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(req.MaxTokens))
	}
	if req.JSONMode {
		opts = append(opts, llms.WithJSONMode())
	}

	resp, err := c.model.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return nil, fmt.Errorf("llm GenerateContent failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("llm returned no choices")
	}
	choice := resp.Choices[0]
	usage := Usage{}
	if choice.GenerationInfo != nil {
		if v, ok := choice.GenerationInfo["PromptTokens"].(int); ok {
			usage.PromptTokens = v
		}
		if v, ok := choice.GenerationInfo["CompletionTokens"].(int); ok {
			usage.CompletionTokens = v
		}
		if v, ok := choice.GenerationInfo["TotalTokens"].(int); ok {
			usage.TotalTokens = v
		}
	}
	return &ChatResponse{Content: choice.Content, Usage: usage}, nil
}

func (c *langchainClient) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	if c.embedder == nil {
		return nil, fmt.Errorf("llm provider does not support embeddings")
	}
	vectors, err := c.embedder.CreateEmbedding(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("creating embeddings: %w", err)
	}
	return vectors, nil
}

func mapRole(role string) llms.ChatMessageType {
	switch role {
	case RoleSystem:
		return llms.ChatMessageTypeSystem
	case RoleAssistant:
		return llms.ChatMessageTypeAI
	default:
		return llms.ChatMessageTypeHuman
	}
}
