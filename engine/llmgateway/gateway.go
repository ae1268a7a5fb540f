package llmgateway

import (
	"context"

	"github.com/nlapi/orchestra/engine/core"
	"github.com/nlapi/orchestra/pkg/logger"
)

// Gateway is the sole entry point the rest of the engine uses to talk to
// the language model (C3). It owns concurrency/rate limiting and retry so
// every caller (resolver, planner, judge, healer) gets the same behavior.
type Gateway struct {
	client Client
	limit  *limiter
	cfg    Config
}

// New builds a Gateway from cfg, constructing the underlying provider
// client via NewClient.
func New(cfg Config) (*Gateway, error) {
	client, err := NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return NewWithClient(client, cfg), nil
}

// NewWithClient builds a Gateway around an already-constructed Client,
// letting tests inject a fake.
func NewWithClient(client Client, cfg Config) *Gateway {
	return &Gateway{client: client, limit: newLimiter(cfg.MaxConcurrency), cfg: cfg}
}

// Chat sends req through the rate/concurrency limiter and retries
// transient failures, returning the raw model response.
func (g *Gateway) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if err := g.limit.acquire(ctx); err != nil {
		return nil, core.NewError(err, core.ErrCodeLLMGeneration, "llm request queue canceled", nil)
	}
	defer g.limit.release()

	var resp *ChatResponse
	err := withRetry(ctx, g.cfg.RetryAttempts, g.cfg.RetryBackoffBase, func(ctx context.Context) error {
		r, err := g.client.GenerateContent(ctx, &req)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		logger.FromContext(ctx).Warn("llm generation failed", "err", err)
		return nil, core.NewError(err, core.ErrCodeLLMGeneration, "llm generation failed", nil)
	}
	return resp, nil
}

// ChatJSON sends req with JSON mode enabled and returns the extracted JSON
// payload (the largest top-level balanced {...} or [...] region),
// per spec §4.5's extraction rule. Callers unmarshal into their own typed
// struct and run go-playground/validator over it.
func (g *Gateway) ChatJSON(ctx context.Context, req ChatRequest) (string, error) {
	req.JSONMode = true
	resp, err := g.Chat(ctx, req)
	if err != nil {
		return "", err
	}
	payload, err := ExtractJSON(resp.Content)
	if err != nil {
		return "", core.NewError(err, core.ErrCodeInvalidResponse, "llm did not return parseable json",
			map[string]any{"raw": truncate(resp.Content, 500)})
	}
	return payload, nil
}

// Embed returns the embedding vector for a single piece of text, used by
// the resolver's semantic-similarity signal and by endpoint registration
// to populate Endpoint.EmbeddingVector.
func (g *Gateway) Embed(ctx context.Context, text string) ([]float64, error) {
	if err := g.limit.acquire(ctx); err != nil {
		return nil, core.NewError(err, core.ErrCodeLLMGeneration, "llm request queue canceled", nil)
	}
	defer g.limit.release()

	var vectors [][]float32
	err := withRetry(ctx, g.cfg.RetryAttempts, g.cfg.RetryBackoffBase, func(ctx context.Context) error {
		v, err := g.client.CreateEmbedding(ctx, []string{text})
		if err != nil {
			return err
		}
		vectors = v
		return nil
	})
	if err != nil {
		return nil, core.NewError(err, core.ErrCodeLLMGeneration, "llm embedding failed", nil)
	}
	if len(vectors) == 0 {
		return nil, core.NewError(nil, core.ErrCodeInvalidResponse, "llm returned no embedding vectors", nil)
	}
	out := make([]float64, len(vectors[0]))
	for i, v := range vectors[0] {
		out[i] = float64(v)
	}
	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
