// Package llmgateway implements C3: a single point of access to the
// language model used for intent resolution, planning, termination
// judgment, and error analysis, with concurrency/rate limiting, retry, and
// JSON-mode extraction shared by every caller.
package llmgateway

import "time"

// Role constants for chat messages, mirrored from the teacher's
// llmadapter.Role* constants.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single turn in a chat-style LLM request.
type Message struct {
	Role    string
	Content string
}

// ChatRequest is the transport-agnostic request every C3 caller builds.
type ChatRequest struct {
	SystemPrompt string
	Messages     []Message
	Temperature  float64
	MaxTokens    int
	JSONMode     bool
}

// ChatResponse is the result of a single completion call.
type ChatResponse struct {
	Content string
	Usage   Usage
}

// Usage mirrors the teacher's llmadapter.Usage for cross-provider token
// accounting.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Config configures the gateway's provider, limits, and retry behavior; it
// is populated from pkg/config.LLMConfig.
type Config struct {
	Provider         string
	Model            string
	EmbeddingModel   string
	EmbeddingDim     int
	APIKey           string
	MaxConcurrency   int
	RequestTimeout   time.Duration
	RetryAttempts    uint64
	RetryBackoffBase time.Duration
}
