// Package llm wraps an OpenAI-compatible chat-completion endpoint behind the
// narrow CompletionClient interface used by the shader generators.
package llm

import "context"

// Role tags a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatMessage is a single role-tagged message. Name is optional.
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
	Name    string `json:"name,omitempty"`
}

// CompletionRequest names a model and the ordered conversation sent to it.
type CompletionRequest struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`
}

// Choice is one candidate reply.
type Choice struct {
	Message ChatMessage `json:"message"`
}

// CompletionResponse holds the candidate replies in server order.
type CompletionResponse struct {
	Choices []Choice `json:"choices"`
}

// CompletionClient performs one synchronous chat completion.
// Implementations make exactly one upstream call per Complete and never retry.
type CompletionClient interface {
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)
}

// Factory builds a fresh CompletionClient for a single call.
type Factory func() (CompletionClient, error)
