package llm

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"
)

// CredentialEnv is the environment variable the host reads the API key from.
const CredentialEnv = "API_KEY"

// DefaultBaseURL is Groq's OpenAI-compatible endpoint.
const DefaultBaseURL = "https://api.groq.com/openai/v1"

// Options configures a Client. The host loads it once and injects it.
type Options struct {
	APIKey  string
	BaseURL string // optional; defaults to DefaultBaseURL

	// HTTPClient overrides the transport. When nil the library default is
	// used, which carries no timeout.
	HTTPClient *http.Client
}

// Client implements CompletionClient on top of go-openai.
type Client struct {
	api     *openai.Client
	baseURL string
}

var _ CompletionClient = (*Client)(nil)

// NewClient validates the credential and returns a ready client.
// It performs no network I/O.
func NewClient(opts Options) (*Client, error) {
	key := opts.APIKey
	if key == "" {
		return nil, &InitializationError{Msg: CredentialEnv + " not found", Err: ErrMissingAPIKey}
	}
	if strings.ContainsAny(key, " \t\r\n") {
		return nil, &InitializationError{Msg: CredentialEnv + " is malformed: contains whitespace"}
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	cfg := openai.DefaultConfig(key)
	cfg.BaseURL = baseURL
	if opts.HTTPClient != nil {
		cfg.HTTPClient = opts.HTTPClient
	}
	return &Client{api: openai.NewClientWithConfig(cfg), baseURL: baseURL}, nil
}

// Complete sends req to {base}/chat/completions once.
func (c *Client) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	msgs := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
			Name:    m.Name,
		})
	}

	start := time.Now()
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: msgs,
	})
	if err != nil {
		log.Debug().Err(err).Str("model", req.Model).Str("base_url", c.baseURL).Msg("chat completion failed")
		return nil, &APIError{Msg: "API Error", Err: err}
	}

	out := &CompletionResponse{Choices: make([]Choice, 0, len(resp.Choices))}
	for _, ch := range resp.Choices {
		out.Choices = append(out.Choices, Choice{Message: ChatMessage{
			Role:    Role(ch.Message.Role),
			Content: ch.Message.Content,
			Name:    ch.Message.Name,
		}})
	}

	log.Debug().
		Str("model", req.Model).
		Int("choices", len(out.Choices)).
		Dur("took", time.Since(start)).
		Msg("chat completion")
	return out, nil
}
