package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClientMissingKey(t *testing.T) {
	_, err := NewClient(Options{})
	require.Error(t, err)

	var initErr *InitializationError
	require.True(t, errors.As(err, &initErr))
	assert.ErrorIs(t, err, ErrMissingAPIKey)
	assert.Equal(t, "API_KEY not found: environment variable not set", err.Error())
}

func TestNewClientMalformedKey(t *testing.T) {
	_, err := NewClient(Options{APIKey: "sk-abc\n"})

	var initErr *InitializationError
	require.True(t, errors.As(err, &initErr))
	assert.Contains(t, err.Error(), "malformed")
}

func TestClientComplete(t *testing.T) {
	var recorded struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method: %s", r.Method)
		}
		if r.URL.Path != "/openai/v1/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("unexpected Authorization header: %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&recorded); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"c1","object":"chat.completion","created":1,"model":"llama3-70b-8192","choices":[{"index":0,"message":{"role":"assistant","content":"void main() {}"},"finish_reason":"stop"}]}`)
	}))
	defer ts.Close()

	client, err := NewClient(Options{APIKey: "secret", BaseURL: ts.URL + "/openai/v1/", HTTPClient: ts.Client()})
	require.NoError(t, err)

	resp, err := client.Complete(context.Background(), &CompletionRequest{
		Model:    "llama3-70b-8192",
		Messages: []ChatMessage{{Role: RoleUser, Content: "make a shader"}},
	})
	require.NoError(t, err)
	require.Len(t, resp.Choices, 1)
	assert.Equal(t, "void main() {}", resp.Choices[0].Message.Content)
	assert.Equal(t, RoleAssistant, resp.Choices[0].Message.Role)

	assert.Equal(t, "llama3-70b-8192", recorded.Model)
	require.Len(t, recorded.Messages, 1)
	assert.Equal(t, "user", recorded.Messages[0].Role)
	assert.Equal(t, "make a shader", recorded.Messages[0].Content)
}

func TestClientCompleteEmptyChoices(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"c1","object":"chat.completion","created":1,"model":"m","choices":[]}`)
	}))
	defer ts.Close()

	client, err := NewClient(Options{APIKey: "secret", BaseURL: ts.URL, HTTPClient: ts.Client()})
	require.NoError(t, err)

	resp, err := client.Complete(context.Background(), &CompletionRequest{Model: "m"})
	require.NoError(t, err)
	assert.Empty(t, resp.Choices)
}

func TestClientCompleteHTTPError(t *testing.T) {
	calls := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"message":"invalid api key","type":"invalid_request_error"}}`)
	}))
	defer ts.Close()

	client, err := NewClient(Options{APIKey: "secret", BaseURL: ts.URL, HTTPClient: ts.Client()})
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), &CompletionRequest{Model: "m"})
	require.Error(t, err)
	assert.Equal(t, 1, calls, "no retries")

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Contains(t, err.Error(), "API Error")

	var upstream *openai.APIError
	require.True(t, errors.As(err, &upstream))
	assert.Equal(t, http.StatusUnauthorized, upstream.HTTPStatusCode)
}

func TestClientCompleteConnectionFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := ts.URL
	ts.Close()

	client, err := NewClient(Options{APIKey: "secret", BaseURL: url})
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), &CompletionRequest{Model: "m"})
	var apiErr *APIError
	assert.True(t, errors.As(err, &apiErr))
}

func TestFactoryBuildsPerCall(t *testing.T) {
	factory := NewFactory(Options{APIKey: "secret"}, "")

	a, err := factory()
	require.NoError(t, err)
	b, err := factory()
	require.NoError(t, err)
	assert.NotSame(t, a, b)
}

func TestFactoryMissingKey(t *testing.T) {
	_, err := NewFactory(Options{}, "")()

	var initErr *InitializationError
	assert.True(t, errors.As(err, &initErr))
}

func TestMockClient(t *testing.T) {
	client, err := NewFactory(Options{}, ModeMock)()
	require.NoError(t, err)

	resp, err := client.Complete(context.Background(), &CompletionRequest{
		Messages: []ChatMessage{{Role: RoleUser, Content: "set gl_Position"}},
	})
	require.NoError(t, err)
	assert.Contains(t, resp.Choices[0].Message.Content, "gl_Position")

	resp, err = client.Complete(context.Background(), &CompletionRequest{
		Messages: []ChatMessage{{Role: RoleUser, Content: "set gl_FragColor"}},
	})
	require.NoError(t, err)
	assert.Contains(t, resp.Choices[0].Message.Content, "gl_FragColor")
}
