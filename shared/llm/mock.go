package llm

import (
	"context"
	"strings"
)

const (
	mockVertexShader   = "attribute vec2 position;\nvoid main() {\n  gl_Position = vec4(position, 0.0, 1.0);\n}"
	mockFragmentShader = "uniform highp float u_time;\nuniform highp vec2 u_resolution;\nvoid main() {\n  gl_FragColor = vec4(1.0, 0.0, 0.0, 1.0);\n}"
)

// MockClient answers every request with a fixed shader, so the services can
// run without network access or a credential.
type MockClient struct{}

// NewMockClient creates a new mock client.
func NewMockClient() *MockClient {
	return &MockClient{}
}

var _ CompletionClient = (*MockClient)(nil)

// Complete returns the canned fragment shader when the last user message asks
// for gl_FragColor, and the canned vertex shader otherwise.
func (m *MockClient) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, &APIError{Msg: "API Error", Err: err}
	}

	code := mockVertexShader
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role != RoleUser {
			continue
		}
		if strings.Contains(req.Messages[i].Content, "gl_FragColor") {
			code = mockFragmentShader
		}
		break
	}

	return &CompletionResponse{Choices: []Choice{{
		Message: ChatMessage{Role: RoleAssistant, Content: code},
	}}}, nil
}
