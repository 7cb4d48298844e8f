// Package shader turns plain-language descriptions into GLSL ES shaders by
// prompting a chat-completion model.
//
// Generator holds the two single-shot operations. Service wraps them in the
// host boundary, which always answers with a Result and never an error.
package shader

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/forge-ai/shaderforge/shared/llm"
)

// DefaultModel is the model identifier requested when none is configured.
const DefaultModel = "llama3-70b-8192"

const emptyResponse = "Empty response from API"

// Generator builds prompts, calls the model once and validates the reply.
// It holds no mutable state and is safe for concurrent use.
type Generator struct {
	newClient llm.Factory
	model     string
}

// NewGenerator returns a Generator that obtains a fresh client from factory
// for every call. An empty model selects DefaultModel.
func NewGenerator(factory llm.Factory, model string) *Generator {
	if model == "" {
		model = DefaultModel
	}
	return &Generator{newClient: factory, model: model}
}

// Model reports the model identifier sent upstream.
func (g *Generator) Model() string { return g.model }

// GenerateVertex returns a vertex shader implementing description.
func (g *Generator) GenerateVertex(ctx context.Context, description string) (string, error) {
	return g.generate(ctx, "vertex", VertexPrompt(description))
}

// GenerateFragment returns a fragment shader implementing description that
// complements vertexCode.
func (g *Generator) GenerateFragment(ctx context.Context, vertexCode, description string) (string, error) {
	return g.generate(ctx, "fragment", FragmentPrompt(vertexCode, description))
}

func (g *Generator) generate(ctx context.Context, stage, prompt string) (string, error) {
	client, err := g.newClient()
	if err != nil {
		var initErr *llm.InitializationError
		if !errors.As(err, &initErr) {
			err = &llm.InitializationError{Msg: "completion client", Err: err}
		}
		log.Warn().Err(err).Str("stage", stage).Msg("completion client unavailable")
		return "", err
	}

	log.Debug().
		Str("stage", stage).
		Str("model", g.model).
		Int("prompt_bytes", len(prompt)).
		Msg("generating shader")

	resp, err := client.Complete(ctx, &llm.CompletionRequest{
		Model:    g.model,
		Messages: []llm.ChatMessage{{Role: llm.RoleUser, Content: prompt}},
	})
	if err != nil {
		var apiErr *llm.APIError
		if !errors.As(err, &apiErr) {
			err = &llm.APIError{Msg: "API Error", Err: err}
		}
		return "", err
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", &llm.APIError{Msg: emptyResponse}
	}

	code := resp.Choices[0].Message.Content
	if err := Validate(code); err != nil {
		log.Warn().Str("stage", stage).Int("code_bytes", len(code)).Msg("generated code rejected")
		return "", err
	}
	return code, nil
}
