package shader

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/forge-ai/shaderforge/shared/llm"
)

// Status tags the outcome of a boundary call.
type Status string

const (
	StatusOK                  Status = "ok"
	StatusAPIError            Status = "api_error"
	StatusInitializationError Status = "initialization_error"
)

// Result is what the host receives. Payload is the generated code when
// Status is StatusOK and a human-readable message otherwise.
type Result struct {
	Status  Status `json:"status"`
	Payload string `json:"payload"`
}

// OK reports whether Payload holds generated code.
func (r Result) OK() bool { return r.Status == StatusOK }

// Classify maps a generation error onto a non-OK Result.
func Classify(err error) Result {
	if err == nil {
		return Result{Status: StatusOK}
	}
	var initErr *llm.InitializationError
	if errors.As(err, &initErr) {
		return Result{Status: StatusInitializationError, Payload: err.Error()}
	}
	return Result{Status: StatusAPIError, Payload: err.Error()}
}

// Service is the host-facing boundary over a Generator.
type Service struct {
	gen *Generator
}

// NewService wraps gen.
func NewService(gen *Generator) *Service {
	return &Service{gen: gen}
}

// VertexCode generates a vertex shader for description.
func (s *Service) VertexCode(ctx context.Context, description string) (res Result) {
	defer recoverInto(&res, "vertex")
	code, err := s.gen.GenerateVertex(ctx, description)
	return resultOf(code, err)
}

// FragmentCode generates a fragment shader for description that complements
// vertexCode.
func (s *Service) FragmentCode(ctx context.Context, vertexCode, description string) (res Result) {
	defer recoverInto(&res, "fragment")
	code, err := s.gen.GenerateFragment(ctx, vertexCode, description)
	return resultOf(code, err)
}

func resultOf(code string, err error) Result {
	if err != nil {
		return Classify(err)
	}
	return Result{Status: StatusOK, Payload: code}
}

func recoverInto(res *Result, stage string) {
	if r := recover(); r != nil {
		log.Error().Interface("panic", r).Str("stage", stage).Msg("shader generation panicked")
		*res = Result{Status: StatusAPIError, Payload: fmt.Sprintf("internal error: %v", r)}
	}
}
