// Package events defines the message contract published on RabbitMQ.
// Services talk to each other only through these envelopes.
package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ── Routing keys (RabbitMQ topic exchange: shaderforge.events) ───────────────
const (
	ProgramRequested  = "program.requested"
	ProgramDone       = "program.done"
	ProgramFailed     = "program.failed"
	VertexRequested   = "shader.vertex.requested"
	FragmentRequested = "shader.fragment.requested"
	ShaderGenerated   = "shader.generated"
	ShaderFailed      = "shader.failed"
	LogEvent          = "log.event"
)

const (
	StageVertex   = "vertex"
	StageFragment = "fragment"
)

// ── Envelope wraps every message ─────────────────────────────────────────────

type Envelope struct {
	ID         string          `json:"id"`
	RoutingKey string          `json:"routing_key"`
	Timestamp  time.Time       `json:"ts"`
	Payload    json.RawMessage `json:"payload"`
}

func Wrap(routingKey string, payload any) ([]byte, error) {
	p, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{
		ID:         uuid.New().String(),
		RoutingKey: routingKey,
		Timestamp:  time.Now(),
		Payload:    p,
	})
}

func Unwrap[T any](raw []byte) (*T, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}
	var t T
	return &t, json.Unmarshal(env.Payload, &t)
}

func UnwrapEnvelope(raw []byte) (*Envelope, error) {
	var env Envelope
	return &env, json.Unmarshal(raw, &env)
}

// ── Payload types ─────────────────────────────────────────────────────────────

type ProgramRequestedPayload struct {
	ProgramID           string `json:"program_id"`
	VertexDescription   string `json:"vertex_description"`
	FragmentDescription string `json:"fragment_description"`
}

type VertexRequestedPayload struct {
	RequestID   string `json:"request_id"`
	ProgramID   string `json:"program_id,omitempty"`
	Description string `json:"description"`
}

type FragmentRequestedPayload struct {
	RequestID   string `json:"request_id"`
	ProgramID   string `json:"program_id,omitempty"`
	VertexCode  string `json:"vertex_code"`
	Description string `json:"description"`
}

type ShaderGeneratedPayload struct {
	RequestID string `json:"request_id"`
	ProgramID string `json:"program_id,omitempty"`
	Stage     string `json:"stage"`
	Code      string `json:"code"`
}

// ShaderFailedPayload carries the boundary status ("api_error" or
// "initialization_error") and its message.
type ShaderFailedPayload struct {
	RequestID string `json:"request_id"`
	ProgramID string `json:"program_id,omitempty"`
	Stage     string `json:"stage"`
	Status    string `json:"status"`
	Error     string `json:"error"`
}

type ProgramDonePayload struct {
	ProgramID    string `json:"program_id"`
	VertexCode   string `json:"vertex_code"`
	FragmentCode string `json:"fragment_code"`
}

type ProgramFailedPayload struct {
	ProgramID string `json:"program_id"`
	Stage     string `json:"stage"`
	Status    string `json:"status"`
	Error     string `json:"error"`
}

type LogEventPayload struct {
	ProgramID string         `json:"program_id"`
	Level     string         `json:"level"`
	Step      string         `json:"step"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
}
