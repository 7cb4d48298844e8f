package internal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/forge-ai/shaderforge/shared/config"
	"github.com/forge-ai/shaderforge/shared/events"
	"github.com/forge-ai/shaderforge/shared/mq"
)

// programState tracks one vertex+fragment pair through the pipeline.
type programState struct {
	Stage               string
	RequestID           string // request currently in flight
	VertexDescription   string
	FragmentDescription string
	VertexCode          string
	Started             time.Time
	Updated             time.Time // when the in-flight request was sent
}

// Status values the orchestrator reports on program.failed in addition to
// the shader boundary statuses.
const (
	statusDispatchError = "dispatch_error"
	statusTimeout       = "timeout"
)

const (
	programTimeout = 10 * time.Minute
	sweepInterval  = time.Minute
)

// Orchestrator subscribes to the topic exchange and drives each program.
type Orchestrator struct {
	bus     mq.Bus
	timeout time.Duration

	mu       sync.Mutex
	programs map[string]*programState
}

// NewOrchestrator connects to the broker named by cfg.
func NewOrchestrator(cfg config.Config) (*Orchestrator, error) {
	broker, err := mq.New(cfg.AMQPURL)
	if err != nil {
		return nil, fmt.Errorf("mq connect: %w", err)
	}
	return newOrchestrator(broker), nil
}

func newOrchestrator(bus mq.Bus) *Orchestrator {
	return &Orchestrator{bus: bus, timeout: programTimeout, programs: make(map[string]*programState)}
}

func (o *Orchestrator) Close() {
	o.bus.Close()
}

// Pending reports how many programs are in flight.
func (o *Orchestrator) Pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.programs)
}

// Run starts all consumers and blocks until ctx is done or one fails.
func (o *Orchestrator) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	subs := []struct {
		queue   string
		pattern string
		handler func(context.Context, amqp.Delivery) error
	}{
		{"orch.program.requested", events.ProgramRequested, o.onProgramRequested},
		{"orch.shader.generated", events.ShaderGenerated, o.onShaderGenerated},
		{"orch.shader.failed", events.ShaderFailed, o.onShaderFailed},
	}

	for _, sub := range subs {
		deliveries, err := o.bus.Subscribe(sub.queue, sub.pattern)
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", sub.queue, err)
		}
		g.Go(func() error {
			return o.consume(ctx, deliveries, sub.handler)
		})
	}

	g.Go(func() error {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case now := <-ticker.C:
				o.expire(ctx, now)
			}
		}
	})

	return g.Wait()
}

// consume is the delivery loop shared by all subscriptions. Failed
// deliveries are dropped, never requeued.
func (o *Orchestrator) consume(
	ctx context.Context,
	deliveries <-chan amqp.Delivery,
	handler func(context.Context, amqp.Delivery) error,
) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}
			if err := handler(ctx, d); err != nil {
				log.Error().Err(err).Str("key", d.RoutingKey).Msg("handler error")
				d.Nack(false, false)
			} else {
				d.Ack(false)
			}
		}
	}
}

// ── Event Handlers ────────────────────────────────────────────────────────────

func (o *Orchestrator) onProgramRequested(ctx context.Context, d amqp.Delivery) error {
	p, err := events.Unwrap[events.ProgramRequestedPayload](d.Body)
	if err != nil {
		return err
	}
	if p.ProgramID == "" {
		return fmt.Errorf("program.requested without program_id")
	}

	now := time.Now()
	ps := &programState{
		Stage:               events.StageVertex,
		RequestID:           newRequestID(),
		VertexDescription:   p.VertexDescription,
		FragmentDescription: p.FragmentDescription,
		Started:             now,
		Updated:             now,
	}
	o.mu.Lock()
	if _, dup := o.programs[p.ProgramID]; dup {
		o.mu.Unlock()
		log.Warn().Str("program", p.ProgramID).Msg("duplicate program.requested ignored")
		return nil
	}
	o.programs[p.ProgramID] = ps
	o.mu.Unlock()

	o.emitLog(ctx, p.ProgramID, "info", "vertex_start", "Generating vertex shader", nil)

	err = mq.PublishEvent(ctx, o.bus, events.VertexRequested, events.VertexRequestedPayload{
		RequestID:   ps.RequestID,
		ProgramID:   p.ProgramID,
		Description: p.VertexDescription,
	})
	if err != nil {
		return o.dispatchFailed(ctx, p.ProgramID, events.StageVertex, err)
	}
	return nil
}

func (o *Orchestrator) onShaderGenerated(ctx context.Context, d amqp.Delivery) error {
	p, err := events.Unwrap[events.ShaderGeneratedPayload](d.Body)
	if err != nil {
		return err
	}

	ps := o.claim(p.ProgramID, p.RequestID, p.Stage)
	if ps == nil {
		return nil
	}

	switch p.Stage {
	case events.StageVertex:
		o.mu.Lock()
		ps.VertexCode = p.Code
		ps.Stage = events.StageFragment
		ps.RequestID = newRequestID()
		ps.Updated = time.Now()
		req := events.FragmentRequestedPayload{
			RequestID:   ps.RequestID,
			ProgramID:   p.ProgramID,
			VertexCode:  ps.VertexCode,
			Description: ps.FragmentDescription,
		}
		o.mu.Unlock()

		o.emitLog(ctx, p.ProgramID, "info", "vertex_done",
			fmt.Sprintf("Vertex shader generated (%d bytes), generating fragment shader", len(p.Code)), nil)
		if err := mq.PublishEvent(ctx, o.bus, events.FragmentRequested, req); err != nil {
			return o.dispatchFailed(ctx, p.ProgramID, events.StageFragment, err)
		}
		return nil

	case events.StageFragment:
		o.mu.Lock()
		vertex := ps.VertexCode
		took := time.Since(ps.Started)
		delete(o.programs, p.ProgramID)
		o.mu.Unlock()

		o.emitLog(ctx, p.ProgramID, "success", "program_done",
			fmt.Sprintf("Shader program complete in %s", took.Round(time.Millisecond)), map[string]any{
				"vertex_bytes":   len(vertex),
				"fragment_bytes": len(p.Code),
			})
		return mq.PublishEvent(ctx, o.bus, events.ProgramDone, events.ProgramDonePayload{
			ProgramID:    p.ProgramID,
			VertexCode:   vertex,
			FragmentCode: p.Code,
		})
	}
	return fmt.Errorf("unknown stage %q", p.Stage)
}

func (o *Orchestrator) onShaderFailed(ctx context.Context, d amqp.Delivery) error {
	p, err := events.Unwrap[events.ShaderFailedPayload](d.Body)
	if err != nil {
		return err
	}

	if o.claim(p.ProgramID, p.RequestID, p.Stage) == nil {
		return nil
	}
	return o.fail(ctx, p.ProgramID, p.Stage, p.Status, p.Error)
}

// expire fails every program whose in-flight request is older than the
// timeout at now. A dropped shader request would otherwise never finish.
func (o *Orchestrator) expire(ctx context.Context, now time.Time) {
	type stale struct{ id, stage string }
	var expired []stale

	o.mu.Lock()
	for id, ps := range o.programs {
		if now.Sub(ps.Updated) > o.timeout {
			expired = append(expired, stale{id, ps.Stage})
			delete(o.programs, id)
		}
	}
	o.mu.Unlock()

	for _, e := range expired {
		msg := fmt.Sprintf("no %s result within %s", e.stage, o.timeout)
		if err := o.report(ctx, e.id, e.stage, statusTimeout, msg); err != nil {
			log.Warn().Err(err).Str("program", e.id).Msg("publish program.failed")
		}
	}
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// fail drops the program's state and publishes program.failed for stage.
func (o *Orchestrator) fail(ctx context.Context, programID, stage, status, msg string) error {
	o.mu.Lock()
	delete(o.programs, programID)
	o.mu.Unlock()
	return o.report(ctx, programID, stage, status, msg)
}

func (o *Orchestrator) report(ctx context.Context, programID, stage, status, msg string) error {
	o.emitLog(ctx, programID, "error", stage+"_failed",
		fmt.Sprintf("%s shader failed (%s): %s", stage, status, msg), nil)

	return mq.PublishEvent(ctx, o.bus, events.ProgramFailed, events.ProgramFailedPayload{
		ProgramID: programID,
		Stage:     stage,
		Status:    status,
		Error:     msg,
	})
}

// dispatchFailed ends a program whose next request could not be published
// and returns the original error so the delivery is dropped.
func (o *Orchestrator) dispatchFailed(ctx context.Context, programID, stage string, err error) error {
	if ferr := o.fail(ctx, programID, stage, statusDispatchError, err.Error()); ferr != nil {
		log.Warn().Err(ferr).Str("program", programID).Msg("publish program.failed")
	}
	return err
}

// claim returns the state a result belongs to, or nil when the result is for
// a request this orchestrator is not waiting on.
func (o *Orchestrator) claim(programID, requestID, stage string) *programState {
	if programID == "" {
		return nil // standalone request, not part of a program
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	ps, ok := o.programs[programID]
	if !ok || ps.RequestID != requestID || ps.Stage != stage {
		log.Debug().
			Str("program", programID).
			Str("request", requestID).
			Str("stage", stage).
			Msg("ignoring result for unknown or stale request")
		return nil
	}
	return ps
}

func (o *Orchestrator) emitLog(ctx context.Context, programID, level, step, message string, data map[string]any) {
	log.Info().Str("program", programID).Str("step", step).Msg(message)
	err := mq.PublishEvent(ctx, o.bus, events.LogEvent, events.LogEventPayload{
		ProgramID: programID,
		Level:     level,
		Step:      step,
		Message:   message,
		Data:      data,
	})
	if err != nil {
		log.Warn().Err(err).Str("program", programID).Msg("publish log event")
	}
}

func newRequestID() string {
	return "shd_" + uuid.New().String()[:8]
}
