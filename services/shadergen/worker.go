package main

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/forge-ai/shaderforge/shared/events"
	"github.com/forge-ai/shaderforge/shared/mq"
	"github.com/forge-ai/shaderforge/shared/shader"
)

// shaders is the host boundary the worker drives.
type shaders interface {
	VertexCode(ctx context.Context, description string) shader.Result
	FragmentCode(ctx context.Context, vertexCode, description string) shader.Result
}

type worker struct {
	bus     mq.Bus
	shaders shaders
}

func newWorker(bus mq.Bus, s shaders) *worker {
	return &worker{bus: bus, shaders: s}
}

// run fans each queue out to n consumers and blocks until ctx is done.
func (w *worker) run(ctx context.Context, n int) error {
	subs := []struct {
		queue   string
		pattern string
		handler func(context.Context, amqp.Delivery) error
	}{
		{"svc.shadergen.vertex", events.VertexRequested, w.onVertexRequested},
		{"svc.shadergen.fragment", events.FragmentRequested, w.onFragmentRequested},
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, sub := range subs {
		deliveries, err := w.bus.Subscribe(sub.queue, sub.pattern)
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", sub.queue, err)
		}
		for i := 0; i < n; i++ {
			g.Go(func() error { return w.consume(ctx, deliveries, sub.handler) })
		}
	}
	return g.Wait()
}

func (w *worker) consume(
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
			w.dispatch(ctx, d, handler)
		}
	}
}

// dispatch runs handler once. Generation is never retried, so a failed
// handler drops the delivery; only a shutdown hands it back to the queue.
func (w *worker) dispatch(ctx context.Context, d amqp.Delivery, handler func(context.Context, amqp.Delivery) error) {
	err := handler(ctx, d)
	switch {
	case err == nil:
		d.Ack(false)
	case ctx.Err() != nil:
		log.Warn().Err(err).Str("key", d.RoutingKey).Msg("interrupted, returning delivery to queue")
		d.Nack(false, true)
	default:
		log.Error().Err(err).Str("key", d.RoutingKey).Msg("shadergen error")
		d.Nack(false, false)
	}
}

func (w *worker) onVertexRequested(ctx context.Context, d amqp.Delivery) error {
	p, err := events.Unwrap[events.VertexRequestedPayload](d.Body)
	if err != nil {
		return err
	}

	log.Info().
		Str("request", p.RequestID).
		Str("program", p.ProgramID).
		Msg("generating vertex shader")

	res := w.shaders.VertexCode(ctx, p.Description)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return w.publishResult(ctx, p.RequestID, p.ProgramID, events.StageVertex, res)
}

func (w *worker) onFragmentRequested(ctx context.Context, d amqp.Delivery) error {
	p, err := events.Unwrap[events.FragmentRequestedPayload](d.Body)
	if err != nil {
		return err
	}

	log.Info().
		Str("request", p.RequestID).
		Str("program", p.ProgramID).
		Int("vertex_bytes", len(p.VertexCode)).
		Msg("generating fragment shader")

	res := w.shaders.FragmentCode(ctx, p.VertexCode, p.Description)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return w.publishResult(ctx, p.RequestID, p.ProgramID, events.StageFragment, res)
}

func (w *worker) publishResult(ctx context.Context, requestID, programID, stage string, res shader.Result) error {
	if !res.OK() {
		log.Warn().
			Str("request", requestID).
			Str("stage", stage).
			Str("status", string(res.Status)).
			Msg(res.Payload)
		return mq.PublishEvent(ctx, w.bus, events.ShaderFailed, events.ShaderFailedPayload{
			RequestID: requestID,
			ProgramID: programID,
			Stage:     stage,
			Status:    string(res.Status),
			Error:     res.Payload,
		})
	}
	return mq.PublishEvent(ctx, w.bus, events.ShaderGenerated, events.ShaderGeneratedPayload{
		RequestID: requestID,
		ProgramID: programID,
		Stage:     stage,
		Code:      res.Payload,
	})
}
