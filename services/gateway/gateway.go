package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/forge-ai/shaderforge/shared/events"
	"github.com/forge-ai/shaderforge/shared/mq"
	"github.com/forge-ai/shaderforge/shared/shader"
)

const version = "0.1.0"

// shaders is the host boundary served by the synchronous endpoints.
type shaders interface {
	VertexCode(ctx context.Context, description string) shader.Result
	FragmentCode(ctx context.Context, vertexCode, description string) shader.Result
}

type gateway struct {
	bus     mq.Bus
	hub     *hub
	shaders shaders
}

func newGateway(bus mq.Bus, s shaders) *gateway {
	return &gateway{bus: bus, hub: newHub(), shaders: s}
}

func (gw *gateway) server() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			log.Info().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Msg("request")
			return nil
		},
	}))

	gw.registerRoutes(e)
	return e
}

func (gw *gateway) registerRoutes(e *echo.Echo) {
	e.POST("/api/shaders/vertex", gw.vertexCode)
	e.POST("/api/shaders/fragment", gw.fragmentCode)
	e.POST("/api/programs", gw.createProgram)
	e.GET("/api/status", gw.status)
	e.GET("/ws", gw.serveWS)
}

// run serves HTTP on addr and relays bus events to WebSocket clients until
// ctx is done.
func (gw *gateway) run(ctx context.Context, e *echo.Echo, addr string) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return gw.hub.run(ctx) })

	if err := gw.relay(ctx, g); err != nil {
		return err
	}

	g.Go(func() error {
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return e.Shutdown(shutCtx)
	})

	return g.Wait()
}

// relay subscribes to every event browsers care about and forwards the raw
// envelopes to the hub.
func (gw *gateway) relay(ctx context.Context, g *errgroup.Group) error {
	subs := []struct{ q, p string }{
		{"gw.shader.generated", events.ShaderGenerated},
		{"gw.shader.failed", events.ShaderFailed},
		{"gw.program.relay", "program.#"},
		{"gw.log.relay", "log.#"},
	}
	for _, sub := range subs {
		deliveries, err := gw.bus.Subscribe(sub.q, sub.p)
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", sub.q, err)
		}
		g.Go(func() error { return gw.forward(ctx, deliveries) })
	}
	return nil
}

func (gw *gateway) forward(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}
			gw.hub.broadcast(d.Body)
			d.Ack(false)
		}
	}
}

// ── Handlers ──────────────────────────────────────────────────────────────────

// vertexCode handles POST /api/shaders/vertex.
func (gw *gateway) vertexCode(c echo.Context) error {
	var req struct {
		Description *string `json:"description"`
	}
	if err := c.Bind(&req); err != nil {
		return jsonErr(c, "invalid body", http.StatusBadRequest)
	}
	if req.Description == nil {
		return jsonErr(c, "description required", http.StatusBadRequest)
	}

	res := gw.shaders.VertexCode(c.Request().Context(), *req.Description)
	return c.JSON(httpStatus(res.Status), res)
}

// fragmentCode handles POST /api/shaders/fragment.
func (gw *gateway) fragmentCode(c echo.Context) error {
	var req struct {
		VertexCode  *string `json:"vertex_code"`
		Description *string `json:"description"`
	}
	if err := c.Bind(&req); err != nil {
		return jsonErr(c, "invalid body", http.StatusBadRequest)
	}
	if req.VertexCode == nil {
		return jsonErr(c, "vertex_code required", http.StatusBadRequest)
	}
	if req.Description == nil {
		return jsonErr(c, "description required", http.StatusBadRequest)
	}

	res := gw.shaders.FragmentCode(c.Request().Context(), *req.VertexCode, *req.Description)
	return c.JSON(httpStatus(res.Status), res)
}

// createProgram handles POST /api/programs. The result arrives over /ws.
func (gw *gateway) createProgram(c echo.Context) error {
	var req struct {
		VertexDescription   *string `json:"vertex_description"`
		FragmentDescription *string `json:"fragment_description"`
	}
	if err := c.Bind(&req); err != nil {
		return jsonErr(c, "invalid body", http.StatusBadRequest)
	}
	if req.VertexDescription == nil || req.FragmentDescription == nil {
		return jsonErr(c, "vertex_description and fragment_description required", http.StatusBadRequest)
	}

	programID := uuid.New().String()
	err := mq.PublishEvent(c.Request().Context(), gw.bus, events.ProgramRequested, events.ProgramRequestedPayload{
		ProgramID:           programID,
		VertexDescription:   *req.VertexDescription,
		FragmentDescription: *req.FragmentDescription,
	})
	if err != nil {
		log.Error().Err(err).Str("program", programID).Msg("publish program.requested")
		return jsonErr(c, "queue publish failed", http.StatusInternalServerError)
	}

	return c.JSON(http.StatusAccepted, map[string]any{
		"program_id": programID,
		"status":     "queued",
	})
}

func (gw *gateway) status(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":  "online",
		"clients": gw.hub.clientCount(),
		"version": version,
	})
}

func (gw *gateway) serveWS(c echo.Context) error {
	gw.hub.serveWS(c.Response(), c.Request())
	return nil
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// httpStatus maps a boundary status onto a response code. The body always
// carries the Result, so clients can branch on it either way.
func httpStatus(s shader.Status) int {
	switch s {
	case shader.StatusOK:
		return http.StatusOK
	case shader.StatusInitializationError:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func jsonErr(c echo.Context, msg string, code int) error {
	return c.JSON(code, map[string]string{"error": msg})
}
