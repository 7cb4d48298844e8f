package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/forge-ai/shaderforge/shared/events"
	"github.com/forge-ai/shaderforge/shared/llm"
	"github.com/forge-ai/shaderforge/shared/mq/mqtest"
	"github.com/forge-ai/shaderforge/shared/shader"
)

type fakeShaders struct {
	result     shader.Result
	vertexArgs []string
	fragArgs   [][2]string
}

func (f *fakeShaders) VertexCode(ctx context.Context, description string) shader.Result {
	f.vertexArgs = append(f.vertexArgs, description)
	return f.result
}

func (f *fakeShaders) FragmentCode(ctx context.Context, vertexCode, description string) shader.Result {
	f.fragArgs = append(f.fragArgs, [2]string{vertexCode, description})
	return f.result
}

func do(t *testing.T, e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decodeResult(t *testing.T, rec *httptest.ResponseRecorder) shader.Result {
	t.Helper()
	var res shader.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	return res
}

func TestVertexEndpointOK(t *testing.T) {
	fake := &fakeShaders{result: shader.Result{Status: shader.StatusOK, Payload: "void main() {}"}}
	gw := newGateway(mqtest.New(), fake)

	rec := do(t, gw.server(), http.MethodPost, "/api/shaders/vertex", `{"description":"a simple triangle"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, shader.Result{Status: shader.StatusOK, Payload: "void main() {}"}, decodeResult(t, rec))
	assert.Equal(t, []string{"a simple triangle"}, fake.vertexArgs)
}

func TestVertexEndpointAcceptsEmptyDescription(t *testing.T) {
	fake := &fakeShaders{result: shader.Result{Status: shader.StatusOK, Payload: "x"}}
	gw := newGateway(mqtest.New(), fake)

	rec := do(t, gw.server(), http.MethodPost, "/api/shaders/vertex", `{"description":""}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{""}, fake.vertexArgs)
}

func TestVertexEndpointMissingDescription(t *testing.T) {
	fake := &fakeShaders{}
	gw := newGateway(mqtest.New(), fake)

	rec := do(t, gw.server(), http.MethodPost, "/api/shaders/vertex", `{}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "description required")
	assert.Empty(t, fake.vertexArgs)
}

func TestVertexEndpointInvalidBody(t *testing.T) {
	gw := newGateway(mqtest.New(), &fakeShaders{})

	rec := do(t, gw.server(), http.MethodPost, "/api/shaders/vertex", `{not json`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid body")
}

func TestStatusCodesFollowResult(t *testing.T) {
	cases := []struct {
		status shader.Status
		code   int
	}{
		{shader.StatusOK, http.StatusOK},
		{shader.StatusAPIError, http.StatusBadGateway},
		{shader.StatusInitializationError, http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(string(tc.status), func(t *testing.T) {
			fake := &fakeShaders{result: shader.Result{Status: tc.status, Payload: "p"}}
			gw := newGateway(mqtest.New(), fake)

			rec := do(t, gw.server(), http.MethodPost, "/api/shaders/fragment",
				`{"vertex_code":"void main() {}","description":"red"}`)

			assert.Equal(t, tc.code, rec.Code)
			assert.Equal(t, tc.status, decodeResult(t, rec).Status)
		})
	}
}

func TestFragmentEndpointPassesVertexCode(t *testing.T) {
	fake := &fakeShaders{result: shader.Result{Status: shader.StatusOK, Payload: "frag"}}
	gw := newGateway(mqtest.New(), fake)

	rec := do(t, gw.server(), http.MethodPost, "/api/shaders/fragment",
		`{"vertex_code":"attribute vec3 position;","description":"solid red"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, [][2]string{{"attribute vec3 position;", "solid red"}}, fake.fragArgs)
}

func TestFragmentEndpointMissingVertexCode(t *testing.T) {
	gw := newGateway(mqtest.New(), &fakeShaders{})

	rec := do(t, gw.server(), http.MethodPost, "/api/shaders/fragment", `{"description":"red"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "vertex_code required")
}

func TestFragmentEndpointWithRealServiceInMockMode(t *testing.T) {
	svc := shader.NewService(shader.NewGenerator(llm.NewFactory(llm.Options{}, llm.ModeMock), shader.DefaultModel))
	gw := newGateway(mqtest.New(), svc)

	rec := do(t, gw.server(), http.MethodPost, "/api/shaders/fragment",
		`{"vertex_code":"void main() {}","description":"red"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	res := decodeResult(t, rec)
	assert.Equal(t, shader.StatusOK, res.Status)
	assert.Contains(t, res.Payload, "gl_FragColor")
}

func TestCreateProgramPublishesRequest(t *testing.T) {
	bus := mqtest.New()
	gw := newGateway(bus, &fakeShaders{})

	rec := do(t, gw.server(), http.MethodPost, "/api/programs",
		`{"vertex_description":"a quad","fragment_description":"a gradient"}`)

	require.Equal(t, http.StatusAccepted, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "queued", body["status"])
	require.NotEmpty(t, body["program_id"])

	p, ok := mqtest.Last[events.ProgramRequestedPayload](bus, events.ProgramRequested)
	require.True(t, ok)
	assert.Equal(t, body["program_id"], p.ProgramID)
	assert.Equal(t, "a quad", p.VertexDescription)
	assert.Equal(t, "a gradient", p.FragmentDescription)
}

func TestCreateProgramMissingFields(t *testing.T) {
	bus := mqtest.New()
	gw := newGateway(bus, &fakeShaders{})

	rec := do(t, gw.server(), http.MethodPost, "/api/programs", `{"vertex_description":"a quad"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, bus.Keys())
}

func TestCreateProgramPublishFailure(t *testing.T) {
	bus := mqtest.New()
	bus.Err = errors.New("channel closed")
	gw := newGateway(bus, &fakeShaders{})

	rec := do(t, gw.server(), http.MethodPost, "/api/programs",
		`{"vertex_description":"a","fragment_description":"b"}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "queue publish failed")
}

func TestStatusEndpoint(t *testing.T) {
	gw := newGateway(mqtest.New(), &fakeShaders{})

	rec := do(t, gw.server(), http.MethodGet, "/api/status", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "online", body["status"])
	assert.Equal(t, float64(0), body["clients"])
	assert.Equal(t, version, body["version"])
}

func TestRelayForwardsEnvelopes(t *testing.T) {
	bus := mqtest.New()
	gw := newGateway(bus, &fakeShaders{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)
	require.NoError(t, gw.relay(ctx, g))

	d, acker := mqtest.Delivery(events.ShaderGenerated, events.ShaderGeneratedPayload{
		RequestID: "r1", Stage: events.StageVertex, Code: "void main() {}",
	})
	bus.Queue("gw.shader.generated") <- d

	select {
	case msg := <-gw.hub.bc:
		assert.Equal(t, d.Body, msg)
	case <-time.After(time.Second):
		t.Fatal("envelope not relayed")
	}
	assert.Eventually(t, func() bool {
		acks, _, _ := acker.Counts()
		return acks == 1
	}, time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, g.Wait())
}

func TestWebSocketReceivesBroadcast(t *testing.T) {
	gw := newGateway(mqtest.New(), &fakeShaders{})
	srv := httptest.NewServer(gw.server())
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go gw.hub.run(ctx)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return gw.hub.clientCount() == 1 }, time.Second, 10*time.Millisecond)

	gw.hub.broadcast([]byte(`{"routing_key":"log.event"}`))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"routing_key":"log.event"}`, string(msg))

	conn.Close()
	assert.Eventually(t, func() bool { return gw.hub.clientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestVertexHandlerDirect(t *testing.T) {
	fake := &fakeShaders{result: shader.Result{
		Status:  shader.StatusAPIError,
		Payload: "Generated code contains 'while' loop which is not allowed",
	}}
	gw := newGateway(mqtest.New(), fake)
	e := echo.New()

	req := httptest.NewRequest(http.MethodPost, "/api/shaders/vertex", strings.NewReader(`{"description":"loop forever"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, gw.vertexCode(c))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	res := decodeResult(t, rec)
	assert.Equal(t, shader.StatusAPIError, res.Status)
	assert.Contains(t, res.Payload, "'while' loop")
}
