// shadergen subscribes to shader.vertex.requested and
// shader.fragment.requested, asks the model for GLSL ES source,
// and publishes shader.generated or shader.failed.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/forge-ai/shaderforge/shared/config"
	"github.com/forge-ai/shaderforge/shared/llm"
	"github.com/forge-ai/shaderforge/shared/mq"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	_ = godotenv.Load()

	cfg := config.FromEnv()
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	if cfg.APIKey == "" && cfg.Mode != llm.ModeMock {
		log.Warn().Msg("API_KEY not set, every request will fail with initialization_error")
	}

	broker, err := mq.New(cfg.AMQPURL)
	if err != nil {
		log.Fatal().Err(err).Msg("mq connect")
	}
	defer broker.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() { <-sigs; cancel() }()

	w := newWorker(broker, cfg.ShaderService())

	log.Info().Str("model", cfg.Model).Int("workers", cfg.Workers).Msg("shadergen service started")

	if err := w.run(ctx, cfg.Workers); err != nil {
		log.Fatal().Err(err).Msg("shadergen exited")
	}
}
